package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"                    // postgres driver
	_ "github.com/ncruces/go-sqlite3/driver" // sqlite3 driver
	_ "github.com/ncruces/go-sqlite3/embed"  // bundled sqlite build

	"github.com/codeGROOVE-dev/orgfinder/pkg/artifact"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// schema works on both sqlite and postgres. Timestamps are RFC 3339 text.
const schema = `
CREATE TABLE IF NOT EXISTS entities (
	id      TEXT PRIMARY KEY,
	name    TEXT NOT NULL,
	slug    TEXT NOT NULL DEFAULT '',
	website TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS artifacts (
	id                   TEXT PRIMARY KEY,
	catalog              TEXT NOT NULL,
	author               TEXT NOT NULL,
	name                 TEXT NOT NULL,
	url                  TEXT NOT NULL DEFAULT '',
	description          TEXT NOT NULL DEFAULT '',
	primary_engagement   BIGINT NOT NULL DEFAULT 0,
	secondary_engagement BIGINT NOT NULL DEFAULT 0,
	private              BOOLEAN NOT NULL DEFAULT FALSE,
	disabled             BOOLEAN NOT NULL DEFAULT FALSE,
	gated                BOOLEAN NOT NULL DEFAULT FALSE,
	last_activity        TEXT NOT NULL DEFAULT '',
	tags                 TEXT NOT NULL DEFAULT '[]',
	updated_at           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_artifacts_catalog ON artifacts(catalog);

CREATE TABLE IF NOT EXISTS associations (
	entity_id        TEXT NOT NULL REFERENCES entities(id),
	artifact_id      TEXT NOT NULL REFERENCES artifacts(id),
	is_primary       BOOLEAN NOT NULL DEFAULT FALSE,
	discovery_method TEXT NOT NULL,
	confidence       DOUBLE PRECISION NOT NULL,
	note             TEXT NOT NULL DEFAULT '',
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL,
	PRIMARY KEY (entity_id, artifact_id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_associations_one_primary ON associations(entity_id) WHERE is_primary;

CREATE TABLE IF NOT EXISTS discovery_attempts (
	entity_id    TEXT NOT NULL,
	catalog      TEXT NOT NULL,
	attempted_at TEXT NOT NULL,
	PRIMARY KEY (entity_id, catalog)
);
`

// SQL is a Store backed by sqlite or postgres.
type SQL struct {
	db     *sqlx.DB
	flavor sqlbuilder.Flavor
	logger *slog.Logger
	now    func() time.Time
	driver string
}

// Open connects to the database and creates the schema if needed. For sqlite,
// dsn may be a plain file path.
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (*SQL, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		sqlDriver string
		flavor    sqlbuilder.Flavor
	)
	switch driver {
	case DriverSQLite, "sqlite3", "":
		driver = DriverSQLite
		sqlDriver = "sqlite3"
		flavor = sqlbuilder.SQLite
		var err error
		if dsn, err = sqliteDSN(dsn); err != nil {
			return nil, err
		}
	case DriverPostgres, "postgresql":
		driver = DriverPostgres
		sqlDriver = "postgres"
		flavor = sqlbuilder.PostgreSQL
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck,gosec // best effort
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close() //nolint:errcheck,gosec // best effort
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	logger.DebugContext(ctx, "database ready", "driver", driver)
	return &SQL{db: db, flavor: flavor, logger: logger, now: time.Now, driver: driver}, nil
}

// sqliteDSN turns a path into a URI with the pragmas discovery relies on:
// a busy timeout and immediate transactions so concurrent catalog runs queue
// instead of failing.
func sqliteDSN(dsn string) (string, error) {
	if strings.HasPrefix(dsn, "file:") {
		return dsn, nil
	}
	if dsn == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			dir = os.TempDir()
		}
		dsn = filepath.Join(dir, "orgfinder", "orgfinder.db")
	}
	if err := os.MkdirAll(filepath.Dir(dsn), 0o750); err != nil {
		return "", fmt.Errorf("create database directory: %w", err)
	}
	return "file:" + dsn + "?_pragma=busy_timeout(10000)&_pragma=foreign_keys(1)&_txlock=immediate", nil
}

// Driver returns the normalized driver name.
func (s *SQL) Driver() string { return s.driver }

// Close closes the database.
func (s *SQL) Close() error {
	return s.db.Close()
}

// timestampLayout is fixed width so stored timestamps sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func (s *SQL) timestamp() string {
	return s.now().UTC().Format(timestampLayout)
}

// AddEntity inserts or replaces an entity. An empty ID is assigned a UUID.
func (s *SQL) AddEntity(ctx context.Context, e artifact.Entity) (artifact.Entity, error) {
	if strings.TrimSpace(e.Name) == "" {
		return e, fmt.Errorf("entity name: %w", ErrInvalid)
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}

	ib := s.flavor.NewInsertBuilder()
	ib.InsertInto("entities")
	ib.Cols("id", "name", "slug", "website")
	ib.Values(e.ID, e.Name, e.Slug, e.Website)
	query, args := ib.Build()
	query += " ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, slug = EXCLUDED.slug, website = EXCLUDED.website"

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return e, fmt.Errorf("insert entity %s: %w", e.ID, err)
	}
	return e, nil
}

// EntitiesNeedingDiscovery implements Gateway.
func (s *SQL) EntitiesNeedingDiscovery(ctx context.Context, catalog string, limit int) ([]artifact.Entity, error) {
	sb := s.flavor.NewSelectBuilder()
	sb.Select("e.id", "e.name", "e.slug", "e.website")
	sb.From("entities e")
	sb.JoinWithOption(sqlbuilder.LeftJoin, "discovery_attempts d", "d.entity_id = e.id", "d.catalog = "+sb.Var(catalog))
	sb.Where(fmt.Sprintf(
		"NOT EXISTS (SELECT 1 FROM associations a JOIN artifacts r ON r.id = a.artifact_id WHERE a.entity_id = e.id AND r.catalog = %s)",
		sb.Var(catalog)))
	sb.OrderBy("COALESCE(d.attempted_at, '')", "e.id")
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()
	var out []artifact.Entity
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list entities needing discovery: %w", err)
	}
	return out, nil
}

// UpsertArtifact implements Gateway.
func (s *SQL) UpsertArtifact(ctx context.Context, c artifact.Candidate) (string, error) {
	if c.ID == "" {
		return "", fmt.Errorf("artifact id: %w", ErrInvalid)
	}
	tags, err := json.Marshal(c.Tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	if c.Tags == nil {
		tags = []byte("[]")
	}
	var last string
	if !c.LastActivity.IsZero() {
		last = c.LastActivity.UTC().Format(time.RFC3339)
	}

	ib := s.flavor.NewInsertBuilder()
	ib.InsertInto("artifacts")
	ib.Cols("id", "catalog", "author", "name", "url", "description",
		"primary_engagement", "secondary_engagement", "private", "disabled", "gated",
		"last_activity", "tags", "updated_at")
	ib.Values(c.ID, c.Catalog, c.Author, c.Name, c.URL, c.Description,
		c.Engagement.Primary, c.Engagement.Secondary, c.Private, c.Disabled, c.Gated,
		last, string(tags), s.timestamp())
	query, args := ib.Build()
	query += ` ON CONFLICT (id) DO UPDATE SET
		catalog = EXCLUDED.catalog, author = EXCLUDED.author, name = EXCLUDED.name,
		url = EXCLUDED.url, description = EXCLUDED.description,
		primary_engagement = EXCLUDED.primary_engagement, secondary_engagement = EXCLUDED.secondary_engagement,
		private = EXCLUDED.private, disabled = EXCLUDED.disabled, gated = EXCLUDED.gated,
		last_activity = EXCLUDED.last_activity, tags = EXCLUDED.tags, updated_at = EXCLUDED.updated_at`

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return "", fmt.Errorf("upsert artifact %s: %w", c.ID, err)
	}
	return c.ID, nil
}

// UpsertAssociation implements Gateway. If a concurrent writer claims the
// primary slot first, the unique index rejects the insert and the write is
// retried once, which then sees the other primary.
func (s *SQL) UpsertAssociation(ctx context.Context, a artifact.Association) (bool, error) {
	if a.EntityID == "" || a.ArtifactID == "" {
		return false, fmt.Errorf("association key: %w", ErrInvalid)
	}
	created, err := s.upsertAssociation(ctx, a)
	if err != nil && a.IsPrimary && ctx.Err() == nil {
		s.logger.DebugContext(ctx, "retrying association upsert", "entity", a.EntityID, "artifact", a.ArtifactID, "error", err)
		created, err = s.upsertAssociation(ctx, a)
	}
	return created, err
}

func (s *SQL) upsertAssociation(ctx context.Context, a artifact.Association) (created bool, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback() //nolint:errcheck,gosec // error already being returned
		}
	}()

	sb := s.flavor.NewSelectBuilder()
	sb.Select("is_primary").From("associations")
	sb.Where(sb.Equal("entity_id", a.EntityID), sb.Equal("artifact_id", a.ArtifactID))
	query, args := sb.Build()

	var existingPrimary bool
	exists := true
	if err = tx.GetContext(ctx, &existingPrimary, query, args...); errors.Is(err, sql.ErrNoRows) {
		exists, err = false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read association: %w", err)
	}

	primary := existingPrimary
	if a.IsPrimary && !existingPrimary {
		cb := s.flavor.NewSelectBuilder()
		cb.Select("COUNT(*)").From("associations")
		cb.Where(cb.Equal("entity_id", a.EntityID), "is_primary")
		query, args = cb.Build()
		var n int
		if err = tx.GetContext(ctx, &n, query, args...); err != nil {
			return false, fmt.Errorf("count primary associations: %w", err)
		}
		primary = n == 0
	}

	now := s.timestamp()
	if exists {
		ub := s.flavor.NewUpdateBuilder()
		ub.Update("associations")
		ub.Set(
			ub.Assign("is_primary", primary),
			ub.Assign("discovery_method", string(a.Method)),
			ub.Assign("confidence", a.Confidence),
			ub.Assign("note", a.Note),
			ub.Assign("updated_at", now),
		)
		ub.Where(ub.Equal("entity_id", a.EntityID), ub.Equal("artifact_id", a.ArtifactID))
		query, args = ub.Build()
	} else {
		ib := s.flavor.NewInsertBuilder()
		ib.InsertInto("associations")
		ib.Cols("entity_id", "artifact_id", "is_primary", "discovery_method", "confidence", "note", "created_at", "updated_at")
		ib.Values(a.EntityID, a.ArtifactID, primary, string(a.Method), a.Confidence, a.Note, now, now)
		query, args = ib.Build()
	}
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return false, fmt.Errorf("write association %s/%s: %w", a.EntityID, a.ArtifactID, err)
	}
	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return !exists, nil
}

// RecordAttempt implements Gateway.
func (s *SQL) RecordAttempt(ctx context.Context, entityID, catalog string) error {
	ib := s.flavor.NewInsertBuilder()
	ib.InsertInto("discovery_attempts")
	ib.Cols("entity_id", "catalog", "attempted_at")
	ib.Values(entityID, catalog, s.timestamp())
	query, args := ib.Build()
	query += " ON CONFLICT (entity_id, catalog) DO UPDATE SET attempted_at = EXCLUDED.attempted_at"

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("record attempt %s/%s: %w", catalog, entityID, err)
	}
	return nil
}

// Associations returns the entity's associations, primary first.
func (s *SQL) Associations(ctx context.Context, entityID string) ([]artifact.Association, error) {
	sb := s.flavor.NewSelectBuilder()
	sb.Select("entity_id", "artifact_id", "is_primary", "discovery_method", "confidence", "note")
	sb.From("associations")
	sb.Where(sb.Equal("entity_id", entityID))
	sb.OrderBy("is_primary DESC", "created_at", "artifact_id")

	query, args := sb.Build()
	var out []artifact.Association
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list associations for %s: %w", entityID, err)
	}
	return out, nil
}
