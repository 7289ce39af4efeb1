// Package artifact defines the common types for entity discovery across external catalogs.
package artifact

import (
	"errors"
	"time"
)

// Common errors returned by catalog packages.
var (
	ErrNotFound    = errors.New("author not found")
	ErrRateLimited = errors.New("rate limited")
)

// Method identifies which search strategy produced a candidate.
type Method string

// Discovery methods, in strategy priority order.
const (
	MethodOrganization Method = "organization"
	MethodSlug         Method = "slug"
	MethodSearch       Method = "search"
	MethodWebsite      Method = "website"
)

// Direct reports whether the method targeted the author namespace directly.
func (m Method) Direct() bool {
	return m == MethodOrganization || m == MethodSlug
}

// Entity is a business entity that discovery runs for. It is owned by the store.
type Entity struct {
	ID      string `json:"id" db:"id"`
	Name    string `json:"name" db:"name"`
	Slug    string `json:"slug,omitempty" db:"slug"`
	Website string `json:"website,omitempty" db:"website"`
}

// Engagement holds popularity counts. Primary is the catalog's headline
// metric (GitHub stars, Hugging Face downloads), Secondary the follow-up one
// (GitHub forks, Hugging Face likes).
type Engagement struct {
	Primary   int `json:"primary"`
	Secondary int `json:"secondary"`
}

// Candidate is an external catalog item returned by a search strategy.
//
//nolint:govet // fieldalignment: intentional layout for readability
type Candidate struct {
	ID          string `json:"id"`      // catalog-qualified, e.g. "github:acme/widget"
	Catalog     string `json:"catalog"` // "github", "huggingface"
	Author      string `json:"author"`  // owner login or model author
	Name        string `json:"name"`    // repository or model name without the author
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`

	Engagement   Engagement `json:"engagement"`
	Private      bool       `json:"private,omitempty"`
	Disabled     bool       `json:"disabled,omitempty"` // disabled or archived
	Gated        bool       `json:"gated,omitempty"`
	LastActivity time.Time  `json:"lastActivity,omitzero"`
	Tags         []string   `json:"tags,omitempty"`

	Method     Method  `json:"discoveryMethod"`
	Confidence float64 `json:"confidence"`
}

// QualifiedID builds a catalog-qualified identifier.
func QualifiedID(catalog, author, name string) string {
	return catalog + ":" + author + "/" + name
}

// Association links an entity to an artifact it owns.
type Association struct {
	EntityID   string  `json:"entityId" db:"entity_id"`
	ArtifactID string  `json:"artifactId" db:"artifact_id"`
	IsPrimary  bool    `json:"isPrimary" db:"is_primary"`
	Method     Method  `json:"discoveryMethod" db:"discovery_method"`
	Confidence float64 `json:"confidenceScore" db:"confidence"`
	Note       string  `json:"note,omitempty" db:"note"`
}

// Tier summarizes how much an entity's discovery result can be trusted.
type Tier string

// Confidence tiers.
const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
	TierNone   Tier = "none"
)

// DiscoveryResult is the per-entity outcome of a discovery run.
//
//nolint:govet // fieldalignment: intentional layout for readability
type DiscoveryResult struct {
	EntityID           string      `json:"entityId"`
	EntityName         string      `json:"entityName"`
	Strategies         []Method    `json:"strategies"`
	Candidates         []Candidate `json:"candidates"`
	AssociationsStored int         `json:"associationsStored"`
	Tier               Tier        `json:"confidence"`
	Issues             []string    `json:"issues,omitempty"`
}

// BatchReport aggregates one batch run.
//
//nolint:govet // fieldalignment: intentional layout for readability
type BatchReport struct {
	Success                 bool              `json:"success"`
	Catalog                 string            `json:"catalog"`
	EntitiesProcessed       int               `json:"entitiesProcessed"`
	TotalCandidatesFound    int               `json:"totalCandidatesFound"`
	TotalAssociationsStored int               `json:"totalAssociationsStored"`
	Results                 []DiscoveryResult `json:"results"`
	ProcessingTimeMs        int64             `json:"processingTimeMs"`
	RateLimitRemaining      int               `json:"rateLimitRemaining"` // -1 when never observed
	StoppedEarly            bool              `json:"stoppedEarly,omitempty"`
	StopReason              string            `json:"stopReason,omitempty"`
}

// Tally recomputes the report totals from its results.
func (r *BatchReport) Tally() {
	r.EntitiesProcessed = len(r.Results)
	r.TotalCandidatesFound = 0
	r.TotalAssociationsStored = 0
	for i := range r.Results {
		r.TotalCandidatesFound += len(r.Results[i].Candidates)
		r.TotalAssociationsStored += r.Results[i].AssociationsStored
	}
}
