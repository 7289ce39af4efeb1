package search

import "github.com/codeGROOVE-dev/orgfinder/pkg/artifact"

// Seen holds the candidate identifiers already accepted during one entity run.
type Seen map[string]struct{}

// Has reports whether id was already merged.
func (s Seen) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Merge appends the candidates of batch whose identifiers are not yet in s,
// skipping duplicates within batch, and returns the extended working set along
// with the number of duplicates dropped.
func (s Seen) Merge(working, batch []artifact.Candidate) ([]artifact.Candidate, int) {
	dropped := 0
	for _, c := range batch {
		if s.Has(c.ID) {
			dropped++
			continue
		}
		s[c.ID] = struct{}{}
		working = append(working, c)
	}
	return working, dropped
}
