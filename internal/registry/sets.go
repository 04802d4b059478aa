package registry

import (
	"encoding/json"
	"sort"
)

// Set is an unordered string collection with set semantics (spec.md §9: ad
// hoc JSON arrays stored as string columns are modeled as sets at the
// package boundary; the JSON array encoding is purely an implementation
// detail of the SQLite row mapping). A nil/empty Set means "all" wherever
// the spec calls for that convention (channel/tool whitelists).
type Set map[string]struct{}

// NewSet builds a Set from a slice, deduplicating entries.
func NewSet(items ...string) Set {
	if len(items) == 0 {
		return nil
	}
	s := make(Set, len(items))
	for _, item := range items {
		if item == "" {
			continue
		}
		s[item] = struct{}{}
	}
	if len(s) == 0 {
		return nil
	}
	return s
}

// Has reports whether id is a member.
func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Empty reports whether the set has no members (the "all" convention).
func (s Set) Empty() bool {
	return len(s) == 0
}

// Slice returns the members in sorted order for stable output.
func (s Set) Slice() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Union returns a new Set containing members of both sets.
func (s Set) Union(other Set) Set {
	out := make(Set, len(s)+len(other))
	for id := range s {
		out[id] = struct{}{}
	}
	for id := range other {
		out[id] = struct{}{}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Intersect returns a new Set containing members present in both sets.
func (s Set) Intersect(other Set) Set {
	out := make(Set)
	for id := range s {
		if other.Has(id) {
			out[id] = struct{}{}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Without returns a new Set with other's members removed.
func (s Set) Without(other Set) Set {
	out := make(Set)
	for id := range s {
		if !other.Has(id) {
			out[id] = struct{}{}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// MarshalJSON encodes the set as a sorted JSON array.
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

// UnmarshalJSON decodes a JSON array into the set.
func (s *Set) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*s = NewSet(items...)
	return nil
}

// setColumn marshals a Set to its TEXT column representation.
func setColumn(s Set) (string, error) {
	b, err := json.Marshal(s.Slice())
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// parseSetColumn parses a Set's TEXT column representation. An empty string
// (legacy rows, or never-written column) is treated as an empty set.
func parseSetColumn(col string) (Set, error) {
	if col == "" {
		return nil, nil
	}
	var items []string
	if err := json.Unmarshal([]byte(col), &items); err != nil {
		return nil, err
	}
	return NewSet(items...), nil
}
