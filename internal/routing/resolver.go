// Package routing resolves a user's identity-provider group memberships
// to a single target by weight. Two mapping tables share the algorithm:
// group→role (RBAC) and group→area (agent routing).
package routing

import "sort"

// Mapping is one enabled group→target entry as seen by the resolver.
// Target is a role name for RBAC mappings and an area type for agent
// routing mappings.
type Mapping struct {
	GroupName   string
	Target      string
	Weight      int
	Description string
}

// Resolve picks the single highest-weight mapping whose group name is in
// groups. Returns nil when groups is empty or nothing matches; the caller
// applies its own fallback. Ties on weight break toward the
// lexicographically smallest group name so resolution is deterministic
// regardless of table order.
//
// Pure function: no side effects, safe from any goroutine.
func Resolve(groups []string, mappings []Mapping) *Mapping {
	if len(groups) == 0 {
		return nil
	}

	member := make(map[string]bool, len(groups))
	for _, g := range groups {
		member[g] = true
	}

	var best *Mapping
	for i := range mappings {
		m := &mappings[i]
		if !member[m.GroupName] {
			continue
		}
		if best == nil ||
			m.Weight > best.Weight ||
			(m.Weight == best.Weight && m.GroupName < best.GroupName) {
			best = m
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

// RankAll returns every mapping matching groups, sorted by weight
// descending (group name ascending on ties). Unlike Resolve it keeps all
// matches, supporting "what else could I access" introspection.
func RankAll(groups []string, mappings []Mapping) []Mapping {
	if len(groups) == 0 {
		return nil
	}

	member := make(map[string]bool, len(groups))
	for _, g := range groups {
		member[g] = true
	}

	var matched []Mapping
	for _, m := range mappings {
		if member[m.GroupName] {
			matched = append(matched, m)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Weight != matched[j].Weight {
			return matched[i].Weight > matched[j].Weight
		}
		return matched[i].GroupName < matched[j].GroupName
	})
	return matched
}
