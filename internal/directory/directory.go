// Package directory looks up a user's identity-provider group
// memberships. Group names feed the weighted resolvers for both RBAC
// and agent routing.
package directory

import "context"

// FallbackGroup is assumed for a user when the directory cannot be
// reached. Resolution then degrades to whatever that group maps to
// (typically the default role and area) instead of failing the request.
const FallbackGroup = "General-Users"

// Directory returns the group names an external user belongs to.
type Directory interface {
	UserGroups(ctx context.Context, externalUserID string) ([]string, error)
}

// GroupsOrFallback wraps a directory lookup with the documented
// degradation: on error the user is treated as a member of
// FallbackGroup only. This is the boundary where upstream failures are
// converted to safe values; they never abort authentication.
func GroupsOrFallback(ctx context.Context, d Directory, externalUserID string) []string {
	groups, err := d.UserGroups(ctx, externalUserID)
	if err != nil {
		return []string{FallbackGroup}
	}
	return groups
}
