package directory

import "context"

// StaticDirectory serves group memberships from a fixed table, for
// standalone deployments and tests that run without an identity
// provider.
type StaticDirectory struct {
	groups map[string][]string
}

// NewStaticDirectory builds a directory from user id -> group names.
func NewStaticDirectory(groups map[string][]string) *StaticDirectory {
	copied := make(map[string][]string, len(groups))
	for user, gs := range groups {
		copied[user] = append([]string(nil), gs...)
	}
	return &StaticDirectory{groups: copied}
}

// UserGroups returns the configured groups for the user. Unknown users
// get an empty slice, not an error: they simply match no mappings.
func (d *StaticDirectory) UserGroups(_ context.Context, externalUserID string) ([]string, error) {
	return append([]string(nil), d.groups[externalUserID]...), nil
}
