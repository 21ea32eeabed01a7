package security

import (
	"fmt"

	"github.com/qdmz/webchaxun/internal/models"
)

type Permission string

const (
	PermManageUsers Permission = "manage_users"
	PermUploadFiles Permission = "upload_files"
	PermViewFiles   Permission = "view_files"
	PermSearchData  Permission = "search_data"
	PermDeleteFiles Permission = "delete_files"
)

var knownPermissions = map[Permission]struct{}{
	PermManageUsers: {},
	PermUploadFiles: {},
	PermViewFiles:   {},
	PermSearchData:  {},
	PermDeleteFiles: {},
}

var rolePermissions = map[models.UserRole][]Permission{
	models.UserRoleAdmin: {
		PermManageUsers,
		PermUploadFiles,
		PermViewFiles,
		PermSearchData,
		PermDeleteFiles,
	},
	models.UserRoleUser: {
		PermViewFiles,
		PermSearchData,
	},
}

// PermissionResolver answers capability checks against a session's role.
type PermissionResolver struct {
	table map[models.UserRole]map[Permission]struct{}
}

// NewPermissionResolver builds the resolver from the role table and fails
// if the table names an unknown permission or misses a role.
func NewPermissionResolver() (*PermissionResolver, error) {
	return newPermissionResolver(rolePermissions)
}

func newPermissionResolver(src map[models.UserRole][]Permission) (*PermissionResolver, error) {
	table := make(map[models.UserRole]map[Permission]struct{}, len(src))
	for role, perms := range src {
		if !role.Valid() {
			return nil, fmt.Errorf("permission table: unknown role %q", role)
		}
		set := make(map[Permission]struct{}, len(perms))
		for _, p := range perms {
			if _, ok := knownPermissions[p]; !ok {
				return nil, fmt.Errorf("permission table: role %q has unknown permission %q", role, p)
			}
			set[p] = struct{}{}
		}
		table[role] = set
	}
	for _, role := range []models.UserRole{models.UserRoleAdmin, models.UserRoleUser} {
		if _, ok := table[role]; !ok {
			return nil, fmt.Errorf("permission table: role %q missing", role)
		}
	}
	return &PermissionResolver{table: table}, nil
}

func (r *PermissionResolver) HasPermission(sess *models.Session, perm Permission) bool {
	if !sess.Authenticated() {
		return false
	}
	set, ok := r.table[sess.Role]
	if !ok {
		return false
	}
	_, ok = set[perm]
	return ok
}

// Permissions lists the capabilities of the session's role.
func (r *PermissionResolver) Permissions(sess *models.Session) []Permission {
	if !sess.Authenticated() {
		return nil
	}
	out := make([]Permission, 0, len(r.table[sess.Role]))
	for _, p := range rolePermissions[sess.Role] {
		if _, ok := r.table[sess.Role][p]; ok {
			out = append(out, p)
		}
	}
	return out
}
