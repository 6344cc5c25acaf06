package auth

import "github.com/twinforge/twinforge/pkg/types"

// CanRead reports whether user may read a record owned by ownerID. Public
// records are readable by anyone; unowned records have no gate.
func CanRead(user *types.User, ownerID *int64, isPublic bool, adminRole string) bool {
	if isPublic || ownerID == nil {
		return true
	}
	return CanMutate(user, ownerID, adminRole)
}

// CanMutate reports whether user may modify or delete a record owned by
// ownerID. Only the owner and admins qualify; is_public grants read access
// only.
func CanMutate(user *types.User, ownerID *int64, adminRole string) bool {
	if ownerID == nil {
		return true
	}
	if user == nil {
		return false
	}
	if adminRole != "" && user.HasRole(adminRole) {
		return true
	}
	return user.ID == *ownerID
}
