package directory

import (
	"context"
	"errors"
)

var ErrUserNotFound = errors.New("user not found in directory")

// Directory answers identity questions the platform owns: who holds a
// role, what a user is called, and whether the account is active. The
// communication service only reads it.
type Directory interface {
	// ResolveRoleMembers returns the ids of active users holding any of
	// the given roles.
	ResolveRoleMembers(ctx context.Context, roles []string) ([]string, error)
	DisplayName(ctx context.Context, userID string) (string, error)
	IsActive(ctx context.Context, userID string) (bool, error)
	// ActiveUserIDs lists every active account. Used as the bulk
	// notification audience when no explicit targets are given.
	ActiveUserIDs(ctx context.Context) ([]string, error)
}
