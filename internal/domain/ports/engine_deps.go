package ports

import (
	"context"

	"github.com/yuantus/backend/internal/domain/models"
)

// ItemReader looks up the governed business object. Used by dynamic-identity
// resolution, the ownership check and the completion handler.
type ItemReader interface {
	// GetItem returns the item or a NotFoundError
	GetItem(ctx context.Context, id string) (*models.Item, error)
}

// RoleMembershipChecker answers role-membership questions. Pool-task voting
// authorization and the pending-task inbox both delegate here.
type RoleMembershipChecker interface {
	// UserHasRole reports whether the user currently holds the role
	UserHasRole(ctx context.Context, userID, roleID string) (bool, error)

	// GetUserRoleIDs returns the IDs of every role the user currently holds
	GetUserRoleIDs(ctx context.Context, userID string) ([]string, error)
}

// LifecyclePromoter attempts the automatic lifecycle promotion of an item
// after its process completes. Implementations pick the target transition
// (single outgoing edge, else the one leading to "Released") and apply it as
// the given acting user.
//
// A failed promotion is reported in the result, never as an error that could
// block process completion; the error return is reserved for infrastructure
// failures the caller still must not propagate.
type LifecyclePromoter interface {
	AutoPromote(ctx context.Context, item *models.Item, actingUserID string) (*models.PromoteResult, error)
}

// SystemPrincipalProvider resolves the system identity automatic promotions
// run as. Injected so the engine carries no hidden well-known-username lookup.
type SystemPrincipalProvider interface {
	SystemPrincipal(ctx context.Context) (*models.User, error)
}
