package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/yuantus/backend/internal/domain/models"
	"github.com/yuantus/backend/pkg/constants"
	"github.com/yuantus/backend/pkg/errors"
)

// RBACRepository answers the identity questions the orchestrator delegates:
// role membership for pool-task voting and the system principal lookup.
type RBACRepository struct {
	db *sql.DB
}

// NewRBACRepository creates a new RBACRepository
func NewRBACRepository(db *sql.DB) *RBACRepository {
	return &RBACRepository{db: db}
}

// UserHasRole reports whether the user currently holds the role
func (r *RBACRepository) UserHasRole(ctx context.Context, userID, roleID string) (bool, error) {
	var exists bool
	q := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE user_id = ? AND role_id = ?)", constants.TableUserRole)
	err := dbFrom(ctx, r.db).QueryRowContext(ctx, q, userID, roleID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check role membership: %w", err)
	}
	return exists, nil
}

// GetUserRoleIDs returns the IDs of every role the user currently holds
func (r *RBACRepository) GetUserRoleIDs(ctx context.Context, userID string) ([]string, error) {
	q := fmt.Sprintf("SELECT role_id FROM %s WHERE user_id = ?", constants.TableUserRole)

	rows, err := dbFrom(ctx, r.db).QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load roles of user %s: %w", userID, err)
	}
	defer rows.Close()

	var roleIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		roleIDs = append(roleIDs, id)
	}
	return roleIDs, rows.Err()
}

// GetUserByUsername returns the user or a NotFoundError
func (r *RBACRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	q := fmt.Sprintf("SELECT id, username FROM %s WHERE username = ?", constants.TableUser)

	var u models.User
	err := dbFrom(ctx, r.db).QueryRowContext(ctx, q, username).Scan(&u.ID, &u.Username)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("user", username)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user '%s': %w", username, err)
	}
	return &u, nil
}

// SystemPrincipalProvider resolves the configured system identity once per
// call; the engine receives it injected, never looks it up itself.
type SystemPrincipalProvider struct {
	rbac     *RBACRepository
	username string
}

// NewSystemPrincipalProvider creates a provider bound to the configured username
func NewSystemPrincipalProvider(rbac *RBACRepository, username string) *SystemPrincipalProvider {
	return &SystemPrincipalProvider{rbac: rbac, username: username}
}

// SystemPrincipal resolves the system identity used for automatic promotions
func (p *SystemPrincipalProvider) SystemPrincipal(ctx context.Context) (*models.User, error) {
	return p.rbac.GetUserByUsername(ctx, p.username)
}
