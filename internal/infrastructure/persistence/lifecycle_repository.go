package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/yuantus/backend/internal/domain/models"
	"github.com/yuantus/backend/pkg/constants"
	"github.com/yuantus/backend/pkg/errors"
)

// LifecycleRepository reads the governed item's external lifecycle graph.
// The full lifecycle subsystem lives elsewhere; the orchestrator only needs
// state lookups and the outgoing edges of a state.
type LifecycleRepository struct {
	db *sql.DB
}

// NewLifecycleRepository creates a new LifecycleRepository
func NewLifecycleRepository(db *sql.DB) *LifecycleRepository {
	return &LifecycleRepository{db: db}
}

// GetState returns the lifecycle state or a NotFoundError
func (r *LifecycleRepository) GetState(ctx context.Context, id string) (*models.LifecycleState, error) {
	q := fmt.Sprintf("SELECT id, name, is_released FROM %s WHERE id = ?", constants.TableLifecycleState)

	var s models.LifecycleState
	err := dbFrom(ctx, r.db).QueryRowContext(ctx, q, id).Scan(&s.ID, &s.Name, &s.IsReleased)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("lifecycle state", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load lifecycle state %s: %w", id, err)
	}
	return &s, nil
}

// ListTransitionsFrom returns the outgoing lifecycle transitions of a state
func (r *LifecycleRepository) ListTransitionsFrom(ctx context.Context, fromStateID string) ([]*models.LifecycleTransition, error) {
	q := fmt.Sprintf("SELECT id, from_state_id, to_state_id FROM %s WHERE from_state_id = ? ORDER BY id",
		constants.TableLifecycleTransition)

	rows, err := dbFrom(ctx, r.db).QueryContext(ctx, q, fromStateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lifecycle transitions from %s: %w", fromStateID, err)
	}
	defer rows.Close()

	var result []*models.LifecycleTransition
	for rows.Next() {
		var t models.LifecycleTransition
		if err := rows.Scan(&t.ID, &t.FromStateID, &t.ToStateID); err != nil {
			return nil, err
		}
		result = append(result, &t)
	}
	return result, rows.Err()
}
