package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/yuantus/backend/internal/domain/models"
	"github.com/yuantus/backend/pkg/constants"
	"github.com/yuantus/backend/pkg/errors"
)

// ProcessRepository persists process instances
type ProcessRepository struct {
	db *sql.DB
}

// NewProcessRepository creates a new ProcessRepository
func NewProcessRepository(db *sql.DB) *ProcessRepository {
	return &ProcessRepository{db: db}
}

const processColumns = "id, workflow_map_id, item_id, state, state_reason, created_at, closed_at"

// Insert persists a new process instance
func (r *ProcessRepository) Insert(ctx context.Context, p *models.ProcessInstance) error {
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?)",
		constants.TableProcessInstance, processColumns)
	_, err := dbFrom(ctx, r.db).ExecContext(ctx, q,
		p.ID, p.MapID, p.ItemID, p.State, p.StateReason, p.CreatedAt, p.ClosedAt)
	if err != nil {
		return fmt.Errorf("failed to insert process instance: %w", err)
	}
	return nil
}

// Get returns the process instance or a NotFoundError
func (r *ProcessRepository) Get(ctx context.Context, id string) (*models.ProcessInstance, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", processColumns, constants.TableProcessInstance)

	p, err := scanProcess(dbFrom(ctx, r.db).QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("process", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load process %s: %w", id, err)
	}
	return p, nil
}

// FindActiveByItem returns the item's Active process or nil. With forUpdate
// the matching row is locked, which also serializes concurrent starts for the
// same item: the existence check and the insert become atomic.
func (r *ProcessRepository) FindActiveByItem(ctx context.Context, itemID string, forUpdate bool) (*models.ProcessInstance, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE item_id = ? AND state = ? LIMIT 1",
		processColumns, constants.TableProcessInstance)
	if forUpdate {
		q += " FOR UPDATE"
	}

	p, err := scanProcess(dbFrom(ctx, r.db).QueryRowContext(ctx, q, itemID, models.ProcessStateActive))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active process for item %s: %w", itemID, err)
	}
	return p, nil
}

// Close moves the instance from Active to a terminal state. The state guard
// in the WHERE clause keeps a closed process closed regardless of callers.
func (r *ProcessRepository) Close(ctx context.Context, id string, state models.ProcessState, reason *string, closedAt time.Time) error {
	q := fmt.Sprintf("UPDATE %s SET state = ?, state_reason = ?, closed_at = ? WHERE id = ? AND state = ?",
		constants.TableProcessInstance)

	res, err := dbFrom(ctx, r.db).ExecContext(ctx, q, state, reason, closedAt, id, models.ProcessStateActive)
	if err != nil {
		return fmt.Errorf("failed to close process %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to close process %s: %w", id, err)
	}
	if affected == 0 {
		return errors.NewInvalidStateError("process", string(state), "close")
	}
	return nil
}

func scanProcess(row rowScanner) (*models.ProcessInstance, error) {
	var p models.ProcessInstance
	var reason sql.NullString
	var closedAt sql.NullTime
	err := row.Scan(&p.ID, &p.MapID, &p.ItemID, &p.State, &reason, &p.CreatedAt, &closedAt)
	if err != nil {
		return nil, err
	}
	if reason.Valid {
		p.StateReason = &reason.String
	}
	if closedAt.Valid {
		p.ClosedAt = &closedAt.Time
	}
	return &p, nil
}
