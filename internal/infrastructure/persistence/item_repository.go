package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/yuantus/backend/internal/domain/models"
	"github.com/yuantus/backend/pkg/constants"
	"github.com/yuantus/backend/pkg/errors"
)

// ItemRepository looks up governed items and applies lifecycle state writes.
// Full item management lives in the excluded CRUD layers; only the narrow
// contract the orchestrator needs is implemented here.
type ItemRepository struct {
	db *sql.DB
}

// NewItemRepository creates a new ItemRepository
func NewItemRepository(db *sql.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// GetItem returns the item or a NotFoundError
func (r *ItemRepository) GetItem(ctx context.Context, id string) (*models.Item, error) {
	q := fmt.Sprintf("SELECT id, item_type_id, created_by_id, owner_id, current_state_id FROM %s WHERE id = ?",
		constants.TableItem)

	var item models.Item
	var createdBy, owner, stateID sql.NullString
	err := dbFrom(ctx, r.db).QueryRowContext(ctx, q, id).Scan(
		&item.ID, &item.ItemTypeID, &createdBy, &owner, &stateID)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("item", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load item %s: %w", id, err)
	}
	if createdBy.Valid {
		item.CreatedByID = &createdBy.String
	}
	if owner.Valid {
		item.OwnerID = &owner.String
	}
	if stateID.Valid {
		item.CurrentStateID = &stateID.String
	}
	return &item, nil
}

// UpdateItemState moves the item to a new lifecycle state. The expected
// current state in the WHERE clause makes concurrent promotions lose cleanly.
func (r *ItemRepository) UpdateItemState(ctx context.Context, itemID, fromStateID, toStateID string) (bool, error) {
	q := fmt.Sprintf("UPDATE %s SET current_state_id = ? WHERE id = ? AND current_state_id = ?",
		constants.TableItem)

	res, err := dbFrom(ctx, r.db).ExecContext(ctx, q, toStateID, itemID, fromStateID)
	if err != nil {
		return false, fmt.Errorf("failed to update item %s state: %w", itemID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update item %s state: %w", itemID, err)
	}
	return affected > 0, nil
}
