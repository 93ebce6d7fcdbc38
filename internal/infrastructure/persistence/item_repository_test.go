package persistence

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuantus/backend/pkg/constants"
	"github.com/yuantus/backend/pkg/errors"
)

func TestGetItem(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewItemRepository(db)

	query := fmt.Sprintf("SELECT id, item_type_id, created_by_id, owner_id, current_state_id FROM %s WHERE id = ?",
		constants.TableItem)
	columns := []string{"id", "item_type_id", "created_by_id", "owner_id", "current_state_id"}

	mock.ExpectQuery(regexp.QuoteMeta(query)).WithArgs("item-1").
		WillReturnRows(sqlmock.NewRows(columns).AddRow("item-1", "Part", "alice", nil, "st-work"))

	item, err := repo.GetItem(context.Background(), "item-1")
	require.NoError(t, err)
	assert.Equal(t, "Part", item.ItemTypeID)
	require.NotNil(t, item.CreatedByID)
	assert.Equal(t, "alice", *item.CreatedByID)
	assert.Nil(t, item.OwnerID)
	require.NotNil(t, item.CurrentStateID)
	assert.Equal(t, "st-work", *item.CurrentStateID)

	mock.ExpectQuery(regexp.QuoteMeta(query)).WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(columns))

	_, err = repo.GetItem(context.Background(), "ghost")
	assert.True(t, errors.IsNotFound(err), "expected NotFoundError, got %v", err)
}

func TestUpdateItemStateIsGuarded(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewItemRepository(db)

	query := fmt.Sprintf("UPDATE %s SET current_state_id = ? WHERE id = ? AND current_state_id = ?",
		constants.TableItem)

	mock.ExpectExec(regexp.QuoteMeta(query)).
		WithArgs("st-review", "item-1", "st-work").
		WillReturnResult(sqlmock.NewResult(0, 1))

	moved, err := repo.UpdateItemState(context.Background(), "item-1", "st-work", "st-review")
	require.NoError(t, err)
	assert.True(t, moved)

	// Expected-state mismatch affects zero rows: the concurrent writer won
	mock.ExpectExec(regexp.QuoteMeta(query)).
		WithArgs("st-review", "item-1", "st-work").
		WillReturnResult(sqlmock.NewResult(0, 0))

	moved, err = repo.UpdateItemState(context.Background(), "item-1", "st-work", "st-review")
	require.NoError(t, err)
	assert.False(t, moved)
}
