package persistence

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuantus/backend/internal/domain/models"
	"github.com/yuantus/backend/pkg/constants"
	"github.com/yuantus/backend/pkg/errors"
)

var activityTestColumns = []string{"id", "workflow_map_id", "name", "description", "type", "is_voting",
	"voting_policy", "assignee_type", "role_id", "user_id", "dynamic_identity"}

var transitionTestColumns = []string{"id", "workflow_map_id", "from_activity_id", "to_activity_id",
	"condition", "guard", "priority"}

func TestGetMapByNameLoadsDefinition(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewMapRepository(db)

	mapQuery := fmt.Sprintf("SELECT id, name, description FROM %s WHERE name = ?", constants.TableProcessMap)
	mock.ExpectQuery(regexp.QuoteMeta(mapQuery)).WithArgs("Release Approval").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description"}).
			AddRow("m1", "Release Approval", nil))

	activityQuery := fmt.Sprintf("SELECT %s FROM %s WHERE workflow_map_id = ? ORDER BY id",
		activityColumns, constants.TableActivity)
	mock.ExpectQuery(regexp.QuoteMeta(activityQuery)).WithArgs("m1").
		WillReturnRows(sqlmock.NewRows(activityTestColumns).
			AddRow("a1", "m1", "Start", nil, string(models.ActivityTypeStart), false, "", string(models.AssigneeTypeRole), nil, nil, nil).
			AddRow("a2", "m1", "Review", "Check the release", string(models.ActivityTypeTask), true,
				string(models.VotingFirstCompletedWins), string(models.AssigneeTypeRole), "role-qa", nil, nil).
			AddRow("a3", "m1", "End", nil, string(models.ActivityTypeEnd), false, "", string(models.AssigneeTypeRole), nil, nil, nil))

	transitionQuery := fmt.Sprintf("SELECT %s FROM %s WHERE workflow_map_id = ? ORDER BY priority, id",
		transitionColumns, constants.TableTransition)
	mock.ExpectQuery(regexp.QuoteMeta(transitionQuery)).WithArgs("m1").
		WillReturnRows(sqlmock.NewRows(transitionTestColumns).
			AddRow("t1", "m1", "a1", "a2", constants.OutcomeDefault, nil, 1).
			AddRow("t2", "m1", "a2", "a3", constants.OutcomeApprove, `item.owner != ""`, 1))

	m, err := repo.GetMapByName(context.Background(), "Release Approval")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "m1", m.ID)
	require.Len(t, m.Activities, 3)
	require.Len(t, m.Transitions, 2)

	review := m.Activities[1]
	assert.Equal(t, models.ActivityTypeTask, review.Type)
	require.NotNil(t, review.RoleID)
	assert.Equal(t, "role-qa", *review.RoleID)
	require.NotNil(t, review.Description)

	guarded := m.Transitions[1]
	require.NotNil(t, guarded.Guard)
	assert.Equal(t, `item.owner != ""`, *guarded.Guard)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMapByNameMissingYieldsNil(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewMapRepository(db)

	mapQuery := fmt.Sprintf("SELECT id, name, description FROM %s WHERE name = ?", constants.TableProcessMap)
	mock.ExpectQuery(regexp.QuoteMeta(mapQuery)).WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description"}))

	m, err := repo.GetMapByName(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestGetStartActivity(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewMapRepository(db)

	query := fmt.Sprintf("SELECT %s FROM %s WHERE workflow_map_id = ? AND type = ? LIMIT 1",
		activityColumns, constants.TableActivity)

	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs("m1", string(models.ActivityTypeStart)).
		WillReturnRows(sqlmock.NewRows(activityTestColumns).
			AddRow("a1", "m1", "Start", nil, string(models.ActivityTypeStart), false, "", string(models.AssigneeTypeRole), nil, nil, nil))

	start, err := repo.GetStartActivity(context.Background(), "m1")
	require.NoError(t, err)
	require.NotNil(t, start)
	assert.Equal(t, models.ActivityTypeStart, start.Type)

	// A map without a start activity yields nil, not an error
	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs("m2", string(models.ActivityTypeStart)).
		WillReturnRows(sqlmock.NewRows(activityTestColumns))

	start, err = repo.GetStartActivity(context.Background(), "m2")
	require.NoError(t, err)
	assert.Nil(t, start)
}

func TestGetActivityNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewMapRepository(db)

	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", activityColumns, constants.TableActivity)
	mock.ExpectQuery(regexp.QuoteMeta(query)).WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(activityTestColumns))

	_, err = repo.GetActivity(context.Background(), "ghost")
	assert.True(t, errors.IsNotFound(err), "expected NotFoundError, got %v", err)
}

func TestGetTransitionsFromOrdersByPriority(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewMapRepository(db)

	query := fmt.Sprintf("SELECT %s FROM %s WHERE from_activity_id = ? ORDER BY priority, id",
		transitionColumns, constants.TableTransition)
	mock.ExpectQuery(regexp.QuoteMeta(query)).WithArgs("a2").
		WillReturnRows(sqlmock.NewRows(transitionTestColumns).
			AddRow("t2", "m1", "a2", "a3", constants.OutcomeApprove, nil, 1).
			AddRow("t3", "m1", "a2", "a2", constants.OutcomeReject, nil, 2))

	transitions, err := repo.GetTransitionsFrom(context.Background(), "a2")
	require.NoError(t, err)
	require.Len(t, transitions, 2)
	assert.Equal(t, constants.OutcomeApprove, transitions[0].Condition)
	assert.Equal(t, constants.OutcomeReject, transitions[1].Condition)
}
