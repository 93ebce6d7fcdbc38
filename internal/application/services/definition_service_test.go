package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuantus/backend/internal/domain/models"
	"github.com/yuantus/backend/pkg/constants"
	"github.com/yuantus/backend/pkg/errors"
	"github.com/yuantus/backend/pkg/expression"
)

// fakeDefRepo is an in-memory definitionRepo
type fakeDefRepo struct {
	maps        map[string]*models.ProcessMap
	activities  int
	transitions int
}

func newFakeDefRepo() *fakeDefRepo {
	return &fakeDefRepo{maps: make(map[string]*models.ProcessMap)}
}

func (r *fakeDefRepo) GetMapByName(ctx context.Context, name string) (*models.ProcessMap, error) {
	return r.maps[name], nil
}

func (r *fakeDefRepo) GetActivity(ctx context.Context, id string) (*models.Activity, error) {
	for _, m := range r.maps {
		for _, a := range m.Activities {
			if a.ID == id {
				return a, nil
			}
		}
	}
	return nil, errors.NewNotFoundError("activity", id)
}

func (r *fakeDefRepo) GetStartActivity(ctx context.Context, mapID string) (*models.Activity, error) {
	for _, m := range r.maps {
		if m.ID != mapID {
			continue
		}
		for _, a := range m.Activities {
			if a.Type == models.ActivityTypeStart {
				return a, nil
			}
		}
	}
	return nil, nil
}

func (r *fakeDefRepo) GetTransitionsFrom(ctx context.Context, fromActivityID string) ([]*models.Transition, error) {
	var out []*models.Transition
	for _, m := range r.maps {
		for _, t := range m.Transitions {
			if t.FromActivityID == fromActivityID {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

func (r *fakeDefRepo) InsertMap(ctx context.Context, m *models.ProcessMap) error {
	r.maps[m.Name] = m
	return nil
}

func (r *fakeDefRepo) InsertActivity(ctx context.Context, a *models.Activity) error {
	r.activities++
	return nil
}

func (r *fakeDefRepo) InsertTransition(ctx context.Context, t *models.Transition) error {
	r.transitions++
	return nil
}

// passthroughTx satisfies ports.TxRunner without a database
type passthroughTx struct{}

func (passthroughTx) RunInTransaction(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func newDefinitionService(repo *fakeDefRepo) *DefinitionService {
	return NewDefinitionService(repo, passthroughTx{}, expression.NewEngine())
}

func validMap() *models.ProcessMap {
	roleID := "role-qa"
	return &models.ProcessMap{
		Name: "Release Approval",
		Activities: []*models.Activity{
			{ID: "a1", Name: "Start", Type: models.ActivityTypeStart},
			{ID: "a2", Name: "Review", Type: models.ActivityTypeTask,
				AssigneeType: models.AssigneeTypeRole, RoleID: &roleID},
			{ID: "a3", Name: "End", Type: models.ActivityTypeEnd},
		},
		Transitions: []*models.Transition{
			{ID: "t1", FromActivityID: "a1", ToActivityID: "a2", Condition: constants.OutcomeDefault},
			{ID: "t2", FromActivityID: "a2", ToActivityID: "a3", Condition: constants.OutcomeApprove},
		},
	}
}

func TestValidateMap(t *testing.T) {
	svc := newDefinitionService(newFakeDefRepo())

	tests := []struct {
		name    string
		mutate  func(m *models.ProcessMap)
		wantErr string
	}{
		{"valid map passes", func(m *models.ProcessMap) {}, ""},
		{"missing name", func(m *models.ProcessMap) { m.Name = "" }, "requires a name"},
		{"no activities", func(m *models.ProcessMap) { m.Activities = nil }, "no activities"},
		{"no start activity", func(m *models.ProcessMap) {
			m.Activities[0].Type = models.ActivityTypeTask
			m.Activities[0].AssigneeType = models.AssigneeTypeRole
			m.Activities[0].RoleID = strPtr("role-x")
		}, "exactly one start"},
		{"two start activities", func(m *models.ProcessMap) {
			m.Activities[2].Type = models.ActivityTypeStart
		}, "exactly one start"},
		{"duplicate activity names", func(m *models.ProcessMap) {
			m.Activities[2].Name = "Review"
		}, "duplicate activity name"},
		{"unknown activity type", func(m *models.ProcessMap) {
			m.Activities[1].Type = "gateway"
		}, "unknown type"},
		{"role assignment without role", func(m *models.ProcessMap) {
			m.Activities[1].RoleID = nil
		}, "names no role"},
		{"user assignment without user", func(m *models.ProcessMap) {
			m.Activities[1].AssigneeType = models.AssigneeTypeUser
			m.Activities[1].RoleID = nil
		}, "names no user"},
		{"dynamic assignment without identity", func(m *models.ProcessMap) {
			m.Activities[1].AssigneeType = models.AssigneeTypeDynamic
			m.Activities[1].RoleID = nil
		}, "names no identity"},
		{"transition to unknown activity", func(m *models.ProcessMap) {
			m.Transitions[1].ToActivityID = "ghost"
		}, "unknown target activity"},
		{"empty transition condition", func(m *models.ProcessMap) {
			m.Transitions[0].Condition = ""
		}, "empty condition"},
		{"guard does not compile", func(m *models.ProcessMap) {
			m.Transitions[1].Guard = strPtr("outcome ==")
		}, "invalid guard"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validMap()
			tt.mutate(m)
			err := svc.ValidateMap(m)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestImportMapAssignsIDsAndPersists(t *testing.T) {
	repo := newFakeDefRepo()
	svc := newDefinitionService(repo)

	m := validMap()
	for _, a := range m.Activities {
		a.ID = ""
	}
	m.Transitions = []*models.Transition{} // references can't survive blank IDs

	imported, err := svc.ImportMap(context.Background(), m)
	require.NoError(t, err)

	assert.NotEmpty(t, imported.ID)
	for _, a := range imported.Activities {
		assert.NotEmpty(t, a.ID)
		assert.Equal(t, imported.ID, a.MapID)
	}
	assert.Equal(t, 3, repo.activities)
	assert.NotNil(t, repo.maps["Release Approval"])
}

func TestImportMapRejectsDuplicateName(t *testing.T) {
	repo := newFakeDefRepo()
	svc := newDefinitionService(repo)

	_, err := svc.ImportMap(context.Background(), validMap())
	require.NoError(t, err)

	_, err = svc.ImportMap(context.Background(), validMap())
	assert.True(t, errors.IsConflict(err), "expected ConflictError, got %v", err)
}

func TestImportMapRejectsInvalidDefinition(t *testing.T) {
	repo := newFakeDefRepo()
	svc := newDefinitionService(repo)

	m := validMap()
	m.Activities[0].Type = models.ActivityTypeEnd

	_, err := svc.ImportMap(context.Background(), m)
	require.Error(t, err)
	assert.Equal(t, 0, repo.activities)
}

func TestGetMapCachesDefinitions(t *testing.T) {
	repo := newFakeDefRepo()
	svc := newDefinitionService(repo)

	_, err := svc.ImportMap(context.Background(), validMap())
	require.NoError(t, err)

	first, err := svc.GetMap(context.Background(), "Release Approval")
	require.NoError(t, err)

	// Definitions are immutable at runtime: the cached copy survives a
	// repo-level disappearance until invalidated
	delete(repo.maps, "Release Approval")

	again, err := svc.GetMap(context.Background(), "Release Approval")
	require.NoError(t, err)
	assert.Same(t, first, again)

	svc.InvalidateCache()
	_, err = svc.GetMap(context.Background(), "Release Approval")
	assert.True(t, errors.IsNotFound(err), "expected NotFoundError, got %v", err)
}
