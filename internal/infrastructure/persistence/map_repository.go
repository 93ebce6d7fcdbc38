package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/yuantus/backend/internal/domain/models"
	"github.com/yuantus/backend/pkg/constants"
	"github.com/yuantus/backend/pkg/errors"
)

// MapRepository is the definition store: process maps, their activities and
// transitions. Definitions are read-only at runtime; writes exist only for
// map import/seeding.
type MapRepository struct {
	db *sql.DB
}

// NewMapRepository creates a new MapRepository
func NewMapRepository(db *sql.DB) *MapRepository {
	return &MapRepository{db: db}
}

const activityColumns = "id, workflow_map_id, name, description, type, is_voting, voting_policy, assignee_type, role_id, user_id, dynamic_identity"

const transitionColumns = "id, workflow_map_id, from_activity_id, to_activity_id, `condition`, guard, priority"

// GetMapByName returns the map with its activities and transitions, or nil
// when no map has that name.
func (r *MapRepository) GetMapByName(ctx context.Context, name string) (*models.ProcessMap, error) {
	q := fmt.Sprintf("SELECT id, name, description FROM %s WHERE name = ?", constants.TableProcessMap)

	var m models.ProcessMap
	var description sql.NullString
	err := dbFrom(ctx, r.db).QueryRowContext(ctx, q, name).Scan(&m.ID, &m.Name, &description)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load process map '%s': %w", name, err)
	}
	if description.Valid {
		m.Description = &description.String
	}

	if m.Activities, err = r.listActivities(ctx, m.ID); err != nil {
		return nil, err
	}
	if m.Transitions, err = r.listTransitions(ctx, m.ID); err != nil {
		return nil, err
	}
	return &m, nil
}

// GetActivity returns a single activity definition by ID
func (r *MapRepository) GetActivity(ctx context.Context, id string) (*models.Activity, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", activityColumns, constants.TableActivity)

	row := dbFrom(ctx, r.db).QueryRowContext(ctx, q, id)
	activity, err := scanActivity(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("activity", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load activity %s: %w", id, err)
	}
	return activity, nil
}

// GetStartActivity returns the map's start-typed activity, or nil when the
// map defines none.
func (r *MapRepository) GetStartActivity(ctx context.Context, mapID string) (*models.Activity, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE workflow_map_id = ? AND type = ? LIMIT 1",
		activityColumns, constants.TableActivity)

	row := dbFrom(ctx, r.db).QueryRowContext(ctx, q, mapID, models.ActivityTypeStart)
	activity, err := scanActivity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load start activity of map %s: %w", mapID, err)
	}
	return activity, nil
}

// GetTransitionsFrom returns the outgoing transitions of an activity ordered
// by priority.
func (r *MapRepository) GetTransitionsFrom(ctx context.Context, fromActivityID string) ([]*models.Transition, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE from_activity_id = ? ORDER BY priority, id",
		transitionColumns, constants.TableTransition)

	rows, err := dbFrom(ctx, r.db).QueryContext(ctx, q, fromActivityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transitions from %s: %w", fromActivityID, err)
	}
	defer rows.Close()

	var result []*models.Transition
	for rows.Next() {
		t, err := scanTransition(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// InsertMap persists a map header
func (r *MapRepository) InsertMap(ctx context.Context, m *models.ProcessMap) error {
	q := fmt.Sprintf("INSERT INTO %s (id, name, description) VALUES (?, ?, ?)", constants.TableProcessMap)
	_, err := dbFrom(ctx, r.db).ExecContext(ctx, q, m.ID, m.Name, m.Description)
	if err != nil {
		return fmt.Errorf("failed to insert process map '%s': %w", m.Name, err)
	}
	return nil
}

// InsertActivity persists an activity definition
func (r *MapRepository) InsertActivity(ctx context.Context, a *models.Activity) error {
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		constants.TableActivity, activityColumns)
	_, err := dbFrom(ctx, r.db).ExecContext(ctx, q,
		a.ID, a.MapID, a.Name, a.Description, a.Type, a.IsVoting, a.VotingPolicy,
		a.AssigneeType, a.RoleID, a.UserID, a.DynamicIdentity)
	if err != nil {
		return fmt.Errorf("failed to insert activity '%s': %w", a.Name, err)
	}
	return nil
}

// InsertTransition persists a transition definition
func (r *MapRepository) InsertTransition(ctx context.Context, t *models.Transition) error {
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?)",
		constants.TableTransition, transitionColumns)
	_, err := dbFrom(ctx, r.db).ExecContext(ctx, q,
		t.ID, t.MapID, t.FromActivityID, t.ToActivityID, t.Condition, t.Guard, t.Priority)
	if err != nil {
		return fmt.Errorf("failed to insert transition %s: %w", t.ID, err)
	}
	return nil
}

func (r *MapRepository) listActivities(ctx context.Context, mapID string) ([]*models.Activity, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE workflow_map_id = ? ORDER BY id",
		activityColumns, constants.TableActivity)

	rows, err := dbFrom(ctx, r.db).QueryContext(ctx, q, mapID)
	if err != nil {
		return nil, fmt.Errorf("failed to load activities of map %s: %w", mapID, err)
	}
	defer rows.Close()

	var result []*models.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (r *MapRepository) listTransitions(ctx context.Context, mapID string) ([]*models.Transition, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE workflow_map_id = ? ORDER BY priority, id",
		transitionColumns, constants.TableTransition)

	rows, err := dbFrom(ctx, r.db).QueryContext(ctx, q, mapID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transitions of map %s: %w", mapID, err)
	}
	defer rows.Close()

	var result []*models.Transition
	for rows.Next() {
		t, err := scanTransition(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// rowScanner covers *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanActivity(row rowScanner) (*models.Activity, error) {
	var a models.Activity
	var description, roleID, userID, dynamicIdentity sql.NullString
	err := row.Scan(&a.ID, &a.MapID, &a.Name, &description, &a.Type, &a.IsVoting,
		&a.VotingPolicy, &a.AssigneeType, &roleID, &userID, &dynamicIdentity)
	if err != nil {
		return nil, err
	}
	if description.Valid {
		a.Description = &description.String
	}
	if roleID.Valid {
		a.RoleID = &roleID.String
	}
	if userID.Valid {
		a.UserID = &userID.String
	}
	if dynamicIdentity.Valid {
		di := models.DynamicIdentity(dynamicIdentity.String)
		a.DynamicIdentity = &di
	}
	return &a, nil
}

func scanTransition(row rowScanner) (*models.Transition, error) {
	var t models.Transition
	var guard sql.NullString
	err := row.Scan(&t.ID, &t.MapID, &t.FromActivityID, &t.ToActivityID, &t.Condition, &guard, &t.Priority)
	if err != nil {
		return nil, err
	}
	if guard.Valid {
		t.Guard = &guard.String
	}
	return &t, nil
}
