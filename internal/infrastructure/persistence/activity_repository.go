package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/yuantus/backend/internal/domain/models"
	"github.com/yuantus/backend/pkg/constants"
	"github.com/yuantus/backend/pkg/errors"
)

// ActivityRepository persists activity instances and their tasks
type ActivityRepository struct {
	db *sql.DB
}

// NewActivityRepository creates a new ActivityRepository
func NewActivityRepository(db *sql.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

const instanceColumns = "id, process_id, activity_id, state, state_reason, created_at, closed_at"

const taskColumns = "id, activity_instance_id, seq, assignee_type, assigned_to_user_id, assigned_to_role_id, dynamic_identity, status, outcome, comment, created_at, completed_at"

// InsertInstance persists a new activity instance
func (r *ActivityRepository) InsertInstance(ctx context.Context, inst *models.ActivityInstance) error {
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?)",
		constants.TableActivityInstance, instanceColumns)
	_, err := dbFrom(ctx, r.db).ExecContext(ctx, q,
		inst.ID, inst.ProcessID, inst.ActivityID, inst.State, inst.StateReason, inst.CreatedAt, inst.ClosedAt)
	if err != nil {
		return fmt.Errorf("failed to insert activity instance: %w", err)
	}
	return nil
}

// GetInstance returns the activity instance or a NotFoundError
func (r *ActivityRepository) GetInstance(ctx context.Context, id string) (*models.ActivityInstance, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", instanceColumns, constants.TableActivityInstance)

	inst, err := scanInstance(dbFrom(ctx, r.db).QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("activity instance", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load activity instance %s: %w", id, err)
	}
	return inst, nil
}

// ListInstancesByProcess returns a process's activity instances in activation
// order (creation time, then id). This is the append-only audit trail.
func (r *ActivityRepository) ListInstancesByProcess(ctx context.Context, processID string) ([]*models.ActivityInstance, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE process_id = ? ORDER BY created_at, id",
		instanceColumns, constants.TableActivityInstance)

	rows, err := dbFrom(ctx, r.db).QueryContext(ctx, q, processID)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity instances of process %s: %w", processID, err)
	}
	defer rows.Close()

	var result []*models.ActivityInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, inst)
	}
	return result, rows.Err()
}

// CloseInstance moves an instance out of Active. The state guard keeps
// already-closed instances untouched.
func (r *ActivityRepository) CloseInstance(ctx context.Context, id string, state models.ActivityInstanceState, reason *string, closedAt time.Time) error {
	q := fmt.Sprintf("UPDATE %s SET state = ?, state_reason = ?, closed_at = ? WHERE id = ? AND state = ?",
		constants.TableActivityInstance)

	res, err := dbFrom(ctx, r.db).ExecContext(ctx, q, state, reason, closedAt, id, models.ActivityInstanceStateActive)
	if err != nil {
		return fmt.Errorf("failed to close activity instance %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to close activity instance %s: %w", id, err)
	}
	if affected == 0 {
		return errors.NewInvalidStateError("activity instance", string(state), "close")
	}
	return nil
}

// InsertTask persists a new task
func (r *ActivityRepository) InsertTask(ctx context.Context, task *models.Task) error {
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		constants.TableTask, taskColumns)
	_, err := dbFrom(ctx, r.db).ExecContext(ctx, q,
		task.ID, task.ActivityInstanceID, task.Seq, task.AssigneeType,
		task.AssignedUserID, task.AssignedRoleID, task.DynamicIdentity,
		task.Status, task.Outcome, task.Comment, task.CreatedAt, task.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// GetTask returns the task or a NotFoundError. With forUpdate the row is
// locked for the transaction.
func (r *ActivityRepository) GetTask(ctx context.Context, id string, forUpdate bool) (*models.Task, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", taskColumns, constants.TableTask)
	if forUpdate {
		q += " FOR UPDATE"
	}

	task, err := scanTask(dbFrom(ctx, r.db).QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("task", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task %s: %w", id, err)
	}
	return task, nil
}

// CompleteTask performs the compare-and-swap completion. The acting user is
// written into assigned_to_user_id, converting a pool task in place into a
// record of who actually acted (claim semantics). Returns false when the task
// had already left Pending.
func (r *ActivityRepository) CompleteTask(ctx context.Context, id string, outcome string, comment *string, actingUserID string, completedAt time.Time) (bool, error) {
	q := fmt.Sprintf("UPDATE %s SET status = ?, outcome = ?, comment = ?, assigned_to_user_id = ?, completed_at = ? WHERE id = ? AND status = ?",
		constants.TableTask)

	res, err := dbFrom(ctx, r.db).ExecContext(ctx, q,
		models.TaskStatusCompleted, outcome, comment, actingUserID, completedAt, id, models.TaskStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to complete task %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to complete task %s: %w", id, err)
	}
	return affected > 0, nil
}

// CountPendingTasks counts an instance's tasks still in Pending
func (r *ActivityRepository) CountPendingTasks(ctx context.Context, instanceID string) (int, error) {
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE activity_instance_id = ? AND status = ?", constants.TableTask)

	var count int
	err := dbFrom(ctx, r.db).QueryRowContext(ctx, q, instanceID, models.TaskStatusPending).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending tasks of instance %s: %w", instanceID, err)
	}
	return count, nil
}

// ListTasksByInstance returns an instance's tasks ordered as an explicit vote
// log: completion time first, creation sequence as tie-break.
func (r *ActivityRepository) ListTasksByInstance(ctx context.Context, instanceID string) ([]*models.Task, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE activity_instance_id = ? ORDER BY completed_at IS NULL, completed_at, seq",
		taskColumns, constants.TableTask)

	return r.queryTasks(ctx, q, instanceID)
}

// ListPendingByUser returns tasks directly assigned to the user and still pending
func (r *ActivityRepository) ListPendingByUser(ctx context.Context, userID string, limit int) ([]*models.Task, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE assigned_to_user_id = ? AND status = ? ORDER BY created_at LIMIT %d",
		taskColumns, constants.TableTask, limit)

	return r.queryTasks(ctx, q, userID, models.TaskStatusPending)
}

// ListPendingByRoles returns pending pool tasks for any of the given roles
func (r *ActivityRepository) ListPendingByRoles(ctx context.Context, roleIDs []string, limit int) ([]*models.Task, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(roleIDs)), ", ")
	q := fmt.Sprintf("SELECT %s FROM %s WHERE assigned_to_role_id IN (%s) AND status = ? ORDER BY created_at LIMIT %d",
		taskColumns, constants.TableTask, placeholders, limit)

	args := make([]interface{}, 0, len(roleIDs)+1)
	for _, id := range roleIDs {
		args = append(args, id)
	}
	args = append(args, models.TaskStatusPending)

	return r.queryTasks(ctx, q, args...)
}

// FindZeroTaskActiveInstances returns Active instances older than the cutoff
// with no tasks at all. Such instances can never be re-evaluated and are the
// stall condition the sweep promotes to Error.
func (r *ActivityRepository) FindZeroTaskActiveInstances(ctx context.Context, cutoff time.Time) ([]*models.ActivityInstance, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s ai
		WHERE ai.state = ? AND ai.created_at < ?
		AND NOT EXISTS (SELECT 1 FROM %s t WHERE t.activity_instance_id = ai.id)`,
		prefixColumns("ai", instanceColumns), constants.TableActivityInstance, constants.TableTask)

	rows, err := dbFrom(ctx, r.db).QueryContext(ctx, q, models.ActivityInstanceStateActive, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to find zero-task instances: %w", err)
	}
	defer rows.Close()

	var result []*models.ActivityInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, inst)
	}
	return result, rows.Err()
}

func (r *ActivityRepository) queryTasks(ctx context.Context, q string, args ...interface{}) ([]*models.Task, error) {
	rows, err := dbFrom(ctx, r.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var result []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, task)
	}
	return result, rows.Err()
}

// prefixColumns qualifies a comma-separated column list with a table alias
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}

func scanInstance(row rowScanner) (*models.ActivityInstance, error) {
	var inst models.ActivityInstance
	var reason sql.NullString
	var closedAt sql.NullTime
	err := row.Scan(&inst.ID, &inst.ProcessID, &inst.ActivityID, &inst.State, &reason, &inst.CreatedAt, &closedAt)
	if err != nil {
		return nil, err
	}
	if reason.Valid {
		inst.StateReason = &reason.String
	}
	if closedAt.Valid {
		inst.ClosedAt = &closedAt.Time
	}
	return &inst, nil
}

func scanTask(row rowScanner) (*models.Task, error) {
	var t models.Task
	var userID, roleID, dynamicIdentity, outcome, comment sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(&t.ID, &t.ActivityInstanceID, &t.Seq, &t.AssigneeType,
		&userID, &roleID, &dynamicIdentity, &t.Status, &outcome, &comment,
		&t.CreatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		t.AssignedUserID = &userID.String
	}
	if roleID.Valid {
		t.AssignedRoleID = &roleID.String
	}
	if dynamicIdentity.Valid {
		di := models.DynamicIdentity(dynamicIdentity.String)
		t.DynamicIdentity = &di
	}
	if outcome.Valid {
		t.Outcome = &outcome.String
	}
	if comment.Valid {
		t.Comment = &comment.String
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return &t, nil
}
