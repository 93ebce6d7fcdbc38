package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/yuantus/backend/pkg/constants"
)

// schemaDDL creates the workflow core tables plus the narrow collaborator
// tables the orchestrator reads (items, lifecycle graph, rbac identities).
// Statement order matters: referenced tables first.
var schemaDDL = []string{
	fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id VARCHAR(64) PRIMARY KEY,
		username VARCHAR(255) NOT NULL UNIQUE
	)`, constants.TableUser),

	fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL UNIQUE
	)`, constants.TableRole),

	fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		user_id VARCHAR(64) NOT NULL,
		role_id VARCHAR(64) NOT NULL,
		PRIMARY KEY (user_id, role_id)
	)`, constants.TableUserRole),

	fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		is_released BOOLEAN NOT NULL DEFAULT FALSE
	)`, constants.TableLifecycleState),

	fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id VARCHAR(64) PRIMARY KEY,
		from_state_id VARCHAR(64) NOT NULL,
		to_state_id VARCHAR(64) NOT NULL,
		INDEX idx_lifecycle_from (from_state_id)
	)`, constants.TableLifecycleTransition),

	fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id VARCHAR(64) PRIMARY KEY,
		item_type_id VARCHAR(64) NOT NULL,
		created_by_id VARCHAR(64) NULL,
		owner_id VARCHAR(64) NULL,
		current_state_id VARCHAR(64) NULL
	)`, constants.TableItem),

	fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL UNIQUE,
		description TEXT NULL
	)`, constants.TableProcessMap),

	fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id VARCHAR(64) PRIMARY KEY,
		workflow_map_id VARCHAR(64) NOT NULL,
		name VARCHAR(255) NOT NULL,
		description TEXT NULL,
		type VARCHAR(16) NOT NULL DEFAULT 'activity',
		is_voting BOOLEAN NOT NULL DEFAULT FALSE,
		voting_policy VARCHAR(32) NOT NULL DEFAULT '',
		assignee_type VARCHAR(16) NOT NULL DEFAULT 'role',
		role_id VARCHAR(64) NULL,
		user_id VARCHAR(64) NULL,
		dynamic_identity VARCHAR(32) NULL,
		INDEX idx_activity_map (workflow_map_id)
	)`, constants.TableActivity),

	fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s ("+
		"id VARCHAR(64) PRIMARY KEY, "+
		"workflow_map_id VARCHAR(64) NOT NULL, "+
		"from_activity_id VARCHAR(64) NOT NULL, "+
		"to_activity_id VARCHAR(64) NOT NULL, "+
		"`condition` VARCHAR(255) NOT NULL DEFAULT 'Default', "+
		"guard TEXT NULL, "+
		"priority INT NOT NULL DEFAULT 0, "+
		"INDEX idx_transition_from (from_activity_id)"+
		")", constants.TableTransition),

	fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id VARCHAR(64) PRIMARY KEY,
		workflow_map_id VARCHAR(64) NOT NULL,
		item_id VARCHAR(64) NOT NULL,
		state VARCHAR(16) NOT NULL DEFAULT 'Active',
		state_reason TEXT NULL,
		created_at DATETIME NOT NULL,
		closed_at DATETIME NULL,
		INDEX idx_process_item_state (item_id, state)
	)`, constants.TableProcessInstance),

	fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id VARCHAR(64) PRIMARY KEY,
		process_id VARCHAR(64) NOT NULL,
		activity_id VARCHAR(64) NOT NULL,
		state VARCHAR(16) NOT NULL DEFAULT 'Active',
		state_reason TEXT NULL,
		created_at DATETIME NOT NULL,
		closed_at DATETIME NULL,
		INDEX idx_actinst_process (process_id)
	)`, constants.TableActivityInstance),

	fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id VARCHAR(64) PRIMARY KEY,
		activity_instance_id VARCHAR(64) NOT NULL,
		seq INT NOT NULL DEFAULT 0,
		assignee_type VARCHAR(16) NOT NULL DEFAULT 'user',
		assigned_to_user_id VARCHAR(64) NULL,
		assigned_to_role_id VARCHAR(64) NULL,
		dynamic_identity VARCHAR(32) NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'Pending',
		outcome VARCHAR(255) NULL,
		comment TEXT NULL,
		created_at DATETIME NOT NULL,
		completed_at DATETIME NULL,
		INDEX idx_task_instance (activity_instance_id),
		INDEX idx_task_user_status (assigned_to_user_id, status),
		INDEX idx_task_role_status (assigned_to_role_id, status)
	)`, constants.TableTask),
}

// EnsureSchema creates all tables the orchestration core needs.
// Idempotent; intended for bootstrap and tests.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaDDL {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}
