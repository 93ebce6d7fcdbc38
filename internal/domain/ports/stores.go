package ports

import (
	"context"
	"time"

	"github.com/yuantus/backend/internal/domain/models"
)

// TxRunner executes a function inside a transactional unit of work. If the
// context already carries a transaction the function joins it, so nested
// calls share one commit boundary.
type TxRunner interface {
	RunInTransaction(ctx context.Context, fn func(txCtx context.Context) error) error
}

// DefinitionStore is the read-only lookup of process templates. Definitions
// are never mutated at runtime.
type DefinitionStore interface {
	// GetMapByName returns the map with its activities and transitions, or
	// nil when no map has that name
	GetMapByName(ctx context.Context, name string) (*models.ProcessMap, error)

	// GetActivity returns a single activity definition by ID
	GetActivity(ctx context.Context, id string) (*models.Activity, error)

	// GetStartActivity returns the map's start-typed activity, or nil
	GetStartActivity(ctx context.Context, mapID string) (*models.Activity, error)

	// GetTransitionsFrom returns the outgoing transitions of an activity
	// ordered by priority
	GetTransitionsFrom(ctx context.Context, fromActivityID string) ([]*models.Transition, error)
}

// ProcessStore persists process instances
type ProcessStore interface {
	Insert(ctx context.Context, p *models.ProcessInstance) error

	// Get returns the instance or a NotFoundError
	Get(ctx context.Context, id string) (*models.ProcessInstance, error)

	// FindActiveByItem returns the item's Active process or nil. With
	// forUpdate the matching row is locked for the transaction, making the
	// read-then-insert start sequence race-safe.
	FindActiveByItem(ctx context.Context, itemID string, forUpdate bool) (*models.ProcessInstance, error)

	// Close moves the instance to a terminal state, recording the reason
	// (for Error/Cancelled) and the close time
	Close(ctx context.Context, id string, state models.ProcessState, reason *string, closedAt time.Time) error
}

// ActivityStore persists activity instances and their tasks
type ActivityStore interface {
	InsertInstance(ctx context.Context, inst *models.ActivityInstance) error
	GetInstance(ctx context.Context, id string) (*models.ActivityInstance, error)
	ListInstancesByProcess(ctx context.Context, processID string) ([]*models.ActivityInstance, error)

	// CloseInstance moves an instance out of Active, recording a reason for
	// Error closes
	CloseInstance(ctx context.Context, id string, state models.ActivityInstanceState, reason *string, closedAt time.Time) error

	InsertTask(ctx context.Context, task *models.Task) error

	// GetTask returns the task or a NotFoundError. With forUpdate the row
	// is locked for the transaction.
	GetTask(ctx context.Context, id string, forUpdate bool) (*models.Task, error)

	// CompleteTask performs the compare-and-swap completion: the update only
	// applies while status is still Pending. Returns false when the task was
	// already completed, so a concurrent second vote reliably loses.
	CompleteTask(ctx context.Context, id string, outcome string, comment *string, actingUserID string, completedAt time.Time) (bool, error)

	CountPendingTasks(ctx context.Context, instanceID string) (int, error)
	ListTasksByInstance(ctx context.Context, instanceID string) ([]*models.Task, error)

	// Inbox queries
	ListPendingByUser(ctx context.Context, userID string, limit int) ([]*models.Task, error)
	ListPendingByRoles(ctx context.Context, roleIDs []string, limit int) ([]*models.Task, error)

	// FindZeroTaskActiveInstances returns Active instances older than the
	// cutoff that own no tasks at all; these can never resolve on their own
	FindZeroTaskActiveInstances(ctx context.Context, cutoff time.Time) ([]*models.ActivityInstance, error)
}
