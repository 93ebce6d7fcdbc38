package models

import (
	"time"
)

// ActivityType classifies a node in a process map
type ActivityType string

const (
	// ActivityTypeStart is the entry node; it creates no tasks and
	// auto-advances with the Default outcome
	ActivityTypeStart ActivityType = "start"
	// ActivityTypeEnd is a terminal node; reaching it completes the process
	ActivityTypeEnd ActivityType = "end"
	// ActivityTypeTask is a regular human-task node
	ActivityTypeTask ActivityType = "activity"
	// ActivityTypeAuto is a pass-through node with no tasks
	ActivityTypeAuto ActivityType = "auto"
)

// Valid reports whether t is one of the known activity types
func (t ActivityType) Valid() bool {
	switch t {
	case ActivityTypeStart, ActivityTypeEnd, ActivityTypeTask, ActivityTypeAuto:
		return true
	}
	return false
}

// AssigneeType selects the task assignment strategy for an activity
type AssigneeType string

const (
	// AssigneeTypeRole produces one pool task any current role holder may complete
	AssigneeTypeRole AssigneeType = "role"
	// AssigneeTypeUser produces one task bound to a specific user
	AssigneeTypeUser AssigneeType = "user"
	// AssigneeTypeDynamic resolves the assignee from the governed item at activation time
	AssigneeTypeDynamic AssigneeType = "dynamic"
)

// DynamicIdentity names an assignment rule resolved against the governed item
type DynamicIdentity string

const (
	DynamicIdentityCreator DynamicIdentity = "Creator"
	DynamicIdentityOwner   DynamicIdentity = "Owner"
)

// VotingPolicy names the tie-break rule applied once every task of an
// activity instance has left Pending.
type VotingPolicy string

const (
	// VotingFirstCompletedWins takes the outcome of the earliest-completed
	// task. This is the default and matches the historical behavior, made
	// deterministic by ordering on (completed_at, seq).
	VotingFirstCompletedWins VotingPolicy = "FirstCompletedWins"
	// VotingMajority takes the most frequent outcome; ties go to the
	// outcome that completed first
	VotingMajority VotingPolicy = "Majority"
	// VotingUnanimous requires every completed task to agree; disagreement
	// stalls the activity
	VotingUnanimous VotingPolicy = "Unanimous"
)

// ProcessState is the lifecycle state of a ProcessInstance
type ProcessState string

const (
	ProcessStateActive    ProcessState = "Active"
	ProcessStateCompleted ProcessState = "Completed"
	ProcessStateCancelled ProcessState = "Cancelled"
	ProcessStateError     ProcessState = "Error"
)

// ActivityInstanceState is the lifecycle state of an ActivityInstance
type ActivityInstanceState string

const (
	ActivityInstanceStateActive    ActivityInstanceState = "Active"
	ActivityInstanceStateCompleted ActivityInstanceState = "Completed"
	// ActivityInstanceStateError marks an instance that can never resolve
	// (zero tasks created, or no transition matched its outcome)
	ActivityInstanceStateError ActivityInstanceState = "Error"
)

// TaskStatus is the lifecycle state of a Task
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "Pending"
	TaskStatusCompleted TaskStatus = "Completed"
)

// ProcessMap is a reusable process template: activities plus the guarded
// transitions between them. Immutable at runtime.
type ProcessMap struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description *string       `json:"description,omitempty"`
	Activities  []*Activity   `json:"activities,omitempty"`
	Transitions []*Transition `json:"transitions,omitempty"`
}

// Activity is a node in a process map
type Activity struct {
	ID          string       `json:"id"`
	MapID       string       `json:"map_id"`
	Name        string       `json:"name"`
	Description *string      `json:"description,omitempty"`
	Type        ActivityType `json:"type"`

	// IsVoting is informational only; the engine applies VotingPolicy
	// regardless of the flag
	IsVoting     bool         `json:"is_voting"`
	VotingPolicy VotingPolicy `json:"voting_policy,omitempty"`

	AssigneeType    AssigneeType     `json:"assignee_type"`
	RoleID          *string          `json:"role_id,omitempty"`
	UserID          *string          `json:"user_id,omitempty"`
	DynamicIdentity *DynamicIdentity `json:"dynamic_identity,omitempty"`
}

// Policy returns the activity's voting policy, defaulting to FirstCompletedWins
func (a *Activity) Policy() VotingPolicy {
	if a.VotingPolicy == "" {
		return VotingFirstCompletedWins
	}
	return a.VotingPolicy
}

// Transition is a directed edge between two activities, guarded by an
// outcome label and an optional boolean guard expression.
type Transition struct {
	ID             string  `json:"id"`
	MapID          string  `json:"map_id"`
	FromActivityID string  `json:"from_activity_id"`
	ToActivityID   string  `json:"to_activity_id"`
	Condition      string  `json:"condition"` // outcome label, "Default" is the fallback
	Guard          *string `json:"guard,omitempty"`
	Priority       int     `json:"priority"`
}

// ProcessInstance is a running (or finished) instance of a process map over
// one governed item. At most one Active instance may exist per item.
type ProcessInstance struct {
	ID          string       `json:"id"`
	MapID       string       `json:"map_id"`
	ItemID      string       `json:"item_id"`
	State       ProcessState `json:"state"`
	StateReason *string      `json:"state_reason,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	ClosedAt    *time.Time   `json:"closed_at,omitempty"`
}

// ActivityInstance is one activation of an activity within a process.
// Instances are append-only: a looping map produces a fresh instance per visit.
type ActivityInstance struct {
	ID          string                `json:"id"`
	ProcessID   string                `json:"process_id"`
	ActivityID  string                `json:"activity_id"`
	State       ActivityInstanceState `json:"state"`
	StateReason *string               `json:"state_reason,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	ClosedAt    *time.Time            `json:"closed_at,omitempty"`
}

// Task is a unit of work generated for an activity instance. A role task
// starts unbound; completing it writes the acting user into AssignedUserID
// (claim semantics).
type Task struct {
	ID                 string           `json:"id"`
	ActivityInstanceID string           `json:"activity_instance_id"`
	Seq                int              `json:"seq"`
	AssigneeType       AssigneeType     `json:"assignee_type"`
	AssignedUserID     *string          `json:"assigned_user_id,omitempty"`
	AssignedRoleID     *string          `json:"assigned_role_id,omitempty"`
	DynamicIdentity    *DynamicIdentity `json:"dynamic_identity,omitempty"`
	Status             TaskStatus       `json:"status"`
	Outcome            *string          `json:"outcome,omitempty"`
	Comment            *string          `json:"comment,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	CompletedAt        *time.Time       `json:"completed_at,omitempty"`
}

// PendingTask is an inbox entry: a pending task joined with its activity and
// governed-item context.
type PendingTask struct {
	Task         *Task     `json:"task"`
	ActivityName string    `json:"activity"`
	Instructions string    `json:"instructions,omitempty"`
	ProcessID    string    `json:"process_id"`
	ProcessState string    `json:"process_state"`
	ItemID       string    `json:"item_id"`
	ItemTypeID   string    `json:"item_type"`
	CreatedAt    time.Time `json:"created_at"`
}
