package constants

// Workflow definition tables
const (
	TableProcessMap = "meta_workflow_maps"
	TableActivity   = "meta_workflow_activities"
	TableTransition = "meta_workflow_transitions"
)

// Workflow runtime tables
const (
	TableProcessInstance  = "meta_workflow_processes"
	TableActivityInstance = "meta_workflow_activity_instances"
	TableTask             = "meta_workflow_tasks"
)

// Collaborator tables (items, lifecycle, rbac)
const (
	TableItem                = "meta_items"
	TableLifecycleState      = "meta_lifecycle_states"
	TableLifecycleTransition = "meta_lifecycle_transitions"
	TableUser                = "rbac_users"
	TableRole                = "rbac_roles"
	TableUserRole            = "rbac_user_roles"
)

// OutcomeDefault is the fallback outcome label: start-node auto-advances and
// transition resolution both fall back to it.
const OutcomeDefault = "Default"

// Common outcome labels used by seeded maps. Maps may define arbitrary labels;
// these are only conventions.
const (
	OutcomeApprove = "Approve"
	OutcomeReject  = "Reject"
)

// ReleasedStateName is the lifecycle state the completion handler prefers when
// an item has more than one outgoing lifecycle transition.
const ReleasedStateName = "Released"

// PromotionComment is recorded when the completion handler promotes an item.
const PromotionComment = "Automatic promotion by workflow completion"

// MaxActivationHops bounds a chain of task-free activations (start/auto nodes)
// within one unit of work. Exceeding it marks the process Error instead of
// looping forever through a cyclic map.
const MaxActivationHops = 64

// Inbox query limits
const (
	PendingTaskLimit = 100
	HistoryLimit     = 50
)
