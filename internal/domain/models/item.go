package models

// Item is the governed business object a process runs over. Only the fields
// the orchestrator consumes are modeled; full item management lives outside
// this core.
type Item struct {
	ID             string  `json:"id"`
	ItemTypeID     string  `json:"item_type_id"`
	CreatedByID    *string `json:"created_by_id,omitempty"`
	OwnerID        *string `json:"owner_id,omitempty"`
	CurrentStateID *string `json:"current_state_id,omitempty"`
}

// LifecycleState is a node of the governed item's external lifecycle graph
type LifecycleState struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsReleased bool   `json:"is_released"`
}

// LifecycleTransition is a directed edge of the lifecycle graph
type LifecycleTransition struct {
	ID          string `json:"id"`
	FromStateID string `json:"from_state_id"`
	ToStateID   string `json:"to_state_id"`
}

// PromoteResult reports the outcome of a lifecycle promotion attempt
type PromoteResult struct {
	Success   bool   `json:"success"`
	FromState string `json:"from_state,omitempty"`
	ToState   string `json:"to_state,omitempty"`
	Error     string `json:"error,omitempty"`
}

// User is the narrow identity view the orchestrator needs
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Role is an RBAC role tasks can be pooled on
type Role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
