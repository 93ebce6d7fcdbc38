package events

// EventType defines the type of event in the system
type EventType string

const (
	// Process lifecycle events
	ProcessStarted   EventType = "workflow.process_started"
	ProcessCompleted EventType = "workflow.process_completed"
	ProcessCancelled EventType = "workflow.process_cancelled"
	// ProcessStalled is the observable form of the two silent dead ends:
	// an activation that produced zero tasks, and a resolved outcome with
	// no matching transition
	ProcessStalled EventType = "workflow.process_stalled"

	// Activity / task events
	ActivityActivated EventType = "workflow.activity_activated"
	ActivityCompleted EventType = "workflow.activity_completed"
	TaskCreated       EventType = "workflow.task_created"
	TaskCompleted     EventType = "workflow.task_completed"

	// Lifecycle promotion side effects
	LifecyclePromoted        EventType = "lifecycle.promoted"
	LifecyclePromotionFailed EventType = "lifecycle.promotion_failed"
)

// String returns the string representation of the event type
func (e EventType) String() string {
	return string(e)
}
