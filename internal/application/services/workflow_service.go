package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/yuantus/backend/internal/domain"
	"github.com/yuantus/backend/internal/domain/events"
	"github.com/yuantus/backend/internal/domain/models"
	"github.com/yuantus/backend/internal/domain/ports"
	"github.com/yuantus/backend/pkg/constants"
	"github.com/yuantus/backend/pkg/errors"
	"github.com/yuantus/backend/pkg/expression"
	"github.com/yuantus/backend/pkg/utils"
)

// WorkflowService is the orchestration engine: it starts processes over
// governed items, records votes, advances activities along guarded
// transitions and closes processes, triggering the automatic lifecycle
// promotion on completion.
//
// Every mutating operation runs inside one transactional unit of work, so a
// vote and all the activations it cascades into commit or roll back together.
type WorkflowService struct {
	tx         ports.TxRunner
	defs       ports.DefinitionStore
	processes  ports.ProcessStore
	activities ports.ActivityStore
	items      ports.ItemReader
	roles      ports.RoleMembershipChecker
	promoter   ports.LifecyclePromoter
	system     ports.SystemPrincipalProvider
	eventBus   ports.EventPublisher
	guards     *expression.Engine
	sm         *domain.ProcessStateMachine
}

// NewWorkflowService creates a new WorkflowService
func NewWorkflowService(
	tx ports.TxRunner,
	defs ports.DefinitionStore,
	processes ports.ProcessStore,
	activities ports.ActivityStore,
	items ports.ItemReader,
	roles ports.RoleMembershipChecker,
	promoter ports.LifecyclePromoter,
	system ports.SystemPrincipalProvider,
	eventBus ports.EventPublisher,
	guards *expression.Engine,
) *WorkflowService {
	return &WorkflowService{
		tx:         tx,
		defs:       defs,
		processes:  processes,
		activities: activities,
		items:      items,
		roles:      roles,
		promoter:   promoter,
		system:     system,
		eventBus:   eventBus,
		guards:     guards,
		sm:         domain.NewProcessStateMachine(),
	}
}

// Start creates a process instance of the named map over an item and runs the
// activation chain from the start activity. At most one Active process may
// exist per item; a second start returns a ConflictError.
func (s *WorkflowService) Start(ctx context.Context, mapName, itemID, userID string) (*models.ProcessInstance, error) {
	if mapName == "" {
		return nil, errors.NewValidationError("map_name", "must not be empty")
	}
	if itemID == "" {
		return nil, errors.NewValidationError("item_id", "must not be empty")
	}

	var process *models.ProcessInstance
	err := s.tx.RunInTransaction(ctx, func(txCtx context.Context) error {
		m, err := s.defs.GetMapByName(txCtx, mapName)
		if err != nil {
			return err
		}
		if m == nil {
			return errors.NewNotFoundError("process map", mapName)
		}

		if _, err := s.items.GetItem(txCtx, itemID); err != nil {
			return err
		}

		// Lock the active-process check so two concurrent starts serialize
		existing, err := s.processes.FindActiveByItem(txCtx, itemID, true)
		if err != nil {
			return err
		}
		if existing != nil {
			return errors.NewConflictError("process",
				fmt.Sprintf("item %s already has active process %s", itemID, existing.ID))
		}

		start, err := s.defs.GetStartActivity(txCtx, m.ID)
		if err != nil {
			return err
		}
		if start == nil {
			return errors.NewInvalidDefinitionError(m.Name, "map has no start activity")
		}

		process = &models.ProcessInstance{
			ID:        utils.GenerateID(),
			MapID:     m.ID,
			ItemID:    itemID,
			State:     models.ProcessStateActive,
			CreatedAt: time.Now(),
		}
		if err := s.processes.Insert(txCtx, process); err != nil {
			return err
		}

		log.Printf("▶️ Started process %s (map '%s', item %s, by %s)", process.ID, m.Name, itemID, userID)
		s.publish(txCtx, events.ProcessStarted, ProcessEventPayload{
			ProcessID: process.ID, MapID: m.ID, ItemID: itemID, State: process.State,
		})

		return s.activate(txCtx, process, start, 0)
	})
	if err != nil {
		return nil, err
	}
	return process, nil
}

// Vote completes a pending task with an outcome and re-evaluates its activity
// instance. The caller must be the task's assigned user, or for a pool task a
// current holder of the assigned role; completing a pool task claims it.
func (s *WorkflowService) Vote(ctx context.Context, taskID, outcome, userID string, comment *string) error {
	if outcome == "" {
		return errors.NewValidationError("outcome", "must not be empty")
	}

	return s.tx.RunInTransaction(ctx, func(txCtx context.Context) error {
		task, err := s.activities.GetTask(txCtx, taskID, true)
		if err != nil {
			return err
		}
		if task.Status != models.TaskStatusPending {
			return errors.NewInvalidStateError("task", string(task.Status), "vote on")
		}

		inst, err := s.activities.GetInstance(txCtx, task.ActivityInstanceID)
		if err != nil {
			return err
		}
		if inst.State != models.ActivityInstanceStateActive {
			return errors.NewInvalidStateError("activity instance", string(inst.State), "vote on")
		}

		process, err := s.processes.Get(txCtx, inst.ProcessID)
		if err != nil {
			return err
		}
		if process.State != models.ProcessStateActive {
			return errors.NewInvalidStateError("process", string(process.State), "vote on")
		}

		if err := s.authorizeVote(txCtx, task, userID); err != nil {
			return err
		}

		now := time.Now()
		completed, err := s.activities.CompleteTask(txCtx, taskID, outcome, comment, userID, now)
		if err != nil {
			return err
		}
		if !completed {
			// A concurrent vote won the compare-and-swap
			return errors.NewInvalidStateError("task", string(models.TaskStatusCompleted), "vote on")
		}

		// The row was loaded before the completion wrote it; mirror the claim
		// so subscribers see the completed task, not the pending snapshot
		task.Status = models.TaskStatusCompleted
		task.Outcome = &outcome
		task.Comment = comment
		task.AssignedUserID = &userID
		task.CompletedAt = &now

		log.Printf("✅ Task %s completed with outcome '%s' by %s", taskID, outcome, userID)
		s.publish(txCtx, events.TaskCompleted, TaskEventPayload{ProcessID: process.ID, Task: task})

		activity, err := s.defs.GetActivity(txCtx, inst.ActivityID)
		if err != nil {
			return err
		}
		return s.evaluateInstance(txCtx, process, activity, inst, nil, 0)
	})
}

// authorizeVote checks the acting user against the task's assignment
func (s *WorkflowService) authorizeVote(ctx context.Context, task *models.Task, userID string) error {
	switch {
	case task.AssignedUserID != nil:
		if *task.AssignedUserID != userID {
			return errors.NewPermissionError("complete", fmt.Sprintf("task %s", task.ID))
		}
		return nil

	case task.AssignedRoleID != nil:
		hasRole, err := s.roles.UserHasRole(ctx, userID, *task.AssignedRoleID)
		if err != nil {
			return err
		}
		if !hasRole {
			return errors.NewPermissionError("complete", fmt.Sprintf("task %s", task.ID))
		}
		return nil

	default:
		return fmt.Errorf("task %s has neither an assigned user nor an assigned role", task.ID)
	}
}

// CancelProcess closes an Active process as Cancelled. Only the process owner
// (creator or owner of the governed item) may cancel.
func (s *WorkflowService) CancelProcess(ctx context.Context, processID, userID, reason string) error {
	return s.tx.RunInTransaction(ctx, func(txCtx context.Context) error {
		process, err := s.processes.Get(txCtx, processID)
		if err != nil {
			return err
		}
		if !s.sm.CanTransition(process.State, domain.TransitionCancel) {
			return errors.NewInvalidStateError("process", string(process.State), "cancel")
		}

		owner, err := s.isProcessOwner(txCtx, process, userID)
		if err != nil {
			return err
		}
		if !owner {
			return errors.NewPermissionError("cancel", fmt.Sprintf("process %s", processID))
		}

		var stateReason *string
		if reason != "" {
			stateReason = &reason
		}
		if err := s.processes.Close(txCtx, processID, models.ProcessStateCancelled, stateReason, time.Now()); err != nil {
			return err
		}

		log.Printf("⏸️ Process %s cancelled by %s", processID, userID)
		s.publish(txCtx, events.ProcessCancelled, ProcessEventPayload{
			ProcessID: process.ID, MapID: process.MapID, ItemID: process.ItemID,
			State: models.ProcessStateCancelled,
		})
		return nil
	})
}

// IsProcessOwner reports whether the user created or owns the item the
// process governs.
func (s *WorkflowService) IsProcessOwner(ctx context.Context, processID, userID string) (bool, error) {
	process, err := s.processes.Get(ctx, processID)
	if err != nil {
		return false, err
	}
	return s.isProcessOwner(ctx, process, userID)
}

func (s *WorkflowService) isProcessOwner(ctx context.Context, process *models.ProcessInstance, userID string) (bool, error) {
	item, err := s.items.GetItem(ctx, process.ItemID)
	if err != nil {
		return false, err
	}
	if item.CreatedByID != nil && *item.CreatedByID == userID {
		return true, nil
	}
	if item.OwnerID != nil && *item.OwnerID == userID {
		return true, nil
	}
	return false, nil
}

// GetPendingTasks returns the user's inbox: tasks assigned to them directly
// plus unclaimed pool tasks of roles they hold, each joined with activity,
// process and item context. Only tasks of Active processes appear; a task
// orphaned by a cancelled or failed process can never be completed and is
// left out.
func (s *WorkflowService) GetPendingTasks(ctx context.Context, userID string) ([]*models.PendingTask, error) {
	direct, err := s.activities.ListPendingByUser(ctx, userID, constants.PendingTaskLimit)
	if err != nil {
		return nil, err
	}

	roleIDs, err := s.roles.GetUserRoleIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	var pool []*models.Task
	if len(roleIDs) > 0 {
		pool, err = s.activities.ListPendingByRoles(ctx, roleIDs, constants.PendingTaskLimit)
		if err != nil {
			return nil, err
		}
	}

	seen := make(map[string]bool, len(direct)+len(pool))
	inbox := make([]*models.PendingTask, 0, len(direct)+len(pool))
	for _, task := range append(direct, pool...) {
		if seen[task.ID] {
			continue
		}
		seen[task.ID] = true

		entry, err := s.buildInboxEntry(ctx, task)
		if err != nil {
			log.Printf("⚠️ Skipping task %s in inbox: %v", task.ID, err)
			continue
		}
		if entry == nil {
			// Task of a process that is no longer Active
			continue
		}
		inbox = append(inbox, entry)
	}
	return inbox, nil
}

// buildInboxEntry joins a task with its activity, process and item context.
// Returns (nil, nil) for tasks whose process is no longer Active.
func (s *WorkflowService) buildInboxEntry(ctx context.Context, task *models.Task) (*models.PendingTask, error) {
	inst, err := s.activities.GetInstance(ctx, task.ActivityInstanceID)
	if err != nil {
		return nil, err
	}
	activity, err := s.defs.GetActivity(ctx, inst.ActivityID)
	if err != nil {
		return nil, err
	}
	process, err := s.processes.Get(ctx, inst.ProcessID)
	if err != nil {
		return nil, err
	}
	if process.State != models.ProcessStateActive {
		return nil, nil
	}
	item, err := s.items.GetItem(ctx, process.ItemID)
	if err != nil {
		return nil, err
	}

	entry := &models.PendingTask{
		Task:         task,
		ActivityName: activity.Name,
		ProcessID:    process.ID,
		ProcessState: string(process.State),
		ItemID:       item.ID,
		ItemTypeID:   item.ItemTypeID,
		CreatedAt:    task.CreatedAt,
	}
	if activity.Description != nil {
		entry.Instructions = *activity.Description
	}
	return entry, nil
}

// ActivityHistoryEntry is one activation with its definition and tasks
type ActivityHistoryEntry struct {
	Instance *models.ActivityInstance `json:"instance"`
	Activity *models.Activity         `json:"activity"`
	Tasks    []*models.Task           `json:"tasks"`
}

// ProcessHistory is the audit view of a process: every activation in order
// with its tasks.
type ProcessHistory struct {
	Process *models.ProcessInstance `json:"process"`
	Entries []*ActivityHistoryEntry `json:"entries"`
}

// GetProcessHistory returns the full audit trail of a process
func (s *WorkflowService) GetProcessHistory(ctx context.Context, processID string) (*ProcessHistory, error) {
	process, err := s.processes.Get(ctx, processID)
	if err != nil {
		return nil, err
	}

	instances, err := s.activities.ListInstancesByProcess(ctx, processID)
	if err != nil {
		return nil, err
	}

	history := &ProcessHistory{
		Process: process,
		Entries: make([]*ActivityHistoryEntry, 0, len(instances)),
	}
	for _, inst := range instances {
		activity, err := s.defs.GetActivity(ctx, inst.ActivityID)
		if err != nil {
			return nil, err
		}
		tasks, err := s.activities.ListTasksByInstance(ctx, inst.ID)
		if err != nil {
			return nil, err
		}
		history.Entries = append(history.Entries, &ActivityHistoryEntry{
			Instance: inst,
			Activity: activity,
			Tasks:    tasks,
		})
	}
	return history, nil
}

// activate creates an instance of the activity and either dispatches its
// tasks or, for task-free activities, evaluates it immediately. hops counts
// consecutive task-free activations within this unit of work; exceeding the
// bound marks the process Error instead of looping through a cyclic map.
func (s *WorkflowService) activate(ctx context.Context, process *models.ProcessInstance, activity *models.Activity, hops int) error {
	if hops > constants.MaxActivationHops {
		return s.failProcessWithInstance(ctx, process, "",
			fmt.Sprintf("activation exceeded %d task-free hops, map is likely cyclic", constants.MaxActivationHops))
	}

	inst := &models.ActivityInstance{
		ID:         utils.GenerateID(),
		ProcessID:  process.ID,
		ActivityID: activity.ID,
		State:      models.ActivityInstanceStateActive,
		CreatedAt:  time.Now(),
	}
	if err := s.activities.InsertInstance(ctx, inst); err != nil {
		return err
	}

	log.Printf("🔍 Activated '%s' (%s) in process %s", activity.Name, activity.Type, process.ID)
	s.publish(ctx, events.ActivityActivated, ProcessEventPayload{
		ProcessID: process.ID, MapID: process.MapID, ItemID: process.ItemID, State: process.State,
	})

	switch activity.Type {
	case models.ActivityTypeStart:
		// Start advances immediately with the default outcome
		forced := constants.OutcomeDefault
		return s.evaluateInstance(ctx, process, activity, inst, &forced, hops)

	case models.ActivityTypeEnd:
		return s.completeProcess(ctx, process, inst)

	case models.ActivityTypeAuto:
		// Pass-through: no tasks, resolve against the recorded outcomes (none)
		return s.evaluateInstance(ctx, process, activity, inst, nil, hops)

	default:
		return s.dispatchTasks(ctx, process, activity, inst)
	}
}

// dispatchTasks applies the activity's assignment strategy. Every strategy
// produces exactly one task; a strategy that resolves to nobody produces zero
// tasks, which can never complete, so the process is failed with a recorded
// reason instead of being left to hang.
func (s *WorkflowService) dispatchTasks(ctx context.Context, process *models.ProcessInstance, activity *models.Activity, inst *models.ActivityInstance) error {
	task := &models.Task{
		ID:                 utils.GenerateID(),
		ActivityInstanceID: inst.ID,
		Seq:                1,
		AssigneeType:       activity.AssigneeType,
		Status:             models.TaskStatusPending,
		CreatedAt:          time.Now(),
	}

	switch activity.AssigneeType {
	case models.AssigneeTypeUser:
		if activity.UserID == nil || *activity.UserID == "" {
			return s.failActivation(ctx, process, inst,
				fmt.Sprintf("activity '%s' uses user assignment but names no user", activity.Name))
		}
		task.AssignedUserID = activity.UserID

	case models.AssigneeTypeRole:
		if activity.RoleID == nil || *activity.RoleID == "" {
			return s.failActivation(ctx, process, inst,
				fmt.Sprintf("activity '%s' uses role assignment but names no role", activity.Name))
		}
		task.AssignedRoleID = activity.RoleID

	case models.AssigneeTypeDynamic:
		if activity.DynamicIdentity == nil {
			return s.failActivation(ctx, process, inst,
				fmt.Sprintf("activity '%s' uses dynamic assignment but names no identity rule", activity.Name))
		}
		item, err := s.items.GetItem(ctx, process.ItemID)
		if err != nil {
			return err
		}
		resolved := resolveDynamicIdentity(*activity.DynamicIdentity, item)
		if resolved == nil {
			return s.failActivation(ctx, process, inst,
				fmt.Sprintf("activity '%s': item %s has no %s", activity.Name, item.ID, *activity.DynamicIdentity))
		}
		task.AssignedUserID = resolved
		task.DynamicIdentity = activity.DynamicIdentity

	default:
		return s.failActivation(ctx, process, inst,
			fmt.Sprintf("activity '%s' has unknown assignee type '%s'", activity.Name, activity.AssigneeType))
	}

	if err := s.activities.InsertTask(ctx, task); err != nil {
		return err
	}

	log.Printf("✅ Created task %s for '%s' (assignee_type=%s)", task.ID, activity.Name, activity.AssigneeType)
	s.publish(ctx, events.TaskCreated, TaskEventPayload{ProcessID: process.ID, Task: task})
	return nil
}

// resolveDynamicIdentity maps an identity rule to a user of the item
func resolveDynamicIdentity(identity models.DynamicIdentity, item *models.Item) *string {
	switch identity {
	case models.DynamicIdentityCreator:
		return item.CreatedByID
	case models.DynamicIdentityOwner:
		return item.OwnerID
	}
	return nil
}

// evaluateInstance checks whether the instance can resolve and, if so,
// follows the matching transition. forcedOutcome bypasses the vote (used by
// start activities); otherwise any Pending task blocks resolution.
func (s *WorkflowService) evaluateInstance(ctx context.Context, process *models.ProcessInstance, activity *models.Activity, inst *models.ActivityInstance, forcedOutcome *string, hops int) error {
	var outcome string
	if forcedOutcome != nil {
		outcome = *forcedOutcome
	} else {
		pending, err := s.activities.CountPendingTasks(ctx, inst.ID)
		if err != nil {
			return err
		}
		if pending > 0 {
			// Not all votes are in yet
			return nil
		}

		tasks, err := s.activities.ListTasksByInstance(ctx, inst.ID)
		if err != nil {
			return err
		}
		resolved, ok := domain.ResolveOutcome(activity.Policy(), tasks)
		if !ok {
			return s.failActivation(ctx, process, inst,
				fmt.Sprintf("activity '%s' requires unanimity but votes disagree", activity.Name))
		}
		outcome = resolved
	}

	transitions, err := s.defs.GetTransitionsFrom(ctx, activity.ID)
	if err != nil {
		return err
	}

	next := s.resolveTransition(ctx, process, transitions, outcome)
	if next == nil {
		return s.failActivation(ctx, process, inst,
			fmt.Sprintf("no transition from '%s' matches outcome '%s'", activity.Name, outcome))
	}

	now := time.Now()
	if err := s.activities.CloseInstance(ctx, inst.ID, models.ActivityInstanceStateCompleted, nil, now); err != nil {
		return err
	}
	log.Printf("✅ Activity '%s' resolved with outcome '%s'", activity.Name, outcome)
	s.publish(ctx, events.ActivityCompleted, ProcessEventPayload{
		ProcessID: process.ID, MapID: process.MapID, ItemID: process.ItemID, State: process.State,
	})

	target, err := s.defs.GetActivity(ctx, next.ToActivityID)
	if err != nil {
		return err
	}
	return s.activate(ctx, process, target, hops+1)
}

// resolveTransition picks the outgoing transition for an outcome. Exact
// condition matches are tried first in priority order, then the Default
// fallback. A guard that errors or returns false rejects its transition.
func (s *WorkflowService) resolveTransition(ctx context.Context, process *models.ProcessInstance, transitions []*models.Transition, outcome string) *models.Transition {
	if len(transitions) == 0 {
		return nil
	}
	env := s.guardEnv(ctx, process, outcome)

	for _, t := range transitions {
		if t.Condition == outcome && s.guardPasses(t, env) {
			return t
		}
	}
	if outcome != constants.OutcomeDefault {
		for _, t := range transitions {
			if t.Condition == constants.OutcomeDefault && s.guardPasses(t, env) {
				return t
			}
		}
	}
	return nil
}

// guardEnv builds the environment guard expressions evaluate against
func (s *WorkflowService) guardEnv(ctx context.Context, process *models.ProcessInstance, outcome string) map[string]interface{} {
	env := map[string]interface{}{
		"outcome":    outcome,
		"process_id": process.ID,
		"item_id":    process.ItemID,
	}

	item, err := s.items.GetItem(ctx, process.ItemID)
	if err != nil {
		log.Printf("⚠️ Guard environment without item context: %v", err)
		return env
	}
	itemEnv := map[string]interface{}{
		"id":   item.ID,
		"type": item.ItemTypeID,
	}
	if item.CreatedByID != nil {
		itemEnv["creator"] = *item.CreatedByID
	}
	if item.OwnerID != nil {
		itemEnv["owner"] = *item.OwnerID
	}
	if item.CurrentStateID != nil {
		itemEnv["state"] = *item.CurrentStateID
	}
	env["item"] = itemEnv
	return env
}

// guardPasses evaluates a transition's guard; guardless transitions pass.
// Evaluation errors reject the transition rather than letting it fire.
func (s *WorkflowService) guardPasses(t *models.Transition, env map[string]interface{}) bool {
	if t.Guard == nil || *t.Guard == "" {
		return true
	}
	ok, err := s.guards.EvaluateBool(*t.Guard, env)
	if err != nil {
		log.Printf("⚠️ Guard on transition %s rejected: %v", t.ID, err)
		return false
	}
	return ok
}

// completeProcess closes the end activation and the process, then attempts
// the automatic lifecycle promotion. Promotion failures are reported through
// the result event and the log; they never roll back the completion.
func (s *WorkflowService) completeProcess(ctx context.Context, process *models.ProcessInstance, endInst *models.ActivityInstance) error {
	now := time.Now()
	if err := s.activities.CloseInstance(ctx, endInst.ID, models.ActivityInstanceStateCompleted, nil, now); err != nil {
		return err
	}

	if _, err := s.sm.Transition(process.State, domain.TransitionComplete); err != nil {
		return errors.NewInvalidStateError("process", string(process.State), "complete")
	}
	if err := s.processes.Close(ctx, process.ID, models.ProcessStateCompleted, nil, now); err != nil {
		return err
	}
	process.State = models.ProcessStateCompleted

	log.Printf("✅ Process %s completed", process.ID)
	s.publish(ctx, events.ProcessCompleted, ProcessEventPayload{
		ProcessID: process.ID, MapID: process.MapID, ItemID: process.ItemID,
		State: models.ProcessStateCompleted,
	})

	s.promoteAfterCompletion(ctx, process)
	return nil
}

// promoteAfterCompletion runs the best-effort lifecycle promotion as the
// system principal and reports the result without ever failing completion.
func (s *WorkflowService) promoteAfterCompletion(ctx context.Context, process *models.ProcessInstance) {
	report := func(result *models.PromoteResult) {
		payload := PromotionEventPayload{ProcessID: process.ID, ItemID: process.ItemID, Result: result}
		if result.Success {
			log.Printf("✅ %s: item %s %s -> %s", constants.PromotionComment,
				process.ItemID, result.FromState, result.ToState)
			s.publish(ctx, events.LifecyclePromoted, payload)
		} else {
			log.Printf("⚠️ Promotion of item %s skipped: %s", process.ItemID, result.Error)
			s.publish(ctx, events.LifecyclePromotionFailed, payload)
		}
	}

	item, err := s.items.GetItem(ctx, process.ItemID)
	if err != nil {
		report(&models.PromoteResult{Success: false, Error: err.Error()})
		return
	}
	principal, err := s.system.SystemPrincipal(ctx)
	if err != nil {
		report(&models.PromoteResult{Success: false,
			Error: fmt.Sprintf("system principal unavailable: %v", err)})
		return
	}

	result, err := s.promoter.AutoPromote(ctx, item, principal.ID)
	if err != nil {
		report(&models.PromoteResult{Success: false, Error: err.Error()})
		return
	}
	report(result)
}

// failActivation marks an instance Error and fails its process
func (s *WorkflowService) failActivation(ctx context.Context, process *models.ProcessInstance, inst *models.ActivityInstance, reason string) error {
	if err := s.activities.CloseInstance(ctx, inst.ID, models.ActivityInstanceStateError, &reason, time.Now()); err != nil {
		return err
	}
	return s.failProcessWithInstance(ctx, process, inst.ID, reason)
}

// failProcessWithInstance moves the process to Error with a recorded reason
// and publishes the stall event. instanceID is empty when the failure is not
// tied to one activation.
func (s *WorkflowService) failProcessWithInstance(ctx context.Context, process *models.ProcessInstance, instanceID, reason string) error {
	if _, err := s.sm.Transition(process.State, domain.TransitionFail); err != nil {
		return errors.NewInvalidStateError("process", string(process.State), "fail")
	}
	if err := s.processes.Close(ctx, process.ID, models.ProcessStateError, &reason, time.Now()); err != nil {
		return err
	}
	process.State = models.ProcessStateError

	log.Printf("❌ Process %s stalled: %s", process.ID, reason)
	s.publish(ctx, events.ProcessStalled, StallEventPayload{
		ProcessID:          process.ID,
		ActivityInstanceID: instanceID,
		Reason:             reason,
	})
	return nil
}

// publish sends a diagnostic event; a failing subscriber is logged, never
// allowed to abort the engine's unit of work.
func (s *WorkflowService) publish(ctx context.Context, eventType events.EventType, payload interface{}) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.Publish(ctx, eventType, payload); err != nil {
		log.Printf("⚠️ Event %s publish failed: %v", eventType, err)
	}
}
