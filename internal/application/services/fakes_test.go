package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/yuantus/backend/internal/domain/events"
	"github.com/yuantus/backend/internal/domain/models"
	"github.com/yuantus/backend/internal/domain/ports"
	"github.com/yuantus/backend/pkg/errors"
)

// memEnv is an in-memory implementation of every port the engine depends on,
// so engine semantics are tested without a database. Mutating operations run
// single-goroutine in tests; no locking needed.
type memEnv struct {
	mapsByName      map[string]*models.ProcessMap
	activitiesByID  map[string]*models.Activity
	transitionsFrom map[string][]*models.Transition

	processes    map[string]*models.ProcessInstance
	processOrder []string

	instances     map[string]*models.ActivityInstance
	instanceOrder []string

	tasks     map[string]*models.Task
	taskOrder []string

	items map[string]*models.Item
	roles map[string]map[string]bool // userID -> set of roleIDs
}

func newMemEnv() *memEnv {
	return &memEnv{
		mapsByName:      make(map[string]*models.ProcessMap),
		activitiesByID:  make(map[string]*models.Activity),
		transitionsFrom: make(map[string][]*models.Transition),
		processes:       make(map[string]*models.ProcessInstance),
		instances:       make(map[string]*models.ActivityInstance),
		tasks:           make(map[string]*models.Task),
		items:           make(map[string]*models.Item),
		roles:           make(map[string]map[string]bool),
	}
}

// --- fixture helpers ---

func (m *memEnv) addMap(pm *models.ProcessMap) {
	m.mapsByName[pm.Name] = pm
	for _, a := range pm.Activities {
		m.activitiesByID[a.ID] = a
	}
	for _, t := range pm.Transitions {
		m.transitionsFrom[t.FromActivityID] = append(m.transitionsFrom[t.FromActivityID], t)
	}
	for from := range m.transitionsFrom {
		ts := m.transitionsFrom[from]
		sort.SliceStable(ts, func(i, j int) bool { return ts[i].Priority < ts[j].Priority })
	}
}

func (m *memEnv) addItem(item *models.Item) {
	m.items[item.ID] = item
}

func (m *memEnv) grantRole(userID, roleID string) {
	if m.roles[userID] == nil {
		m.roles[userID] = make(map[string]bool)
	}
	m.roles[userID][roleID] = true
}

func (m *memEnv) tasksOfInstance(instanceID string) []*models.Task {
	var out []*models.Task
	for _, id := range m.taskOrder {
		if t := m.tasks[id]; t.ActivityInstanceID == instanceID {
			out = append(out, t)
		}
	}
	return out
}

func (m *memEnv) pendingTasks() []*models.Task {
	var out []*models.Task
	for _, id := range m.taskOrder {
		if t := m.tasks[id]; t.Status == models.TaskStatusPending {
			out = append(out, t)
		}
	}
	return out
}

// --- ports.TxRunner ---

func (m *memEnv) RunInTransaction(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// --- ports.DefinitionStore ---

func (m *memEnv) GetMapByName(ctx context.Context, name string) (*models.ProcessMap, error) {
	return m.mapsByName[name], nil
}

func (m *memEnv) GetActivity(ctx context.Context, id string) (*models.Activity, error) {
	a, ok := m.activitiesByID[id]
	if !ok {
		return nil, errors.NewNotFoundError("activity", id)
	}
	return a, nil
}

func (m *memEnv) GetStartActivity(ctx context.Context, mapID string) (*models.Activity, error) {
	for _, pm := range m.mapsByName {
		if pm.ID != mapID {
			continue
		}
		for _, a := range pm.Activities {
			if a.Type == models.ActivityTypeStart {
				return a, nil
			}
		}
	}
	return nil, nil
}

func (m *memEnv) GetTransitionsFrom(ctx context.Context, fromActivityID string) ([]*models.Transition, error) {
	return m.transitionsFrom[fromActivityID], nil
}

// --- ports.ProcessStore ---

func (m *memEnv) Insert(ctx context.Context, p *models.ProcessInstance) error {
	m.processes[p.ID] = p
	m.processOrder = append(m.processOrder, p.ID)
	return nil
}

func (m *memEnv) Get(ctx context.Context, id string) (*models.ProcessInstance, error) {
	p, ok := m.processes[id]
	if !ok {
		return nil, errors.NewNotFoundError("process", id)
	}
	return p, nil
}

func (m *memEnv) FindActiveByItem(ctx context.Context, itemID string, forUpdate bool) (*models.ProcessInstance, error) {
	for _, id := range m.processOrder {
		p := m.processes[id]
		if p.ItemID == itemID && p.State == models.ProcessStateActive {
			return p, nil
		}
	}
	return nil, nil
}

func (m *memEnv) Close(ctx context.Context, id string, state models.ProcessState, reason *string, closedAt time.Time) error {
	p, ok := m.processes[id]
	if !ok {
		return errors.NewNotFoundError("process", id)
	}
	if p.State != models.ProcessStateActive {
		return errors.NewInvalidStateError("process", string(p.State), "close")
	}
	p.State = state
	p.StateReason = reason
	p.ClosedAt = &closedAt
	return nil
}

// --- ports.ActivityStore ---

func (m *memEnv) InsertInstance(ctx context.Context, inst *models.ActivityInstance) error {
	m.instances[inst.ID] = inst
	m.instanceOrder = append(m.instanceOrder, inst.ID)
	return nil
}

func (m *memEnv) GetInstance(ctx context.Context, id string) (*models.ActivityInstance, error) {
	inst, ok := m.instances[id]
	if !ok {
		return nil, errors.NewNotFoundError("activity instance", id)
	}
	return inst, nil
}

func (m *memEnv) ListInstancesByProcess(ctx context.Context, processID string) ([]*models.ActivityInstance, error) {
	var out []*models.ActivityInstance
	for _, id := range m.instanceOrder {
		if inst := m.instances[id]; inst.ProcessID == processID {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (m *memEnv) CloseInstance(ctx context.Context, id string, state models.ActivityInstanceState, reason *string, closedAt time.Time) error {
	inst, ok := m.instances[id]
	if !ok {
		return errors.NewNotFoundError("activity instance", id)
	}
	if inst.State != models.ActivityInstanceStateActive {
		return errors.NewInvalidStateError("activity instance", string(inst.State), "close")
	}
	inst.State = state
	inst.StateReason = reason
	inst.ClosedAt = &closedAt
	return nil
}

func (m *memEnv) InsertTask(ctx context.Context, task *models.Task) error {
	m.tasks[task.ID] = task
	m.taskOrder = append(m.taskOrder, task.ID)
	return nil
}

func (m *memEnv) GetTask(ctx context.Context, id string, forUpdate bool) (*models.Task, error) {
	t, ok := m.tasks[id]
	if !ok {
		return nil, errors.NewNotFoundError("task", id)
	}
	// The SQL store scans a fresh row per call; hand out a copy so callers
	// never observe later writes through a shared struct
	copied := *t
	return &copied, nil
}

func (m *memEnv) CompleteTask(ctx context.Context, id string, outcome string, comment *string, actingUserID string, completedAt time.Time) (bool, error) {
	t, ok := m.tasks[id]
	if !ok {
		return false, errors.NewNotFoundError("task", id)
	}
	if t.Status != models.TaskStatusPending {
		return false, nil
	}
	t.Status = models.TaskStatusCompleted
	t.Outcome = &outcome
	t.Comment = comment
	t.AssignedUserID = &actingUserID
	t.CompletedAt = &completedAt
	return true, nil
}

func (m *memEnv) CountPendingTasks(ctx context.Context, instanceID string) (int, error) {
	count := 0
	for _, t := range m.tasks {
		if t.ActivityInstanceID == instanceID && t.Status == models.TaskStatusPending {
			count++
		}
	}
	return count, nil
}

func (m *memEnv) ListTasksByInstance(ctx context.Context, instanceID string) ([]*models.Task, error) {
	return m.tasksOfInstance(instanceID), nil
}

func (m *memEnv) ListPendingByUser(ctx context.Context, userID string, limit int) ([]*models.Task, error) {
	var out []*models.Task
	for _, id := range m.taskOrder {
		t := m.tasks[id]
		if t.Status == models.TaskStatusPending && t.AssignedUserID != nil && *t.AssignedUserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memEnv) ListPendingByRoles(ctx context.Context, roleIDs []string, limit int) ([]*models.Task, error) {
	wanted := make(map[string]bool, len(roleIDs))
	for _, id := range roleIDs {
		wanted[id] = true
	}
	var out []*models.Task
	for _, id := range m.taskOrder {
		t := m.tasks[id]
		if t.Status == models.TaskStatusPending && t.AssignedRoleID != nil && wanted[*t.AssignedRoleID] {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memEnv) FindZeroTaskActiveInstances(ctx context.Context, cutoff time.Time) ([]*models.ActivityInstance, error) {
	var out []*models.ActivityInstance
	for _, id := range m.instanceOrder {
		inst := m.instances[id]
		if inst.State != models.ActivityInstanceStateActive || !inst.CreatedAt.Before(cutoff) {
			continue
		}
		if len(m.tasksOfInstance(inst.ID)) == 0 {
			out = append(out, inst)
		}
	}
	return out, nil
}

// --- ports.ItemReader ---

func (m *memEnv) GetItem(ctx context.Context, id string) (*models.Item, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, errors.NewNotFoundError("item", id)
	}
	return item, nil
}

// --- ports.RoleMembershipChecker ---

func (m *memEnv) UserHasRole(ctx context.Context, userID, roleID string) (bool, error) {
	return m.roles[userID][roleID], nil
}

func (m *memEnv) GetUserRoleIDs(ctx context.Context, userID string) ([]string, error) {
	var out []string
	for roleID := range m.roles[userID] {
		out = append(out, roleID)
	}
	sort.Strings(out)
	return out, nil
}

// --- collaborator fakes ---

type promoteCall struct {
	ItemID       string
	ActingUserID string
}

type fakePromoter struct {
	result *models.PromoteResult
	err    error
	calls  []promoteCall
}

func (p *fakePromoter) AutoPromote(ctx context.Context, item *models.Item, actingUserID string) (*models.PromoteResult, error) {
	p.calls = append(p.calls, promoteCall{ItemID: item.ID, ActingUserID: actingUserID})
	if p.err != nil {
		return nil, p.err
	}
	if p.result != nil {
		return p.result, nil
	}
	return &models.PromoteResult{Success: true, FromState: "In Work", ToState: "Released"}, nil
}

type fakePrincipal struct {
	user *models.User
	err  error
}

func (p *fakePrincipal) SystemPrincipal(ctx context.Context) (*models.User, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.user != nil {
		return p.user, nil
	}
	return &models.User{ID: "admin-id", Username: "admin"}, nil
}

type recordedEvent struct {
	Type    events.EventType
	Payload interface{}
}

// recordingBus captures published events in order
type recordingBus struct {
	events []recordedEvent
	failOn events.EventType
}

func (b *recordingBus) Subscribe(eventType events.EventType, handler ports.EventHandler) func() {
	return func() {}
}

func (b *recordingBus) Publish(ctx context.Context, eventType events.EventType, payload interface{}) error {
	b.events = append(b.events, recordedEvent{Type: eventType, Payload: payload})
	if b.failOn != "" && eventType == b.failOn {
		return fmt.Errorf("subscriber rejected %s", eventType)
	}
	return nil
}

func (b *recordingBus) typesSeen() []events.EventType {
	out := make([]events.EventType, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Type)
	}
	return out
}
