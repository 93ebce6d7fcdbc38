package services

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/yuantus/backend/internal/domain/models"
	"github.com/yuantus/backend/internal/domain/ports"
	"github.com/yuantus/backend/pkg/constants"
	"github.com/yuantus/backend/pkg/errors"
	"github.com/yuantus/backend/pkg/expression"
	"github.com/yuantus/backend/pkg/utils"
)

// definitionRepo is the definition store plus the import-time writes
type definitionRepo interface {
	ports.DefinitionStore
	InsertMap(ctx context.Context, m *models.ProcessMap) error
	InsertActivity(ctx context.Context, a *models.Activity) error
	InsertTransition(ctx context.Context, t *models.Transition) error
}

// DefinitionService manages process map definitions: cached lookup by name,
// structural validation, and transactional import of new maps.
type DefinitionService struct {
	repo    definitionRepo
	tx      ports.TxRunner
	guards  *expression.Engine
	cache   map[string]*models.ProcessMap
	cacheMu sync.RWMutex
}

// NewDefinitionService creates a new DefinitionService
func NewDefinitionService(repo definitionRepo, tx ports.TxRunner, guards *expression.Engine) *DefinitionService {
	return &DefinitionService{
		repo:   repo,
		tx:     tx,
		guards: guards,
		cache:  make(map[string]*models.ProcessMap),
	}
}

// GetMap returns the named map with activities and transitions loaded.
// Definitions are immutable at runtime, so a positive lookup is cached.
func (s *DefinitionService) GetMap(ctx context.Context, name string) (*models.ProcessMap, error) {
	s.cacheMu.RLock()
	cached, ok := s.cache[name]
	s.cacheMu.RUnlock()
	if ok {
		return cached, nil
	}

	m, err := s.repo.GetMapByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errors.NewNotFoundError("process map", name)
	}

	s.cacheMu.Lock()
	s.cache[name] = m
	s.cacheMu.Unlock()
	return m, nil
}

// InvalidateCache drops every cached definition
func (s *DefinitionService) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache = make(map[string]*models.ProcessMap)
	s.cacheMu.Unlock()
}

// ImportMap validates a definition and persists the map, its activities and
// transitions in one transaction. IDs are generated where missing.
func (s *DefinitionService) ImportMap(ctx context.Context, m *models.ProcessMap) (*models.ProcessMap, error) {
	if err := s.ValidateMap(m); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetMapByName(ctx, m.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errors.NewConflictError("process map", fmt.Sprintf("'%s' already exists", m.Name))
	}

	if m.ID == "" {
		m.ID = utils.GenerateID()
	}
	for _, a := range m.Activities {
		if a.ID == "" {
			a.ID = utils.GenerateID()
		}
		a.MapID = m.ID
	}
	for _, t := range m.Transitions {
		if t.ID == "" {
			t.ID = utils.GenerateID()
		}
		t.MapID = m.ID
	}

	err = s.tx.RunInTransaction(ctx, func(txCtx context.Context) error {
		if err := s.repo.InsertMap(txCtx, m); err != nil {
			return err
		}
		for _, a := range m.Activities {
			if err := s.repo.InsertActivity(txCtx, a); err != nil {
				return err
			}
		}
		for _, t := range m.Transitions {
			if err := s.repo.InsertTransition(txCtx, t); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to import process map '%s': %w", m.Name, err)
	}

	log.Printf("✅ Imported process map '%s' (%d activities, %d transitions)",
		m.Name, len(m.Activities), len(m.Transitions))
	return m, nil
}

// ValidateMap checks the structural rules a runnable definition must satisfy:
// exactly one start activity, known activity and assignee types, transitions
// that reference activities of the same map, and guards that compile.
func (s *DefinitionService) ValidateMap(m *models.ProcessMap) error {
	if m == nil || m.Name == "" {
		return errors.NewInvalidDefinitionError("", "process map requires a name")
	}
	if len(m.Activities) == 0 {
		return errors.NewInvalidDefinitionError(m.Name, "map has no activities")
	}

	byName := make(map[string]*models.Activity, len(m.Activities))
	startCount := 0
	for _, a := range m.Activities {
		if a.Name == "" {
			return errors.NewInvalidDefinitionError(m.Name, "map contains an unnamed activity")
		}
		if _, dup := byName[a.Name]; dup {
			return errors.NewInvalidDefinitionError(m.Name,
				fmt.Sprintf("duplicate activity name '%s'", a.Name))
		}
		byName[a.Name] = a

		if !a.Type.Valid() {
			return errors.NewInvalidDefinitionError(m.Name,
				fmt.Sprintf("activity '%s' has unknown type '%s'", a.Name, a.Type))
		}
		if a.Type == models.ActivityTypeStart {
			startCount++
		}
		if err := validateAssignment(m.Name, a); err != nil {
			return err
		}
	}
	if startCount != 1 {
		return errors.NewInvalidDefinitionError(m.Name,
			fmt.Sprintf("map must define exactly one start activity, found %d", startCount))
	}

	ids := make(map[string]bool, len(m.Activities))
	for _, a := range m.Activities {
		if a.ID != "" {
			ids[a.ID] = true
		}
	}
	for _, t := range m.Transitions {
		// IDs may be unset before import; only verify references that are set
		if t.FromActivityID != "" && len(ids) > 0 && !ids[t.FromActivityID] {
			return errors.NewInvalidDefinitionError(m.Name,
				fmt.Sprintf("transition %s references unknown source activity %s", t.ID, t.FromActivityID))
		}
		if t.ToActivityID != "" && len(ids) > 0 && !ids[t.ToActivityID] {
			return errors.NewInvalidDefinitionError(m.Name,
				fmt.Sprintf("transition %s references unknown target activity %s", t.ID, t.ToActivityID))
		}
		if t.Condition == "" {
			return errors.NewInvalidDefinitionError(m.Name,
				fmt.Sprintf("transition %s has an empty condition, use '%s' for the fallback", t.ID, constants.OutcomeDefault))
		}
		if t.Guard != nil {
			if err := s.guards.Validate(*t.Guard); err != nil {
				return errors.NewInvalidDefinitionError(m.Name,
					fmt.Sprintf("transition %s has invalid guard: %v", t.ID, err))
			}
		}
	}
	return nil
}

// validateAssignment enforces the config each assignment strategy requires
func validateAssignment(mapName string, a *models.Activity) error {
	if a.Type == models.ActivityTypeStart || a.Type == models.ActivityTypeEnd || a.Type == models.ActivityTypeAuto {
		return nil
	}
	switch a.AssigneeType {
	case models.AssigneeTypeRole:
		if a.RoleID == nil || *a.RoleID == "" {
			return errors.NewInvalidDefinitionError(mapName,
				fmt.Sprintf("activity '%s' uses role assignment but names no role", a.Name))
		}
	case models.AssigneeTypeUser:
		if a.UserID == nil || *a.UserID == "" {
			return errors.NewInvalidDefinitionError(mapName,
				fmt.Sprintf("activity '%s' uses user assignment but names no user", a.Name))
		}
	case models.AssigneeTypeDynamic:
		if a.DynamicIdentity == nil {
			return errors.NewInvalidDefinitionError(mapName,
				fmt.Sprintf("activity '%s' uses dynamic assignment but names no identity rule", a.Name))
		}
		switch *a.DynamicIdentity {
		case models.DynamicIdentityCreator, models.DynamicIdentityOwner:
		default:
			return errors.NewInvalidDefinitionError(mapName,
				fmt.Sprintf("activity '%s' names unknown dynamic identity '%s'", a.Name, *a.DynamicIdentity))
		}
	default:
		return errors.NewInvalidDefinitionError(mapName,
			fmt.Sprintf("activity '%s' has unknown assignee type '%s'", a.Name, a.AssigneeType))
	}
	return nil
}
