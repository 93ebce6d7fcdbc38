package services

import (
	"context"
	"fmt"
	"log"

	"github.com/yuantus/backend/internal/domain/models"
	"github.com/yuantus/backend/internal/domain/ports"
	"github.com/yuantus/backend/pkg/constants"
)

// lifecycleReader is the slice of the lifecycle repository the promoter needs
type lifecycleReader interface {
	GetState(ctx context.Context, id string) (*models.LifecycleState, error)
	ListTransitionsFrom(ctx context.Context, fromStateID string) ([]*models.LifecycleTransition, error)
}

// itemStateWriter applies the guarded state move
type itemStateWriter interface {
	UpdateItemState(ctx context.Context, itemID, fromStateID, toStateID string) (bool, error)
}

// LifecycleService performs the automatic promotion that follows a completed
// approval process. Promotion is best-effort from the caller's point of view:
// every failure mode comes back as a PromoteResult, never as a silent no-op.
type LifecycleService struct {
	lifecycle lifecycleReader
	items     itemStateWriter
}

var _ ports.LifecyclePromoter = (*LifecycleService)(nil)

// NewLifecycleService creates a new LifecycleService
func NewLifecycleService(lifecycle lifecycleReader, items itemStateWriter) *LifecycleService {
	return &LifecycleService{
		lifecycle: lifecycle,
		items:     items,
	}
}

// AutoPromote moves the item along its lifecycle after approval.
// Target selection: a single outgoing transition is followed as-is; with
// multiple candidates the one leading to the "Released" state wins.
// actingUserID is the system principal the move is recorded under.
func (s *LifecycleService) AutoPromote(ctx context.Context, item *models.Item, actingUserID string) (*models.PromoteResult, error) {
	if item == nil {
		return nil, fmt.Errorf("auto promote requires an item")
	}
	if item.CurrentStateID == nil {
		return failedPromotion("item has no lifecycle state"), nil
	}

	fromState, err := s.lifecycle.GetState(ctx, *item.CurrentStateID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve current state of item %s: %w", item.ID, err)
	}

	transitions, err := s.lifecycle.ListTransitionsFrom(ctx, fromState.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lifecycle transitions of item %s: %w", item.ID, err)
	}
	if len(transitions) == 0 {
		return failedPromotion(fmt.Sprintf("no lifecycle transition out of state '%s'", fromState.Name)), nil
	}

	target, err := s.pickTarget(ctx, transitions)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return failedPromotion(fmt.Sprintf("no promotable lifecycle transition out of state '%s'", fromState.Name)), nil
	}

	moved, err := s.items.UpdateItemState(ctx, item.ID, fromState.ID, target.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to promote item %s: %w", item.ID, err)
	}
	if !moved {
		return failedPromotion("item state changed concurrently"), nil
	}

	log.Printf("✅ Promoted item %s: %s -> %s (%s, by %s)",
		item.ID, fromState.Name, target.Name, constants.PromotionComment, actingUserID)

	return &models.PromoteResult{
		Success:   true,
		FromState: fromState.Name,
		ToState:   target.Name,
	}, nil
}

// pickTarget resolves the destination state. A lone transition needs no state
// lookup; otherwise the candidates are scanned for the released state.
func (s *LifecycleService) pickTarget(ctx context.Context, transitions []*models.LifecycleTransition) (*models.LifecycleState, error) {
	if len(transitions) == 1 {
		target, err := s.lifecycle.GetState(ctx, transitions[0].ToStateID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve promotion target: %w", err)
		}
		return target, nil
	}

	for _, t := range transitions {
		target, err := s.lifecycle.GetState(ctx, t.ToStateID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve promotion target: %w", err)
		}
		if target.IsReleased || target.Name == constants.ReleasedStateName {
			return target, nil
		}
	}
	return nil, nil
}

func failedPromotion(reason string) *models.PromoteResult {
	return &models.PromoteResult{Success: false, Error: reason}
}
