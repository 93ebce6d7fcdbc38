package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/yuantus/backend/internal/domain"
	"github.com/yuantus/backend/internal/domain/events"
	"github.com/yuantus/backend/internal/domain/models"
	"github.com/yuantus/backend/internal/domain/ports"
)

// StallDetectorService periodically sweeps for activity instances that can
// never resolve: Active instances past a grace period that own no tasks at
// all. The engine already fails these at activation time; the sweep catches
// rows left behind by crashes mid-activation and legacy data.
type StallDetectorService struct {
	tx         ports.TxRunner
	activities ports.ActivityStore
	processes  ports.ProcessStore
	eventBus   ports.EventPublisher
	sm         *domain.ProcessStateMachine

	schedule string
	grace    time.Duration
	cron     *cron.Cron
}

// NewStallDetectorService creates a detector with a cron schedule
// (e.g. "@every 5m") and a grace period young instances are exempt from.
func NewStallDetectorService(
	tx ports.TxRunner,
	activities ports.ActivityStore,
	processes ports.ProcessStore,
	eventBus ports.EventPublisher,
	schedule string,
	grace time.Duration,
) *StallDetectorService {
	return &StallDetectorService{
		tx:         tx,
		activities: activities,
		processes:  processes,
		eventBus:   eventBus,
		sm:         domain.NewProcessStateMachine(),
		schedule:   schedule,
		grace:      grace,
	}
}

// Start schedules the periodic sweep
func (s *StallDetectorService) Start() error {
	if s.cron != nil {
		return fmt.Errorf("stall detector already started")
	}

	c := cron.New()
	_, err := c.AddFunc(s.schedule, func() {
		if n, err := s.Sweep(context.Background()); err != nil {
			log.Printf("❌ Stall sweep failed: %v", err)
		} else if n > 0 {
			log.Printf("⚠️ Stall sweep failed %d process(es)", n)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule stall sweep %q: %w", s.schedule, err)
	}

	c.Start()
	s.cron = c
	log.Printf("▶️ Stall detector started (schedule %s, grace %s)", s.schedule, s.grace)
	return nil
}

// Stop halts the schedule; a sweep already running finishes
func (s *StallDetectorService) Stop() {
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
}

// Sweep finds zero-task Active instances older than the grace period and
// fails each one together with its process. Returns the number of stalled
// instances handled.
func (s *StallDetectorService) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.grace)
	stalled, err := s.activities.FindZeroTaskActiveInstances(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	failed := 0
	for _, inst := range stalled {
		if err := s.failStalledInstance(ctx, inst); err != nil {
			log.Printf("❌ Failed to fail stalled instance %s: %v", inst.ID, err)
			continue
		}
		failed++
	}
	return failed, nil
}

func (s *StallDetectorService) failStalledInstance(ctx context.Context, inst *models.ActivityInstance) error {
	reason := fmt.Sprintf("activity instance %s has had no tasks since %s",
		inst.ID, inst.CreatedAt.Format(time.RFC3339))

	return s.tx.RunInTransaction(ctx, func(txCtx context.Context) error {
		if err := s.activities.CloseInstance(txCtx, inst.ID, models.ActivityInstanceStateError, &reason, time.Now()); err != nil {
			return err
		}

		process, err := s.processes.Get(txCtx, inst.ProcessID)
		if err != nil {
			return err
		}
		// The process may already be terminal (e.g. cancelled after the stall)
		if !s.sm.CanTransition(process.State, domain.TransitionFail) {
			return nil
		}
		if err := s.processes.Close(txCtx, process.ID, models.ProcessStateError, &reason, time.Now()); err != nil {
			return err
		}

		log.Printf("❌ Process %s stalled: %s", process.ID, reason)
		if s.eventBus != nil {
			if err := s.eventBus.Publish(txCtx, events.ProcessStalled, StallEventPayload{
				ProcessID:          process.ID,
				ActivityInstanceID: inst.ID,
				Reason:             reason,
			}); err != nil {
				log.Printf("⚠️ Event %s publish failed: %v", events.ProcessStalled, err)
			}
		}
		return nil
	})
}
