package main

import (
	"context"
	"log"
	"os"

	"github.com/yuantus/backend/internal/application/services"
	"github.com/yuantus/backend/internal/config"
	"github.com/yuantus/backend/internal/domain/models"
	"github.com/yuantus/backend/internal/infrastructure/database"
	"github.com/yuantus/backend/internal/infrastructure/persistence"
	"github.com/yuantus/backend/pkg/constants"
	"github.com/yuantus/backend/pkg/errors"
	"github.com/yuantus/backend/pkg/expression"
)

// seed imports the default single-reviewer approval map:
//
//	Start -> Review -(Approve)-> End
//	         Review -(Reject)--> Review (fresh activation, re-review loop)
//
// The review step is a role pool task; set REVIEW_ROLE_ID to the reviewing role.
func main() {
	roleID := os.Getenv("REVIEW_ROLE_ID")
	if roleID == "" {
		log.Fatal("REVIEW_ROLE_ID is required")
	}
	mapName := os.Getenv("MAP_NAME")
	if mapName == "" {
		mapName = "Default Approval"
	}

	cfg := config.Load()
	conn, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	db := conn.DB()
	ctx := context.Background()
	if err := persistence.EnsureSchema(ctx, db); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	defs := services.NewDefinitionService(
		persistence.NewMapRepository(db),
		persistence.NewTransactionManager(db),
		expression.NewEngine())

	m := defaultApprovalMap(mapName, roleID)
	if _, err := defs.ImportMap(ctx, m); err != nil {
		if errors.IsConflict(err) {
			log.Printf("⚠️ Map '%s' already exists, nothing to do", mapName)
			return
		}
		log.Fatalf("Failed to import map: %v", err)
	}
	log.Printf("✅ Seeded process map '%s'", mapName)
}

func defaultApprovalMap(name, reviewRoleID string) *models.ProcessMap {
	start := &models.Activity{Name: "Start", Type: models.ActivityTypeStart}
	review := &models.Activity{
		Name:         "Review",
		Type:         models.ActivityTypeTask,
		AssigneeType: models.AssigneeTypeRole,
		RoleID:       &reviewRoleID,
	}
	end := &models.Activity{Name: "End", Type: models.ActivityTypeEnd}

	// IDs are assigned here so transitions can reference them before import
	start.ID = "act-start-" + name
	review.ID = "act-review-" + name
	end.ID = "act-end-" + name

	return &models.ProcessMap{
		Name:       name,
		Activities: []*models.Activity{start, review, end},
		Transitions: []*models.Transition{
			{ID: "tr-start-" + name, FromActivityID: start.ID, ToActivityID: review.ID, Condition: constants.OutcomeDefault, Priority: 1},
			{ID: "tr-approve-" + name, FromActivityID: review.ID, ToActivityID: end.ID, Condition: constants.OutcomeApprove, Priority: 1},
			{ID: "tr-reject-" + name, FromActivityID: review.ID, ToActivityID: review.ID, Condition: constants.OutcomeReject, Priority: 2},
		},
	}
}
