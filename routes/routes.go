package routes

import (
	"context"

	"docllama/internal/config"
	"docllama/models"
	"docllama/services"

	"github.com/gin-gonic/gin"
)

// ModelLister reports the models the backend has installed.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// IngestQueue hands stored uploads to the background worker.
type IngestQueue interface {
	Enqueue(ctx context.Context, payload models.IngestTaskPayload) (*models.IngestTaskInfo, error)
	TaskInfo(ctx context.Context, id string) (*models.IngestTaskInfo, error)
}

// Services bundles the handlers' collaborators. Queue is nil when async
// ingestion is disabled.
type Services struct {
	Models ModelLister
	Chat   *services.ChatRelay
	Ingest *services.IngestService
	Search *services.SearchService
	Queue  IngestQueue
}

func SetupRoutes(router *gin.Engine, cfg *config.Config, svc *Services) {
	SetupHealthRoutes(router, cfg, svc.Models)
	SetupChatRoutes(router, svc.Chat)
	SetupIngestRoutes(router, cfg, svc.Ingest, svc.Queue)
	SetupSearchRoutes(router, svc.Search)
}
