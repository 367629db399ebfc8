package routes

import (
	"net/http"

	"docllama/internal/ai"
	"docllama/internal/config"
	"docllama/models"
	"docllama/utils"

	"github.com/gin-gonic/gin"
)

func SetupHealthRoutes(router *gin.Engine, cfg *config.Config, lister ModelLister) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":   "DocLlama",
			"status": "ok",
			"health": "/health",
		})
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/models", func(c *gin.Context) {
		names, err := lister.ListModels(c.Request.Context())
		if err != nil {
			utils.RespondWithServiceError(c, err)
			return
		}

		generation, embeddings := ai.PartitionModels(names)
		c.JSON(http.StatusOK, models.ModelsResponse{
			Generation: generation,
			Embeddings: embeddings,
			Default:    cfg.DefaultModel,
		})
	})
}
