package routes

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"docllama/internal/config"
	"docllama/internal/queue"
	"docllama/middleware"
	"docllama/models"
	"docllama/services"
	"docllama/utils"

	"github.com/gin-gonic/gin"
)

const uploadField = "files"

func SetupIngestRoutes(router *gin.Engine, cfg *config.Config, ingest *services.IngestService, ingestQueue IngestQueue) {
	group := router.Group("/ingest")
	group.Use(middleware.RequestSizeLimit(cfg.MaxFileSize))

	group.POST("", func(c *gin.Context) {
		files, ok := uploadedFiles(c, cfg.MaxFileSize)
		if !ok {
			return
		}

		results := make([]models.IngestResult, len(files))
		docs := make([]models.Document, 0, len(files))
		slots := make([]int, 0, len(files))
		for i, fh := range files {
			doc, err := readUpload(fh)
			if err != nil {
				results[i] = models.IngestResult{
					File:   utils.SafeName(fh.Filename),
					Status: models.IngestStatusFailed,
					Error:  err.Error(),
				}
				continue
			}
			docs = append(docs, doc)
			slots = append(slots, i)
		}
		for j, result := range ingest.Ingest(c.Request.Context(), docs) {
			results[slots[j]] = result
		}

		c.JSON(http.StatusOK, models.IngestResponse{Accepted: len(files), Results: results})
	})

	if ingestQueue == nil {
		return
	}

	group.POST("/async", func(c *gin.Context) {
		files, ok := uploadedFiles(c, cfg.MaxFileSize)
		if !ok {
			return
		}

		ctx := c.Request.Context()
		items := make([]models.AsyncIngestItem, 0, len(files))
		for _, fh := range files {
			item := models.AsyncIngestItem{File: utils.SafeName(fh.Filename)}

			doc, err := readUpload(fh)
			if err != nil {
				item.Status, item.Error = models.IngestStatusFailed, err.Error()
				items = append(items, item)
				continue
			}

			payload, err := ingest.StorePDF(ctx, doc)
			switch {
			case errors.Is(err, models.ErrValidation):
				item.Status = models.IngestStatusSkipped
			case err != nil:
				item.Status, item.Error = models.IngestStatusFailed, err.Error()
			default:
				info, err := ingestQueue.Enqueue(ctx, payload)
				if err != nil {
					item.Status, item.Error = models.IngestStatusFailed, err.Error()
				} else {
					item.Status, item.TaskID = models.IngestStatusQueued, info.ID
				}
			}
			items = append(items, item)
		}

		c.JSON(http.StatusAccepted, models.AsyncIngestResponse{Accepted: len(files), Results: items})
	})

	group.GET("/tasks/:id", func(c *gin.Context) {
		info, err := ingestQueue.TaskInfo(c.Request.Context(), c.Param("id"))
		if errors.Is(err, queue.ErrTaskNotFound) {
			utils.RespondWithNotFound(c, "Task not found")
			return
		}
		if err != nil {
			utils.RespondWithServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, info)
	})
}

func uploadedFiles(c *gin.Context, maxSize int64) ([]*multipart.FileHeader, bool) {
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondWithError(c, http.StatusRequestEntityTooLarge, "request_too_large",
				"Request body exceeds maximum size", gin.H{"max_size": maxSize})
			return nil, false
		}
		utils.RespondWithBadRequest(c, "Expected a multipart form", gin.H{"error": err.Error()})
		return nil, false
	}

	files := form.File[uploadField]
	if len(files) == 0 {
		utils.RespondWithBadRequest(c, fmt.Sprintf("No files provided in field %q", uploadField), nil)
		return nil, false
	}
	return files, true
}

func readUpload(fh *multipart.FileHeader) (models.Document, error) {
	f, err := fh.Open()
	if err != nil {
		return models.Document{}, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return models.Document{}, fmt.Errorf("read upload: %w", err)
	}
	return models.Document{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Content:     content,
	}, nil
}
