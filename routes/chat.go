package routes

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"docllama/internal/logger"
	"docllama/middleware"
	"docllama/models"
	"docllama/services"
	"docllama/utils"

	"github.com/gin-gonic/gin"
)

func SetupChatRoutes(router *gin.Engine, relay *services.ChatRelay) {
	router.POST("/chat_once", func(c *gin.Context) {
		var req models.ChatOnceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		text, model, err := relay.Complete(c.Request.Context(), req.Prompt, req.Model)
		if err != nil {
			utils.RespondWithServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.ChatOnceResponse{Text: text, Model: model})
	})

	router.POST("/chat", func(c *gin.Context) {
		var req models.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}
		input, err := req.Input()
		if err != nil {
			utils.RespondWithServiceError(c, err)
			return
		}

		ctx := c.Request.Context()
		stream, err := relay.Open(ctx, input, req.Model)
		if err != nil {
			utils.RespondWithServiceError(c, err)
			return
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)
		c.Writer.Flush()

		// The relay stops on its own once ctx is cancelled, so draining is
		// always bounded.
		writeFailed := false
		for token := range stream.Tokens() {
			if writeFailed {
				continue
			}
			if err := writeEvent(c.Writer, token); err != nil {
				writeFailed = true
				continue
			}
			c.Writer.Flush()
		}

		if err := stream.Err(); err != nil && !errors.Is(err, ctx.Err()) {
			logger.Warn("Chat stream ended early",
				"request_id", middleware.GetRequestID(c),
				"mode", stream.Mode,
				"model", stream.Model,
				"error", err)
		}
	})
}

// writeEvent writes one server-sent event. Each line of token becomes its own
// data field so embedded newlines cannot end the event.
func writeEvent(w io.Writer, token string) error {
	var b strings.Builder
	for _, line := range strings.Split(token, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}
