package app

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"teamsync/internal/logger"
	"teamsync/internal/syncer"
)

// eventsHandler receives the platform's event webhook. Membership
// changes trigger the same reconciliation as the scheduled run.
type eventsHandler struct {
	runner *syncer.Runner
}

func newEventsHandler(runner *syncer.Runner) *eventsHandler {
	return &eventsHandler{runner: runner}
}

type eventPayload struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	Event     struct {
		Type    string `json:"type"`
		Channel string `json:"channel"`
	} `json:"event"`
}

func (h *eventsHandler) handle(c *gin.Context) {
	var payload eventPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	// Endpoint ownership handshake.
	if payload.Type == "url_verification" {
		c.JSON(http.StatusOK, gin.H{"challenge": payload.Challenge})
		return
	}

	switch payload.Event.Type {
	case "member_joined_channel", "member_left_channel":
		logger.Info("membership event received", map[string]any{
			"event":   payload.Event.Type,
			"channel": payload.Event.Channel,
		})
		// Acknowledge immediately; the platform retries slow responses.
		// Membership events carry no organization slug, so every known
		// organization is reconciled; runs are idempotent and cheap
		// when nothing changed. The request context dies with the
		// response, so the run gets its own (the runner bounds it).
		go h.runner.RunAll(context.Background())
	}

	c.Status(http.StatusOK)
}
