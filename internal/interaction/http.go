package interaction

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"teamsync/internal/logger"
)

// HTTPHandler adapts the platform's command and interactive-payload
// webhooks to the router.
type HTTPHandler struct {
	router *Router
}

func NewHTTPHandler(router *Router) *HTTPHandler {
	return &HTTPHandler{router: router}
}

func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	r.POST("/slack/commands", h.command)
	r.POST("/slack/interactions", h.interaction)
}

// command handles the form-encoded slash-command webhook.
func (h *HTTPHandler) command(c *gin.Context) {
	req := Request{
		OrgSlug:    c.PostForm("team_domain"),
		ExternalID: c.PostForm("user_id"),
		UserName:   c.PostForm("user_name"),
		Text:       c.PostForm("text"),
	}
	name := c.PostForm("command")

	reply, err := h.router.DispatchCommand(c.Request.Context(), name, req)
	if err != nil {
		logger.Warn("command dispatch failed", map[string]any{
			"command": name,
			"error":   err.Error(),
		})
		c.JSON(http.StatusOK, gin.H{
			"response_type": "ephemeral",
			"text":          "Sorry, that didn't work. Try again in a moment.",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"response_type": responseType(reply),
		"text":          reply.Text,
	})
}

// interactivePayload is the subset of the interactive webhook body the
// router needs.
type interactivePayload struct {
	Type string `json:"type"`
	Team struct {
		Domain string `json:"domain"`
	} `json:"team"`
	User struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
	Actions []struct {
		ActionID string `json:"action_id"`
		Value    string `json:"value"`
	} `json:"actions"`
}

// interaction handles the interactive webhook: a form post whose
// "payload" field holds the JSON document.
func (h *HTTPHandler) interaction(c *gin.Context) {
	var payload interactivePayload
	if err := json.Unmarshal([]byte(c.PostForm("payload")), &payload); err != nil {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}
	if len(payload.Actions) == 0 {
		c.Status(http.StatusOK)
		return
	}

	action := payload.Actions[0]
	req := Request{
		OrgSlug:    payload.Team.Domain,
		ExternalID: payload.User.ID,
		UserName:   payload.User.Username,
		Text:       action.Value,
	}

	reply, err := h.router.DispatchAction(c.Request.Context(), action.ActionID, req)
	if err != nil {
		logger.Warn("action dispatch failed", map[string]any{
			"action": action.ActionID,
			"error":  err.Error(),
		})
		c.Status(http.StatusOK)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"response_type": responseType(reply),
		"text":          reply.Text,
	})
}

func responseType(r Reply) string {
	if r.Ephemeral {
		return "ephemeral"
	}
	return "in_channel"
}
