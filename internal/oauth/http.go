package oauth

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"teamsync/internal/config"
	"teamsync/internal/directory"
	"teamsync/internal/logger"
	"teamsync/internal/session"
)

// Handler exposes the login flow over HTTP. The callback resolves the
// verified identity against the directory read-only; sync owns all
// directory writes.
type Handler struct {
	client   *Client
	sessions session.Store
	store    directory.Store
	cfg      config.Config
}

func NewHandler(
	client *Client,
	sessions session.Store,
	store directory.Store,
	cfg config.Config,
) *Handler {
	return &Handler{
		client:   client,
		sessions: sessions,
		store:    store,
		cfg:      cfg,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/oauth/login/:org", h.login)
	r.GET("/oauth/callback", h.callback)
	r.POST("/auth/logout", h.logout)
}

func (h *Handler) redirectURL(c *gin.Context) string {
	return h.cfg.Redirect(config.RequestOrigin{
		Proto: c.GetHeader("X-Forwarded-Proto"),
		Host:  c.GetHeader("X-Forwarded-Host"),
	})
}

func (h *Handler) login(c *gin.Context) {
	orgSlug := c.Param("org")

	loginKey, err := session.GenerateID()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start login"})
		return
	}

	authURL, err := h.client.Issue(
		c.Request.Context(),
		loginKey,
		orgSlug,
		h.redirectURL(c),
	)
	if err != nil {
		logger.Error("login issue failed", map[string]any{
			"org":   orgSlug,
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start login"})
		return
	}

	session.SetCookie(c.Writer, session.LoginCookieName, loginKey,
		time.Now().Add(StateTTL), session.CookieOptions{
			Secure:   true,
			SameSite: http.SameSiteLaxMode,
		})

	c.Redirect(http.StatusFound, authURL)
}

func (h *Handler) callback(c *gin.Context) {
	// The login cookie is single-use like the state it scopes.
	defer session.ClearCookie(c.Writer, session.LoginCookieName, session.CookieOptions{
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})

	cookie, err := c.Request.Cookie(session.LoginCookieName)
	if err != nil || cookie.Value == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "your login attempt expired, please start over",
		})
		return
	}

	orgSlug, err := h.client.ValidateState(
		c.Request.Context(),
		cookie.Value,
		c.Query("state"),
	)
	if err != nil {
		h.rejectFlow(c, err)
		return
	}

	if errParam := c.Query("error"); errParam != "" {
		logger.Warn("oidc callback returned error", map[string]any{
			"org":   orgSlug,
			"error": errParam,
			"desc":  c.Query("error_description"),
		})
		c.Redirect(http.StatusFound, "/login")
		return
	}

	code := c.Query("code")
	if code == "" {
		logger.Error("oidc callback missing code and error", nil)
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	rawIDToken, err := h.client.Exchange(c.Request.Context(), code, h.redirectURL(c))
	if err != nil {
		h.rejectFlow(c, err)
		return
	}

	identity, err := h.client.VerifyIdentityToken(c.Request.Context(), rawIDToken)
	if err != nil {
		h.rejectFlow(c, err)
		return
	}

	// Authentication and directory membership are deliberately
	// decoupled: the lookup is read-only and may come up empty.
	memberID := h.lookupMember(c, orgSlug, identity)

	sessionID, err := session.GenerateID()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	now := time.Now()
	expiresAt := now.Add(24 * time.Hour)

	sess := session.Session{
		SessionID:  sessionID,
		MemberID:   memberID,
		ExternalID: identity.ExternalUserID,
		OrgSlug:    orgSlug,
		CreatedAt:  now,
		ExpiresAt:  expiresAt,
	}

	if err := h.sessions.Create(c.Request.Context(), sess); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist session"})
		return
	}

	session.SetCookie(c.Writer, session.CookieName, sessionID, expiresAt, session.CookieOptions{
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})

	logger.Info("login success", map[string]any{
		"org":         orgSlug,
		"external_id": identity.ExternalUserID,
		"has_record":  memberID != "",
	})

	c.JSON(http.StatusOK, gin.H{"status": "authenticated"})
}

// rejectFlow logs the internal diagnostic and responds with the generic
// user-facing message only.
func (h *Handler) rejectFlow(c *gin.Context, err error) {
	var fe *FlowError
	if !errors.As(err, &fe) {
		fe = flowErr(CodeTokenExchangeFailed, "unexpected failure", err)
	}

	logger.Error("login flow rejected", map[string]any{
		"code":   string(fe.Code),
		"detail": fe.Error(),
	})

	c.JSON(http.StatusUnauthorized, gin.H{"error": fe.UserMessage()})
}

func (h *Handler) lookupMember(c *gin.Context, orgSlug string, identity *Identity) string {
	ctx := c.Request.Context()

	org, err := h.store.FindOrganization(ctx, orgSlug)
	if errors.Is(err, directory.ErrNotFound) {
		return ""
	}
	if err != nil {
		logger.Warn("organization lookup failed during login", map[string]any{
			"org":   orgSlug,
			"error": err.Error(),
		})
		return ""
	}

	m, err := h.store.FindByExternalID(ctx, org.ID, identity.ExternalUserID)
	if errors.Is(err, directory.ErrNotFound) && identity.Email != "" {
		m, err = h.store.FindByEmail(ctx, org.ID, identity.Email)
	}
	if err != nil {
		if !errors.Is(err, directory.ErrNotFound) {
			logger.Warn("member lookup failed during login", map[string]any{
				"org":   orgSlug,
				"error": err.Error(),
			})
		}
		return ""
	}

	return m.ID
}

func (h *Handler) logout(c *gin.Context) {
	cookie, err := c.Request.Cookie(session.CookieName)
	if err == nil && cookie.Value != "" {
		// Best-effort delete; the cookie is cleared either way.
		_ = h.sessions.Delete(c.Request.Context(), cookie.Value)
	}

	session.ClearCookie(c.Writer, session.CookieName, session.CookieOptions{
		Path:     "/",
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	c.Status(http.StatusNoContent)
}
