package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"teamsync/internal/config"
	"teamsync/internal/directory"
	"teamsync/internal/interaction"
	"teamsync/internal/logger"
	"teamsync/internal/middleware"
	"teamsync/internal/oauth"
	"teamsync/internal/session"
	"teamsync/internal/slack"
	"teamsync/internal/syncer"
)

const onboardingSendInterval = time.Second

func setupHTTP(ctx context.Context, cfg config.Config) (*gin.Engine, func() error, error) {

	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	// ----------------------------
	// Dependencies
	// ----------------------------

	sessionStore := session.NewRedisStore(infra.Redis.Client)
	stateStore := oauth.NewRedisStateStore(infra.Redis.Client)
	dirStore := directory.NewPostgresStore(infra.DB)

	var billing syncer.BillingNotifier
	var summary syncer.SummaryPoster
	if cfg.BotToken != "" && cfg.PrivateChannelID != "" {
		notifier := slack.NewChannelNotifier(slack.NewClient(cfg.BotToken), cfg.PrivateChannelID)
		billing = notifier
		summary = notifier
	} else {
		logger.Warn("billing notifications disabled: SLACK_BOT_TOKEN or SLACK_PRIVATE_CHANNEL_ID not set", nil)
	}

	runner := syncer.NewRunner(syncer.Deps{
		Store:       dirStore,
		Engine:      syncer.NewEngine(dirStore),
		Coordinator: syncer.NewCoordinator(billing, onboardingSendInterval),
		Tokens:      cfg.BotTokenFor,
		NewFetcher: func(token string) syncer.MemberLister {
			return slack.NewFetcher(slack.NewClient(token))
		},
		NewSender: func(token string) syncer.SetupSender {
			return slack.NewSetupMessenger(slack.NewClient(token), cfg.BaseURL())
		},
		Summary:    summary,
		Channel:    cfg.ChannelID,
		RunTimeout: 5 * time.Minute,
	})

	seedOrganizations(ctx, dirStore, cfg.OrgSlugs)

	// ----------------------------
	// Router
	// ----------------------------

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID())

	// ----------------------------
	// Public Routes
	// ----------------------------

	if cfg.OAuthConfigured() {
		oidcClient, err := oauth.New(ctx, cfg.SlackClientID, cfg.SlackClientSecret, stateStore)
		if err != nil {
			return nil, nil, err
		}
		oauth.NewHandler(oidcClient, sessionStore, dirStore, cfg).RegisterRoutes(router)
	} else {
		// Missing credentials disable the login feature, not the server.
		logger.Error("oauth login disabled: SLACK_CLIENT_ID or SLACK_CLIENT_SECRET not set", nil)
	}

	interactionRouter := interaction.NewRouter()
	interaction.NewDirectoryHandlers(dirStore).Register(interactionRouter)
	interaction.NewHTTPHandler(interactionRouter).RegisterRoutes(router)

	events := newEventsHandler(runner)
	router.POST("/slack/events", events.handle)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// ----------------------------
	// Protected API Routes
	// ----------------------------

	authMiddleware := middleware.NewAuthMiddleware(sessionStore)

	api := router.Group("/api")
	api.Use(middleware.GinRequireAuth(authMiddleware))

	api.GET("/me", func(c *gin.Context) {
		sess, ok := middleware.SessionFromContext(c.Request.Context())
		if !ok {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.JSON(200, gin.H{
			"member_id":   sess.MemberID,
			"external_id": sess.ExternalID,
			"org":         sess.OrgSlug,
		})
	})

	admin := router.Group("/admin")
	admin.Use(middleware.GinRequireAuth(authMiddleware))

	admin.POST("/sync/:org", func(c *gin.Context) {
		out := runner.Run(c.Request.Context(), c.Param("org"))
		c.JSON(syncStatus(out), out)
	})

	// ----------------------------
	// Scheduled sync
	// ----------------------------

	runner.StartCron(ctx, cfg.SyncInterval)

	// ----------------------------
	// Cleanup
	// ----------------------------

	return router, func() error {
		return infra.DB.Close()
	}, nil
}

// syncStatus maps an outcome to the admin endpoint's HTTP status. The
// body carries the structured diagnostics either way.
func syncStatus(out syncer.Outcome) int {
	if out.OK() {
		return http.StatusOK
	}
	if out.Failure.Code == syncer.FailureInProgress {
		return http.StatusConflict
	}
	return http.StatusBadGateway
}

func seedOrganizations(ctx context.Context, store directory.Store, slugs []string) {
	for _, slug := range slugs {
		if _, err := store.EnsureOrganization(ctx, slug); err != nil {
			logger.Error("failed to seed organization", map[string]any{
				"org":   slug,
				"error": err.Error(),
			})
		}
	}
}
