package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraudscore/configs"
	"github.com/enterprise/fraudscore/internal/analytics"
	"github.com/enterprise/fraudscore/internal/auth"
	"github.com/enterprise/fraudscore/internal/backtest"
	"github.com/enterprise/fraudscore/internal/behavior"
	"github.com/enterprise/fraudscore/internal/coordinator"
	"github.com/enterprise/fraudscore/internal/decision"
	"github.com/enterprise/fraudscore/internal/experiment"
	"github.com/enterprise/fraudscore/internal/feedback"
	"github.com/enterprise/fraudscore/internal/mlmodel"
	"github.com/enterprise/fraudscore/internal/queue"
	"github.com/enterprise/fraudscore/internal/review"
	"github.com/enterprise/fraudscore/internal/rules"
	"github.com/enterprise/fraudscore/internal/services"
	"github.com/enterprise/fraudscore/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg := configs.Load()
	setupLogging(cfg.Server.Environment)

	log.Info().
		Str("environment", cfg.Server.Environment).
		Str("port", cfg.Server.Port).
		Msg("starting fraud scoring API server")

	db, err := store.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	auditStream, err := queue.NewAuditStreamClient(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to audit stream")
	}
	defer auditStream.Close()

	aggQueue, err := queue.NewAggregationQueue(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to aggregation queue")
	}
	defer aggQueue.Close()

	cacheClient, err := queue.NewCacheClient(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to cache")
	}
	defer cacheClient.Close()

	postgresStore := store.NewPostgresStore(db)

	ruleCfg := rules.Config{
		MaxTransactionAmount:   cfg.Fraud.MaxTransactionAmount,
		MaxTransactionsPerHour: cfg.Fraud.MaxTransactionsPerHour,
		MaxTransactionsPerDay:  cfg.Fraud.MaxTransactionsPerDay,
	}
	ruleEngine := rules.New(ruleCfg)
	modelScorer := mlmodel.NewNetworkScorer(cfg.ML.ModelPath)
	decider := decision.New()
	applier := feedback.New(postgresStore)

	aggregator := behavior.New(postgresStore)

	// In-process dispatch is the default aggregation scheduler. Deployments
	// that scale cmd/worker independently can swap this for aggQueue, which
	// implements the same coordinator.AggregationScheduler interface.
	dispatcher := coordinator.NewChannelDispatcher(aggregator, cfg.Worker.Concurrency)
	defer dispatcher.Stop()

	coord := coordinator.New(postgresStore, ruleEngine, modelScorer, decider, applier, dispatcher)

	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiration)
	passwordHasher := auth.NewPasswordHasher(auth.PasswordPolicy{
		BcryptCost: cfg.Auth.BcryptCost,
		MinLength:  cfg.Auth.MinPasswordLength,
	})
	authService := services.NewAuthService(postgresStore, jwtManager, passwordHasher)
	reviewService := review.New(postgresStore)
	analyticsService := analytics.New(db, cacheClient)
	backtestService := backtest.New(postgresStore, ruleEngine, modelScorer, decider)
	experimentManager := experiment.NewManager()

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(loggingMiddleware())
	router.Use(corsMiddleware())

	rateLimiter := NewRateLimiter(100, time.Minute)
	router.Use(rateLimitMiddleware(rateLimiter))

	setupRoutes(router, jwtManager, authService, coord, reviewService, analyticsService, backtestService, experimentManager, auditStream, aggQueue)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}

func setupLogging(env string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func setupRoutes(
	router *gin.Engine,
	jwtManager *auth.JWTManager,
	authService *services.AuthService,
	coord *coordinator.Coordinator,
	reviewService *review.Service,
	analyticsService *analytics.Service,
	backtestService *backtest.Service,
	experimentManager *experiment.Manager,
	auditStream *queue.AuditStreamClient,
	aggQueue *queue.AggregationQueue,
) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	v1 := router.Group("/api/v1")

	authRoutes := v1.Group("/auth")
	{
		authRoutes.POST("/register", registerHandler(authService))
		authRoutes.POST("/login", loginHandler(authService))
		authRoutes.POST("/refresh", refreshTokenHandler(authService))
	}

	protected := v1.Group("")
	protected.Use(auth.AuthMiddleware(jwtManager))

	txRoutes := protected.Group("/transactions")
	{
		txRoutes.POST("", processTransactionHandler(coord))
		txRoutes.POST("/verify-qr", verifyQRTransactionHandler(coord))
	}

	alertRoutes := protected.Group("/alerts")
	{
		alertRoutes.GET("/pending", pendingAlertsHandler(reviewService))
		alertRoutes.GET("/user/:user_id", userAlertsHandler(reviewService))
		alertRoutes.POST("/:id/review", reviewAlertHandler(reviewService))
	}

	analyticsRoutes := protected.Group("/analytics")
	{
		analyticsRoutes.GET("/summary", dailySummaryHandler(analyticsService))
		analyticsRoutes.GET("/summary/range", summaryRangeHandler(analyticsService))
		analyticsRoutes.GET("/user/:user_id/risk", userRiskProfileHandler(analyticsService))
		analyticsRoutes.GET("/severity", severityDistributionHandler(analyticsService))
		analyticsRoutes.GET("/rules/top", topRulesHandler(analyticsService))
		analyticsRoutes.GET("/volume/hourly", hourlyVolumeHandler(analyticsService))
	}

	metricsRoutes := protected.Group("/metrics")
	{
		metricsRoutes.GET("/system", systemMetricsHandler(analyticsService, auditStream))
	}

	backtestRoutes := protected.Group("/backtest")
	{
		backtestRoutes.POST("/run", runBacktestHandler(backtestService))
	}

	experimentRoutes := protected.Group("/experiments")
	{
		experimentRoutes.POST("", createExperimentHandler(experimentManager))
		experimentRoutes.GET("", listExperimentsHandler(experimentManager))
		experimentRoutes.GET("/:id", getExperimentHandler(experimentManager))
		experimentRoutes.POST("/:id/start", startExperimentHandler(experimentManager))
		experimentRoutes.POST("/:id/stop", stopExperimentHandler(experimentManager))
		experimentRoutes.POST("/:id/pause", pauseExperimentHandler(experimentManager))
		experimentRoutes.GET("/:id/results", getExperimentResultsHandler(experimentManager))
		experimentRoutes.GET("/:id/significance", getExperimentSignificanceHandler(experimentManager))
		experimentRoutes.DELETE("/:id", deleteExperimentHandler(experimentManager))
	}
}

// Middleware

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = fmt.Sprintf("%d", time.Now().UnixNano())
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		log.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", latency).
			Str("request_id", c.GetString("request_id")).
			Str("client_ip", c.ClientIP()).
			Msg("request completed")
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RateLimiter is a per-IP token bucket limiter.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int
	window   time.Duration
}

type visitor struct {
	tokens   int
	lastSeen time.Time
}

// NewRateLimiter creates a rate limiter allowing `rate` requests per `window`.
func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
	}
	go rl.cleanup()
	return rl
}

func (rl *RateLimiter) cleanup() {
	for {
		time.Sleep(time.Minute)
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastSeen) > rl.window*2 {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// Allow reports whether ip has remaining budget this window.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	now := time.Now()

	if !exists {
		rl.visitors[ip] = &visitor{tokens: rl.rate - 1, lastSeen: now}
		return true
	}

	elapsed := now.Sub(v.lastSeen)
	refill := int(elapsed / (rl.window / time.Duration(rl.rate)))
	v.tokens += refill
	if v.tokens > rl.rate {
		v.tokens = rl.rate
	}
	v.lastSeen = now

	if v.tokens > 0 {
		v.tokens--
		return true
	}

	return false
}

func rateLimitMiddleware(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !limiter.Allow(ip) {
			c.Header("Retry-After", "60")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": 60,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// Auth handlers

func registerHandler(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resp, err := authService.Register(c.Request.Context(), &req)
		if err != nil {
			status := http.StatusInternalServerError
			if err == services.ErrWeakPassword || err == services.ErrEmailTaken {
				status = http.StatusBadRequest
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, resp)
	}
}

func loginHandler(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resp, err := authService.Login(c.Request.Context(), &req)
		if err != nil {
			status := http.StatusInternalServerError
			switch err {
			case services.ErrInvalidCredentials:
				status = http.StatusUnauthorized
			case services.ErrAccountLocked:
				status = http.StatusForbidden
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

func refreshTokenHandler(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if len(token) > len(auth.BearerPrefix) {
			token = token[len(auth.BearerPrefix):]
		}

		resp, err := authService.RefreshToken(c.Request.Context(), token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

// Transaction handlers

func processTransactionHandler(coord *coordinator.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req coordinator.TransactionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resp, err := coord.ProcessTransaction(c.Request.Context(), req)
		if err != nil {
			status := http.StatusInternalServerError
			if err == coordinator.ErrValidation {
				status = http.StatusBadRequest
			} else if err == coordinator.ErrUserNotFound {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

func verifyQRTransactionHandler(coord *coordinator.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			UserID   string `json:"user_id" binding:"required"`
			QRCodeID string `json:"qr_code_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		userID, err := uuid.Parse(req.UserID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
			return
		}

		resp, err := coord.VerifyQRTransaction(c.Request.Context(), userID, req.QRCodeID)
		if err != nil {
			status := http.StatusInternalServerError
			if err == coordinator.ErrUserNotFound {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

// Alert review handlers

func pendingAlertsHandler(reviewService *review.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := getIntParam(c, "limit", 50)

		alerts, err := reviewService.Pending(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"alerts": alerts})
	}
}

func userAlertsHandler(reviewService *review.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := uuid.Parse(c.Param("user_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
			return
		}
		limit := getIntParam(c, "limit", 50)

		alerts, err := reviewService.ForUser(c.Request.Context(), userID, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"alerts": alerts})
	}
}

func reviewAlertHandler(reviewService *review.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		alertID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert id"})
			return
		}

		var req struct {
			ReviewedBy     string `json:"reviewed_by" binding:"required"`
			ConfirmedFraud bool   `json:"confirmed_fraud"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		alert, err := reviewService.Review(c.Request.Context(), alertID, review.ReviewDecision{
			ReviewedBy:     req.ReviewedBy,
			ConfirmedFraud: req.ConfirmedFraud,
		})
		if err != nil {
			status := http.StatusInternalServerError
			if err == review.ErrAlertNotFound {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, alert)
	}
}

// Analytics handlers

func dailySummaryHandler(analyticsService *analytics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		date := parseDateQuery(c, "date")

		summary, err := analyticsService.GetDailySummary(c.Request.Context(), date)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, summary)
	}
}

func summaryRangeHandler(analyticsService *analytics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := parseDateQuery(c, "start")
		end := parseDateQuery(c, "end")

		summaries, err := analyticsService.SummaryRange(c.Request.Context(), start, end)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"summaries": summaries})
	}
}

func userRiskProfileHandler(analyticsService *analytics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := uuid.Parse(c.Param("user_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
			return
		}

		profile, err := analyticsService.GetUserRiskProfile(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, profile)
	}
}

func severityDistributionHandler(analyticsService *analytics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		days := getIntParam(c, "days", 7)

		distribution, err := analyticsService.GetSeverityDistribution(c.Request.Context(), days)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, distribution)
	}
}

func topRulesHandler(analyticsService *analytics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		days := getIntParam(c, "days", 7)
		limit := getIntParam(c, "limit", 10)

		rules, err := analyticsService.GetTopTriggeredRules(c.Request.Context(), days, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"rules": rules})
	}
}

func hourlyVolumeHandler(analyticsService *analytics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		date := parseDateQuery(c, "date")

		volumes, err := analyticsService.GetHourlyVolume(c.Request.Context(), date)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"volumes": volumes})
	}
}

func systemMetricsHandler(analyticsService *analytics.Service, auditStream *queue.AuditStreamClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics := analyticsService.GetSystemMetrics(c.Request.Context(), auditStream)
		c.JSON(http.StatusOK, metrics)
	}
}

// Helpers

func getIntParam(c *gin.Context, key string, defaultValue int) int {
	if val := c.Query(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil && result > 0 {
			return result
		}
	}
	return defaultValue
}

func parseDateQuery(c *gin.Context, key string) time.Time {
	dateStr := c.Query(key)
	if dateStr == "" {
		return time.Now()
	}
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return time.Now()
	}
	return date
}

// Backtest handler

func runBacktestHandler(backtestService *backtest.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req backtest.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if req.StartDate.IsZero() {
			req.StartDate = time.Now().AddDate(0, 0, -30)
		}
		if req.EndDate.IsZero() {
			req.EndDate = time.Now()
		}

		result, err := backtestService.Run(c.Request.Context(), req)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// Experiment handlers

func createExperimentHandler(manager *experiment.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Name         string   `json:"name" binding:"required"`
			Description  string   `json:"description"`
			ControlRules []string `json:"control_rules"`
			TestRules    []string `json:"test_rules"`
			TrafficSplit float64  `json:"traffic_split" binding:"required,min=0,max=1"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		exp := &experiment.Experiment{
			Name:         req.Name,
			Description:  req.Description,
			ControlRules: req.ControlRules,
			TestRules:    req.TestRules,
			TrafficSplit: req.TrafficSplit,
		}

		if err := manager.Create(exp); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, exp)
	}
}

func listExperimentsHandler(manager *experiment.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"experiments": manager.All()})
	}
}

func getExperimentHandler(manager *experiment.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		exp, err := manager.Get(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, exp)
	}
}

func startExperimentHandler(manager *experiment.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := manager.Start(id); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		exp, _ := manager.Get(id)
		c.JSON(http.StatusOK, gin.H{"message": "experiment started", "experiment": exp})
	}
}

func stopExperimentHandler(manager *experiment.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := manager.Stop(id); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		exp, _ := manager.Get(id)
		c.JSON(http.StatusOK, gin.H{"message": "experiment stopped", "experiment": exp})
	}
}

func pauseExperimentHandler(manager *experiment.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := manager.Pause(id); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		exp, _ := manager.Get(id)
		c.JSON(http.StatusOK, gin.H{"message": "experiment paused", "experiment": exp})
	}
}

func getExperimentResultsHandler(manager *experiment.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		results, err := manager.Results(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, results)
	}
}

func getExperimentSignificanceHandler(manager *experiment.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		significance, err := manager.Significance(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, significance)
	}
}

func deleteExperimentHandler(manager *experiment.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := manager.Delete(c.Param("id")); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "experiment deleted"})
	}
}
