package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"trust-engine/internal/auth"
	"trust-engine/internal/classifier"
	"trust-engine/internal/config"
	"trust-engine/internal/database"
	"trust-engine/internal/handlers"
	"trust-engine/internal/jobs"
	"trust-engine/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize JWT
	auth.InitJWT(cfg.App.JWTSecret)

	// Connect to database
	if err := database.Connect(cfg.GetDSN()); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Select the classifier: remote service when configured, fail-open
	// null object otherwise.
	var textClassifier classifier.Classifier = classifier.Noop{}
	if cfg.Classifier.URL != "" {
		textClassifier = classifier.NewHTTPClassifier(
			cfg.Classifier.URL,
			cfg.Classifier.APIKey,
			cfg.Classifier.Timeout,
		)
		log.Printf("Using remote classifier at %s", cfg.Classifier.URL)
	} else {
		log.Println("No classifier configured, moderation runs rule-based only")
	}

	// Initialize services
	reputationService := services.NewReputationService(database.GetDB())
	moderationService := services.NewModerationService(database.GetDB(), textClassifier, cfg.Classifier.Timeout)
	fraudService := services.NewFraudService(database.GetDB())

	// Initialize handlers
	reputationHandler := handlers.NewReputationHandler(reputationService)
	moderationHandler := handlers.NewModerationHandler(moderationService)
	fraudHandler := handlers.NewFraudHandler(fraudService)
	insightsHandler := handlers.NewInsightsHandler(database.GetDB())

	// Start periodic reputation refresh job
	refreshJob := jobs.NewReputationRefreshJob(database.GetDB(), reputationService)
	refreshJob.Start(time.Duration(cfg.App.ReputationRefreshHours) * time.Hour)
	log.Println("Reputation refresh job started")

	// Set up Gin router
	router := gin.Default()

	// CORS middleware
	allowedOrigins := []string{
		"http://localhost:3000",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
	if frontendURL := os.Getenv("FRONTEND_URL"); frontendURL != "" {
		allowedOrigins = append(allowedOrigins, frontendURL)
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// API routes (protected)
	api := router.Group("/api")
	api.Use(auth.AuthMiddleware())
	{
		// Reputation endpoints
		reputation := api.Group("/reputation")
		{
			reputation.GET("/:userID", reputationHandler.GetReputation)
			reputation.POST("/:userID/recalculate", reputationHandler.Recalculate)
			reputation.GET("/:userID/posting-allowed", reputationHandler.PostingAllowed)
		}

		// Moderation endpoints
		api.POST("/moderation/check", moderationHandler.Check)
		api.POST("/moderation/logs/:id/appeal", moderationHandler.Appeal)

		// Fraud endpoints
		api.POST("/fraud/transactions", fraudHandler.ScoreTransaction)
	}

	// Reviewer routes (protected + reviewer only)
	review := router.Group("/api")
	review.Use(auth.AuthMiddleware())
	review.Use(auth.ReviewerMiddleware())
	{
		review.POST("/reputation/:userID/override", reputationHandler.Override)
		review.POST("/moderation/logs/:id/review", moderationHandler.Review)
		review.GET("/moderation/logs/pending", moderationHandler.Pending)
		review.POST("/fraud/alerts/:id/resolve", fraudHandler.ResolveAlert)
		review.GET("/fraud/alerts", fraudHandler.OpenAlerts)
		review.GET("/admin/stats", insightsHandler.Stats)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on port %s", cfg.Server.Port)
		log.Printf("Health check: http://localhost:%s/health", cfg.Server.Port)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with 5 second timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	refreshJob.Stop()
	log.Println("Server exited")
}
