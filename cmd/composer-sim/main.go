package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ComposeResult is what the simulated user did with an open composer.
type ComposeResult string

const (
	ResultSent      ComposeResult = "sent"
	ResultDismissed ComposeResult = "dismissed"
)

// ComposeRequest is a request to present a prepared message in the composer.
type ComposeRequest struct {
	Phone string `json:"phone" binding:"required"`
	Text  string `json:"text" binding:"required"`
}

// ComposeResponse reports the user's decision.
type ComposeResponse struct {
	Result     ComposeResult `json:"result"`
	ComposedAt time.Time     `json:"composed_at"`
	DeviceID   string        `json:"device_id"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`
	SendRate  float64   `json:"send_rate"`
}

// SimulatedUser stands in for the person holding the phone: they look at
// each prepared message for a while and then either hit send or back out.
type SimulatedUser struct {
	sendRate float64
	minDelay time.Duration
	maxDelay time.Duration
	deviceID string
	rng      *rand.Rand
}

func NewSimulatedUser(sendRate float64, minDelay, maxDelay time.Duration) *SimulatedUser {
	return &SimulatedUser{
		sendRate: sendRate,
		minDelay: minDelay,
		maxDelay: maxDelay,
		deviceID: "SIM_DEVICE_" + uuid.New().String()[:8],
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// deliberate simulates the user reading the message in the open composer.
func (u *SimulatedUser) deliberate(req *ComposeRequest) *ComposeResponse {
	delay := u.randomDelay()
	time.Sleep(delay)

	response := &ComposeResponse{
		ComposedAt: time.Now(),
		DeviceID:   u.deviceID,
	}

	if u.shouldSend() {
		response.Result = ResultSent
		log.Info().
			Str("phone", req.Phone).
			Dur("deliberation", delay).
			Msg("User confirmed the send")
	} else {
		response.Result = ResultDismissed
		log.Warn().
			Str("phone", req.Phone).
			Dur("deliberation", delay).
			Msg("User dismissed the composer")
	}

	return response
}

func (u *SimulatedUser) randomDelay() time.Duration {
	delta := u.maxDelay - u.minDelay
	if delta <= 0 {
		return u.minDelay
	}
	return u.minDelay + time.Duration(u.rng.Int63n(int64(delta)))
}

func (u *SimulatedUser) shouldSend() bool {
	return u.rng.Float64() < u.sendRate
}

// Handler struct holds the simulated user and routes
type Handler struct {
	user *SimulatedUser
}

func NewHandler(user *SimulatedUser) *Handler {
	return &Handler{user: user}
}

// Compose opens the simulated composer and blocks until the user decides.
func (h *Handler) Compose(c *gin.Context) {
	var req ComposeRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	log.Info().
		Str("phone", req.Phone).
		Int("text_len", len(req.Text)).
		Msg("Composer opened")

	response := h.user.deliberate(&req)
	c.JSON(http.StatusOK, response)
}

// HealthCheck handles health check requests
func (h *Handler) HealthCheck(c *gin.Context) {
	// Simulate the device occasionally being unreachable
	if h.user.rng.Float64() < 0.02 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"error":  "Device temporarily unreachable",
		})
		return
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		DeviceID:  h.user.deviceID,
		Timestamp: time.Now(),
		SendRate:  h.user.sendRate,
	})
}

// UpdateConfig allows changing the simulated user's behavior at runtime
func (h *Handler) UpdateConfig(c *gin.Context) {
	var config struct {
		SendRate *float64 `json:"send_rate"`
	}

	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	if config.SendRate != nil {
		if *config.SendRate >= 0 && *config.SendRate <= 1.0 {
			h.user.sendRate = *config.SendRate
			log.Info().Float64("rate", *config.SendRate).Msg("Updated send rate")
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "Configuration updated",
		"send_rate": h.user.sendRate,
	})
}

// SetupRouter configures all routes
func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.Default()

	// Add request logging middleware
	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Msg("Request processed")
	})

	// API routes
	v1 := router.Group("/api/v1")
	{
		v1.POST("/compose", handler.Compose)
		v1.GET("/health", handler.HealthCheck)
		v1.PUT("/config", handler.UpdateConfig)
	}

	// Root health check
	router.GET("/health", handler.HealthCheck)

	return router
}

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Get configuration from environment
	port := getEnv("PORT", "9090")
	sendRate := getEnvFloat("SEND_RATE", 1)
	minDelay := getEnvDuration("MIN_DELAY", 500*time.Millisecond)
	maxDelay := getEnvDuration("MAX_DELAY", 3*time.Second)

	log.Info().
		Str("port", port).
		Float64("send_rate", sendRate).
		Dur("min_delay", minDelay).
		Dur("max_delay", maxDelay).
		Msg("Starting composer simulator")

	user := NewSimulatedUser(sendRate, minDelay, maxDelay)
	handler := NewHandler(user)
	router := SetupRouter(handler)

	// Setup HTTP server
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 6 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
