package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	sessionevents "agentchat/core/internal/events"
	"agentchat/core/pkg/logger"
	"agentchat/core/pkg/tokens"
)

// ServerCmd represents the server command
var ServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the streaming API server",
	Long: `Start the streaming API server that provides HTTP endpoints and Server-Sent Events (SSE)
support for real-time session streaming, plus token budget utilities for chat backends.

The server provides:
- Session management endpoints (create, list, remove)
- Server-Sent Events (SSE) per-session streaming with heartbeats
- Event emission endpoint for producers
- Token estimation and history fitting endpoints

Examples:
  agentchat server                      # Start server with default settings
  agentchat server --port 8000          # Start on custom port
  agentchat server --cors-origins "*"   # Enable CORS for all origins`,
	Run: runServer,
}

// ServerConfig holds the HTTP and budget configuration.
type ServerConfig struct {
	Port        int      `json:"port"`
	Host        string   `json:"host"`
	CORSOrigins []string `json:"cors_origins"`

	MaxTokens      int `json:"max_tokens"`
	SafeLimit      int `json:"safe_limit"`
	ContextReserve int `json:"context_reserve"`

	SessionMaxAge time.Duration `json:"session_max_age"`
	SweepInterval time.Duration `json:"sweep_interval"`
}

// StreamingAPI wires the session bus and the token budget manager behind the
// HTTP surface.
type StreamingAPI struct {
	config ServerConfig

	bus    *sessionevents.SessionBus
	budget *tokens.Manager

	logger logger.Logger
}

func init() {
	ServerCmd.Flags().IntP("port", "p", 8000, "Server port")
	ServerCmd.Flags().StringP("host", "H", "0.0.0.0", "Server host")
	ServerCmd.Flags().StringSlice("cors-origins", []string{"*"}, "CORS allowed origins")

	ServerCmd.Flags().Int("max-tokens", tokens.DefaultMaxTokens, "Model context window size")
	ServerCmd.Flags().Int("safe-limit", tokens.DefaultSafeLimit, "Working token limit below the context window")
	ServerCmd.Flags().Int("context-reserve", tokens.DefaultContextReserve, "Tokens reserved for the model response")

	ServerCmd.Flags().Duration("session-max-age", 30*time.Minute, "Idle age after which sessions are reclaimed")
	ServerCmd.Flags().Duration("sweep-interval", 5*time.Minute, "How often stale sessions are swept")

	busDefaults := sessionevents.DefaultBusConfig()
	ServerCmd.Flags().Duration("heartbeat-interval", busDefaults.HeartbeatInterval, "Idle interval between SSE heartbeats")
	ServerCmd.Flags().Duration("detach-grace", busDefaults.DetachGrace, "How long a recently active session survives a disconnect")
	ServerCmd.Flags().Duration("recreate-grace", busDefaults.RecreateGrace, "Window in which emission recreates a removed session")

	viper.BindPFlag("port", ServerCmd.Flags().Lookup("port"))
	viper.BindPFlag("host", ServerCmd.Flags().Lookup("host"))
	viper.BindPFlag("cors-origins", ServerCmd.Flags().Lookup("cors-origins"))
	viper.BindPFlag("max-tokens", ServerCmd.Flags().Lookup("max-tokens"))
	viper.BindPFlag("safe-limit", ServerCmd.Flags().Lookup("safe-limit"))
	viper.BindPFlag("context-reserve", ServerCmd.Flags().Lookup("context-reserve"))
	viper.BindPFlag("session-max-age", ServerCmd.Flags().Lookup("session-max-age"))
	viper.BindPFlag("sweep-interval", ServerCmd.Flags().Lookup("sweep-interval"))
	viper.BindPFlag("heartbeat-interval", ServerCmd.Flags().Lookup("heartbeat-interval"))
	viper.BindPFlag("detach-grace", ServerCmd.Flags().Lookup("detach-grace"))
	viper.BindPFlag("recreate-grace", ServerCmd.Flags().Lookup("recreate-grace"))
}

func runServer(cmd *cobra.Command, args []string) {
	config := ServerConfig{
		Port:           viper.GetInt("port"),
		Host:           viper.GetString("host"),
		CORSOrigins:    viper.GetStringSlice("cors-origins"),
		MaxTokens:      viper.GetInt("max-tokens"),
		SafeLimit:      viper.GetInt("safe-limit"),
		ContextReserve: viper.GetInt("context-reserve"),
		SessionMaxAge:  viper.GetDuration("session-max-age"),
		SweepInterval:  viper.GetDuration("sweep-interval"),
	}

	// Load .env for deployment configuration, only once per process.
	if os.Getenv("AGENTCHAT_ENV_LOADED") == "" {
		if err := godotenv.Load(); err == nil {
			os.Setenv("AGENTCHAT_ENV_LOADED", "1")
			fmt.Println("[ENV] Loaded .env file")
		}
	}

	log := createServerLogger()

	budget := tokens.Budget{
		MaxTokens:      config.MaxTokens,
		SafeLimit:      config.SafeLimit,
		ContextReserve: config.ContextReserve,
	}
	manager, err := tokens.NewManager(budget, log)
	if err != nil {
		log.Errorf("Invalid token budget: %v", err)
		os.Exit(1)
	}

	busCfg := sessionevents.DefaultBusConfig()
	busCfg.HeartbeatInterval = viper.GetDuration("heartbeat-interval")
	busCfg.DetachGrace = viper.GetDuration("detach-grace")
	busCfg.RecreateGrace = viper.GetDuration("recreate-grace")
	bus := sessionevents.NewSessionBus(busCfg, log)

	api := &StreamingAPI{
		config: config,
		bus:    bus,
		budget: manager,
		logger: log,
	}

	router := mux.NewRouter()
	router.Use(api.corsMiddleware)

	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/health", api.handleHealth).Methods("GET")

	// Session management routes (from sessions.go)
	apiRouter.HandleFunc("/sessions", api.handleCreateSession).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/sessions", api.handleListSessions).Methods("GET")
	apiRouter.HandleFunc("/sessions/{session_id}", api.handleRemoveSession).Methods("DELETE")
	apiRouter.HandleFunc("/sessions/{session_id}/events", api.handleEmitEvent).Methods("POST", "OPTIONS")

	// SSE streaming route (from stream.go)
	apiRouter.HandleFunc("/stream/{session_id}", api.handleStreamSession).Methods("GET")

	// Token budget routes (from budget_routes.go)
	apiRouter.HandleFunc("/tokens/estimate", api.handleEstimateTokens).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/tokens/fit", api.handleFitHistory).Methods("POST", "OPTIONS")

	srv := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", config.Host, config.Port),
		ReadTimeout: time.Second * 30,
		// No WriteTimeout: SSE streams stay open until the client leaves.
		IdleTimeout: time.Second * 300,
		Handler:     router,
	}

	// Periodic stale-session sweep; the bus never sweeps on its own.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go api.runStaleSweeper(sweepCtx)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Server failed to start: %v", err)
			os.Exit(1)
		}
	}()

	fmt.Printf("Server started on %s:%d\n", config.Host, config.Port)
	fmt.Printf("Stream endpoint: http://%s:%d/api/stream/{session_id}\n", config.Host, config.Port)
	log.Infof("server listening on %s:%d (budget max=%d safe=%d reserve=%d)",
		config.Host, config.Port, config.MaxTokens, config.SafeLimit, config.ContextReserve)

	// Wait for interrupt signal to gracefully shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	fmt.Println("\nShutting down server...")
	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
		os.Exit(1)
	}

	fmt.Println("Server shutdown complete")
}

// runStaleSweeper reclaims idle sessions on a fixed interval until ctx ends.
func (api *StreamingAPI) runStaleSweeper(ctx context.Context) {
	ticker := time.NewTicker(api.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := api.bus.ReclaimStale(api.config.SessionMaxAge); removed > 0 {
				api.logger.Infof("stale sweep removed %d sessions", removed)
			}
		case <-ctx.Done():
			return
		}
	}
}

// CORS middleware
func (api *StreamingAPI) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		for _, allowed := range api.config.CORSOrigins {
			if allowed == "*" || allowed == origin {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				break
			}
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Session-ID")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Health check endpoint
func (api *StreamingAPI) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "healthy",
		"time":   time.Now(),
		"bus":    api.bus.Stats(),
		"budget": map[string]interface{}{
			"max_tokens":      api.config.MaxTokens,
			"safe_limit":      api.config.SafeLimit,
			"context_reserve": api.config.ContextReserve,
		},
	})
}

func (api *StreamingAPI) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		api.logger.Errorf("Failed to encode response: %v", err)
	}
}

func (api *StreamingAPI) writeError(w http.ResponseWriter, status int, message string) {
	api.writeJSON(w, status, map[string]string{"error": message})
}

func createServerLogger() logger.Logger {
	logFile := viper.GetString("log-file")
	level := viper.GetString("log-level")
	if level == "" {
		level = "info"
	}
	format := viper.GetString("log-format")
	if format == "" {
		format = "text"
	}

	log, err := logger.CreateLogger(logFile, level, format, logFile == "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		return logger.CreateDefaultLogger()
	}
	return log
}
