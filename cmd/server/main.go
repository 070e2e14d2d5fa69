package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/nikhilbhatia/typerush/backend/internal/api"
	"github.com/nikhilbhatia/typerush/backend/internal/auth"
	"github.com/nikhilbhatia/typerush/backend/internal/config"
	"github.com/nikhilbhatia/typerush/backend/internal/db"
	"github.com/nikhilbhatia/typerush/backend/internal/race"
	"github.com/nikhilbhatia/typerush/backend/internal/ws"
)

func main() {
	// Optional .env for local development
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.JWTSecret == "dev-only-secret-change-me" {
		log.Println("WARNING: running with the default JWT secret, set JWT_SECRET in production")
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	tokens := auth.NewService(cfg.JWTSecret, cfg.TokenTTL)

	hub := ws.NewHub()
	go hub.Run()

	registry := race.NewRegistry(hub, cfg.GracePeriod, cfg.RoomTTL)

	sweeper := race.NewSweeper(registry, cfg.SweepInterval)
	sweeper.Start()

	apiHandler := api.New(hub, registry, database, tokens)

	// WebSocket endpoint (token-authenticated)
	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(hub, registry, tokens, w, r)
	})

	http.HandleFunc("/health", apiHandler.HealthHandler)
	http.HandleFunc("/api/stats", apiHandler.StatsHandler)
	http.HandleFunc("/api/auth/register", apiHandler.RegisterHandler)
	http.HandleFunc("/api/auth/login", apiHandler.LoginHandler)
	http.HandleFunc("/api/me", apiHandler.RequireAuth(apiHandler.MeHandler))
	http.HandleFunc("/api/results", apiHandler.RequireAuth(apiHandler.ResultsRouter))
	http.HandleFunc("/api/leaderboard", apiHandler.LeaderboardHandler)
	http.HandleFunc("/api/words", apiHandler.WordsHandler)

	// Apply CORS middleware
	handler := corsMiddleware(http.DefaultServeMux)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		sweeper.Stop()
		database.Close()
		os.Exit(0)
	}()

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("TypeRush server starting on %s", addr)
	log.Println("Endpoints:")
	log.Println("  - WebSocket:   /ws?token={jwt}")
	log.Println("  - Health:      GET  /health")
	log.Println("  - Stats:       GET  /api/stats")
	log.Println("  - Register:    POST /api/auth/register")
	log.Println("  - Login:       POST /api/auth/login")
	log.Println("  - Me:          GET  /api/me")
	log.Println("  - Results:     GET/POST /api/results")
	log.Println("  - Leaderboard: GET  /api/leaderboard?duration=60")
	log.Println("  - Words:       GET  /api/words?count=50")

	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatal("ListenAndServe: ", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
