package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/nikhilbhatia/typerush/backend/internal/auth"
	"github.com/nikhilbhatia/typerush/backend/internal/db"
	"github.com/nikhilbhatia/typerush/backend/internal/race"
	"github.com/nikhilbhatia/typerush/backend/internal/words"
	"github.com/nikhilbhatia/typerush/backend/internal/ws"
)

const (
	defaultHistoryLimit    = 20
	maxHistoryLimit        = 100
	defaultLeaderboardSize = 25
	maxLeaderboardSize     = 100
	defaultWordCount       = 50
	maxWordCount           = 500
)

type API struct {
	hub      *ws.Hub
	registry *race.Registry
	database *db.Database
	tokens   *auth.Service
}

func New(hub *ws.Hub, registry *race.Registry, database *db.Database, tokens *auth.Service) *API {
	return &API{
		hub:      hub,
		registry: registry,
		database: database,
		tokens:   tokens,
	}
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"active_rooms":   a.registry.Count(),
		"active_clients": a.hub.GetClientCount(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	if dbStats, err := a.database.GetStats(); err == nil {
		stats["total_users"] = dbStats["user_count"]
		stats["total_results"] = dbStats["result_count"]
	}

	jsonResponse(w, http.StatusOK, stats)
}

// Auth handlers

type authResponse struct {
	Token string   `json:"token"`
	User  *db.User `json:"user"`
}

func (a *API) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		errorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := auth.ValidateRegister(req); err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Printf("Error hashing password: %v", err)
		errorResponse(w, http.StatusInternalServerError, "internal error")
		return
	}

	user, err := a.database.CreateUser(req.Username, req.Email, hash)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			errorResponse(w, http.StatusConflict, "username or email already taken")
			return
		}
		log.Printf("Error creating user: %v", err)
		errorResponse(w, http.StatusInternalServerError, "internal error")
		return
	}

	token, err := a.tokens.GenerateToken(user.ID, user.Username)
	if err != nil {
		log.Printf("Error generating token: %v", err)
		errorResponse(w, http.StatusInternalServerError, "internal error")
		return
	}

	jsonResponse(w, http.StatusCreated, authResponse{Token: token, User: user})
}

func (a *API) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		errorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := auth.ValidateLogin(req); err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := a.database.GetUserByUsername(req.Username)
	if err != nil {
		log.Printf("Error looking up user: %v", err)
		errorResponse(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		errorResponse(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := a.tokens.GenerateToken(user.ID, user.Username)
	if err != nil {
		log.Printf("Error generating token: %v", err)
		errorResponse(w, http.StatusInternalServerError, "internal error")
		return
	}

	jsonResponse(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (a *API) MeHandler(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	user, err := a.database.GetUserByID(claims.UserID)
	if err != nil {
		log.Printf("Error loading user %s: %v", claims.UserID, err)
		errorResponse(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		errorResponse(w, http.StatusNotFound, "user not found")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]interface{}{"user": user})
}

// Test result handlers

type resultRequest struct {
	WPM             float64 `json:"wpm" validate:"required,gt=0,lte=500"`
	RawWPM          float64 `json:"raw_wpm" validate:"gte=0,lte=500"`
	Accuracy        float64 `json:"accuracy" validate:"gte=0,lte=100"`
	DurationSeconds int     `json:"duration_seconds" validate:"required,gt=0,lte=3600"`
	WordCount       int     `json:"word_count" validate:"gte=0"`
}

func (a *API) ResultsRouter(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.submitResult(w, r)
	case http.MethodGet:
		a.listResults(w, r)
	default:
		errorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (a *API) submitResult(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req resultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := auth.ValidateStruct(req); err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	saved, err := a.database.SaveResult(&db.TestResult{
		UserID:          claims.UserID,
		WPM:             req.WPM,
		RawWPM:          req.RawWPM,
		Accuracy:        req.Accuracy,
		DurationSeconds: req.DurationSeconds,
		WordCount:       req.WordCount,
	})
	if err != nil {
		log.Printf("Error saving result for %s: %v", claims.UserID, err)
		errorResponse(w, http.StatusInternalServerError, "internal error")
		return
	}

	jsonResponse(w, http.StatusCreated, saved)
}

func (a *API) listResults(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	limit := queryInt(r, "limit", defaultHistoryLimit, maxHistoryLimit)
	offset := queryInt(r, "offset", 0, 1<<30)

	results, err := a.database.ListResults(claims.UserID, limit, offset)
	if err != nil {
		log.Printf("Error listing results for %s: %v", claims.UserID, err)
		errorResponse(w, http.StatusInternalServerError, "internal error")
		return
	}

	total, err := a.database.GetResultCount(claims.UserID)
	if err != nil {
		log.Printf("Error counting results for %s: %v", claims.UserID, err)
		errorResponse(w, http.StatusInternalServerError, "internal error")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

// Leaderboard

type rankedEntry struct {
	Rank int `json:"rank"`
	db.LeaderboardEntry
}

func (a *API) LeaderboardHandler(w http.ResponseWriter, r *http.Request) {
	duration := queryInt(r, "duration", 60, 3600)
	limit := queryInt(r, "limit", defaultLeaderboardSize, maxLeaderboardSize)

	entries, err := a.database.Leaderboard(duration, limit)
	if err != nil {
		log.Printf("Error loading leaderboard: %v", err)
		errorResponse(w, http.StatusInternalServerError, "internal error")
		return
	}

	ranked := lo.Map(entries, func(e db.LeaderboardEntry, i int) rankedEntry {
		return rankedEntry{Rank: i + 1, LeaderboardEntry: e}
	})

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"duration_seconds": duration,
		"entries":          ranked,
	})
}

// Words

func (a *API) WordsHandler(w http.ResponseWriter, r *http.Request) {
	count := queryInt(r, "count", defaultWordCount, maxWordCount)
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"words": words.Random(count),
	})
}

func queryInt(r *http.Request, key string, def, max int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
