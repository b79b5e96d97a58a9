package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"hodlhunt/internal/auth"
	"hodlhunt/internal/config"
	"hodlhunt/internal/eventlog"
	"hodlhunt/internal/game"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type contextKey string

const userContextKey contextKey = "user"

type UserContext struct {
	UserID   string
	Username string
	Token    string
}

type Server struct {
	cfg     config.APIConfig
	log     *slog.Logger
	auth    *auth.Issuer
	game    *game.Service
	feed    http.Handler
	archive *eventlog.Archive
	mux     *chi.Mux
}

// New wires the router. feed serves the websocket event stream and archive
// backs GET /v1/events; either may be nil.
func New(cfg config.APIConfig, logger *slog.Logger, issuer *auth.Issuer, gameSvc *game.Service, feed http.Handler, archive *eventlog.Archive) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		log:     logger,
		auth:    issuer,
		game:    gameSvc,
		feed:    feed,
		archive: archive,
		mux:     chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		if s.feed != nil {
			r.Get("/events/ws", s.feed.ServeHTTP)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Post("/auth/signup", s.handleSignup)
			r.Post("/auth/login", s.handleLogin)

			r.Group(func(r chi.Router) {
				r.Use(s.authMiddleware)
				r.Get("/ocean", s.handleOcean)
				r.Post("/ocean/init", s.handleOceanInit)
				r.Post("/ocean/daily", s.handleOceanDaily)
				r.Get("/ocean/quote", s.handleQuote)

				r.Get("/fish", s.handleMyFish)
				r.Post("/fish", s.handleCreateFish)
				r.Get("/fish/{id}", s.handleFishInfo)
				r.Get("/fish/{id}/value", s.handleFishValue)
				r.Post("/fish/{id}/feed", s.handleFeed)
				r.Post("/fish/{id}/hunt", s.handleHunt)
				r.Post("/fish/{id}/marks", s.handleMark)
				r.Post("/fish/{id}/exit", s.handleExit)
				r.Post("/fish/{id}/resurrect", s.handleResurrect)
				r.Post("/fish/{id}/transfer", s.handleTransfer)

				r.Get("/leaderboard", s.handleLeaderboard)
				r.Get("/wallet", s.handleWallet)
				r.Get("/events", s.handleEvents)
				r.Post("/sync/replay", s.handleSyncReplay)
			})
		})
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		user, err := s.auth.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, UserContext{
			UserID:   user.ID,
			Username: user.Username,
			Token:    token,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(ctx context.Context) (UserContext, error) {
	v := ctx.Value(userContextKey)
	user, ok := v.(UserContext)
	if !ok || user.UserID == "" {
		return UserContext{}, errors.New("missing auth context")
	}
	return user, nil
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	player, err := s.game.RegisterPlayer(r.Context(), in.Username, hash)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	session, err := s.auth.Issue(player)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	player, err := s.game.PlayerByUsername(r.Context(), in.Username)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := auth.CheckPassword(player.PasswordHash, in.Password); err != nil {
		writeDomainError(w, err)
		return
	}
	session, err := s.auth.Issue(player)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleOcean(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Ocean(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleOceanInit lets the player whose username is the configured admin id
// create the ocean.
func (s *Server) handleOceanInit(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.game.InitializeOcean(r.Context(), user.Username)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleOceanDaily(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.UpdateOceanDaily(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	value, err := strconv.ParseUint(r.URL.Query().Get("value"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "value must be a non-negative integer")
		return
	}
	shares, err := s.game.QuoteNewShares(r.Context(), value)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"value": value, "shares": shares})
}

func (s *Server) handleMyFish(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.game.ListFish(r.Context(), user.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fish": out})
}

func (s *Server) handleCreateFish(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Name    string `json:"name"`
		Deposit uint64 `json:"deposit"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.CreateFish(r.Context(), game.CreateFishInput{
		Owner:          user.UserID,
		Name:           in.Name,
		Deposit:        in.Deposit,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleFishInfo(w http.ResponseWriter, r *http.Request) {
	id, ok := fishID(w, r)
	if !ok {
		return
	}
	out, err := s.game.FishInfo(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleFishValue(w http.ResponseWriter, r *http.Request) {
	id, ok := fishID(w, r)
	if !ok {
		return
	}
	value, err := s.game.ShareValue(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fish_id": id, "value": value})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	id, ok := fishID(w, r)
	if !ok {
		return
	}
	var in struct {
		Amount uint64 `json:"amount"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.FeedFish(r.Context(), game.FeedFishInput{
		Owner:          user.UserID,
		FishID:         id,
		Amount:         in.Amount,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHunt(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	id, ok := fishID(w, r)
	if !ok {
		return
	}
	var in struct {
		PreyID            uint64 `json:"prey_id"`
		ExpectedPreyShare uint64 `json:"expected_prey_share"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.HuntFish(r.Context(), game.HuntFishInput{
		Owner:             user.UserID,
		HunterID:          id,
		PreyID:            in.PreyID,
		ExpectedPreyShare: in.ExpectedPreyShare,
		IdempotencyKey:    idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMark(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	id, ok := fishID(w, r)
	if !ok {
		return
	}
	var in struct {
		PreyID uint64 `json:"prey_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.PlaceHuntingMark(r.Context(), game.PlaceMarkInput{
		Owner:          user.UserID,
		HunterID:       id,
		PreyID:         in.PreyID,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleExit(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	id, ok := fishID(w, r)
	if !ok {
		return
	}
	out, err := s.game.ExitGame(r.Context(), game.ExitGameInput{
		Owner:          user.UserID,
		FishID:         id,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleResurrect(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	id, ok := fishID(w, r)
	if !ok {
		return
	}
	var in struct {
		Name    string `json:"name"`
		Deposit uint64 `json:"deposit"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.ResurrectFish(r.Context(), game.ResurrectFishInput{
		Owner:          user.UserID,
		OldFishID:      id,
		Name:           in.Name,
		Deposit:        in.Deposit,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// handleTransfer takes the recipient by username and resolves it to a
// player id.
func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	id, ok := fishID(w, r)
	if !ok {
		return
	}
	var in struct {
		NewOwner string `json:"new_owner"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recipient, err := s.game.PlayerByUsername(r.Context(), in.NewOwner)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("player %q not found", strings.TrimSpace(in.NewOwner)))
		return
	}
	out, err := s.game.TransferFish(r.Context(), game.TransferFishInput{
		Owner:          user.UserID,
		FishID:         id,
		NewOwner:       recipient.ID,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := s.game.Leaderboard(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": out})
}

// handleWallet reports the caller's balance. The admin also sees the
// operator fee balance.
func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	balance, err := s.game.Wallet(r.Context(), user.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := map[string]any{"player_id": user.UserID, "balance": balance}
	if admin := s.game.Admin(); admin != "" && user.Username == admin {
		fees, err := s.game.Wallet(r.Context(), admin)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		out["operator_balance"] = fees
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "event archive is not configured")
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	fishID, _ := strconv.ParseUint(q.Get("fish_id"), 10, 64)
	out, err := s.archive.Query(r.Context(), eventlog.Filter{
		Kind:   strings.TrimSpace(q.Get("kind")),
		FishID: fishID,
		Owner:  strings.TrimSpace(q.Get("owner")),
		Limit:  limit,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

type replayCommand struct {
	Method         string         `json:"method"`
	Path           string         `json:"path"`
	Body           map[string]any `json:"body,omitempty"`
	IdempotencyKey string         `json:"idempotency_key"`
}

// handleSyncReplay checks a queued offline batch before the client replays
// it. Each command is accepted only when it targets a mutating fish route
// and carries an idempotency key.
func (s *Server) handleSyncReplay(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Commands []replayCommand `json:"commands"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	results := make([]map[string]any, 0, len(in.Commands))
	for _, cmd := range in.Commands {
		status := "accepted"
		reason := ""
		switch {
		case !strings.EqualFold(cmd.Method, http.MethodPost):
			status, reason = "rejected", "only POST commands are replayable"
		case !replayablePath(cmd.Path):
			status, reason = "rejected", "path is not a replayable fish action"
		case strings.TrimSpace(cmd.IdempotencyKey) == "":
			status, reason = "rejected", "idempotency key is required"
		}
		res := map[string]any{
			"method":          strings.ToUpper(cmd.Method),
			"path":            cmd.Path,
			"idempotency_key": cmd.IdempotencyKey,
			"status":          status,
			"player_id":       user.UserID,
		}
		if reason != "" {
			res["reason"] = reason
		}
		results = append(results, res)
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func replayablePath(path string) bool {
	if path == "/v1/fish" {
		return true
	}
	rest, ok := strings.CutPrefix(path, "/v1/fish/")
	if !ok {
		return false
	}
	id, action, ok := strings.Cut(rest, "/")
	if !ok {
		return false
	}
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return false
	}
	switch action {
	case "feed", "hunt", "marks", "exit", "resurrect", "transfer":
		return true
	}
	return false
}

func fishID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "invalid fish id")
		return 0, false
	}
	return id, true
}

func writeDomainError(w http.ResponseWriter, err error) {
	code := game.ErrorCode(err)
	switch {
	case errors.Is(err, game.ErrFishNotFound), errors.Is(err, game.ErrOceanNotInitialized):
		writeCodedError(w, http.StatusNotFound, code, err.Error())
	case errors.Is(err, game.ErrDuplicateIdempotency), errors.Is(err, game.ErrTxConflict),
		errors.Is(err, game.ErrOceanExists), errors.Is(err, game.ErrNameAlreadyTaken),
		errors.Is(err, game.ErrPlayerExists):
		writeCodedError(w, http.StatusConflict, code, err.Error())
	case errors.Is(err, game.ErrNotFishOwner), errors.Is(err, game.ErrUnauthorizedAdmin):
		writeCodedError(w, http.StatusForbidden, code, err.Error())
	case errors.Is(err, game.ErrInvalidCredentials):
		writeCodedError(w, http.StatusUnauthorized, code, err.Error())
	case code != "Internal":
		writeCodedError(w, http.StatusUnprocessableEntity, code, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeCodedError(w, http.StatusServiceUnavailable, code, err.Error())
	default:
		writeCodedError(w, http.StatusInternalServerError, code, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func writeCodedError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message), "code": code})
}

func idempotencyKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		return key
	}
	return uuid.NewString()
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
