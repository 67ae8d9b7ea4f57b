// internal/httpserver/server.go
//
// HTTP server wiring for the numguess backend.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health", "/metrics".
//   - Game endpoints (optional auth): POST /game/new, POST /game/guess, GET /game/{id}.
//   - Daily Challenge endpoints (optional auth): mounted under /daily.
//   - Auth + profile/stat endpoints: /auth/*, /stats/me, /games/mine (see auth.go).
//
// Notes:
//   - Engines live in the session store; the DB only keeps game rows
//     (owner, digits, attempts, status), never the secret.
//   - Engine errors map to JSON bodies: invalid_configuration and
//     invalid_guess_length are 400, no_active_game is 409.

package httpserver

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/numguess/internal/config"
	"github.com/robalobadob/numguess/internal/game"
	"github.com/robalobadob/numguess/internal/metrics"
	"github.com/robalobadob/numguess/internal/store"
)

// Server bundles router, session store, DB handle and config.
type Server struct {
	r     *chi.Mux
	store store.Store
	db    *sql.DB
	cfg   config.Config
}

// New constructs a Server, installs middleware, and registers routes.
func New(cfg config.Config, st store.Store, db *sql.DB) *Server {
	s := &Server{r: chi.NewRouter(), store: st, db: db, cfg: cfg}

	// --- middleware ---
	s.r.Use(chimw.RequestID)                 // add X-Request-ID
	s.r.Use(chimw.RealIP)                    // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(chimw.Recoverer)                 // recover from panics
	s.r.Use(chimw.Timeout(10 * time.Second)) // bound handler time
	s.r.Use(jsonContentType)                 // default JSON responses
	s.r.Use(s.cors)                          // credentials-friendly CORS

	// --- diagnostics ---
	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"service":"numguess","endpoints":["/health","POST /game/new","POST /game/guess","GET /game/{id}","/daily/*","/auth/*"]}`))
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	s.r.Handle("/metrics", metrics.Handler())

	// Game endpoints — OPTIONAL AUTH (guests can play)
	s.r.Group(func(r chi.Router) {
		r.Use(s.withOptionalAuth())
		r.Post("/game/new", s.handleNewGame)
		r.Post("/game/guess", s.handleGuess)
		r.Get("/game/{id}", s.handleGetGame)
		s.mountDaily(r)
	})

	s.mountAuthRoutes()

	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", r.URL.Path)
	})

	return s
}

// Start begins serving HTTP on addr.
func (s *Server) Start(addr string) error { return http.ListenAndServe(addr, s.r) }

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// cors enables credentialed CORS for the configured client origin.
func (s *Server) cors(next http.Handler) http.Handler {
	origin := s.cfg.ClientOrigin
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ------------------------------ errors -------------------------------------

type errorRes struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorRes{Error: code, Message: msg})
}

// writeGameError maps engine and store errors onto HTTP responses.
func writeGameError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrInvalidConfiguration):
		writeError(w, http.StatusBadRequest, "invalid_configuration", err.Error())
	case errors.Is(err, game.ErrInvalidGuessLength):
		metrics.GuessRejected("length")
		writeError(w, http.StatusBadRequest, "invalid_guess_length", err.Error())
	case errors.Is(err, game.ErrNoActiveGame):
		metrics.GuessRejected("inactive")
		writeError(w, http.StatusConflict, "no_active_game", err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "")
	default:
		log.Error().Err(err).Msg("game request failed")
		writeError(w, http.StatusInternalServerError, "internal", "")
	}
}

// ------------------------------ GAME ---------------------------------------

// newGameReq/Res payloads for POST /game/new.
// Digits stays raw so that every malformed count goes through game.ParseDigits.
type newGameReq struct {
	Digits json.RawMessage `json:"digits"`
	Secret string          `json:"secret"` // fixed secret; only with ALLOW_FIXED_SECRET
}
type newGameRes struct {
	GameID      string `json:"gameId"`
	Digits      int    `json:"digits"`
	MaxAttempts int    `json:"maxAttempts"`
}

// handleNewGame creates a new engine, starts it, and persists an owner row
// (either user_id or anonymous_id) for history/stats.
func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	var req newGameReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "")
		return
	}

	g := game.New(nil)
	var snap game.Snapshot
	var err error
	switch {
	case req.Secret != "":
		if !s.cfg.AllowFixedSecret {
			writeError(w, http.StatusForbidden, "fixed_secret_disabled", "")
			return
		}
		snap, err = g.StartWithSecret(req.Secret)
	case len(req.Digits) == 0 || string(req.Digits) == "null":
		err = fmt.Errorf("%w: digits is required", game.ErrInvalidConfiguration)
	default:
		var digits int
		if digits, err = game.ParseDigits(string(req.Digits)); err == nil {
			snap, err = g.Start(digits)
		}
	}
	if err != nil {
		writeGameError(w, err)
		return
	}

	if err := s.store.Save(r.Context(), g); err != nil {
		log.Error().Err(err).Msg("save game")
		writeError(w, http.StatusInternalServerError, "save_failed", "")
		return
	}
	s.insertGameRow(w, r, g.ID, "standard", snap)
	metrics.GameStarted("standard", strconv.Itoa(snap.Digits))
	log.Debug().Str("gameId", g.ID).Int("digits", snap.Digits).Msg("game started")

	_ = json.NewEncoder(w).Encode(newGameRes{GameID: g.ID, Digits: snap.Digits, MaxAttempts: snap.MaxAttempts})
}

// guessReq is the payload for POST /game/guess; the response is a game.Result.
type guessReq struct {
	GameID string `json:"gameId"`
	Guess  string `json:"guess"`
}

// handleGuess applies a guess to a stored engine, persists progress,
// and (if finished) updates user stats in a best-effort transaction.
func (s *Server) handleGuess(w http.ResponseWriter, r *http.Request) {
	var req guessReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "")
		return
	}
	if ok, err := s.ownsGame(w, r, req.GameID); err != nil {
		log.Error().Err(err).Str("gameId", req.GameID).Msg("game owner lookup")
		writeError(w, http.StatusInternalServerError, "db_error", "")
		return
	} else if !ok {
		writeError(w, http.StatusNotFound, "not_found", "")
		return
	}

	var res game.Result
	err := s.store.WithGame(r.Context(), req.GameID, func(g *game.Game) error {
		var err error
		res, err = g.Guess(req.Guess)
		return err
	})
	if err != nil {
		writeGameError(w, err)
		return
	}
	metrics.GuessScored(string(res.Outcome))
	s.recordGuess(w, r, req.GameID, res)

	_ = json.NewEncoder(w).Encode(res)
}

// handleGetGame returns the display data for a game.
func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	var snap game.Snapshot
	err := s.store.WithGame(r.Context(), chi.URLParam(r, "id"), func(g *game.Game) error {
		snap = g.Snapshot()
		return nil
	})
	if err != nil {
		writeGameError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(snap)
}

// ---------------------------- persistence ----------------------------------

// insertGameRow records a started game against the current user or anon ID.
func (s *Server) insertGameRow(w http.ResponseWriter, r *http.Request, id, mode string, snap game.Snapshot) {
	now := time.Now().UTC().Format(time.RFC3339)
	ownerCol, ownerArg := s.owner(w, r)
	_, err := s.db.ExecContext(r.Context(),
		`INSERT INTO games (id, `+ownerCol+`, mode, digits, max_attempts, attempts, status, started_at)
		 VALUES (?,?,?,?,?,0,?,?)`,
		id, ownerArg, mode, snap.Digits, snap.MaxAttempts, string(game.PhasePlaying), now)
	if err != nil {
		log.Warn().Err(err).Str("gameId", id).Msg("insert game row")
	}
}

// recordGuess bumps the attempt counter and, on a finished game, closes the
// row and updates user stats. Failures are logged, never surfaced.
func (s *Server) recordGuess(w http.ResponseWriter, r *http.Request, id string, res game.Result) {
	ownerCol, ownerArg := s.owner(w, r)
	ownerClause := ownerCol + `=?`

	tx, err := s.db.BeginTx(r.Context(), nil)
	if err != nil {
		log.Warn().Err(err).Msg("begin tx")
		return
	}
	defer func() { _ = tx.Rollback() }()

	upd, err := tx.Exec(`UPDATE games SET attempts=? WHERE id=? AND `+ownerClause, res.AttemptsUsed, id, ownerArg)
	if err != nil {
		log.Warn().Err(err).Msg("update attempts")
		return
	}
	if n, err := upd.RowsAffected(); err != nil || n == 0 {
		log.Warn().Err(err).Str("gameId", id).Msg("no game row for owner")
		return
	}

	if res.Outcome != game.OutcomeContinue {
		status := game.PhaseLost
		if res.Outcome == game.OutcomeWin {
			status = game.PhaseWon
		}
		if _, err := tx.Exec(`UPDATE games SET status=?, finished_at=? WHERE id=? AND `+ownerClause,
			string(status), time.Now().UTC().Format(time.RFC3339), id, ownerArg); err != nil {
			log.Warn().Err(err).Msg("finish game")
		}
		if me := currentUser(r); me != nil {
			if err := bumpStats(tx, me.ID, res.Outcome == game.OutcomeWin); err != nil {
				log.Warn().Err(err).Str("user", me.ID).Msg("bump stats")
			}
		}
		log.Info().Str("gameId", id).Str("outcome", string(res.Outcome)).Int("attempts", res.AttemptsUsed).Msg("game finished")
	}
	if err := tx.Commit(); err != nil {
		log.Warn().Err(err).Msg("commit guess")
	}
}

// ownsGame reports whether the caller owns the game row for id.
func (s *Server) ownsGame(w http.ResponseWriter, r *http.Request, id string) (bool, error) {
	ownerCol, ownerArg := s.owner(w, r)
	var one int
	err := s.db.QueryRowContext(r.Context(), `SELECT 1 FROM games WHERE id=? AND `+ownerCol+`=?`, id, ownerArg).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// owner returns the owning column and value for the request:
// user_id when authenticated, anonymous_id (cookie) otherwise.
func (s *Server) owner(w http.ResponseWriter, r *http.Request) (string, any) {
	if me := currentUser(r); me != nil {
		return "user_id", me.ID
	}
	return "anonymous_id", s.ensureAnonID(w, r)
}

// bumpStats increments games played; updates wins and streak based on result (within tx).
func bumpStats(tx *sql.Tx, userID string, won bool) error {
	var gp, wins, streak int
	row := tx.QueryRow(`SELECT games_played, wins, streak FROM users WHERE id=?`, userID)
	if err := row.Scan(&gp, &wins, &streak); err != nil {
		return err
	}
	gp++
	if won {
		wins++
		streak++
	} else {
		streak = 0
	}
	_, err := tx.Exec(`UPDATE users SET games_played=?, wins=?, streak=? WHERE id=?`, gp, wins, streak, userID)
	return err
}
