// internal/httpserver/routes_daily.go
//
// HTTP routes for the "Daily Challenge" mode.
// Exposes three endpoints under /daily:
//   - POST /daily/new         → start (or resume) today's game for a digit count
//   - POST /daily/guess       → submit a guess for a daily game
//   - GET  /daily/leaderboard → top 20 results for a date and digit count
//
// Every player gets the same secret for a given day and digit count
// (daily.Shuffler). Each player can finish it once; wins and losses are
// persisted, and only wins rank.

package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/numguess/internal/daily"
	"github.com/robalobadob/numguess/internal/game"
	"github.com/robalobadob/numguess/internal/metrics"
	"github.com/robalobadob/numguess/internal/store"
)

const defaultDailyDigits = 4

// dailyServer wraps dependencies for /daily endpoints.
type dailyServer struct {
	srv      *Server
	results  *daily.Store
	games    store.Store              // daily engines, kept apart from /game sessions
	salt     string
	now      func() time.Time
	sessions map[string]*dailySession // keyed by GameID
	byPlayer map[string]string        // userID|date|digits → GameID
	mu       sync.Mutex               // guards sessions and byPlayer
}

// dailySession holds the metadata of an in-progress daily game.
type dailySession struct {
	GameID string
	UserID string
	Date   string
	Digits int
	Start  time.Time
}

// mountDaily registers all /daily routes.
func (s *Server) mountDaily(r chi.Router) {
	dd := &dailyServer{
		srv:      s,
		results:  daily.NewStore(s.db),
		games:    store.NewMemoryStore(),
		salt:     s.cfg.DailySalt,
		now:      time.Now,
		sessions: make(map[string]*dailySession),
		byPlayer: make(map[string]string),
	}
	r.Route("/daily", func(r chi.Router) {
		r.Post("/new", dd.handleNew)
		r.Post("/guess", dd.handleGuess)
		r.Get("/leaderboard", dd.handleLeaderboard)
	})
}

// playerID returns the authenticated user ID if logged in,
// otherwise the anonymous cookie ID.
func (d *dailyServer) playerID(w http.ResponseWriter, r *http.Request) string {
	if me := currentUser(r); me != nil {
		return me.ID
	}
	return d.srv.ensureAnonID(w, r)
}

// -----------------------------------------------------------------------------
// /daily/new

type dailyNewReq struct {
	Digits int `json:"digits"`
}

type dailyNewRes struct {
	GameID      string `json:"gameId"`
	Date        string `json:"date"`
	Digits      int    `json:"digits"`
	MaxAttempts int    `json:"maxAttempts"`
	Played      bool   `json:"played"`
}

// handleNew creates or reuses today's daily game for the requested digit count.
//   - If the player already has a result row → Played=true.
//   - Otherwise create/reuse an in-memory session and return its GameID.
func (d *dailyServer) handleNew(w http.ResponseWriter, r *http.Request) {
	req := dailyNewReq{Digits: defaultDailyDigits}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad_json", "")
		return
	}

	uid := d.playerID(w, r)
	now := d.now()
	date := daily.DateKey(now)

	g := game.New(daily.Shuffler(now, d.salt, req.Digits))
	snap, err := g.Start(req.Digits)
	if err != nil {
		writeGameError(w, err)
		return
	}

	if played, err := d.results.AlreadyPlayed(r.Context(), uid, date, req.Digits); err != nil {
		log.Warn().Err(err).Msg("daily already played")
	} else if played {
		_ = json.NewEncoder(w).Encode(dailyNewRes{Date: date, Digits: req.Digits, MaxAttempts: snap.MaxAttempts, Played: true})
		return
	}

	key := uid + "|" + date + "|" + strconv.Itoa(req.Digits)
	d.mu.Lock()
	d.pruneLocked(r, date)
	if id, ok := d.byPlayer[key]; ok {
		d.mu.Unlock()
		played := false
		_ = d.games.WithGame(r.Context(), id, func(g *game.Game) error {
			played = g.Phase.Finished()
			return nil
		})
		_ = json.NewEncoder(w).Encode(dailyNewRes{GameID: id, Date: date, Digits: req.Digits, MaxAttempts: snap.MaxAttempts, Played: played})
		return
	}
	d.sessions[g.ID] = &dailySession{GameID: g.ID, UserID: uid, Date: date, Digits: req.Digits, Start: now}
	d.byPlayer[key] = g.ID
	d.mu.Unlock()

	if err := d.games.Save(r.Context(), g); err != nil {
		writeError(w, http.StatusInternalServerError, "save_failed", "")
		return
	}
	d.srv.insertGameRow(w, r, g.ID, "daily", snap)
	metrics.GameStarted("daily", strconv.Itoa(req.Digits))

	_ = json.NewEncoder(w).Encode(dailyNewRes{GameID: g.ID, Date: date, Digits: req.Digits, MaxAttempts: snap.MaxAttempts})
}

// pruneLocked drops sessions from previous days. Caller holds d.mu.
func (d *dailyServer) pruneLocked(r *http.Request, today string) {
	for id, sess := range d.sessions {
		if sess.Date == today {
			continue
		}
		delete(d.sessions, id)
		delete(d.byPlayer, sess.UserID+"|"+sess.Date+"|"+strconv.Itoa(sess.Digits))
		_ = d.games.Delete(r.Context(), id)
	}
}

// -----------------------------------------------------------------------------
// /daily/guess

// handleGuess applies a guess to the caller's daily game.
// Finished games are written to daily_results; the response is a game.Result.
func (d *dailyServer) handleGuess(w http.ResponseWriter, r *http.Request) {
	var req guessReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "")
		return
	}
	uid := d.playerID(w, r)

	d.mu.Lock()
	sess, ok := d.sessions[req.GameID]
	d.mu.Unlock()
	if !ok || sess.UserID != uid {
		writeError(w, http.StatusConflict, "no_session", "")
		return
	}

	var res game.Result
	err := d.games.WithGame(r.Context(), req.GameID, func(g *game.Game) error {
		var err error
		res, err = g.Guess(req.Guess)
		return err
	})
	if err != nil {
		writeGameError(w, err)
		return
	}
	metrics.GuessScored(string(res.Outcome))
	d.srv.recordGuess(w, r, req.GameID, res)

	if res.Outcome != game.OutcomeContinue {
		elapsed := int(d.now().Sub(sess.Start).Milliseconds())
		if err := d.results.InsertResult(r.Context(), daily.Result{
			UserID: uid, Date: sess.Date, Digits: sess.Digits, Attempts: res.AttemptsUsed, ElapsedMs: elapsed,
			Won: res.Outcome == game.OutcomeWin,
		}); err != nil {
			log.Warn().Err(err).Str("gameId", req.GameID).Msg("insert daily result")
		}
	}
	_ = json.NewEncoder(w).Encode(res)
}

// -----------------------------------------------------------------------------
// /daily/leaderboard

// lbRes is returned by /daily/leaderboard.
type lbRes struct {
	Date   string        `json:"date"`
	Digits int           `json:"digits"`
	Top    []daily.LBRow `json:"top"`
}

// handleLeaderboard returns the leaderboard for ?date= (default today)
// and ?digits= (default 4).
func (d *dailyServer) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = daily.DateKey(d.now())
	}
	digits := defaultDailyDigits
	if raw := r.URL.Query().Get("digits"); raw != "" {
		n, err := game.ParseDigits(raw)
		if err != nil {
			writeGameError(w, err)
			return
		}
		digits = n
	}
	rows, err := d.results.Leaderboard(r.Context(), date, digits, 20)
	if err != nil {
		log.Error().Err(err).Msg("daily leaderboard")
		writeError(w, http.StatusInternalServerError, "db_error", "")
		return
	}
	_ = json.NewEncoder(w).Encode(lbRes{Date: date, Digits: digits, Top: rows})
}
