package httpserver

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/numguess/internal/config"
	"github.com/robalobadob/numguess/internal/daily"
	"github.com/robalobadob/numguess/internal/db"
	"github.com/robalobadob/numguess/internal/game"
	"github.com/robalobadob/numguess/internal/store"
)

func testConfig() config.Config {
	return config.Config{
		JWTSecret:        "test_secret",
		JWTExpiresDays:   1,
		CookieName:       "numguess_token",
		ClientOrigin:     "http://localhost:5173",
		DailySalt:        "test_salt",
		AllowFixedSecret: true,
	}
}

type testEnv struct {
	url string
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	sqlDB, err := db.Open(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(sqlDB))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return sqlDB
}

func newTestEnv(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()
	return serveTestEnv(t, cfg, openTestDB(t))
}

// serveTestEnv starts a server with a fresh session store on an existing DB,
// which is what a process restart looks like.
func serveTestEnv(t *testing.T, cfg config.Config, sqlDB *sql.DB) *testEnv {
	t.Helper()
	ts := httptest.NewServer(New(cfg, store.NewMemoryStore(), sqlDB).Router())
	t.Cleanup(ts.Close)
	return &testEnv{url: ts.URL}
}

func (e *testEnv) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar, Timeout: 5 * time.Second}
}

// call sends body as JSON and decodes the response into out (when non-nil).
func (e *testEnv) call(t *testing.T, c *http.Client, method, path string, body, out any) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.url+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (e *testEnv) newGame(t *testing.T, c *http.Client, secret string) newGameRes {
	t.Helper()
	var res newGameRes
	require.Equal(t, http.StatusOK, e.call(t, c, http.MethodPost, "/game/new", map[string]any{"secret": secret}, &res))
	require.NotEmpty(t, res.GameID)
	return res
}

func (e *testEnv) guess(t *testing.T, c *http.Client, id, guess string) (int, game.Result, errorRes) {
	t.Helper()
	var raw json.RawMessage
	code := e.call(t, c, http.MethodPost, "/game/guess", guessReq{GameID: id, Guess: guess}, &raw)
	var res game.Result
	var er errorRes
	if code == http.StatusOK {
		require.NoError(t, json.Unmarshal(raw, &res))
	} else {
		require.NoError(t, json.Unmarshal(raw, &er))
	}
	return code, res, er
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t, testConfig())
	var out map[string]bool
	assert.Equal(t, http.StatusOK, e.call(t, e.client(t), http.MethodGet, "/health", nil, &out))
	assert.True(t, out["ok"])
}

func TestNewGameRejectsBadDigits(t *testing.T) {
	e := newTestEnv(t, testConfig())
	c := e.client(t)

	bodies := []map[string]any{
		{}, {"digits": nil}, {"digits": 0}, {"digits": 11}, {"digits": -3},
		{"digits": 3.5}, {"digits": "3"}, {"digits": true},
	}
	for _, body := range bodies {
		var er errorRes
		assert.Equal(t, http.StatusBadRequest, e.call(t, c, http.MethodPost, "/game/new", body, &er), body)
		assert.Equal(t, "invalid_configuration", er.Error, body)
	}

	var er errorRes
	assert.Equal(t, http.StatusBadRequest, e.call(t, c, http.MethodPost, "/game/new", map[string]any{"secret": "112"}, &er))
	assert.Equal(t, "invalid_configuration", er.Error)
}

func TestNewGameRandomSecret(t *testing.T) {
	e := newTestEnv(t, testConfig())
	c := e.client(t)

	var res newGameRes
	require.Equal(t, http.StatusOK, e.call(t, c, http.MethodPost, "/game/new", map[string]any{"digits": 6}, &res))
	assert.Equal(t, 6, res.Digits)
	assert.Equal(t, 30, res.MaxAttempts)

	var snap game.Snapshot
	require.Equal(t, http.StatusOK, e.call(t, c, http.MethodGet, "/game/"+res.GameID, nil, &snap))
	assert.Equal(t, game.PhasePlaying, snap.Phase)
	assert.Empty(t, snap.Secret)
}

func TestFixedSecretDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.AllowFixedSecret = false
	e := newTestEnv(t, cfg)

	var er errorRes
	assert.Equal(t, http.StatusForbidden, e.call(t, e.client(t), http.MethodPost, "/game/new", map[string]any{"secret": "192"}, &er))
	assert.Equal(t, "fixed_secret_disabled", er.Error)
}

func TestGuessFlowToWin(t *testing.T) {
	e := newTestEnv(t, testConfig())
	c := e.client(t)
	g := e.newGame(t, c, "192")
	assert.Equal(t, 15, g.MaxAttempts)

	code, _, er := e.guess(t, c, g.GameID, "12")
	require.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_guess_length", er.Error)

	var snap game.Snapshot
	require.Equal(t, http.StatusOK, e.call(t, c, http.MethodGet, "/game/"+g.GameID, nil, &snap))
	assert.Equal(t, 0, snap.AttemptsUsed)

	code, res, _ := e.guess(t, c, g.GameID, "219")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, game.Result{Outcome: game.OutcomeContinue, FullHits: 0, PartialHits: 3, AttemptsUsed: 1, MaxAttempts: 15}, res)

	_, res, _ = e.guess(t, c, g.GameID, "123")
	assert.Equal(t, 1, res.FullHits)
	assert.Equal(t, 1, res.PartialHits)

	_, res, _ = e.guess(t, c, g.GameID, "192")
	assert.Equal(t, game.OutcomeWin, res.Outcome)
	assert.Equal(t, 3, res.AttemptsUsed)
	assert.Equal(t, "192", res.Secret)

	code, _, er = e.guess(t, c, g.GameID, "192")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "no_active_game", er.Error)

	require.Equal(t, http.StatusOK, e.call(t, c, http.MethodGet, "/game/"+g.GameID, nil, &snap))
	assert.Equal(t, game.PhaseWon, snap.Phase)
	assert.Equal(t, "192", snap.Secret)
	require.Len(t, snap.History, 3)
	assert.Equal(t, "219", snap.History[0].Guess)
}

func TestGuessFlowToLose(t *testing.T) {
	e := newTestEnv(t, testConfig())
	c := e.client(t)
	g := e.newGame(t, c, "7")

	var res game.Result
	for i := 0; i < 5; i++ {
		var code int
		code, res, _ = e.guess(t, c, g.GameID, "1")
		require.Equal(t, http.StatusOK, code)
	}
	assert.Equal(t, game.OutcomeLose, res.Outcome)
	assert.Equal(t, "7", res.Secret)
}

func TestGuessUnknownGame(t *testing.T) {
	e := newTestEnv(t, testConfig())
	code, _, er := e.guess(t, e.client(t), "does-not-exist", "1")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", er.Error)
}

func TestAuthStatsAndHistory(t *testing.T) {
	e := newTestEnv(t, testConfig())
	c := e.client(t)

	creds := credentialsReq{Username: "player_one", Password: "hunter2hunter2"}
	require.Equal(t, http.StatusOK, e.call(t, c, http.MethodPost, "/auth/signup", creds, nil))
	assert.Equal(t, http.StatusConflict, e.call(t, c, http.MethodPost, "/auth/signup", creds, nil))

	var me authUser
	require.Equal(t, http.StatusOK, e.call(t, c, http.MethodGet, "/auth/me", nil, &me))
	assert.Equal(t, "player_one", me.Username)

	g := e.newGame(t, c, "48")
	_, res, _ := e.guess(t, c, g.GameID, "48")
	require.Equal(t, game.OutcomeWin, res.Outcome)

	var stats map[string]any
	require.Equal(t, http.StatusOK, e.call(t, c, http.MethodGet, "/stats/me", nil, &stats))
	assert.EqualValues(t, 1, stats["gamesPlayed"])
	assert.EqualValues(t, 1, stats["wins"])
	assert.EqualValues(t, 1, stats["streak"])

	var rows []gameRow
	require.Equal(t, http.StatusOK, e.call(t, c, http.MethodGet, "/games/mine", nil, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "won", rows[0].Status)
	assert.Equal(t, 1, rows[0].Attempts)
	assert.Equal(t, 2, rows[0].Digits)
	assert.Equal(t, "standard", rows[0].Mode)

	require.Equal(t, http.StatusOK, e.call(t, c, http.MethodPost, "/auth/logout", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, e.call(t, c, http.MethodGet, "/auth/me", nil, nil))

	bad := credentialsReq{Username: "player_one", Password: "wrong-password"}
	assert.Equal(t, http.StatusUnauthorized, e.call(t, c, http.MethodPost, "/auth/login", bad, nil))
	require.Equal(t, http.StatusOK, e.call(t, c, http.MethodPost, "/auth/login", creds, nil))
	assert.Equal(t, http.StatusOK, e.call(t, c, http.MethodGet, "/auth/me", nil, nil))
}

func TestDailyChallenge(t *testing.T) {
	e := newTestEnv(t, testConfig())
	c := e.client(t)

	var nr dailyNewRes
	require.Equal(t, http.StatusOK, e.call(t, c, http.MethodPost, "/daily/new", dailyNewReq{Digits: 3}, &nr))
	require.NotEmpty(t, nr.GameID)
	assert.False(t, nr.Played)
	assert.Equal(t, 15, nr.MaxAttempts)

	var again dailyNewRes
	require.Equal(t, http.StatusOK, e.call(t, c, http.MethodPost, "/daily/new", dailyNewReq{Digits: 3}, &again))
	assert.Equal(t, nr.GameID, again.GameID, "same player resumes the same daily game")

	var er errorRes
	assert.Equal(t, http.StatusConflict, e.call(t, e.client(t), http.MethodPost, "/daily/guess", guessReq{GameID: nr.GameID, Guess: "123"}, &er))
	assert.Equal(t, "no_session", er.Error)

	pool := []byte("0123456789")
	daily.Shuffler(time.Now(), "test_salt", 3)(pool)
	secret := string(pool[:3])

	var res game.Result
	require.Equal(t, http.StatusOK, e.call(t, c, http.MethodPost, "/daily/guess", guessReq{GameID: nr.GameID, Guess: secret}, &res))
	assert.Equal(t, game.OutcomeWin, res.Outcome)

	var lb lbRes
	require.Equal(t, http.StatusOK, e.call(t, c, http.MethodGet, "/daily/leaderboard?digits=3", nil, &lb))
	require.Len(t, lb.Top, 1)
	assert.Equal(t, 1, lb.Top[0].Attempts)

	var done dailyNewRes
	require.Equal(t, http.StatusOK, e.call(t, c, http.MethodPost, "/daily/new", dailyNewReq{Digits: 3}, &done))
	assert.True(t, done.Played)

	assert.Equal(t, http.StatusBadRequest, e.call(t, c, http.MethodPost, "/daily/new", dailyNewReq{Digits: 12}, nil))
}

func TestMetricsExposed(t *testing.T) {
	e := newTestEnv(t, testConfig())
	c := e.client(t)
	e.newGame(t, c, "5")

	resp, err := c.Get(e.url + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "numguess_games_started_total"))
}

func TestGuessOnAnotherPlayersGame(t *testing.T) {
	e := newTestEnv(t, testConfig())
	alice, bob := e.client(t), e.client(t)
	require.Equal(t, http.StatusOK, e.call(t, bob, http.MethodPost, "/auth/signup",
		credentialsReq{Username: "bob", Password: "bobpassword"}, nil))

	g := e.newGame(t, alice, "48")
	code, _, er := e.guess(t, bob, g.GameID, "48")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", er.Error)

	var stats map[string]any
	require.Equal(t, http.StatusOK, e.call(t, bob, http.MethodGet, "/stats/me", nil, &stats))
	assert.EqualValues(t, 0, stats["gamesPlayed"])

	code, res, _ := e.guess(t, alice, g.GameID, "48")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, game.OutcomeWin, res.Outcome)
}

func TestSignupUniqueViolation(t *testing.T) {
	sqlDB := openTestDB(t)
	s := New(testConfig(), store.NewMemoryStore(), sqlDB)
	ctx := context.Background()

	_, err := s.createUser(ctx, "carol", "carolpassword")
	require.NoError(t, err)

	// a racing insert that slipped past the lookup
	_, err = sqlDB.Exec(`INSERT INTO users (id, username, password_hash, created_at) VALUES ('x','CAROL','h','2026-01-01T00:00:00Z')`)
	require.Error(t, err)
	assert.True(t, isUniqueViolation(err))
	assert.False(t, isUniqueViolation(sql.ErrNoRows))

	_, err = s.createUser(ctx, "Carol", "carolpassword")
	assert.ErrorIs(t, err, errUsernameTaken)

	_, err = s.createUser(ctx, "x", "carolpassword")
	assert.ErrorIs(t, err, errInvalidSignup)
}

func TestSignupDatabaseErrorIsNotInvalidInput(t *testing.T) {
	sqlDB := openTestDB(t)
	s := New(testConfig(), store.NewMemoryStore(), sqlDB)
	require.NoError(t, sqlDB.Close())

	_, err := s.createUser(context.Background(), "dave", "davepassword")
	require.Error(t, err)
	assert.NotErrorIs(t, err, errUsernameTaken)
	assert.NotErrorIs(t, err, errInvalidSignup)
}

func TestDailyLossSurvivesRestart(t *testing.T) {
	sqlDB := openTestDB(t)
	e := serveTestEnv(t, testConfig(), sqlDB)
	c := e.client(t)

	var nr dailyNewRes
	require.Equal(t, http.StatusOK, e.call(t, c, http.MethodPost, "/daily/new", dailyNewReq{Digits: 1}, &nr))
	require.Equal(t, 5, nr.MaxAttempts)

	pool := []byte("0123456789")
	daily.Shuffler(time.Now(), "test_salt", 1)(pool)
	wrong := string(pool[1:2])

	var res game.Result
	for i := 0; i < nr.MaxAttempts; i++ {
		require.Equal(t, http.StatusOK, e.call(t, c, http.MethodPost, "/daily/guess", guessReq{GameID: nr.GameID, Guess: wrong}, &res))
	}
	require.Equal(t, game.OutcomeLose, res.Outcome)

	restarted := serveTestEnv(t, testConfig(), sqlDB)
	var again dailyNewRes
	require.Equal(t, http.StatusOK, restarted.call(t, c, http.MethodPost, "/daily/new", dailyNewReq{Digits: 1}, &again))
	assert.True(t, again.Played)
	assert.Empty(t, again.GameID)

	var lb lbRes
	require.Equal(t, http.StatusOK, restarted.call(t, c, http.MethodGet, "/daily/leaderboard?digits=1", nil, &lb))
	assert.Empty(t, lb.Top)
}
