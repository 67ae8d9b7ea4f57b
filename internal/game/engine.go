// internal/game/engine.go
//
// Core engine for a single number-guessing session.
// Responsibilities:
//   - Start games with a chosen digit count (1–10) and a secret of distinct digits.
//   - Validate and apply guesses (length only; content is scored as-is).
//   - Score guesses as full hits (right digit, right place) and partial hits.
//   - Track state transitions: awaiting_digits → playing → won/lost.
//
// Notes:
//   - The secret is the head of a random permutation of 0–9, so it never
//     repeats a digit. The permutation source is pluggable (see Shuffler);
//     the daily challenge uses a deterministic one.
package game

import (
	"crypto/rand"
	"fmt"
	"math/big"
	mrand "math/rand/v2"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const allDigits = "0123456789"

// New constructs an engine awaiting a digit count.
// If shuffle is nil, secrets come from a crypto/rand shuffle.
func New(shuffle Shuffler) *Game {
	if shuffle == nil {
		shuffle = CryptoShuffle
	}
	return &Game{
		ID:      uuid.NewString(),
		Phase:   PhaseAwaitingDigits,
		History: []Attempt{},
		shuffle: shuffle,
	}
}

// ParseDigits converts raw digit-count input from a presentation layer.
// Blank, non-integer and out-of-range input all fail with ErrInvalidConfiguration.
func ParseDigits(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%w: digit count is required", ErrInvalidConfiguration)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrInvalidConfiguration, raw)
	}
	if err := validateDigits(n); err != nil {
		return 0, err
	}
	return n, nil
}

func validateDigits(n int) error {
	if n < MinDigits || n > MaxDigits {
		return fmt.Errorf("%w: digit count must be %d-%d, got %d", ErrInvalidConfiguration, MinDigits, MaxDigits, n)
	}
	return nil
}

// Start begins a new game with a fresh secret of the given length.
// On error the previous state is left untouched.
func (g *Game) Start(digits int) (Snapshot, error) {
	if err := validateDigits(digits); err != nil {
		return g.Snapshot(), err
	}
	pool := []byte(allDigits)
	g.shuffle(pool)
	g.reset(string(pool[:digits]))
	return g.Snapshot(), nil
}

// StartWithSecret begins a new game with a fixed secret.
// The secret must be 1–10 distinct ASCII digits.
func (g *Game) StartWithSecret(secret string) (Snapshot, error) {
	if err := validateDigits(len(secret)); err != nil {
		return g.Snapshot(), err
	}
	var seen [10]bool
	for i := 0; i < len(secret); i++ {
		c := secret[i]
		if c < '0' || c > '9' {
			return g.Snapshot(), fmt.Errorf("%w: secret must be digits only", ErrInvalidConfiguration)
		}
		if seen[c-'0'] {
			return g.Snapshot(), fmt.Errorf("%w: secret repeats digit %c", ErrInvalidConfiguration, c)
		}
		seen[c-'0'] = true
	}
	g.reset(secret)
	return g.Snapshot(), nil
}

func (g *Game) reset(secret string) {
	g.Secret = secret
	g.Digits = len(secret)
	g.MaxAttempts = g.Digits * AttemptsPerDigit
	g.History = []Attempt{}
	g.Phase = PhasePlaying
}

// Guess validates and scores a guess, mutating the game state.
//
// Validation rules:
//   - Game must be playing, otherwise ErrNoActiveGame.
//   - Guess must be exactly g.Digits characters, otherwise
//     ErrInvalidGuessLength and no attempt is consumed.
//
// State transitions:
//   - All positions are full hits → won.
//   - Else if the attempts used reach g.MaxAttempts → lost.
func (g *Game) Guess(guess string) (Result, error) {
	if g.Phase != PhasePlaying {
		return Result{}, ErrNoActiveGame
	}
	if n := utf8.RuneCountInString(guess); n != g.Digits {
		return Result{}, fmt.Errorf("%w: want %d characters, got %d", ErrInvalidGuessLength, g.Digits, n)
	}

	full, partial := Score(g.Secret, guess)
	g.History = append(g.History, Attempt{Guess: guess, FullHits: full, PartialHits: partial})

	res := Result{
		Outcome:      OutcomeContinue,
		FullHits:     full,
		PartialHits:  partial,
		AttemptsUsed: len(g.History),
		MaxAttempts:  g.MaxAttempts,
	}
	switch {
	case full == g.Digits:
		g.Phase = PhaseWon
		res.Outcome = OutcomeWin
		res.Secret = g.Secret
	case len(g.History) >= g.MaxAttempts:
		g.Phase = PhaseLost
		res.Outcome = OutcomeLose
		res.Secret = g.Secret
	}
	return res, nil
}

// AttemptsUsed is the number of accepted guesses in the current game.
func (g *Game) AttemptsUsed() int { return len(g.History) }

// Snapshot returns the current display data. History is copied.
func (g *Game) Snapshot() Snapshot {
	s := Snapshot{
		ID:           g.ID,
		Phase:        g.Phase,
		Digits:       g.Digits,
		MaxAttempts:  g.MaxAttempts,
		AttemptsUsed: len(g.History),
		History:      append([]Attempt{}, g.History...),
	}
	if g.Phase.Finished() {
		s.Secret = g.Secret
	}
	return s
}

// Score compares guess against secret.
//
//   - full:    positions where guess and secret hold the same character.
//   - partial: for each distinct character of guess, min(count in guess,
//     count in secret), summed, minus full.
//
// A character present k times in the secret contributes at most k hits in
// total. Strings are compared rune by rune; callers check lengths.
func Score(secret, guess string) (full, partial int) {
	s := []rune(secret)
	gs := []rune(guess)

	inSecret := make(map[rune]int, len(s))
	for _, r := range s {
		inSecret[r]++
	}
	inGuess := make(map[rune]int, len(gs))
	for i, r := range gs {
		inGuess[r]++
		if i < len(s) && s[i] == r {
			full++
		}
	}

	common := 0
	for r, n := range inGuess {
		common += min(n, inSecret[r])
	}
	return full, common - full
}

// CryptoShuffle is a Fisher–Yates shuffle driven by crypto/rand.
func CryptoShuffle(d []byte) {
	for i := len(d) - 1; i > 0; i-- {
		j := randIndex(i + 1)
		d[i], d[j] = d[j], d[i]
	}
}

// randIndex returns a uniform index in [0, n).
// Falls back to math/rand if the crypto source fails.
func randIndex(n int) int {
	nBig, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return mrand.IntN(n)
	}
	return int(nBig.Int64())
}
