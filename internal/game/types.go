// internal/game/types.go
//
// Core type definitions for the number-guessing engine.
// Defines:
//   - Phase:    lifecycle of one engine (awaiting digits → playing → won/lost).
//   - Outcome:  tag of a scored guess (continue/win/lose).
//   - Attempt:  one entry of the attempt log.
//   - Result:   what a scored guess reports back to the caller.
//   - Snapshot: display data for a presentation layer.
//   - Game:     the engine and its single GameState.

package game

import "errors"

const (
	MinDigits        = 1
	MaxDigits        = 10
	AttemptsPerDigit = 5
)

var (
	// ErrInvalidConfiguration is returned when the digit count is missing,
	// not an integer, or outside [MinDigits, MaxDigits].
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInvalidGuessLength is returned when a guess is not exactly Digits
	// characters long. The attempt is not consumed.
	ErrInvalidGuessLength = errors.New("invalid guess length")

	// ErrNoActiveGame is returned for guesses before Start or after the game
	// has been won or lost.
	ErrNoActiveGame = errors.New("no active game")
)

// Phase is the engine's position in its state machine.
type Phase string

const (
	PhaseAwaitingDigits Phase = "awaiting_digits"
	PhasePlaying        Phase = "playing"
	PhaseWon            Phase = "won"
	PhaseLost           Phase = "lost"
)

// Finished reports whether the phase is terminal (won or lost).
func (p Phase) Finished() bool { return p == PhaseWon || p == PhaseLost }

// Outcome tags the result of an accepted guess.
type Outcome string

const (
	OutcomeContinue Outcome = "continue"
	OutcomeWin      Outcome = "win"
	OutcomeLose     Outcome = "lose"
)

// Attempt is one accepted guess and its score.
type Attempt struct {
	Guess       string `json:"guess"`
	FullHits    int    `json:"fullHits"`
	PartialHits int    `json:"partialHits"`
}

// Result is returned for every accepted guess.
// Secret is only set for OutcomeWin and OutcomeLose.
type Result struct {
	Outcome      Outcome `json:"outcome"`
	FullHits     int     `json:"fullHits"`
	PartialHits  int     `json:"partialHits"`
	AttemptsUsed int     `json:"attemptsUsed"`
	MaxAttempts  int     `json:"maxAttempts"`
	Secret       string  `json:"secret,omitempty"`
}

// Snapshot is the display data a presentation layer renders.
// Secret is revealed only once the game is finished.
type Snapshot struct {
	ID           string    `json:"gameId"`
	Phase        Phase     `json:"phase"`
	Digits       int       `json:"digits"`
	MaxAttempts  int       `json:"maxAttempts"`
	AttemptsUsed int       `json:"attemptsUsed"`
	History      []Attempt `json:"history"`
	Secret       string    `json:"secret,omitempty"`
}

// Shuffler permutes a slice of digits in place.
type Shuffler func(digits []byte)

// Game holds the state of a single engine. One Game owns one GameState at a
// time; Start replaces it wholesale.
//
// Game is not safe for concurrent use.
type Game struct {
	ID          string    // Unique identifier (UUID).
	Secret      string    // Digits to guess, all distinct.
	Digits      int       // Length of Secret (1..10).
	MaxAttempts int       // Digits * AttemptsPerDigit.
	History     []Attempt // Accepted guesses; len(History) is the attempts used.
	Phase       Phase

	shuffle Shuffler
}
