// internal/console/console.go
//
// Line-oriented terminal driver for the game engine.
//
// Flow:
//   1. Ask for a digit count (1–10). A blank line or EOF quits; anything
//      else that is not a valid count re-prompts.
//   2. Read guesses. Each accepted guess prints its attempt log line and
//      the progress line; wrong-length guesses are rejected without cost.
//   3. On a win or loss, reveal the number and go back to step 1.
//
// Commands accepted in place of a guess: ":log" (attempt history),
// ":new" (abandon and start over), ":quit". A line with exactly as many
// characters as the secret is always scored, so in a 4-digit game ":new"
// is a guess; guesses are taken as typed, surrounding spaces included.

package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/numguess/internal/game"
)

const rules = `Number Guessing Game
  1. Guess a randomly generated number.
  2. The number has unique digits.
  3. After each guess you get feedback:
     - Full hits:    correct digits in the right position.
     - Partial hits: correct digits in the wrong position.
  4. Try to guess the number in as few attempts as possible!
`

// Session drives one engine from a reader/writer pair.
type Session struct {
	in  *bufio.Scanner
	out io.Writer
	g   *game.Game
}

// New builds a Session around an engine.
func New(in io.Reader, out io.Writer, g *game.Game) *Session {
	return &Session{in: bufio.NewScanner(in), out: out, g: g}
}

// Run plays games until the player quits, input ends, or ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	fmt.Fprint(s.out, rules)
	for {
		ok, err := s.startGame(ctx)
		if err != nil || !ok {
			return err
		}
		again, err := s.play(ctx)
		if err != nil || !again {
			return err
		}
	}
}

// readLine returns the next input line without its line ending; ok is false at EOF.
func (s *Session) readLine(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if !s.in.Scan() {
		return "", false, s.in.Err()
	}
	return strings.TrimSuffix(s.in.Text(), "\r"), true, nil
}

// startGame prompts for a digit count until one is valid.
// It reports false when the player leaves the prompt empty or input ends.
func (s *Session) startGame(ctx context.Context) (bool, error) {
	for {
		fmt.Fprintf(s.out, "\nEnter the number of digits to guess (%d-%d): ", game.MinDigits, game.MaxDigits)
		line, ok, err := s.readLine(ctx)
		if err != nil || !ok || strings.TrimSpace(line) == "" {
			fmt.Fprintln(s.out)
			return false, err
		}
		digits, err := game.ParseDigits(line)
		if err != nil {
			fmt.Fprintf(s.out, "Please enter a whole number from %d to %d.\n", game.MinDigits, game.MaxDigits)
			continue
		}
		snap, err := s.g.Start(digits)
		if err != nil {
			return false, err
		}
		log.Debug().Str("gameId", snap.ID).Int("digits", snap.Digits).Msg("console game started")
		fmt.Fprintf(s.out, "A new %d-digit number has been generated. You have %d attempts. Good luck!\n",
			snap.Digits, snap.MaxAttempts)
		return true, nil
	}
}

// play runs the guess loop for the current game. It reports whether the
// player should be asked for a new game.
func (s *Session) play(ctx context.Context) (bool, error) {
	for {
		fmt.Fprint(s.out, "Guess: ")
		line, ok, err := s.readLine(ctx)
		if err != nil || !ok {
			fmt.Fprintln(s.out)
			return false, err
		}

		if utf8.RuneCountInString(line) != s.g.Digits {
			switch strings.TrimSpace(line) {
			case ":quit":
				return false, nil
			case ":new":
				return true, nil
			case ":log":
				s.printLog()
				continue
			}
		}

		res, err := s.g.Guess(line)
		switch {
		case errors.Is(err, game.ErrInvalidGuessLength):
			fmt.Fprintf(s.out, "Your guess must be %d digits long.\n", s.g.Digits)
			continue
		case err != nil:
			return false, err
		}

		s.printAttempt(len(s.g.History)-1)
		fmt.Fprintf(s.out, "Progress: %d/%d attempts\n", res.AttemptsUsed, res.MaxAttempts)

		switch res.Outcome {
		case game.OutcomeWin:
			fmt.Fprintf(s.out, "Congratulations! You guessed the number in %d attempts.\nThe number was %s.\n",
				res.AttemptsUsed, res.Secret)
			return true, nil
		case game.OutcomeLose:
			fmt.Fprintf(s.out, "Game over. You've reached the maximum number of attempts.\nThe number was %s.\n", res.Secret)
			return true, nil
		}
	}
}

func (s *Session) printAttempt(i int) {
	a := s.g.History[i]
	fmt.Fprintf(s.out, "Attempt %d/%d: Guess: %s, Full hits: %d, Partial hits: %d\n",
		i+1, s.g.MaxAttempts, a.Guess, a.FullHits, a.PartialHits)
}

func (s *Session) printLog() {
	if len(s.g.History) == 0 {
		fmt.Fprintln(s.out, "No attempts yet.")
		return
	}
	for i := range s.g.History {
		s.printAttempt(i)
	}
}
