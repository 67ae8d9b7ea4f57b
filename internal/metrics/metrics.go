// Package metrics holds the Prometheus collectors for game activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	gamesStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "numguess_games_started_total",
		Help: "Games started, by mode and digit count.",
	}, []string{"mode", "digits"})

	guesses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "numguess_guesses_total",
		Help: "Accepted guesses, by outcome.",
	}, []string{"outcome"})

	rejectedGuesses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "numguess_rejected_guesses_total",
		Help: "Guesses rejected without consuming an attempt, by reason.",
	}, []string{"reason"})
)

// GameStarted counts a new game.
func GameStarted(mode, digits string) { gamesStarted.WithLabelValues(mode, digits).Inc() }

// GuessScored counts an accepted guess.
func GuessScored(outcome string) { guesses.WithLabelValues(outcome).Inc() }

// GuessRejected counts a guess that did not consume an attempt.
func GuessRejected(reason string) { rejectedGuesses.WithLabelValues(reason).Inc() }

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
