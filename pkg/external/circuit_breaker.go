package external

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/rehabflow-backend/internal/domain"
)

// ResilientVideoClient wraps the YouTube client with a circuit breaker so a
// failing Data API cannot stall every analysis request behind its timeout.
// An empty result set is a normal outcome and does not count as a failure;
// only transport and API errors trip the breaker.
type ResilientVideoClient struct {
	youtube *YouTubeClient
	breaker *gobreaker.CircuitBreaker
	log     *logrus.Logger
}

// NewResilientVideoClient creates a circuit-breaker wrapped video client
func NewResilientVideoClient(youtube *YouTubeClient, logger *logrus.Logger) *ResilientVideoClient {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "YouTube",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrNoVideoFound)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &ResilientVideoClient{
		youtube: youtube,
		breaker: breaker,
		log:     logger,
	}
}

// FindBest searches for the best matching video through the circuit breaker.
func (r *ResilientVideoClient) FindBest(ctx context.Context, keywords []string) (*domain.VideoMatch, error) {
	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.youtube.FindBest(ctx, keywords)
	})

	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("video search suspended (circuit breaker open): %w", domain.ErrVideoSearchUnavailable)
		}
		return nil, err
	}

	return result.(*domain.VideoMatch), nil
}

// State returns the current circuit breaker state
func (r *ResilientVideoClient) State() gobreaker.State {
	return r.breaker.State()
}

// Counts returns the current circuit breaker counters
func (r *ResilientVideoClient) Counts() gobreaker.Counts {
	return r.breaker.Counts()
}
