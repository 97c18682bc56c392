// Package simulate drives a running timing service over HTTP with scripted
// rides and checks that each one lands on the leaderboard as timed.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/sectorclock/pkg/logger"
)

const (
	pollInterval         = 200 * time.Millisecond
	percentageMultiplier = 100
)

// ErrMismatch is returned when at least one ride was not recorded as planned.
var ErrMismatch = errors.New("leaderboard does not match the simulated rides")

// Run executes a complete simulated session.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("simulate")

	log.Info(ctx, "starting sectorclock simulation",
		logger.String("baseURL", config.BaseURL),
		logger.Int("riders", config.Riders),
		logger.Int("sectors", config.Sectors),
		logger.String("style", config.Style),
		logger.Bool("realtime", config.Realtime),
	)

	client := newHTTPClient(config.BaseURL, config.Timeout)

	// Step 1: Check service health
	if err := client.Health(ctx); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Plan rides
	rides := Plan(config, time.Now())
	stats.RidesPlanned = len(rides)

	// Step 3: Submit triggers in order; the service applies them FIFO
	if err := submitRides(ctx, client, config, rides, stats); err != nil {
		return fmt.Errorf("trigger submission failed: %w", err)
	}

	// Step 4: Wait for the rows
	rows, err := waitForRows(ctx, client, config.Settle, rides)
	if err != nil {
		return fmt.Errorf("leaderboard retrieval failed: %w", err)
	}

	// Step 5: Verify results
	mismatches := Verify(rides, rows)
	stats.RidesMismatched = len(mismatches)
	stats.RidesVerified = len(rides) - len(mismatches)
	for _, m := range mismatches {
		log.Warn(ctx, "ride mismatch", logger.String("ride", m.String()))
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	if len(mismatches) > 0 {
		return fmt.Errorf("%w: %d of %d rides", ErrMismatch, len(mismatches), len(rides))
	}
	log.Info(ctx, "simulation completed successfully")
	return nil
}

func submitRides(ctx context.Context, client *HTTPClient, config *Config, rides []Ride, stats *Stats) error {
	log := logger.Get().Named("simulate")

	var prev time.Time
	for _, ride := range rides {
		for _, t := range ride.Triggers {
			if config.Realtime && !prev.IsZero() {
				if err := sleep(ctx, scaled(t.At.Sub(prev), config.Speedup)); err != nil {
					return err
				}
			}
			prev = t.At

			stats.TriggersSubmitted++
			err := client.SubmitTrigger(ctx, t.Body)
			switch {
			case err == nil:
				stats.TriggersAccepted++
			case errors.Is(err, ErrRejected):
				stats.TriggersRejected++
			default:
				stats.TriggersFailed++
			}
			if err != nil {
				log.Warn(ctx, "trigger not accepted",
					logger.String("kind", t.Body.Kind),
					logger.String("rider", ride.Name),
					logger.Error(err),
				)
			} else if config.Verbose {
				log.Info(ctx, "trigger accepted",
					logger.String("kind", t.Body.Kind),
					logger.String("rider", ride.Name),
					logger.String("ts", t.Body.TS),
				)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
	return nil
}

// waitForRows polls the leaderboard until every ride has a row or settle
// elapses, and returns the last rows seen.
func waitForRows(ctx context.Context, client *HTTPClient, settle time.Duration, rides []Ride) ([]Row, error) {
	deadline := time.Now().Add(settle)
	for {
		rows, err := client.Leaderboard(ctx)
		if err != nil {
			return nil, err
		}
		if missing(rides, rows) == 0 || time.Now().After(deadline) {
			return rows, nil
		}
		if err := sleep(ctx, pollInterval); err != nil {
			return nil, err
		}
	}
}

func scaled(d time.Duration, speedup float64) time.Duration {
	if speedup <= 0 {
		return d
	}
	return time.Duration(float64(d) / speedup)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var acceptRate float64
	if stats.TriggersSubmitted > 0 {
		acceptRate = float64(stats.TriggersAccepted) / float64(stats.TriggersSubmitted) * percentageMultiplier
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("ridesPlanned", stats.RidesPlanned),
		logger.Int("triggersSubmitted", stats.TriggersSubmitted),
		logger.Int("triggersAccepted", stats.TriggersAccepted),
		logger.Int("triggersRejected", stats.TriggersRejected),
		logger.Int("triggersFailed", stats.TriggersFailed),
		logger.Int("ridesVerified", stats.RidesVerified),
		logger.Int("ridesMismatched", stats.RidesMismatched),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("acceptRate", acceptRate),
	)
}
