package simulate

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/sectorclock/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0o600
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "simulate_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	if err := logger.Init(logger.WithWriter(io.MultiWriter(os.Stdout, file))); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	os.Stdout.WriteString(`Sectorclock Ride Simulator
==========================

Rides scripted runs against a running timing service and checks that every
run lands on the leaderboard with the planned times.

Usage:
  go run ./cmd/simulate [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -riders int
        Number of rides (default 5)
  -sectors int
        Sectors per ride; must match the service (default 3)
  -sector-seconds float
        Mean sector time in seconds (default 5)
  -gap duration
        Pause between rides (default 2s)
  -style string
        direct, anonymous or hybrid (default "direct")
  -realtime
        Submit triggers at the pace the ride happens
  -speedup float
        Time compression for -realtime (default 1)
  -timeout duration
        HTTP request timeout (default 10s)
  -settle duration
        How long to wait for leaderboard rows (default 10s)
  -log string
        Log file (default: simulate_TIMESTAMP.log)
  -verbose
        Log every trigger
  -help
        Show this help message

Examples:
  # Five rides against a single-mode service
  go run ./cmd/simulate

  # Hybrid tag-then-button rides, watched live at double speed
  go run ./cmd/simulate -style hybrid -realtime -speedup 2
`)
}
