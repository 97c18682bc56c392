package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/okian/sectorclock/internal/simulate"
)

// Default configuration constants.
const (
	defaultRiders        = 5
	defaultSectors       = 3
	defaultSectorSeconds = 5.0
	defaultGap           = 2 * time.Second
	defaultTimeout       = 10 * time.Second
	defaultSettle        = 10 * time.Second
	defaultRunTimeout    = 30 * time.Minute
)

func main() {
	var (
		baseURL       = flag.String("url", "http://localhost:9080", "Base URL of the service")
		riders        = flag.Int("riders", defaultRiders, "Number of rides")
		sectors       = flag.Int("sectors", defaultSectors, "Sectors per ride; must match the service")
		sectorSeconds = flag.Float64("sector-seconds", defaultSectorSeconds, "Mean sector time in seconds")
		gap           = flag.Duration("gap", defaultGap, "Pause between rides")
		style         = flag.String("style", simulate.StyleDirect, "direct, anonymous or hybrid")
		realtime      = flag.Bool("realtime", false, "Submit triggers at the pace the ride happens")
		speedup       = flag.Float64("speedup", 1, "Time compression for -realtime")
		timeout       = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		settle        = flag.Duration("settle", defaultSettle, "How long to wait for leaderboard rows")
		logFile       = flag.String("log", "", "Log file (default: simulate_TIMESTAMP.log)")
		verbose       = flag.Bool("verbose", false, "Log every trigger")
		help          = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulate.ShowHelp()
		return
	}

	if err := simulate.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	config := &simulate.Config{
		BaseURL:       *baseURL,
		Riders:        *riders,
		Sectors:       *sectors,
		SectorSeconds: *sectorSeconds,
		Gap:           *gap,
		Style:         *style,
		Realtime:      *realtime,
		Speedup:       *speedup,
		Timeout:       *timeout,
		Settle:        *settle,
		LogFile:       *logFile,
		Verbose:       *verbose,
	}

	if err := simulate.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		cancel()
		os.Exit(1)
	}
}
