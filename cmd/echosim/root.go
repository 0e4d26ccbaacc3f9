package main

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Environment variables recognized by every subcommand. Values from a .env
// file in the working directory apply when the variable is not already set.
const (
	EnvBudgetBytes   = "ECHOSIM_BUDGET_BYTES"
	EnvSweepInterval = "ECHOSIM_SWEEP_INTERVAL"
	EnvIdleThreshold = "ECHOSIM_IDLE_THRESHOLD"
	EnvMonitorPort   = "ECHOSIM_MONITOR_PORT"
	EnvDBPath        = "ECHOSIM_DB_PATH"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use: "echosim",
	Short: "Echosim tracks the memory budget of simulated " +
		"cognitive-architecture components.",
	Long: `Echosim runs the resource ledger that accounts for the memory ` +
		`consumed by reservoir states, membrane systems, and training ` +
		`batches, evicting and compacting under budget pressure.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		// A missing .env file is fine; the process environment still
		// applies.
		_ = godotenv.Load()
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func envUint64(name string, fallback uint64) uint64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fallback
	}

	return v
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func envString(name, fallback string) string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}

	return raw
}
