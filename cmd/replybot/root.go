package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logDebug   bool
)

var rootCmd = &cobra.Command{
	Use:   "replybot",
	Short: "Auto-reply bot that answers mentions of its account on a social platform",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Local development convenience; missing .env is not an error.
		_ = godotenv.Load()
	},
	SilenceUsage:  true,
	SilenceErrors: false,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("replybot %s (commit %s, built %s)\n", Version, Commit, BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVar(&logDebug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(onceCmd)
}

func setupLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if logDebug {
		level = zerolog.DebugLevel
	}
	var log zerolog.Logger
	if isatty.IsTerminal(os.Stdout.Fd()) {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	} else {
		log = zerolog.New(os.Stdout)
	}
	return log.Level(level).With().Timestamp().Logger()
}
