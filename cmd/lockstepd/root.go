// Command lockstepd is the operator CLI for the lockstep kernel: running a
// room server and inspecting recorded state, grounded in the reference
// corpus's cobra-based node CLI (orbas1-Synnergy's devnet/testnet
// commands).
package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "lockstepd",
	Short: "lockstep room server and diagnostics",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to room.yaml (defaults used if empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "logrus level (debug, info, warn, error)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(inspectHashHistoryCmd)
}

func newLogger() *logrus.Entry {
	log := logrus.New()
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logrus.NewEntry(log)
}
