// Package cli is the thin command layer over the engines; it parses flags,
// opens the repository and renders results.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/keshon/snapver/internal/config"
	"github.com/keshon/snapver/internal/repo"
)

var rootCmd = &cobra.Command{
	Use:           "snapver",
	Short:         "Component-level versioning and release engine",
	Long:          "snapver tracks immutable snaps of individually versioned components, propagates version bumps to dependents, and merges divergent lanes with file-level conflict detection.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "workspace config file (default .snapver.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
}

// openRepo loads the workspace config and opens the repository in the
// current directory.
func openRepo(cmd *cobra.Command) (*repo.Repository, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	ws, err := config.LoadWorkspace(cfgFile)
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return repo.OpenAt(wd, ws, log)
}
