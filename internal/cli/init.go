package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/keshon/snapver/internal/config"
	"github.com/keshon/snapver/internal/repo"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a repository in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, _ := cmd.Flags().GetString("store")
		cfgFile, _ := cmd.Flags().GetString("config")

		ws, err := config.LoadWorkspace(cfgFile)
		if err != nil {
			return err
		}
		wd, err := os.Getwd()
		if err != nil {
			return err
		}

		r, created, err := repo.InitAt(wd, backend, ws, slog.Default())
		if err != nil {
			return err
		}
		defer r.Close()

		if created {
			fmt.Printf("Initialized empty repository in %s\n", r.Layout.Root)
		} else {
			fmt.Printf("Repository already exists in %s\n", r.Layout.Root)
		}
		return nil
	},
}

func init() {
	initCmd.Flags().String("store", repo.StoreFS, "object store backend (fs|badger)")
	rootCmd.AddCommand(initCmd)
}
