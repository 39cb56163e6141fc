package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keshon/snapver/internal/merge"
)

var mergeCmd = &cobra.Command{
	Use:   "merge [patterns...]",
	Short: "Three-way merge of a lane, version or snap into the default line",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo(cmd)
		if err != nil {
			return err
		}
		defer r.Close()

		opts := merge.Options{}
		opts.Strategy, _ = cmd.Flags().GetString("strategy")
		opts.Lane, _ = cmd.Flags().GetString("lane")
		opts.TargetVersion, _ = cmd.Flags().GetString("version")
		opts.TargetSnap, _ = cmd.Flags().GetString("snap")
		opts.NoSnap, _ = cmd.Flags().GetBool("no-snap")
		opts.RunInstall, _ = cmd.Flags().GetBool("install")
		opts.RunCompile, _ = cmd.Flags().GetBool("compile")
		opts.Message, _ = cmd.Flags().GetString("message")
		opts.Author, _ = cmd.Flags().GetString("author")

		res, err := r.Merge.Merge(cmd.Context(), args, opts)
		if err != nil {
			return err
		}
		renderMergeResults(res)
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <patterns...>",
	Short: "Finalize conflicted merges after hand-editing the files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo(cmd)
		if err != nil {
			return err
		}
		defer r.Close()

		res, err := r.Merge.Merge(cmd.Context(), args, merge.Options{Resolve: true})
		if err != nil {
			return err
		}
		renderMergeResults(res)
		return nil
	},
}

var abortCmd = &cobra.Command{
	Use:   "abort <patterns...>",
	Short: "Abort pending merges, restoring the pre-merge heads",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo(cmd)
		if err != nil {
			return err
		}
		defer r.Close()

		res, err := r.Merge.Merge(cmd.Context(), args, merge.Options{Abort: true})
		if err != nil {
			return err
		}
		renderMergeResults(res)
		return nil
	},
}

func renderMergeResults(res *merge.ApplyVersionResults) {
	for _, m := range res.Merged {
		fmt.Printf("merged: %s (snap %s)\n", m.Component.FullName(), m.Snap)
	}
	for _, c := range res.Conflicted {
		fmt.Printf("CONFLICT: %s\n", c.Component.FullName())
		for path, st := range c.FileStatuses {
			if st == merge.StatusManual {
				fmt.Printf("  manual: %s\n", path)
			}
		}
	}
	for _, a := range res.Aborted {
		fmt.Printf("aborted: %s\n", a.Component.FullName())
	}
	for _, f := range res.Failed {
		if f.UnchangedLegitimately {
			fmt.Printf("skipped: %s: %s\n", f.Component.FullName(), f.FailureMessage)
		} else {
			fmt.Printf("failed: %s: %s\n", f.Component.FullName(), f.FailureMessage)
		}
	}
	if res.InstallationError != "" {
		fmt.Printf("install error: %s\n", res.InstallationError)
	}
	if res.CompilationError != "" {
		fmt.Printf("compile error: %s\n", res.CompilationError)
	}
}

func init() {
	mergeCmd.Flags().StringP("strategy", "s", "", "conflict strategy: ours|theirs|manual")
	mergeCmd.Flags().StringP("lane", "l", "", "merge this lane into the default line")
	mergeCmd.Flags().String("version", "", "merge the snap tagged with this version")
	mergeCmd.Flags().String("snap", "", "merge an explicit snap hash")
	mergeCmd.Flags().Bool("no-snap", false, "do not record a merge snap")
	mergeCmd.Flags().Bool("install", false, "run dependency install after merging")
	mergeCmd.Flags().Bool("compile", false, "run compilation after merging")
	mergeCmd.Flags().StringP("message", "m", "", "merge snap message")
	mergeCmd.Flags().String("author", "", "merge snap author")
	rootCmd.AddCommand(mergeCmd, resolveCmd, abortCmd)
}
