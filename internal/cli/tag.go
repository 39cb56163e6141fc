package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keshon/snapver/internal/tag"
)

var tagCmd = &cobra.Command{
	Use:   "tag [patterns...]",
	Short: "Tag components with a new version, propagating to dependents",
	Long: `Tag the selected components (all modified ones when no pattern is
given) with the next semantic version. Unless --skip-auto-tag is set, every
component depending on a tagged one is re-versioned with the same bump.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo(cmd)
		if err != nil {
			return err
		}
		defer r.Close()

		opts := tag.Options{}
		opts.ReleaseType, _ = cmd.Flags().GetString("release-type")
		opts.Version, _ = cmd.Flags().GetString("version")
		opts.PreID, _ = cmd.Flags().GetString("preid")
		opts.IncrementBy, _ = cmd.Flags().GetUint64("increment-by")
		opts.SkipAutoTag, _ = cmd.Flags().GetBool("skip-auto-tag")
		opts.Soft, _ = cmd.Flags().GetBool("soft")
		opts.Persist, _ = cmd.Flags().GetBool("persist")
		opts.Unmodified, _ = cmd.Flags().GetBool("unmodified")
		opts.RunPipeline, _ = cmd.Flags().GetBool("build")
		opts.ForceDeploy, _ = cmd.Flags().GetBool("force-deploy")
		opts.Lane, _ = cmd.Flags().GetString("lane")
		opts.Message, _ = cmd.Flags().GetString("message")
		opts.Author, _ = cmd.Flags().GetString("author")

		res, err := r.Tag.Tag(cmd.Context(), args, opts)
		if err != nil {
			return err
		}
		renderTagResults(res)
		return nil
	},
}

func renderTagResults(res *tag.Results) {
	if res.NothingToTag {
		fmt.Println("Nothing to tag.")
		return
	}
	if res.IsSoftTag {
		fmt.Println("Staged (soft) tags:")
	}
	for _, t := range res.Tagged {
		fmt.Printf("  %s@%s\n", t.Component.FullName(), t.Version)
	}
	for _, t := range res.AutoTagged {
		fmt.Printf("  %s@%s (auto: %s)\n", t.Component.FullName(), t.Version, t.Reason)
	}
	for _, id := range res.NewComponents {
		fmt.Printf("  new component: %s\n", id.FullName())
	}
	for _, w := range res.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	for _, f := range res.Failed {
		fmt.Printf("failed: %s: %s\n", f.Component.FullName(), f.FailureMessage)
	}
}

func init() {
	tagCmd.Flags().StringP("release-type", "r", "", "major|minor|patch|premajor|preminor|prepatch|prerelease")
	tagCmd.Flags().String("version", "", "explicit version override")
	tagCmd.Flags().String("preid", "", "prerelease identifier (e.g. rc)")
	tagCmd.Flags().Uint64("increment-by", 1, "increment the selected field by this count")
	tagCmd.Flags().Bool("skip-auto-tag", false, "do not expand to dependent components")
	tagCmd.Flags().Bool("soft", false, "stage the tag without persisting")
	tagCmd.Flags().Bool("persist", false, "finalize previously staged tags")
	tagCmd.Flags().Bool("unmodified", false, "include components with no working changes")
	tagCmd.Flags().Bool("build", false, "run the build pipeline before persisting")
	tagCmd.Flags().Bool("force-deploy", false, "persist even when the pipeline fails")
	tagCmd.Flags().StringP("lane", "l", "", "tag inside this lane instead of the active one")
	tagCmd.Flags().StringP("message", "m", "", "snap message")
	tagCmd.Flags().String("author", "", "snap author")
	rootCmd.AddCommand(tagCmd)
}
