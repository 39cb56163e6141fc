package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/keshon/snapver/internal/component"
)

var logCmd = &cobra.Command{
	Use:   "log <component>",
	Short: "Show a component's history, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo(cmd)
		if err != nil {
			return err
		}
		defer r.Close()

		id, err := component.Parse(args[0])
		if err != nil {
			return err
		}
		laneName, _ := cmd.Flags().GetString("lane")

		head, err := r.Graph.ResolveHead(id, laneName)
		if err != nil {
			return err
		}

		tags, err := r.Graph.TagsFor(id)
		if err != nil {
			return err
		}
		bySnap := map[string]string{}
		for _, t := range tags {
			bySnap[t.Snap] = t.Version
		}

		walk := r.Graph.Ancestors(head)
		for {
			s, err := walk.Next()
			if err != nil {
				return err
			}
			if s == nil {
				return nil
			}
			version := bySnap[s.Hash]
			if version != "" {
				version = " (" + version + ")"
			}
			kind := ""
			if s.IsMerge() {
				kind = " [merge]"
			}
			fmt.Printf("%s%s%s  %s  %s\n",
				s.Hash[:12], version, kind,
				s.Timestamp.Format(time.RFC3339),
				s.Message)
		}
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show staged tags and pending merges",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo(cmd)
		if err != nil {
			return err
		}
		defer r.Close()

		active, err := r.Lanes.Active()
		if err != nil {
			return err
		}
		if active == "" {
			fmt.Println("On the default line")
		} else {
			fmt.Printf("On lane %q\n", active)
		}

		staged, err := r.Staged.List()
		if err != nil {
			return err
		}
		if len(staged) > 0 {
			fmt.Println("\nStaged tags:")
			for _, s := range staged {
				fmt.Printf("  %s -> %s (base %s)\n", s.Component.FullName(), s.IntendedVersion, short(s.BaseSnap))
			}
		}

		records, err := r.Records.List()
		if err != nil {
			return err
		}
		if len(records) > 0 {
			fmt.Println("\nPending merges:")
			for _, rec := range records {
				manual := 0
				for _, st := range rec.FileStatuses {
					if st == "manual" {
						manual++
					}
				}
				fmt.Printf("  %s: %d conflicted file(s)\n", rec.Component.FullName(), manual)
			}
		}
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check graph integrity: heads, parents, filesets, tags",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo(cmd)
		if err != nil {
			return err
		}
		defer r.Close()

		problems, err := r.Graph.Verify()
		if err != nil {
			return err
		}
		if len(problems) == 0 {
			fmt.Println("OK")
			return nil
		}
		for _, p := range problems {
			fmt.Println(p)
		}
		return fmt.Errorf("%d integrity problem(s) found", len(problems))
	},
}

func short(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	if h == "" {
		return "(none)"
	}
	return h
}

func init() {
	logCmd.Flags().StringP("lane", "l", "", "resolve the head inside this lane")
	rootCmd.AddCommand(logCmd, statusCmd, verifyCmd)
}
