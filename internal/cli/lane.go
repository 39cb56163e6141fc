package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keshon/snapver/internal/merge"
)

var laneCmd = &cobra.Command{
	Use:   "lane",
	Short: "Manage parallel development lanes",
}

var laneCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new lane",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo(cmd)
		if err != nil {
			return err
		}
		defer r.Close()

		if _, err := r.Lanes.Create(args[0]); err != nil {
			return err
		}
		fmt.Printf("Created lane %q\n", args[0])
		return nil
	},
}

var laneListCmd = &cobra.Command{
	Use:   "list",
	Short: "List lanes",
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
		lanes, err := r.Lanes.List()
		if err != nil {
			return err
		}
		for _, ln := range lanes {
			marker := " "
			if ln.Name == active {
				marker = "*"
			}
			fmt.Printf("%s %s (%d components)\n", marker, ln.Name, len(ln.Heads))
		}
		return nil
	},
}

var laneSwitchCmd = &cobra.Command{
	Use:   "switch [name]",
	Short: "Switch the active lane (no argument returns to the default line)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo(cmd)
		if err != nil {
			return err
		}
		defer r.Close()

		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		if err := r.Lanes.SetActive(name); err != nil {
			return err
		}
		if name == "" {
			fmt.Println("Switched to the default line")
		} else {
			fmt.Printf("Switched to lane %q\n", name)
		}
		return nil
	},
}

var laneMergeCmd = &cobra.Command{
	Use:   "merge <name>",
	Short: "Merge a lane into the default line, component by component",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo(cmd)
		if err != nil {
			return err
		}
		defer r.Close()

		strategy, _ := cmd.Flags().GetString("strategy")
		res, err := r.Merge.Merge(cmd.Context(), nil, merge.Options{Lane: args[0], Strategy: strategy})
		if err != nil {
			return err
		}
		renderMergeResults(res)
		return nil
	},
}

var laneDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a lane",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo(cmd)
		if err != nil {
			return err
		}
		defer r.Close()

		if err := r.Lanes.Delete(args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted lane %q\n", args[0])
		return nil
	},
}

func init() {
	laneMergeCmd.Flags().StringP("strategy", "s", "", "conflict strategy: ours|theirs|manual")
	laneCmd.AddCommand(laneCreateCmd, laneListCmd, laneSwitchCmd, laneMergeCmd, laneDeleteCmd)
	rootCmd.AddCommand(laneCmd)
}
