package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rikka",
		Short: "Episode discussion bot for anime communities",
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./config.yaml)")

	root.AddCommand(episodeCmd())
	root.AddCommand(addCmd())
	root.AddCommand(updateCmd())
	root.AddCommand(enableCmd())
	root.AddCommand(disableCmd())
	root.AddCommand(removeCmd())
	root.AddCommand(threadCmd())
	root.AddCommand(loadCmd())
	root.AddCommand(feedsCmd())
	root.AddCommand(showsCmd())
	root.AddCommand(setupCmd())

	return root
}

func episodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "episode",
		Short: "Run one batch: discover upcoming episodes and post the aired ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEpisode(cmd.Context())
		},
	}
}

func addCmd() *cobra.Command {
	var disabled bool

	cmd := &cobra.Command{
		Use:   "add <show-id>...",
		Short: "Add shows by catalog id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return runAdd(cmd.Context(), ids, !disabled)
		},
	}

	cmd.Flags().BoolVar(&disabled, "disabled", false, "add the shows without enabling them")
	return cmd
}

func updateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update [all|enabled|disabled|show-id...]",
		Short: "Refresh show metadata from the catalog (all shows when no selector given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd.Context(), args)
		},
	}
}

func enableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable <show-id>",
		Short: "Enable a show and pin it against catalog refreshes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return runSetEnabled(cmd.Context(), ids[0], true)
		},
	}
}

func disableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <show-id|nsfw>",
		Short: "Disable a show (or every NSFW show) and pin it against catalog refreshes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == "nsfw" {
				return runDisableNSFW(cmd.Context())
			}
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return runSetEnabled(cmd.Context(), ids[0], false)
		},
	}
}

func removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <show-id|nsfw|disabled>",
		Short: "Remove a show (or every NSFW or disabled show) and all of its recorded state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "nsfw", "disabled":
				return runRemoveGroup(cmd.Context(), args[0])
			}
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return runRemove(cmd.Context(), ids[0])
		},
	}
}

func threadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "thread <show-id> <episode>",
		Short: "Force a standalone discussion post for one episode",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return runThread(cmd.Context(), ids[0], ids[1])
		},
	}
}

func loadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load <file.csv>",
		Short: "Bulk-import upcoming episodes from a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd.Context(), args[0])
		},
	}
}

func feedsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "feeds",
		Short: "Check announcement feeds for missed episodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFeeds(cmd.Context())
		},
	}
}

func showsCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "shows",
		Short: "List tracked shows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShows(cmd.Context(), all)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include disabled shows")
	return cmd
}

func setupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Create the database file and schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetup()
		},
	}
}
