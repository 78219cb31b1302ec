package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
)

func newStorageCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{Use: "storage", Short: "Storage usage, eviction and cleanup policy"}

	cmd.AddCommand(&cobra.Command{
		Use:   "usage",
		Short: "Show bytes used against the quota",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := rt.app.Storage.GetStorageUsage(cmd.Context())
			if err != nil {
				return err
			}
			return rt.printJSON(u)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "breakdown",
		Short: "Show bytes per storage category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := rt.app.Storage.GetStorageBreakdown(cmd.Context())
			if err != nil {
				return err
			}
			return rt.printJSON(b)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "trips",
		Short: "List cached trips with their estimated size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			trips, err := rt.app.Storage.GetCachedTrips(cmd.Context())
			if err != nil {
				return err
			}
			return rt.printJSON(trips)
		},
	})

	var limit int
	oldestCmd := &cobra.Command{
		Use:   "oldest",
		Short: "List the oldest cleanup candidates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := rt.app.Storage.GetOldestData(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return rt.printJSON(items)
		},
	}
	oldestCmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of candidates")
	cmd.AddCommand(oldestCmd)

	cmd.AddCommand(&cobra.Command{
		Use:       "clear CATEGORY",
		Short:     "Remove everything in one storage category",
		Args:      cobra.ExactArgs(1),
		ValidArgs: categoryNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := models.ParseCategory(args[0])
			if err != nil {
				return err
			}
			if err := rt.confirm(fmt.Sprintf("Remove all %s data?", cat)); err != nil {
				return err
			}
			return rt.app.Storage.ClearCategory(cmd.Context(), cat)
		},
	})

	var maxAge int
	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove old queued changes, drafts and library items, or apply the stored policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				freed int64
				err   error
			)
			if cmd.Flags().Changed("max-age-days") {
				freed, err = rt.app.Storage.ClearOldData(cmd.Context(), maxAge)
			} else {
				freed, err = rt.app.Storage.RunAutoCleanup(cmd.Context())
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(rt.out, "freed %d bytes\n", freed)
			return nil
		},
	}
	cleanupCmd.Flags().IntVar(&maxAge, "max-age-days", 30, "age limit; without it the stored policy is applied")
	cmd.AddCommand(cleanupCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "evict TRIP_ID",
		Short: "Remove a trip with its queued changes, drafts, photos and tiles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rt.confirm(fmt.Sprintf("Evict trip %s including unsynced changes?", args[0])); err != nil {
				return err
			}
			return rt.app.Storage.ClearTripData(cmd.Context(), args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Remove all offline data, keeping login and theme settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.confirm("Remove all offline data including unsynced changes?"); err != nil {
				return err
			}
			return rt.app.Storage.ClearAllOfflineData(cmd.Context())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "persist",
		Short: "Request persistent storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ok, err := rt.app.Storage.RequestPersistentStorage(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(rt.out, "persisted: %t\n", ok)
			return nil
		},
	})

	cmd.AddCommand(newPolicyCommand(rt))
	return cmd
}

func categoryNames() []string {
	out := make([]string, 0, len(models.AllCategories))
	for _, c := range models.AllCategories {
		out = append(out, string(c))
	}
	return out
}

func newPolicyCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Show the auto-cleanup policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := rt.app.Storage.GetAutoCleanupSettings(cmd.Context())
			if err != nil {
				return err
			}
			return rt.printJSON(s)
		},
	}

	var (
		enabled    bool
		maxAge     int
		categories string
	)
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Change the auto-cleanup policy; unset flags keep their values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := rt.app.Storage.GetAutoCleanupSettings(ctx)
			if err != nil {
				return err
			}
			fs := cmd.Flags()
			if fs.Changed("enabled") {
				s.Enabled = enabled
			}
			if fs.Changed("max-age-days") {
				s.MaxAgeInDays = maxAge
			}
			if fs.Changed("categories") {
				s.TargetCategories = nil
				for _, name := range strings.Split(categories, ",") {
					if name = strings.TrimSpace(name); name == "" {
						continue
					}
					cat, err := models.ParseCategory(name)
					if err != nil {
						return err
					}
					s.TargetCategories = append(s.TargetCategories, cat)
				}
			}
			if err := rt.app.Storage.SetAutoCleanupSettings(ctx, s); err != nil {
				return err
			}
			return rt.printJSON(s)
		},
	}
	setCmd.Flags().BoolVar(&enabled, "enabled", false, "run the policy from serve")
	setCmd.Flags().IntVar(&maxAge, "max-age-days", 30, "age limit of queued changes, drafts and library items")
	setCmd.Flags().StringVar(&categories, "categories", "", "comma separated categories cleared on every run")
	cmd.AddCommand(setCmd)

	return cmd
}
