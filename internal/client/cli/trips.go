package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
)

// tripBundle is the import file format: a trip and everything cached for it.
type tripBundle struct {
	Trip models.Trip     `json:"trip"`
	Data models.TripData `json:"data"`
}

func newTripsCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{Use: "trips", Short: "Cached trip records"}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List cached trips",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			trips, err := rt.app.Entities.ListCachedTrips(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(rt.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tOFFLINE\tSYNCED")
			for _, rec := range trips {
				trip, err := models.Decode[models.Trip](rec)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", rec.ID, trip.Title, rec.DownloadedForOffline,
					rec.LastSyncedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	})

	var markOffline bool
	importCmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Cache a trip and its entities from a JSON bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var b tripBundle
			if err := json.Unmarshal(raw, &b); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			if b.Trip.ID == "" {
				return fmt.Errorf("%s: trip id is empty", args[0])
			}

			ctx := cmd.Context()
			if err := rt.app.Entities.CacheTrip(ctx, b.Trip); err != nil {
				return err
			}
			if err := rt.app.Entities.CacheTripEntities(ctx, b.Trip.ID, b.Data); err != nil {
				return err
			}
			if markOffline {
				if err := rt.app.Entities.MarkTripForOffline(ctx, b.Trip.ID); err != nil {
					return err
				}
			}
			fmt.Fprintf(rt.out, "cached trip %s with %d entities\n", b.Trip.ID, len(b.Data.Entities()))
			return nil
		},
	}
	importCmd.Flags().BoolVar(&markOffline, "offline", false, "mark the trip as downloaded for offline use")
	cmd.AddCommand(importCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "show TRIP_ID",
		Short: "Print a cached trip as an import bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			trip, err := rt.app.Entities.GetCachedTrip(ctx, args[0])
			if err != nil {
				return err
			}
			if trip == nil {
				return fmt.Errorf("trip %s is not cached", args[0])
			}
			data, err := rt.app.Entities.GetCachedTripData(ctx, args[0])
			if err != nil {
				return err
			}
			b := tripBundle{Trip: *trip}
			if data != nil {
				b.Data = *data
			}
			return rt.printJSON(b)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "mark TRIP_ID",
		Short: "Mark a trip as downloaded for offline use",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.app.Entities.MarkTripForOffline(cmd.Context(), args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "unmark TRIP_ID",
		Short: "Clear the offline flag of a trip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.app.Entities.UnmarkTripForOffline(cmd.Context(), args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "forget TRIP_ID",
		Short: "Remove a trip and its entities from the cache, keeping queued changes and tiles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.app.Entities.ClearTripCache(cmd.Context(), args[0])
		},
	})

	return cmd
}
