package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
	"github.com/dmitrijs2005/tripkeeper/internal/client/services"
	"github.com/dmitrijs2005/tripkeeper/internal/tiles"
)

// areaFlags select the area of estimate and cache-tiles.
type areaFlags struct {
	trip     string
	points   string
	bounds   string
	minZoom  int
	maxZoom  int
	bufferKm float64
}

func (f *areaFlags) bind(cmd *cobra.Command, withBounds bool) {
	fs := cmd.Flags()
	fs.StringVar(&f.trip, "trip", "", "use the coordinates of a cached trip")
	fs.StringVar(&f.points, "points", "", "coordinates as lat,lng;lat,lng")
	if withBounds {
		fs.StringVar(&f.bounds, "bounds", "", "explicit box as south,west,north,east")
	}
	fs.IntVar(&f.minZoom, "min-zoom", -1, "lowest zoom level, default from the area size")
	fs.IntVar(&f.maxZoom, "max-zoom", -1, "highest zoom level, default from the area size")
	fs.Float64Var(&f.bufferKm, "buffer-km", tiles.DefaultBufferKm, "padding around the coordinates")
}

func (f *areaFlags) zoom() (*tiles.ZoomRange, error) {
	switch {
	case f.minZoom < 0 && f.maxZoom < 0:
		return nil, nil
	case f.minZoom < 0 || f.maxZoom < 0:
		return nil, errors.New("--min-zoom and --max-zoom go together")
	}
	return &tiles.ZoomRange{Min: f.minZoom, Max: f.maxZoom}, nil
}

func (f *areaFlags) estimateOptions() (services.EstimateOptions, error) {
	zoom, err := f.zoom()
	if err != nil {
		return services.EstimateOptions{}, err
	}
	return services.EstimateOptions{Zoom: zoom, BufferKm: f.bufferKm}, nil
}

func parseFloats(s string, want int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != want {
		return nil, fmt.Errorf("%q: want %d comma separated numbers", s, want)
	}
	out := make([]float64, want)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", s, err)
		}
		out[i] = v
	}
	return out, nil
}

func parsePoints(s string) ([]models.Location, error) {
	var out []models.Location
	for i, pair := range strings.Split(s, ";") {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		v, err := parseFloats(pair, 2)
		if err != nil {
			return nil, err
		}
		lat, lng := v[0], v[1]
		out = append(out, models.Location{ID: fmt.Sprintf("point-%d", i), Latitude: &lat, Longitude: &lng})
	}
	return out, nil
}

func parseBounds(s string) (tiles.Bounds, error) {
	v, err := parseFloats(s, 4)
	if err != nil {
		return tiles.Bounds{}, err
	}
	return tiles.Bounds{South: v[0], West: v[1], North: v[2], East: v[3]}, nil
}

// locations resolves --trip or --points.
func (f *areaFlags) locations(ctx context.Context, rt *runtime) ([]models.Location, error) {
	switch {
	case f.trip != "" && f.points != "":
		return nil, errors.New("use either --trip or --points")
	case f.points != "":
		return parsePoints(f.points)
	case f.trip != "":
		data, err := rt.app.Entities.GetCachedTripData(ctx, f.trip)
		if err != nil {
			return nil, err
		}
		if data == nil {
			return nil, fmt.Errorf("trip %s is not cached", f.trip)
		}
		return data.Locations, nil
	}
	return nil, errors.New("one of --trip or --points is required")
}

// box resolves --bounds or --points into an explicit area for runs that
// are not recorded under a trip.
func (f *areaFlags) box() (tiles.Bounds, tiles.ZoomRange, error) {
	var b tiles.Bounds
	switch {
	case f.bounds != "" && f.points != "":
		return b, tiles.ZoomRange{}, errors.New("use either --bounds or --points")
	case f.bounds != "":
		var err error
		if b, err = parseBounds(f.bounds); err != nil {
			return b, tiles.ZoomRange{}, err
		}
	case f.points != "":
		locs, err := parsePoints(f.points)
		if err != nil {
			return b, tiles.ZoomRange{}, err
		}
		pts := make([]tiles.Point, 0, len(locs))
		for _, l := range locs {
			pts = append(pts, tiles.Point{Lat: *l.Latitude, Lng: *l.Longitude})
		}
		b = tiles.BufferedBounds(pts, f.bufferKm)
	default:
		return b, tiles.ZoomRange{}, errors.New("one of --trip, --points or --bounds is required")
	}

	zoom, err := f.zoom()
	if err != nil {
		return b, tiles.ZoomRange{}, err
	}
	if zoom == nil {
		return b, tiles.RecommendedZoomLevels(b), nil
	}
	return b, *zoom, nil
}

func newEstimateCommand(rt *runtime) *cobra.Command {
	var area areaFlags
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate the tile download for a trip or a set of points",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			locs, err := area.locations(cmd.Context(), rt)
			if err != nil {
				return err
			}
			opts, err := area.estimateOptions()
			if err != nil {
				return err
			}
			return rt.printJSON(rt.app.Tiles.EstimateCacheSizeForTrip(locs, opts))
		},
	}
	area.bind(cmd, false)
	return cmd
}

func (rt *runtime) progress(p models.CacheProgress) {
	fmt.Fprintf(rt.errOut, "\r%d/%d tiles (cached %d, skipped %d, failed %d)",
		p.Done, p.Total, p.Cached, p.Skipped, p.Failed)
	if p.Done == p.Total {
		fmt.Fprintln(rt.errOut)
	}
}

func newCacheTilesCommand(rt *runtime) *cobra.Command {
	var (
		area       areaFlags
		overwrite  bool
		batchSize  int
		batchDelay time.Duration
		quiet      bool
	)
	cmd := &cobra.Command{
		Use:   "cache-tiles",
		Short: "Download map tiles for a trip, a set of points or a box",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			opts := services.CacheOptions{BatchSize: batchSize, BatchDelay: batchDelay, Overwrite: overwrite}
			var onProgress services.ProgressFunc
			if !quiet {
				onProgress = rt.progress
			}

			var (
				res models.CacheResult
				err error
			)
			if area.trip != "" {
				if area.bounds != "" {
					return errors.New("use either --trip or --bounds")
				}
				locs, lerr := area.locations(ctx, rt)
				if lerr != nil {
					return lerr
				}
				est, eerr := area.estimateOptions()
				if eerr != nil {
					return eerr
				}
				res, err = rt.app.Tiles.CacheTilesForTrip(ctx, area.trip, locs, onProgress,
					services.TripCacheOptions{EstimateOptions: est, CacheOptions: opts})
			} else {
				b, zoom, aerr := area.box()
				if aerr != nil {
					return aerr
				}
				res, err = rt.app.Tiles.CacheTilesForBounds(ctx, b, zoom, onProgress, opts)
			}

			if perr := rt.printJSON(res); perr != nil {
				return errors.Join(err, perr)
			}
			return err
		},
	}
	area.bind(cmd, true)
	fs := cmd.Flags()
	fs.BoolVar(&overwrite, "overwrite", false, "refetch tiles that are already cached")
	fs.IntVar(&batchSize, "batch-size", 0, "concurrent fetches per batch, default from config")
	fs.DurationVar(&batchDelay, "batch-delay", 0, "pause between batches, default from config")
	fs.BoolVarP(&quiet, "quiet", "q", false, "do not report progress")
	return cmd
}

func newTilesCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{Use: "tiles", Short: "Cached map tiles"}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show tile cache totals over all trips",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := rt.app.Tiles.GetCacheStats(cmd.Context())
			if err != nil {
				return err
			}
			return rt.printJSON(stats)
		},
	})

	var trip string
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the tiles of one trip, or every tile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if trip != "" {
				return rt.app.Tiles.ClearTripTiles(cmd.Context(), trip)
			}
			if err := rt.confirm("Remove every cached tile?"); err != nil {
				return err
			}
			return rt.app.Tiles.ClearAllTiles(cmd.Context())
		},
	}
	clearCmd.Flags().StringVar(&trip, "trip", "", "only this trip's tiles; tiles shared with other trips stay")
	cmd.AddCommand(clearCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "url Z X Y",
		Short: "Print the cached tile locator or the live provider URL",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var zxy [3]int
			for i, a := range args {
				v, err := strconv.Atoi(a)
				if err != nil {
					return fmt.Errorf("tile coordinate %q: %w", a, err)
				}
				zxy[i] = v
			}
			fmt.Fprintln(rt.out, rt.app.Tiles.GetOfflineAwareTileURL(cmd.Context(), zxy[0], zxy[1], zxy[2]))
			return nil
		},
	})

	return cmd
}
