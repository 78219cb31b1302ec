// Package tiles implements slippy-map tile math used to plan offline map
// downloads: covering a bounding box with (z, x, y) tiles, buffering a set of
// points into a box, and estimating download sizes.
//
// All functions are pure and never fail; degenerate input (an empty point set,
// an inverted zoom range) yields an empty or zero result.
package tiles

import (
	"fmt"
	"math"
)

const (
	// AverageTileSize is the assumed size of one raster tile in bytes.
	AverageTileSize = 15 * 1024

	// MaxLatitude is the Web-Mercator latitude limit.
	MaxLatitude = 85.05112878

	// MaxZoom is the highest zoom level served by common tile providers.
	MaxZoom = 19

	// DefaultBufferKm is the padding added around a trip's locations.
	DefaultBufferKm = 5.0

	kmPerDegree = 111.32
	minCos      = 0.01
)

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Bounds is a latitude/longitude rectangle.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// IsZero reports whether b is the zero box returned for empty input.
func (b Bounds) IsZero() bool {
	return b == Bounds{}
}

// ZoomRange is an inclusive range of zoom levels.
type ZoomRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Coord addresses one tile.
type Coord struct {
	Z int `json:"z"`
	X int `json:"x"`
	Y int `json:"y"`
}

// Key returns the stable "z/x/y" form of the coordinate.
func (c Coord) Key() string {
	return fmt.Sprintf("%d/%d/%d", c.Z, c.X, c.Y)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// LatLngToTile returns the column and row of the tile containing the point at
// zoom z. z is clamped to [0, MaxZoom].
func LatLngToTile(lat, lng float64, z int) (x, y int) {
	n := float64(int(1) << clampInt(z, 0, MaxZoom))
	lat = clamp(lat, -MaxLatitude, MaxLatitude)
	lng = clamp(lng, -180, 180)

	latRad := lat * math.Pi / 180
	fx := (lng + 180) / 360 * n
	fy := (1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n

	last := int(n) - 1
	return clampInt(int(math.Floor(fx)), 0, last), clampInt(int(math.Floor(fy)), 0, last)
}

// TileToLatLng returns the north-west corner of the tile. z is clamped to
// [0, MaxZoom].
func TileToLatLng(x, y, z int) (lat, lng float64) {
	n := float64(int(1) << clampInt(z, 0, MaxZoom))
	lng = float64(x)/n*360 - 180
	lat = math.Atan(math.Sinh(math.Pi*(1-2*float64(y)/n))) * 180 / math.Pi
	return lat, lng
}

func normalizeZoom(minZoom, maxZoom int) (int, int, bool) {
	minZoom = clampInt(minZoom, 0, MaxZoom)
	maxZoom = clampInt(maxZoom, 0, MaxZoom)
	return minZoom, maxZoom, minZoom <= maxZoom
}

func tileRange(b Bounds, z int) (x1, x2, y1, y2 int) {
	x1, y1 = LatLngToTile(b.North, b.West, z)
	x2, y2 = LatLngToTile(b.South, b.East, z)
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	if y1 > y2 {
		y1, y2 = y2, y1
	}
	return x1, x2, y1, y2
}

// ForBounds returns every tile covering b for each zoom level in
// [minZoom, maxZoom], ordered by zoom, then column, then row. A tile appears
// at most once per zoom level.
func ForBounds(b Bounds, minZoom, maxZoom int) []Coord {
	minZoom, maxZoom, ok := normalizeZoom(minZoom, maxZoom)
	if !ok || b.IsZero() {
		return nil
	}

	var out []Coord
	for z := minZoom; z <= maxZoom; z++ {
		x1, x2, y1, y2 := tileRange(b, z)
		for x := x1; x <= x2; x++ {
			for y := y1; y <= y2; y++ {
				out = append(out, Coord{Z: z, X: x, Y: y})
			}
		}
	}
	return out
}

// CountByZoom returns the number of tiles ForBounds would produce per zoom
// level without materializing them.
func CountByZoom(b Bounds, minZoom, maxZoom int) map[int]int {
	out := make(map[int]int)
	minZoom, maxZoom, ok := normalizeZoom(minZoom, maxZoom)
	if !ok || b.IsZero() {
		return out
	}
	for z := minZoom; z <= maxZoom; z++ {
		x1, x2, y1, y2 := tileRange(b, z)
		out[z] = (x2 - x1 + 1) * (y2 - y1 + 1)
	}
	return out
}

// BufferedBounds returns the smallest box enclosing points, widened by
// bufferKm on every side. The longitude padding is scaled by 1/cos(latitude)
// of the box center so the padding stays bufferKm wide on the ground.
func BufferedBounds(points []Point, bufferKm float64) Bounds {
	if len(points) == 0 {
		return Bounds{}
	}

	b := Bounds{North: points[0].Lat, South: points[0].Lat, East: points[0].Lng, West: points[0].Lng}
	for _, p := range points[1:] {
		b.North = math.Max(b.North, p.Lat)
		b.South = math.Min(b.South, p.Lat)
		b.East = math.Max(b.East, p.Lng)
		b.West = math.Min(b.West, p.Lng)
	}

	if bufferKm < 0 {
		bufferKm = 0
	}
	centerLat := (b.North + b.South) / 2
	cos := math.Max(math.Cos(centerLat*math.Pi/180), minCos)

	latBuf := bufferKm / kmPerDegree
	lngBuf := bufferKm / (kmPerDegree * cos)

	return Bounds{
		North: clamp(b.North+latBuf, -90, 90),
		South: clamp(b.South-latBuf, -90, 90),
		East:  clamp(b.East+lngBuf, -180, 180),
		West:  clamp(b.West-lngBuf, -180, 180),
	}
}

// EstimateDownloadSize returns the expected number of bytes for tileCount tiles.
func EstimateDownloadSize(tileCount int) int64 {
	if tileCount <= 0 {
		return 0
	}
	return int64(tileCount) * AverageTileSize
}

// RecommendedZoomLevels picks a zoom range for b; larger areas get a lower
// maximum zoom to keep tile counts bounded.
func RecommendedZoomLevels(b Bounds) ZoomRange {
	span := math.Max(b.North-b.South, b.East-b.West)
	switch {
	case span > 10:
		return ZoomRange{Min: 3, Max: 10}
	case span > 5:
		return ZoomRange{Min: 5, Max: 11}
	case span > 1:
		return ZoomRange{Min: 8, Max: 13}
	case span > 0.25:
		return ZoomRange{Min: 10, Max: 15}
	default:
		return ZoomRange{Min: 12, Max: 16}
	}
}
