// Package tileclient downloads raster map tiles from a slippy-map provider.
package tileclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultTemplate is the OpenStreetMap tile URL template.
const DefaultTemplate = "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png"

// DefaultSubdomains are substituted for {s} in the template.
var DefaultSubdomains = []string{"a", "b", "c"}

var ErrEmptyTile = errors.New("empty tile body")

// StatusError is returned when the provider answers with a non-200 status.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tile %s: status %d", e.URL, e.Code)
}

// Client fetches tiles with a per-request timeout.
type Client struct {
	http       *resty.Client
	template   string
	subdomains []string
}

// New returns a client for template. Template placeholders are {z}, {x}, {y}
// and optionally {s}.
func New(template string, subdomains []string, timeout time.Duration) *Client {
	if template == "" {
		template = DefaultTemplate
	}
	if len(subdomains) == 0 {
		subdomains = DefaultSubdomains
	}

	c := resty.New().
		SetHeader("User-Agent", "tripkeeper-offline/1.0").
		SetHeader("Accept", "image/png,image/*")
	if timeout > 0 {
		c.SetTimeout(timeout)
	}

	return &Client{http: c, template: template, subdomains: subdomains}
}

// URL builds the live provider URL of a tile. The subdomain is chosen by
// (x+y) mod n so a tile always maps to the same host.
func (c *Client) URL(z, x, y int) string {
	s := c.subdomains[(x+y)%len(c.subdomains)]
	r := strings.NewReplacer(
		"{s}", s,
		"{z}", strconv.Itoa(z),
		"{x}", strconv.Itoa(x),
		"{y}", strconv.Itoa(y),
	)
	return r.Replace(c.template)
}

// Fetch downloads one tile.
func (c *Client) Fetch(ctx context.Context, z, x, y int) ([]byte, error) {
	url := c.URL(z, x, y)

	resp, err := c.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch tile %d/%d/%d: %w", z, x, y, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode(), URL: url}
	}

	body := resp.Body()
	if len(body) == 0 {
		return nil, fmt.Errorf("fetch tile %d/%d/%d: %w", z, x, y, ErrEmptyTile)
	}
	return body, nil
}
