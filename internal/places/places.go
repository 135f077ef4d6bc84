// Package places is a Google Places text-search client that returns
// restaurant candidates for the recommender.
package places

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"googlemaps.github.io/maps"

	"github.com/BTreeMap/Recommendy/internal/models"
)

const (
	DefaultBaseURL   = "https://maps.googleapis.com"
	DefaultPhotoSize = 400
	// DefaultPriceLevel is assumed when a listing carries no price level.
	DefaultPriceLevel = 2
	maxDetailLookups  = 5
	maxReviews        = 5
	photoPath         = "/maps/api/place/photo"
)

// detailFields is the field mask for the enrichment lookup. Places bills
// details by the fields requested.
var detailFields = []maps.PlaceDetailsFieldMask{
	maps.PlaceDetailsFieldMaskWebsite,
	maps.PlaceDetailsFieldMaskURL,
	maps.PlaceDetailsFieldMaskReviews,
}

// Opts holds configuration for the Places client.
type Opts struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Details    bool
}

// Option configures the Places client.
type Option func(*Opts)

// WithAPIKey sets the Google API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL overrides the Maps API host, e.g. for tests.
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// WithDetails toggles the per-place details lookup for website, maps link
// and reviews.
func WithDetails(enabled bool) Option {
	return func(o *Opts) { o.Details = enabled }
}

// Client searches Google Places.
type Client struct {
	maps    *maps.Client
	apiKey  string
	baseURL string
	details bool
}

// NewClient creates a Places client.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{BaseURL: DefaultBaseURL, Details: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("places: API key not set")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	mc, err := maps.NewClient(
		maps.WithAPIKey(cfg.APIKey),
		maps.WithBaseURL(cfg.BaseURL),
		maps.WithHTTPClient(cfg.HTTPClient),
	)
	if err != nil {
		return nil, fmt.Errorf("places: create maps client: %w", err)
	}
	return &Client{maps: mc, apiKey: cfg.APIKey, baseURL: cfg.BaseURL, details: cfg.Details}, nil
}

// Search runs a text search for restaurants matching query. Failures are
// logged and yield no candidates.
func (c *Client) Search(ctx context.Context, location, query string) []models.Candidate {
	q := strings.TrimSpace(query)
	if q == "" {
		q = "restaurants"
		if location != "" {
			q += " in " + location
		}
	}

	resp, err := c.maps.TextSearch(ctx, &maps.TextSearchRequest{Query: q, Type: maps.PlaceTypeRestaurant})
	if err != nil {
		slog.Error("Places.Search: text search failed", "error", err, "query", q)
		return nil
	}

	var out []models.Candidate
	for _, r := range resp.Results {
		out = append(out, c.candidate(r))
	}
	slog.Debug("Places.Search: results", "query", q, "count", len(out))

	if c.details && len(out) > 0 {
		c.enrich(ctx, out)
	}
	return out
}

func (c *Client) candidate(r maps.PlacesSearchResult) models.Candidate {
	cand := models.Candidate{
		Name:        r.Name,
		Rating:      float64(r.Rating),
		ReviewCount: r.UserRatingsTotal,
		PriceLevel:  DefaultPriceLevel,
		Address:     r.FormattedAddress,
		PlaceID:     r.PlaceID,
		Types:       r.Types,
	}
	// A zero price level is indistinguishable from an absent one here, and
	// free restaurants are rare enough to treat both as unknown.
	if r.PriceLevel > 0 {
		cand.PriceLevel = r.PriceLevel
	}
	if r.OpeningHours != nil && r.OpeningHours.OpenNow != nil {
		cand.OpenNow = *r.OpeningHours.OpenNow
	}
	if loc := r.Geometry.Location; loc.Lat != 0 || loc.Lng != 0 {
		lat, lng := loc.Lat, loc.Lng
		cand.Lat, cand.Lng = &lat, &lng
	}
	if len(r.Photos) > 0 && r.Photos[0].PhotoReference != "" {
		cand.PhotoRef = r.Photos[0].PhotoReference
		cand.PhotoURL = c.PhotoURL(cand.PhotoRef, DefaultPhotoSize)
	}
	return cand
}

// enrich fills website, maps link and reviews for the first few candidates.
// A failed lookup leaves that candidate as it was.
func (c *Client) enrich(ctx context.Context, cands []models.Candidate) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxDetailLookups)
	for i := range cands {
		if i >= maxDetailLookups || cands[i].PlaceID == "" {
			continue
		}
		g.Go(func() error {
			website, mapsURL, reviews, err := c.Details(gctx, cands[i].PlaceID)
			if err != nil {
				slog.Warn("Places.enrich: details lookup failed", "error", err, "placeID", cands[i].PlaceID)
				return nil
			}
			cands[i].Website, cands[i].MapsURL, cands[i].Reviews = website, mapsURL, reviews
			return nil
		})
	}
	_ = g.Wait()
}

// Details fetches a place's website, Google Maps URL and review texts.
func (c *Client) Details(ctx context.Context, placeID string) (website, mapsURL string, reviews []string, err error) {
	res, err := c.maps.PlaceDetails(ctx, &maps.PlaceDetailsRequest{PlaceID: placeID, Fields: detailFields})
	if err != nil {
		return "", "", nil, fmt.Errorf("places: details %s: %w", placeID, err)
	}
	for _, r := range res.Reviews {
		if len(reviews) == maxReviews {
			break
		}
		if r.Text != "" {
			reviews = append(reviews, r.Text)
		}
	}
	return res.Website, res.URL, reviews, nil
}

// PhotoURL builds a browser-loadable photo URL for a photo reference. The
// maps client only downloads photo bytes, so the link is assembled with the
// same parameters it sends. The URL carries the API key.
func (c *Client) PhotoURL(ref string, maxWidth int) string {
	params := url.Values{}
	params.Set("maxwidth", fmt.Sprint(maxWidth))
	params.Set("photoreference", ref)
	params.Set("key", c.apiKey)
	return c.baseURL + photoPath + "?" + params.Encode()
}
