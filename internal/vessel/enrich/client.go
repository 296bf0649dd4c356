package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrRateLimited reports a too-many-requests response from the
	// profile provider. The job reacts with an extended pause instead
	// of matching on status text.
	ErrRateLimited = errors.New("enrich: rate limited")

	// ErrNoProfile means the provider knows nothing about the MMSI.
	ErrNoProfile = errors.New("enrich: no profile for vessel")
)

// Profile is the static attribute set returned by a lookup.
type Profile struct {
	MMSI     int64   `json:"mmsi"`
	IMO      int64   `json:"imo"`
	Callsign string  `json:"callsign"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	LengthM  float64 `json:"lengthM"`
	WidthM   float64 `json:"widthM"`
	DraughtM float64 `json:"draughtM"`
	Flag     string  `json:"flag"`
}

// ProfileClient looks up vessel profiles by MMSI.
type ProfileClient interface {
	Lookup(ctx context.Context, mmsi int64) (*Profile, error)
}

const lookupTimeout = 10 * time.Second

// Client is the HTTP ProfileClient. Every call carries the API key;
// the provider rate-limits per key.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: lookupTimeout},
	}
}

func (c *Client) Lookup(ctx context.Context, mmsi int64) (*Profile, error) {
	url := fmt.Sprintf("%s/v1/vessels/%d", c.endpoint, mmsi)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lookup mmsi %d: %w", mmsi, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case http.StatusNotFound:
		return nil, ErrNoProfile
	default:
		return nil, fmt.Errorf("lookup mmsi %d: unexpected status %d", mmsi, resp.StatusCode)
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("decode profile for mmsi %d: %w", mmsi, err)
	}
	return &profile, nil
}

var _ ProfileClient = (*Client)(nil)
