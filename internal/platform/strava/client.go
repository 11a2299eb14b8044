// Package strava pulls activities and streams from the Strava API and
// maps them into the shape the domain service ingests. The sync CLI
// runs on a pre-provisioned refresh token; there is no interactive
// authorization here.
package strava

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

const (
	defaultBaseURL = "https://www.strava.com/api/v3"
	tokenURL       = "https://www.strava.com/oauth/token"
	authURL        = "https://www.strava.com/oauth/authorize"

	// Strava allows 100 requests per 15 minutes; fixed spacing keeps a
	// long backfill under the window.
	minRequestInterval = 200 * time.Millisecond

	pageSize = 100
)

// Config holds the credentials for the refresh-token flow.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// Client is a minimal Strava API client. The oauth2 transport refreshes
// the access token on demand.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	minInterval time.Duration

	mu          sync.Mutex
	lastRequest time.Time
}

// NewClient builds a client whose token source bootstraps from the
// refresh token alone; the first request triggers the initial exchange.
func NewClient(ctx context.Context, cfg Config) *Client {
	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  authURL,
			TokenURL: tokenURL,
		},
	}
	seed := &oauth2.Token{RefreshToken: cfg.RefreshToken}
	return &Client{
		httpClient:  oauth2.NewClient(ctx, oc.TokenSource(ctx, seed)),
		baseURL:     defaultBaseURL,
		minInterval: minRequestInterval,
	}
}

// Activities fetches one page of athlete activities started after the
// given time.
func (c *Client) Activities(ctx context.Context, after time.Time, page int) ([]Activity, error) {
	params := url.Values{}
	if !after.IsZero() {
		params.Set("after", strconv.FormatInt(after.Unix(), 10))
	}
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(pageSize))

	var activities []Activity
	if err := c.getJSON(ctx, "/athlete/activities", params, &activities); err != nil {
		return nil, err
	}
	return activities, nil
}

// ActivitiesSince walks the pagination until the API returns a short
// page.
func (c *Client) ActivitiesSince(ctx context.Context, after time.Time) ([]Activity, error) {
	var all []Activity
	for page := 1; ; page++ {
		batch, err := c.Activities(ctx, after, page)
		if err != nil {
			return all, fmt.Errorf("fetch page %d: %w", page, err)
		}
		all = append(all, batch...)
		if len(batch) < pageSize {
			return all, nil
		}
	}
}

// ActivityStreams fetches the samples behind one activity, keyed by
// stream type. Activities logged manually have no streams; callers
// treat a failed fetch as summary-only.
func (c *Client) ActivityStreams(ctx context.Context, activityID int64) (*Streams, error) {
	params := url.Values{}
	params.Set("keys", "time,heartrate,velocity_smooth,altitude,distance,cadence,watts")
	params.Set("key_by_type", "true")

	var streams Streams
	path := fmt.Sprintf("/activities/%d/streams", activityID)
	if err := c.getJSON(ctx, path, params, &streams); err != nil {
		return nil, err
	}
	return &streams, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.throttle(ctx); err != nil {
		return err
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("strava api %s: status %d: %s", path, resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// throttle spaces requests out; a zero interval disables it.
func (c *Client) throttle(ctx context.Context) error {
	c.mu.Lock()
	now := time.Now()
	next := c.lastRequest.Add(c.minInterval)
	var wait time.Duration
	if next.After(now) {
		wait = next.Sub(now)
	}
	c.lastRequest = now.Add(wait)
	c.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
