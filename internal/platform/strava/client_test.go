package strava

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(srv *httptest.Server) *Client {
	return &Client{httpClient: srv.Client(), baseURL: srv.URL}
}

func TestActivitiesSinceWalksPages(t *testing.T) {
	after := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	var queries []url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/athlete/activities" {
			http.NotFound(w, r)
			return
		}
		queries = append(queries, r.URL.Query())

		var batch []Activity
		switch r.URL.Query().Get("page") {
		case "1":
			for i := 0; i < pageSize; i++ {
				batch = append(batch, Activity{ID: int64(i + 1), SportType: "Run"})
			}
		case "2":
			batch = []Activity{{ID: 9001, SportType: "Ride"}}
		}
		if err := json.NewEncoder(w).Encode(batch); err != nil {
			panic(err)
		}
	}))
	defer srv.Close()

	client := newTestClient(srv)
	activities, err := client.ActivitiesSince(context.Background(), after)
	require.NoError(t, err)
	require.Len(t, activities, pageSize+1)
	require.Equal(t, int64(9001), activities[pageSize].ID)

	require.Len(t, queries, 2, "a short page stops the walk")
	for i, q := range queries {
		require.Equal(t, strconv.FormatInt(after.Unix(), 10), q.Get("after"))
		require.Equal(t, strconv.Itoa(i+1), q.Get("page"))
		require.Equal(t, "100", q.Get("per_page"))
	}
}

func TestActivityStreamsRequestsAllKeys(t *testing.T) {
	var query url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/activities/42/streams" {
			http.NotFound(w, r)
			return
		}
		query = r.URL.Query()
		payload := `{
			"time": {"data": [0, 60, 120], "series_type": "time", "original_size": 3, "resolution": "high"},
			"heartrate": {"data": [118, 142, 150], "series_type": "time", "original_size": 3, "resolution": "high"},
			"velocity_smooth": {"data": [0, 3.2, 3.3], "series_type": "time", "original_size": 3, "resolution": "high"}
		}`
		if _, err := w.Write([]byte(payload)); err != nil {
			panic(err)
		}
	}))
	defer srv.Close()

	client := newTestClient(srv)
	streams, err := client.ActivityStreams(context.Background(), 42)
	require.NoError(t, err)

	require.Equal(t, "time,heartrate,velocity_smooth,altitude,distance,cadence,watts", query.Get("keys"))
	require.Equal(t, "true", query.Get("key_by_type"))

	require.Equal(t, []int{0, 60, 120}, streams.Time.Data)
	require.Equal(t, []int{118, 142, 150}, streams.Heartrate.Data)
	require.Equal(t, []float64{0, 3.2, 3.3}, streams.VelocitySmooth.Data)
	require.Nil(t, streams.Watts)
}

func TestGetJSONReportsAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		if _, err := w.Write([]byte(`{"message":"Authorization Error"}`)); err != nil {
			panic(err)
		}
	}))
	defer srv.Close()

	client := newTestClient(srv)
	_, err := client.Activities(context.Background(), time.Time{}, 1)
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 401")
	require.Contains(t, err.Error(), "Authorization Error")
}

func TestThrottleSpacesRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte(`[]`)); err != nil {
			panic(err)
		}
	}))
	defer srv.Close()

	client := newTestClient(srv)
	client.minInterval = 50 * time.Millisecond

	start := time.Now()
	for i := 0; i < 2; i++ {
		_, err := client.Activities(context.Background(), time.Time{}, 1)
		require.NoError(t, err)
	}
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestThrottleHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte(`[]`)); err != nil {
			panic(err)
		}
	}))
	defer srv.Close()

	client := newTestClient(srv)
	client.minInterval = time.Hour

	_, err := client.Activities(context.Background(), time.Time{}, 1)
	require.NoError(t, err, "the first request never waits")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.Activities(ctx, time.Time{}, 2)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
