package eshot

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/eshotmap/eshot_core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *bytes.Buffer) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	c := NewClient(Config{
		StopsURL: srv.URL + "/stops.csv",
		LinesURL: srv.URL + "/lines.csv",
		BusesURL: srv.URL + "/buses/",
		Timeout:  2 * time.Second,
	}, logger)
	return c, &buf
}

func TestFetchBlobs(t *testing.T) {
	var userAgents []string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		userAgents = append(userAgents, r.UserAgent())
		switch r.URL.Path {
		case "/stops.csv":
			_, _ = w.Write([]byte("DURAK_ID;ENLEM;BOYLAM\n1;38,4;27,1"))
		case "/lines.csv":
			w.WriteHeader(http.StatusNonAuthoritativeInfo)
			_, _ = w.Write([]byte("HAT_NO\n5"))
		default:
			http.NotFound(w, r)
		}
	})

	stops, err := c.FetchStopsBlob(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "DURAK_ID;ENLEM;BOYLAM\n1;38,4;27,1", string(stops))

	lines, err := c.Fetch(context.Background(), models.ResourceLines)
	require.NoError(t, err, "any 2xx status is a success")
	assert.Equal(t, "HAT_NO\n5", string(lines))

	require.Len(t, userAgents, 2)
	for _, ua := range userAgents {
		assert.Equal(t, DefaultUserAgent, ua)
	}
}

func TestFetchBlobNonSuccess(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := c.FetchStopsBlob(context.Background())
	require.Error(t, err)

	var dlErr *DownloadError
	require.True(t, errors.As(err, &dlErr))
	assert.Equal(t, http.StatusForbidden, dlErr.StatusCode)
	assert.Contains(t, dlErr.URL, "/stops.csv")
	assert.Contains(t, err.Error(), "HTTP 403")
}

func TestFetchBlobNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(Config{StopsURL: url + "/stops.csv", Timeout: time.Second}, nil)
	_, err := c.FetchStopsBlob(context.Background())

	var dlErr *DownloadError
	require.True(t, errors.As(err, &dlErr))
	assert.Zero(t, dlErr.StatusCode)
	assert.NotNil(t, dlErr.Unwrap())
}

func TestFetchBlobTimeout(t *testing.T) {
	release := make(chan struct{})
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.FetchLinesBlob(ctx)
	var dlErr *DownloadError
	require.True(t, errors.As(err, &dlErr))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetchUnknownResource(t *testing.T) {
	c := NewClient(Config{}, nil)
	_, err := c.Fetch(context.Background(), models.Resource("buses"))
	assert.Error(t, err)
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(Config{}, nil)
	assert.Equal(t, DefaultConfig(), c.cfg)
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)
}

func TestFetchApproachingBuses(t *testing.T) {
	var gotPath, gotUA string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotUA = r.UserAgent()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"OtobusId": 1234, "HatNumarasi": 5, "HatAdi": "NARLIDERE - ÜÇKUYULAR",
			 "KoorX": "38,403", "KoorY": "27,125", "KalanDurakSayisi": 3, "HattinYonu": 1,
			 "Plaka": "35 ABC 123"},
			{"OtobusId": 99, "HatNumarasi": 169, "HatAdi": "BUCA KOOP",
			 "KoorX": null, "KalanDurakSayisi": 7, "HattinYonu": 2},
			{"OtobusId": 7, "HatNumarasi": 8, "HatAdi": "X", "KoorX": "abc", "KoorY": "27,1"}
		]`))
	})

	buses := c.FetchApproachingBuses(context.Background(), "10005")
	require.Len(t, buses, 3)

	assert.Equal(t, "/buses/10005", gotPath)
	assert.Equal(t, DefaultUserAgent, gotUA)

	first := buses[0]
	assert.Equal(t, 1234, first.BusID)
	assert.Equal(t, 5, first.LineNo)
	assert.Equal(t, "NARLIDERE - ÜÇKUYULAR", first.LineName)
	assert.Equal(t, 3, first.RemainingStops)
	assert.Equal(t, 1, first.Direction)
	require.True(t, first.HasPosition())
	assert.InDelta(t, 38.403, *first.Latitude, 1e-9)
	assert.InDelta(t, 27.125, *first.Longitude, 1e-9)

	assert.False(t, buses[1].HasPosition())
	assert.False(t, buses[2].HasPosition())
}

func TestFetchApproachingBusesEscapesStopID(t *testing.T) {
	var gotPath string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_, _ = w.Write([]byte(`[]`))
	})

	buses := c.FetchApproachingBuses(context.Background(), "a/b c")
	assert.NotNil(t, buses)
	assert.Empty(t, buses)
	assert.Equal(t, "/buses/a%2Fb%20c", gotPath)
}

func TestFetchApproachingBusesFailuresYieldEmpty(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		logMsg  string
	}{
		{
			name: "Server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			logMsg: "live feed returned non-success status",
		},
		{
			name: "Malformed JSON",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"not": "an array"`))
			},
			logMsg: "live feed decode failed",
		},
		{
			name: "Object instead of array",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"OtobusId": 1}`))
			},
			logMsg: "live feed decode failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, logs := newTestClient(t, tt.handler)
			buses := c.FetchApproachingBuses(context.Background(), "10005")
			assert.NotNil(t, buses)
			assert.Empty(t, buses)
			assert.Contains(t, logs.String(), tt.logMsg)
		})
	}
}

func TestFetchApproachingBusesEmptyStopID(t *testing.T) {
	called := false
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	assert.Empty(t, c.FetchApproachingBuses(context.Background(), "  "))
	assert.False(t, called)
}

func TestFetchApproachingBusesCanceled(t *testing.T) {
	c, logs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Empty(t, c.FetchApproachingBuses(ctx, "10005"))
	assert.Contains(t, logs.String(), "live feed request failed")
}
