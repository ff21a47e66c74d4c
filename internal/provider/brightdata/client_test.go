package brightdata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/socialpulse/crawl-ingest/internal/ingest"
	"github.com/socialpulse/crawl-ingest/internal/provider"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := New(provider.HTTPConfig{BaseURL: srv.URL, Token: "test-token"}, zap.NewNop())
	require.NoError(t, err)
	return client
}

func TestTrigger_ReturnsSnapshotID(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/trigger", r.URL.Path)
		require.Equal(t, "gd_facebook", r.URL.Query().Get("dataset_id"))
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var body []map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body, 1)
		require.Equal(t, "https://facebook.com/x", body[0]["url"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"snapshot_id":"s_abc123"}`))
	}))

	id, err := client.Trigger(context.Background(), "gd_facebook", map[string]any{
		"url": "https://facebook.com/x",
	})
	require.NoError(t, err)
	require.Equal(t, "s_abc123", id)
}

func TestTrigger_MissingSnapshotIDIsProtocolError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))

	_, err := client.Trigger(context.Background(), "gd_facebook", map[string]any{"url": "https://facebook.com/x"})
	var protoErr *ingest.ProviderProtocolError
	require.ErrorAs(t, err, &protoErr)
}

func TestTrigger_Non200IsRequestError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"bad dataset"}`, http.StatusBadRequest)
	}))

	_, err := client.Trigger(context.Background(), "gd_bogus", map[string]any{"url": "https://facebook.com/x"})
	var reqErr *ingest.ProviderRequestError
	require.ErrorAs(t, err, &reqErr)
	require.Equal(t, http.StatusBadRequest, reqErr.StatusCode)
}

func TestCheckStatus_Mapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		native string
		state  provider.TriState
		ready  bool
	}{
		{"running", provider.StatePending, false},
		{"collecting", provider.StatePending, false},
		{"ready", provider.StateReady, true},
		{"completed", provider.StateReady, true},
		{"failed", provider.StateFailed, false},
		{"cancelled", provider.StateFailed, false},
	}

	for _, tc := range cases {
		t.Run(tc.native, func(t *testing.T) {
			t.Parallel()

			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/progress/s_1", r.URL.Path)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": tc.native})
			}))

			status, err := client.CheckStatus(context.Background(), "s_1")
			require.NoError(t, err)
			require.Equal(t, tc.state, status.State)
			require.Equal(t, tc.ready, status.Ready)
			require.Equal(t, tc.native, status.Native)
		})
	}
}

func TestDownload_ReturnsRawBytes(t *testing.T) {
	t.Parallel()

	payload := `{"a":1}{"b":2}`
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/snapshot/s_raw", r.URL.Path)
		_, _ = w.Write([]byte(payload))
	}))

	data, err := client.Download(context.Background(), "s_raw", 0)
	require.NoError(t, err)
	require.Equal(t, payload, string(data))
}

func TestNew_RequiresToken(t *testing.T) {
	t.Parallel()

	_, err := New(provider.HTTPConfig{}, zap.NewNop())
	require.Error(t, err)
}
