package apify

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
	client, err := New(provider.HTTPConfig{BaseURL: srv.URL, Token: "apify-token"}, zap.NewNop())
	require.NoError(t, err)
	return client
}

func TestTrigger_StartsActorRun(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/acts/clockworks~tiktok-scraper/runs", r.URL.Path)

		var input map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&input))
		require.Contains(t, input, "profiles")

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"run_42","status":"READY"}}`))
	}))

	id, err := client.Trigger(context.Background(), "clockworks~tiktok-scraper", map[string]any{
		"profiles": []string{"https://tiktok.com/@x"},
	})
	require.NoError(t, err)
	require.Equal(t, "run_42", id)
}

func TestCheckStatus_Mapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		native string
		state  provider.TriState
		ready  bool
	}{
		{"READY", provider.StatePending, false},
		{"RUNNING", provider.StatePending, false},
		{"SUCCEEDED", provider.StateReady, true},
		{"FAILED", provider.StateFailed, false},
		{"ABORTED", provider.StateFailed, false},
		{"TIMED-OUT", provider.StateFailed, false},
	}

	for _, tc := range cases {
		t.Run(tc.native, func(t *testing.T) {
			t.Parallel()

			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/actor-runs/run_1", r.URL.Path)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"data": map[string]any{"id": "run_1", "status": tc.native, "statusMessage": "msg"},
				})
			}))

			status, err := client.CheckStatus(context.Background(), "run_1")
			require.NoError(t, err)
			require.Equal(t, tc.state, status.State)
			require.Equal(t, tc.ready, status.Ready)
			require.Equal(t, tc.native, status.Native)
		})
	}
}

func TestDownload_FetchesDefaultDataset(t *testing.T) {
	t.Parallel()

	items := `[{"webVideoUrl":"https://tiktok.com/v/1"}]`
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/actor-runs/run_ok":
			_, _ = w.Write([]byte(`{"data":{"id":"run_ok","status":"SUCCEEDED","defaultDatasetId":"ds_1"}}`))
		case "/datasets/ds_1/items":
			require.Equal(t, "25", r.URL.Query().Get("limit"))
			_, _ = w.Write([]byte(items))
		default:
			http.NotFound(w, r)
		}
	}))

	data, err := client.Download(context.Background(), "run_ok", 25)
	require.NoError(t, err)
	require.Equal(t, items, string(data))
}

func TestDownload_NotSucceededIsNotReady(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"id":"run_wip","status":"RUNNING"}}`))
	}))

	_, err := client.Download(context.Background(), "run_wip", 0)
	var notReady *ingest.NotReadyError
	require.ErrorAs(t, err, &notReady)
	require.Equal(t, "RUNNING", notReady.NativeStatus)
}

func TestDownload_MissingDatasetIsProtocolError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"id":"run_x","status":"SUCCEEDED"}}`))
	}))

	_, err := client.Download(context.Background(), "run_x", 0)
	var protoErr *ingest.ProviderProtocolError
	require.ErrorAs(t, err, &protoErr)
}
