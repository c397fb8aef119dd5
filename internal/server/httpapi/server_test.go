package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/dmitrijs2005/framekeeper/internal/common"
	"github.com/dmitrijs2005/framekeeper/internal/cryptox"
	"github.com/dmitrijs2005/framekeeper/internal/logging"
	"github.com/dmitrijs2005/framekeeper/internal/server/linking"
	"github.com/dmitrijs2005/framekeeper/internal/server/models"
	"github.com/dmitrijs2005/framekeeper/internal/server/pairing"
	"github.com/dmitrijs2005/framekeeper/internal/server/registry"
	"github.com/dmitrijs2005/framekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/framekeeper/internal/server/storage"
	"github.com/dmitrijs2005/framekeeper/internal/server/syncer"
	"github.com/dmitrijs2005/framekeeper/internal/server/updates"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	items []string
}

func (s *stubSource) ListCurrentItems(ctx context.Context, albumHandle string) ([]string, error) {
	return s.items, nil
}

type stubFetcher struct{}

func (stubFetcher) Fetch(ctx context.Context, locator string) ([]byte, error) {
	return []byte("bytes of " + locator), nil
}

type apiFixture struct {
	srv      *httptest.Server
	sessions *pairing.Store
	linking  *linking.Service
	reg      *registry.Service
	engine   *syncer.Engine
	source   *stubSource
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	repos := repomanager.NewInMemoryRepositoryManager()
	blobs := storage.NewMemoryBlobStore()

	reg := registry.NewService(nil, repos, blobs, registry.PassthroughPipeline{},
		cryptox.DeriveSecret("test-secret", "keyhash"), logger)
	upd := updates.NewService(nil, repos,
		cryptox.DeriveSecret("test-secret", "token"), time.Hour, logger)
	sessions := pairing.NewStore(100, 10*time.Minute)
	source := &stubSource{}
	engine := syncer.NewEngine(reg, upd, source, stubFetcher{}, 100, time.Second, logger)
	link := linking.NewService(sessions, reg, stubFetcher{}, time.Second, logger)

	api := NewServer(sessions, link, reg, upd, engine, logger)
	srv := httptest.NewServer(api.Router())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go engine.Run(ctx)

	return &apiFixture{srv: srv, sessions: sessions, linking: link, reg: reg, engine: engine, source: source}
}

func (f *apiFixture) postJSON(t *testing.T, path string, body any, out any) int {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(f.srv.URL+path, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestPairingFlow(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	var paired pairResponse
	code := f.postJSON(t, "/pair", pairRequest{DeviceID: "dev1", ScreenWidth: 1920, ScreenHeight: 1080}, &paired)
	require.Equal(t, http.StatusOK, code)
	require.NotEmpty(t, paired.SessionID)
	require.Len(t, paired.PairingCode, pairing.CodeLength)

	// Empty session polls as in-progress with zero ingested.
	var status any
	f.postJSON(t, "/status", sessionRequest{SessionID: paired.SessionID, DeviceID: "dev1", PairingCode: paired.PairingCode}, &status)
	assert.Equal(t, float64(0), status)

	rid, err := f.linking.IngestUpload(ctx, paired.SessionID, "a.jpg", []byte("image bytes"))
	require.NoError(t, err)
	require.NoError(t, f.linking.Complete(ctx, paired.SessionID))

	f.postJSON(t, "/status", sessionRequest{SessionID: paired.SessionID, DeviceID: "dev1", PairingCode: paired.PairingCode}, &status)
	assert.Equal(t, "Ready", status)

	var pkg map[string]string
	code = f.postJSON(t, "/package", sessionRequest{SessionID: paired.SessionID, DeviceID: "dev1", PairingCode: paired.PairingCode}, &pkg)
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, pkg, rid)

	// Second package call fails and the session polls as expired.
	code = f.postJSON(t, "/package", sessionRequest{SessionID: paired.SessionID, DeviceID: "dev1", PairingCode: paired.PairingCode}, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	f.postJSON(t, "/status", sessionRequest{SessionID: paired.SessionID, DeviceID: "dev1", PairingCode: paired.PairingCode}, &status)
	assert.Equal(t, "Expired", status)
}

func (f *apiFixture) getResource(t *testing.T, resourceID, key, deviceID string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/resource", nil)
	require.NoError(t, err)
	req.Header.Set(common.AccessKeyHeaderName, key)
	req.Header.Set(common.ResourceIDHeaderName, resourceID)
	req.Header.Set(common.DeviceIDHeaderName, deviceID)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestResourceEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	id, key, err := f.reg.Ingest(ctx, registry.IngestRequest{
		DeviceID: "dev1", SourceBytes: []byte("payload"), OriginLocator: "o",
	})
	require.NoError(t, err)

	resp := f.getResource(t, id, key, "dev1")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	// Wrong key and wrong device both read as the same 401.
	resp = f.getResource(t, id, "wrong-key", "dev1")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = f.getResource(t, id, key, "dev2")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRevokeEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	id, key, err := f.reg.Ingest(ctx, registry.IngestRequest{
		DeviceID: "dev1", SourceBytes: []byte("payload"), OriginLocator: "o",
	})
	require.NoError(t, err)

	var out revokeRequest
	code := f.postJSON(t, "/revoke", revokeRequest{
		DeviceID: "dev1",
		Links:    map[string]string{id: key, "ghost": "nokey"},
	}, &out)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]string{"ghost": "nokey"}, out.Links)

	resp := f.getResource(t, id, key, "dev1")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestInitialAndUpdatePoll(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	id, key, err := f.reg.Ingest(ctx, registry.IngestRequest{
		DeviceID: "dev1", SourceBytes: []byte("bytes of A"), OriginLocator: "A",
		Source: models.SourceScrapedAlbum, AlbumHandle: "alb",
	})
	require.NoError(t, err)

	// Unchanged album: plain 200, no session.
	f.source.items = []string{"A"}
	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/initial", nil)
	require.NoError(t, err)
	req.Header.Set(common.AccessKeyHeaderName, key)
	req.Header.Set(common.ResourceIDHeaderName, id)
	req.Header.Set(common.DeviceIDHeaderName, "dev1")
	req.Header.Set(common.ScreenWidthHeader, strconv.Itoa(1920))
	req.Header.Set(common.ScreenHeightHeader, strconv.Itoa(1080))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body)

	// Album gained an item: the response carries an update-session handle.
	f.source.items = []string{"A", "B"}
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	var handle initialResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&handle))
	resp.Body.Close()
	require.NotEmpty(t, handle.UpdateSessionID)

	// Poll until the background worker finishes the diff.
	var links map[string]string
	deadline := time.Now().Add(5 * time.Second)
	for {
		var raw json.RawMessage
		code := f.postJSON(t, "/update-poll", updatePollRequest{
			UpdateSessionID: handle.UpdateSessionID, DeviceID: "dev1", AccessKey: handle.AccessKey,
		}, &raw)
		require.Equal(t, http.StatusOK, code)
		if err := json.Unmarshal(raw, &links); err == nil && links != nil {
			break
		}
		require.True(t, time.Now().Before(deadline), "diff never became ready")
		time.Sleep(20 * time.Millisecond)
	}
	require.Len(t, links, 2)
	for rid, rkey := range links {
		_, err := f.reg.VerifyAndFetch(ctx, rid, rkey, "dev1")
		assert.NoError(t, err)
	}

	// Single use: the next poll is a 401.
	code := f.postJSON(t, "/update-poll", updatePollRequest{
		UpdateSessionID: handle.UpdateSessionID, DeviceID: "dev1", AccessKey: handle.AccessKey,
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)
	resp, err := http.Get(f.srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
