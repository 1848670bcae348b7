package imagery

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recon-flyover/internal/geo"
)

var achill = geo.Coordinate{Latitude: 53.9889, Longitude: -10.0661}

// payload returns an n-byte body that starts with a valid 8x8 PNG
func payload(n int) []byte {
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 0xAB
	}
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	if buf.Len() < n {
		buf.Write(make([]byte, n-buf.Len()))
	}
	return buf.Bytes()
}

type countingServer struct {
	*httptest.Server
	hits int32
}

func newServer(t *testing.T, status int, body []byte) *countingServer {
	cs := &countingServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&cs.hits, 1)
		w.WriteHeader(status)
		w.Write(body)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *countingServer) Hits() int32 { return atomic.LoadInt32(&cs.hits) }

func tileSource(t *testing.T, name string, srv *countingServer) *TileSource {
	src, err := NewTileSource(name, srv.URL+"/"+name+"/{z}/{x}/{y}")
	require.NoError(t, err)
	return src
}

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: map[string][]byte{}} }

func (m *memStore) key(p string, z, x, y int) string { return fmt.Sprintf("%s:%d:%d:%d", p, z, x, y) }

func (m *memStore) Get(p string, z, x, y int) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[m.key(p, z, x, y)]
	return d, ok
}

func (m *memStore) Set(p string, z, x, y int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[m.key(p, z, x, y)] = data
	return nil
}

type outcomes struct {
	mu   sync.Mutex
	list []string
}

func (o *outcomes) RecordFetch(source, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.list = append(o.list, source+":"+outcome)
}

func TestFetchFirstSuccessWins(t *testing.T) {
	failing := newServer(t, http.StatusInternalServerError, nil)
	good := newServer(t, http.StatusOK, payload(5000))
	never := newServer(t, http.StatusOK, payload(9000))

	rec := &outcomes{}
	f := NewFetcher([]Source{
		tileSource(t, "failing", failing),
		tileSource(t, "good", good),
		tileSource(t, "never", never),
	}, time.Second, DefaultMinBytes)
	f.SetRecorder(rec)

	dest := filepath.Join(t.TempDir(), "frame_1_satellite.jpg")
	res, err := f.Fetch(context.Background(), geo.Viewpoint{Index: 1, Coordinate: achill}, 17, dest)
	require.NoError(t, err)

	assert.Equal(t, "good", res.Source)
	assert.Equal(t, dest, res.Path)
	assert.Equal(t, 5000, res.Bytes)
	assert.True(t, res.Tiled)
	assert.Equal(t, int32(1), failing.Hits())
	assert.Equal(t, int32(1), good.Hits())
	assert.Equal(t, int32(0), never.Hits())
	assert.Equal(t, []string{"failing:http_error", "good:success"}, rec.list)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Len(t, data, 5000)
}

func TestFetchRejectsPlaceholderPayload(t *testing.T) {
	tiny := newServer(t, http.StatusOK, payload(DefaultMinBytes))
	good := newServer(t, http.StatusOK, payload(DefaultMinBytes+1))

	f := NewFetcher([]Source{tileSource(t, "tiny", tiny), tileSource(t, "good", good)}, time.Second, 0)
	res, err := f.Fetch(context.Background(), geo.Viewpoint{Index: 2, Coordinate: achill}, 17, filepath.Join(t.TempDir(), "f.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "good", res.Source)
	assert.Equal(t, int32(1), tiny.Hits())
}

func TestFetchRejectsNonImagePayload(t *testing.T) {
	page := bytes.Repeat([]byte("<html><body>tile service maintenance</body></html>\n"), 50)
	html := newServer(t, http.StatusOK, page)
	good := newServer(t, http.StatusOK, payload(2000))

	rec := &outcomes{}
	f := NewFetcher([]Source{tileSource(t, "html", html), tileSource(t, "good", good)}, time.Second, 0)
	f.SetRecorder(rec)

	res, err := f.Fetch(context.Background(), geo.Viewpoint{Index: 1, Coordinate: achill}, 17, filepath.Join(t.TempDir(), "f.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "good", res.Source)
	assert.Equal(t, []string{"html:not_image", "good:success"}, rec.list)
}

func TestFetchOnlyNonImagePayloads(t *testing.T) {
	html := newServer(t, http.StatusOK, bytes.Repeat([]byte{0xAB}, 5000))
	f := NewFetcher([]Source{tileSource(t, "html", html)}, time.Second, 0)

	dest := filepath.Join(t.TempDir(), "f.jpg")
	_, err := f.Fetch(context.Background(), geo.Viewpoint{Index: 1, Coordinate: achill}, 17, dest)
	require.ErrorIs(t, err, ErrFetchFailed)
	assert.Contains(t, err.Error(), "not an image")
	assert.NoFileExists(t, dest)
}

func TestFetchAllForbidden(t *testing.T) {
	a := newServer(t, http.StatusForbidden, payload(5000))
	b := newServer(t, http.StatusTooManyRequests, nil)

	f := NewFetcher([]Source{tileSource(t, "a", a), tileSource(t, "b", b)}, time.Second, 0)

	var events []RateLimitEvent
	f.RateLimits().SetOnRateLimit(func(e RateLimitEvent) { events = append(events, e) })

	dest := filepath.Join(t.TempDir(), "frame_3_satellite.jpg")
	_, err := f.Fetch(context.Background(), geo.Viewpoint{Index: 3, Coordinate: achill}, 17, dest)
	require.ErrorIs(t, err, ErrFetchFailed)

	assert.NoFileExists(t, dest)
	assert.True(t, f.RateLimits().IsRateLimited("a"))
	assert.True(t, f.RateLimits().IsRateLimited("b"))
	require.Len(t, events, 2)
	assert.Equal(t, http.StatusForbidden, events[0].StatusCode)
	assert.Len(t, f.RateLimits().Snapshot(), 2)
}

func TestFetchUnreachableSource(t *testing.T) {
	dead := newServer(t, http.StatusOK, nil)
	deadURL := dead.URL
	dead.Close()

	good := newServer(t, http.StatusOK, payload(2048))
	deadSrc, err := NewTileSource("dead", deadURL+"/{z}/{x}/{y}")
	require.NoError(t, err)

	f := NewFetcher([]Source{deadSrc, tileSource(t, "good", good)}, time.Second, 0)
	res, err := f.Fetch(context.Background(), geo.Viewpoint{Index: 1, Coordinate: achill}, 17, filepath.Join(t.TempDir(), "f.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "good", res.Source)
}

func TestFetchTimeoutMovesOn(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	good := newServer(t, http.StatusOK, payload(2048))

	slowSrc, err := NewTileSource("slow", slow.URL+"/{z}/{x}/{y}")
	require.NoError(t, err)

	f := NewFetcher([]Source{slowSrc, tileSource(t, "good", good)}, 50*time.Millisecond, 0)
	res, err := f.Fetch(context.Background(), geo.Viewpoint{Index: 1, Coordinate: achill}, 17, filepath.Join(t.TempDir(), "f.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "good", res.Source)
}

func TestFetchCanceledContext(t *testing.T) {
	good := newServer(t, http.StatusOK, payload(2048))
	f := NewFetcher([]Source{tileSource(t, "good", good)}, time.Second, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dest := filepath.Join(t.TempDir(), "f.jpg")
	_, err := f.Fetch(ctx, geo.Viewpoint{Index: 1, Coordinate: achill}, 17, dest)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), good.Hits())
	assert.NoFileExists(t, dest)
}

func TestFetchUsesCache(t *testing.T) {
	good := newServer(t, http.StatusOK, payload(3000))
	store := newMemStore()

	f := NewFetcher([]Source{tileSource(t, "good", good)}, time.Second, 0)
	f.SetCache(store)
	vp := geo.Viewpoint{Index: 1, Coordinate: achill}
	dir := t.TempDir()

	first, err := f.Fetch(context.Background(), vp, 17, filepath.Join(dir, "a.jpg"))
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := f.Fetch(context.Background(), vp, 17, filepath.Join(dir, "b.jpg"))
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, int32(1), good.Hits())

	tile := geo.ToTile(achill, 17)
	_, ok := store.Get("good", 17, tile.X, tile.Y)
	assert.True(t, ok)
}

func TestStaticMapSourceOnlyWhenTilesFail(t *testing.T) {
	tiles := newServer(t, http.StatusNotFound, nil)

	var query url.Values
	static := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		w.Write(payload(4096))
	}))
	defer static.Close()

	f := NewFetcher([]Source{
		tileSource(t, "tiles", tiles),
		NewStaticMapSource("static", static.URL, "secret"),
	}, time.Second, 0)

	res, err := f.Fetch(context.Background(), geo.Viewpoint{Nadir: true, Coordinate: achill}, 18, filepath.Join(t.TempDir(), "frame_center_satellite.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "static", res.Source)
	assert.False(t, res.Tiled)
	assert.Equal(t, "53.988900,-10.066100", query.Get("center"))
	assert.Equal(t, "18", query.Get("zoom"))
	assert.Equal(t, "800x800", query.Get("size"))
	assert.Equal(t, "satellite", query.Get("maptype"))
	assert.Equal(t, "2", query.Get("scale"))
	assert.Equal(t, "secret", query.Get("key"))
}

func TestTileSourceURL(t *testing.T) {
	esri, err := NewTileSource("esri", EsriWorldImageryTemplate)
	require.NoError(t, err)
	assert.Equal(t,
		"https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/17/42091/61871",
		esri.URL(achill, 17))

	google, err := NewTileSource("google", GoogleSatelliteTemplate)
	require.NoError(t, err)
	assert.Equal(t, "https://mt1.google.com/vt/lyrs=s&x=61871&y=42091&z=17", google.URL(achill, 17))

	bing, err := NewTileSource("bing", "https://example.test/a{q}.jpeg")
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/a3.jpeg", bing.URL(geo.Coordinate{Latitude: -10, Longitude: 10}, 1))

	_, err = NewTileSource("bad", "https://example.test/{z}/{x}")
	assert.Error(t, err)
}

func TestStaticMapSourceWithoutKey(t *testing.T) {
	s := NewStaticMapSource("static", "", "")
	u, err := url.Parse(s.URL(achill, 18))
	require.NoError(t, err)
	assert.Equal(t, "maps.googleapis.com", u.Host)
	assert.False(t, u.Query().Has("key"))
}

func TestDefaultSourcesOrder(t *testing.T) {
	f := NewFetcher(DefaultSources(""), 0, 0)
	assert.Equal(t, []string{"esri_world_imagery", "google_satellite", "openstreetmap", "google_static_maps"}, f.Sources())
}

func TestRateLimitRecovery(t *testing.T) {
	tr := NewRateLimitTracker()
	var recovered []string
	tr.SetOnRecovered(func(p string) { recovered = append(recovered, p) })

	assert.True(t, tr.Observe("esri", http.StatusTooManyRequests))
	assert.True(t, tr.Observe("esri", 509))
	require.NotNil(t, tr.State("esri"))
	assert.Equal(t, 2, tr.State("esri").Count)

	assert.False(t, tr.Observe("esri", http.StatusNotFound))
	assert.True(t, tr.IsRateLimited("esri"))

	assert.False(t, tr.Observe("esri", http.StatusOK))
	assert.False(t, tr.IsRateLimited("esri"))
	assert.Nil(t, tr.State("esri"))
	assert.Equal(t, []string{"esri"}, recovered)
}

func TestFetchMaxConcurrent(t *testing.T) {
	var inFlight, peak int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		w.Write(payload(2048))
	}))
	defer srv.Close()

	src, err := NewTileSource("slow", srv.URL+"/{z}/{x}/{y}")
	require.NoError(t, err)
	f := NewFetcher([]Source{src}, time.Second, 0)
	f.SetMaxConcurrent(2)

	dir := t.TempDir()
	var wg sync.WaitGroup
	for i := 1; i <= 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			vp := geo.Viewpoint{Index: i, Coordinate: achill}
			_, err := f.Fetch(context.Background(), vp, 17, filepath.Join(dir, fmt.Sprintf("frame_%d.jpg", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}
