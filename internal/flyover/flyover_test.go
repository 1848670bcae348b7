package flyover

import (
	"context"
	"encoding/json"
	"errors"
	"image/color"
	"image/gif"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"recon-flyover/internal/common"
	"recon-flyover/internal/geo"
	"recon-flyover/internal/hud"
	"recon-flyover/internal/imagery"
	"recon-flyover/internal/utils/naming"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var center = geo.Coordinate{Latitude: 53.9889, Longitude: -10.0661}

type fakeFetcher struct {
	fail     map[string]bool
	delay    time.Duration
	calls    int32
	inFlight int32
	peak     int32
	mu       sync.Mutex
	zooms    map[string]int
}

func (f *fakeFetcher) Fetch(ctx context.Context, vp geo.Viewpoint, zoom int, dest string) (imagery.Result, error) {
	atomic.AddInt32(&f.calls, 1)
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		peak := atomic.LoadInt32(&f.peak)
		if n <= peak || atomic.CompareAndSwapInt32(&f.peak, peak, n) {
			break
		}
	}

	f.mu.Lock()
	if f.zooms == nil {
		f.zooms = map[string]int{}
	}
	f.zooms[vp.Label()] = zoom
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.fail[vp.Label()] {
		return imagery.Result{}, imagery.ErrFetchFailed
	}
	if err := os.WriteFile(dest, []byte("raw-"+vp.Label()), 0644); err != nil {
		return imagery.Result{}, err
	}
	return imagery.Result{Path: dest, Source: "stub", Bytes: 8}, nil
}

type fakeEnhancer struct{ degrade bool }

func (e fakeEnhancer) Enhance(raw string) common.StepResult {
	if e.degrade {
		return common.Degrade(raw, errors.New("decode failed"))
	}
	return common.StepResult{Path: strings.TrimSuffix(raw, ".jpg") + "_enhanced.jpg", Status: common.StepSuccess}
}

type fakeAnnotator struct {
	mu   sync.Mutex
	seen []hud.Metadata
}

func (a *fakeAnnotator) Annotate(path string, md hud.Metadata) common.StepResult {
	a.mu.Lock()
	a.seen = append(a.seen, md)
	a.mu.Unlock()
	return common.StepResult{Path: hud.OutputPath(path), Status: common.StepSuccess}
}

type frameCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *frameCounter) RecordFrame(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[outcome]++
}

func ring(t *testing.T) []geo.Viewpoint {
	t.Helper()
	vps, err := geo.GenerateRing(center, 0.35, 6)
	require.NoError(t, err)
	return vps
}

func labels(seq *Sequence) []string {
	out := make([]string, 0, seq.Len())
	for _, f := range seq.Frames {
		out = append(out, f.Viewpoint.Label())
	}
	return out
}

func TestRunAndAssemble(t *testing.T) {
	dir := t.TempDir()
	fetcher := &fakeFetcher{}
	annotator := &fakeAnnotator{}
	counter := &frameCounter{}

	p := NewPipeline(fetcher, fakeEnhancer{}, annotator, Options{RingZoom: 17, NadirZoom: 18, Workers: 3})
	p.SetRecorder(counter)
	var progress int32
	p.SetProgress(func(done, total int) {
		atomic.AddInt32(&progress, 1)
		assert.Equal(t, 7, total)
	})

	frames := p.Run(context.Background(), ring(t), dir, Target{POI: "The Valley House", Location: "Achill Island"})
	require.Len(t, frames, 7)
	assert.Equal(t, int32(7), atomic.LoadInt32(&progress))
	assert.Equal(t, 7, counter.counts[OutcomeCompleted])

	seq, err := Assemble(frames, "The Valley House", center)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6", "center"}, labels(seq))
	assert.True(t, seq.HasNadir())
	assert.Equal(t, []string{"stub"}, seq.Sources())

	last := seq.Frames[6]
	assert.Equal(t, 18, last.Zoom)
	assert.Equal(t, geo.ToTile(center, 18), last.Tile)
	assert.Equal(t, filepath.Join(dir, "frame_center_satellite_enhanced_hud.jpg"), last.ImagePath())
	assert.Equal(t, 17, fetcher.zooms["1"])

	require.Len(t, annotator.seen, 7)
	assert.Equal(t, "The Valley House", annotator.seen[0].POI)
	assert.Equal(t, "Achill Island", annotator.seen[0].Location)
}

func TestFailedFramesAreExcluded(t *testing.T) {
	fetcher := &fakeFetcher{fail: map[string]bool{"2": true, "center": true}}
	counter := &frameCounter{}
	p := NewPipeline(fetcher, fakeEnhancer{}, &fakeAnnotator{}, DefaultOptions())
	p.SetRecorder(counter)

	frames := p.Run(context.Background(), ring(t), t.TempDir(), Target{POI: "Keem Bay"})
	seq, err := Assemble(frames, "Keem Bay", center)
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "3", "4", "5", "6"}, labels(seq))
	assert.False(t, seq.HasNadir())
	assert.Equal(t, 2, counter.counts[OutcomeFailed])
	for _, f := range frames {
		if f.Viewpoint.Label() == "2" {
			assert.ErrorIs(t, f.Err, imagery.ErrFetchFailed)
		}
	}
}

func TestDegradedFramesAreKept(t *testing.T) {
	counter := &frameCounter{}
	p := NewPipeline(&fakeFetcher{}, fakeEnhancer{degrade: true}, &fakeAnnotator{}, DefaultOptions())
	p.SetRecorder(counter)

	frames := p.Run(context.Background(), ring(t), t.TempDir(), Target{POI: "Keem Bay"})
	seq, err := Assemble(frames, "Keem Bay", center)
	require.NoError(t, err)
	assert.Equal(t, 7, seq.Len())
	assert.Equal(t, 7, counter.counts[OutcomeDegraded])

	f := seq.Frames[0]
	assert.Equal(t, common.StepDegraded, f.EnhanceStatus)
	assert.Equal(t, f.RawPath, f.EnhancedPath)
	assert.Equal(t, hud.OutputPath(f.RawPath), f.ImagePath())
}

func TestAllFramesFailed(t *testing.T) {
	fail := map[string]bool{}
	for _, vp := range ring(t) {
		fail[vp.Label()] = true
	}
	dir := t.TempDir()
	p := NewPipeline(&fakeFetcher{fail: fail}, fakeEnhancer{}, &fakeAnnotator{}, DefaultOptions())

	frames := p.Run(context.Background(), ring(t), dir, Target{POI: "Nowhere"})
	seq, err := Assemble(frames, "Nowhere", center)
	assert.ErrorIs(t, err, ErrSequenceEmpty)
	assert.Nil(t, seq)

	_, err = WriteViewer(seq, dir)
	assert.ErrorIs(t, err, ErrSequenceEmpty)
	assert.NoFileExists(t, filepath.Join(dir, naming.ViewerFile))
}

func TestRunCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := &fakeFetcher{}
	p := NewPipeline(fetcher, fakeEnhancer{}, &fakeAnnotator{}, DefaultOptions())
	frames := p.Run(ctx, ring(t), t.TempDir(), Target{POI: "Keem Bay"})

	require.Len(t, frames, 7)
	for _, f := range frames {
		assert.ErrorIs(t, f.Err, context.Canceled)
		assert.False(t, f.Completed())
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&fetcher.calls))
}

func TestWorkerPoolIsBounded(t *testing.T) {
	fetcher := &fakeFetcher{delay: 20 * time.Millisecond}
	p := NewPipeline(fetcher, fakeEnhancer{}, &fakeAnnotator{}, Options{RingZoom: 17, NadirZoom: 18, Workers: 2})

	vps, err := geo.GenerateRing(center, 0.35, 8)
	require.NoError(t, err)
	p.Run(context.Background(), vps, t.TempDir(), Target{POI: "Keem Bay"})

	assert.Equal(t, int32(9), atomic.LoadInt32(&fetcher.calls))
	assert.LessOrEqual(t, atomic.LoadInt32(&fetcher.peak), int32(2))
}

func TestRunEmpty(t *testing.T) {
	p := NewPipeline(&fakeFetcher{}, fakeEnhancer{}, &fakeAnnotator{}, DefaultOptions())
	assert.Empty(t, p.Run(context.Background(), nil, t.TempDir(), Target{}))
}

func completedFrame(dir string, vp geo.Viewpoint) Frame {
	raw := filepath.Join(dir, naming.RawFrameName(vp))
	enhanced := strings.TrimSuffix(raw, ".jpg") + "_enhanced.jpg"
	return Frame{
		Viewpoint:      vp,
		Source:         "esri_world_imagery",
		RawPath:        raw,
		EnhancedPath:   enhanced,
		AnnotatedPath:  hud.OutputPath(enhanced),
		EnhanceStatus:  common.StepSuccess,
		AnnotateStatus: common.StepSuccess,
	}
}

func TestAssembleSortsAndFilters(t *testing.T) {
	dir := t.TempDir()
	vps := ring(t)
	frames := []Frame{
		completedFrame(dir, vps[6]),
		completedFrame(dir, vps[3]),
		{Viewpoint: vps[1], Err: imagery.ErrFetchFailed},
		completedFrame(dir, vps[0]),
	}

	seq, err := Assemble(frames, "Keem Bay", center)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "4", "center"}, labels(seq))
	assert.Equal(t, center, seq.Center)
}

func TestWriteViewer(t *testing.T) {
	dir := t.TempDir()
	vps := ring(t)
	seq, err := Assemble([]Frame{
		completedFrame(dir, vps[0]),
		completedFrame(dir, vps[2]),
		completedFrame(dir, vps[6]),
	}, "The Valley House", center)
	require.NoError(t, err)

	path, err := WriteViewer(seq, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, naming.ViewerFile), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(data)

	assert.Contains(t, html, "The Valley House")
	assert.Contains(t, html, "setInterval(nextFrame, interval)")
	assert.Contains(t, html, "const interval = 2500")
	assert.Contains(t, html, "frame_1_satellite_enhanced_hud.jpg")
	assert.Contains(t, html, "frame_3_satellite_enhanced_hud.jpg")
	assert.Contains(t, html, "frame_center_satellite_enhanced_hud.jpg")
	assert.NotContains(t, html, "frame_2_satellite_enhanced_hud.jpg")
	assert.Contains(t, html, "CENTER OVERHEAD")
}

func TestWriteViewerWithoutNadir(t *testing.T) {
	dir := t.TempDir()
	vps := ring(t)
	seq, err := Assemble([]Frame{completedFrame(dir, vps[0])}, "Keem Bay", center)
	require.NoError(t, err)

	path, err := WriteViewer(seq, dir)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "CENTER OVERHEAD")
}

func TestWriteMetadata(t *testing.T) {
	dir := t.TempDir()
	vps := ring(t)
	seq, err := Assemble([]Frame{completedFrame(dir, vps[1]), completedFrame(dir, vps[6])}, "Keem Bay", center)
	require.NoError(t, err)
	seq.Location = "Achill Island"

	path, err := WriteMetadata(seq, dir)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var md Metadata
	require.NoError(t, json.Unmarshal(data, &md))

	assert.Equal(t, "Keem Bay", md.POI)
	assert.Equal(t, "Achill Island", md.Location)
	assert.Equal(t, 2, md.SuccessfulFrames)
	assert.True(t, md.HasNadir)
	assert.Equal(t, "53p9889N_10p0661W", md.CenterTag)
	require.Len(t, md.Frames, 2)
	assert.Equal(t, "2", md.Frames[0].Index)
	assert.Equal(t, "060", md.Frames[0].Bearing)
	assert.Equal(t, "center", md.Frames[1].Index)
	assert.Equal(t, "overhead", md.Frames[1].Bearing)
	assert.Equal(t, "frame_center_satellite_enhanced_hud.jpg", md.Frames[1].ImagePath)
}

func imageSequence(t *testing.T) (*Sequence, string) {
	t.Helper()
	dir := t.TempDir()
	vps := ring(t)
	var frames []Frame
	for i, vp := range vps[:3] {
		f := completedFrame(dir, vp)
		size := 64
		if i == 1 {
			size = 48 // degraded frame of another size
		}
		img := imaging.New(size, size, color.NRGBA{R: uint8(40 * i), G: 120, B: 60, A: 255})
		require.NoError(t, imaging.Save(img, f.AnnotatedPath))
		frames = append(frames, f)
	}
	seq, err := Assemble(frames, "Keem Bay", center)
	require.NoError(t, err)
	return seq, dir
}

func TestExportVideoAVI(t *testing.T) {
	seq, dir := imageSequence(t)
	opts := DefaultExportOptions()
	opts.Width, opts.Height = 64, 64

	path, err := ExportVideo(seq, dir, opts)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, naming.VideoFile), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestExportVideoGIF(t *testing.T) {
	seq, dir := imageSequence(t)
	opts := DefaultExportOptions()
	opts.Format = FormatGIF
	opts.Width, opts.Height = 64, 64

	path, err := ExportVideo(seq, dir, opts)
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	g, err := gif.DecodeAll(f)
	require.NoError(t, err)
	assert.Len(t, g.Image, 3)
	assert.Equal(t, 250, g.Delay[0])
}

func TestExportVideoRejectsUnknownFormat(t *testing.T) {
	seq, dir := imageSequence(t)
	opts := DefaultExportOptions()
	opts.Format = "mkv"
	opts.Width, opts.Height = 64, 64

	_, err := ExportVideo(seq, dir, opts)
	assert.Error(t, err)
}

func TestWriteNadirGeoTIFF(t *testing.T) {
	dir := t.TempDir()
	vps := ring(t)
	nadir := completedFrame(dir, vps[6])
	nadir.Tiled = true
	nadir.Tile = geo.ToTile(center, 18)
	require.NoError(t, imaging.Save(imaging.New(32, 32, color.NRGBA{G: 90, A: 255}), nadir.RawPath))

	seq, err := Assemble([]Frame{completedFrame(dir, vps[0]), nadir}, "Keem Bay", center)
	require.NoError(t, err)

	path, err := WriteNadirGeoTIFF(seq, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, naming.GeoTIFFFile), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{'I', 'I', 42, 0}, data[:4])
	assert.Contains(t, string(data), "Keem Bay nadir, tile 18/")
	assert.NoFileExists(t, path+".part")
}

func TestWriteNadirGeoTIFFNeedsTiledNadir(t *testing.T) {
	dir := t.TempDir()
	vps := ring(t)

	seq, err := Assemble([]Frame{completedFrame(dir, vps[0]), completedFrame(dir, vps[6])}, "Keem Bay", center)
	require.NoError(t, err)
	_, err = WriteNadirGeoTIFF(seq, dir)
	assert.ErrorIs(t, err, ErrNoGeoreference)

	_, err = WriteNadirGeoTIFF(nil, dir)
	assert.ErrorIs(t, err, ErrSequenceEmpty)
}
