package flyover

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"recon-flyover/internal/common"
	"recon-flyover/internal/geo"
	"recon-flyover/internal/hud"
	"recon-flyover/internal/imagery"
	"recon-flyover/internal/utils/naming"
)

const tracerName = "recon-flyover/flyover"

// Frame outcomes reported to the Recorder
const (
	OutcomeCompleted = "completed"
	OutcomeDegraded  = "degraded"
	OutcomeFailed    = "failed"
)

// Fetcher retrieves raw imagery for a viewpoint
type Fetcher interface {
	Fetch(ctx context.Context, vp geo.Viewpoint, zoom int, dest string) (imagery.Result, error)
}

// Enhancer produces the enhanced derivative of a raw frame
type Enhancer interface {
	Enhance(rawPath string) common.StepResult
}

// Annotator draws the HUD over a frame
type Annotator interface {
	Annotate(path string, md hud.Metadata) common.StepResult
}

// Recorder receives one observation per processed frame
type Recorder interface {
	RecordFrame(outcome string)
}

// Options controls a pipeline run
type Options struct {
	RingZoom  int
	NadirZoom int
	Workers   int
}

// DefaultOptions returns the standard zoom levels and pool size
func DefaultOptions() Options {
	return Options{
		RingZoom:  17,
		NadirZoom: 18,
		Workers:   4,
	}
}

// Target names what the flyover is looking at
type Target struct {
	POI      string
	Location string
}

// Pipeline fans viewpoints out over a bounded worker pool. Each worker runs
// fetch, enhance and annotate for one viewpoint at a time.
type Pipeline struct {
	fetcher    Fetcher
	enhancer   Enhancer
	annotator  Annotator
	opts       Options
	recorder   Recorder
	onProgress func(done, total int)
}

// NewPipeline creates a pipeline
func NewPipeline(fetcher Fetcher, enhancer Enhancer, annotator Annotator, opts Options) *Pipeline {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Pipeline{
		fetcher:   fetcher,
		enhancer:  enhancer,
		annotator: annotator,
		opts:      opts,
	}
}

// SetRecorder sets the frame outcome recorder
func (p *Pipeline) SetRecorder(rec Recorder) {
	p.recorder = rec
}

// SetProgress sets a callback invoked after every finished viewpoint
func (p *Pipeline) SetProgress(fn func(done, total int)) {
	p.onProgress = fn
}

// ZoomFor returns the zoom level used for a viewpoint
func (p *Pipeline) ZoomFor(vp geo.Viewpoint) int {
	if vp.Nadir {
		return p.opts.NadirZoom
	}
	return p.opts.RingZoom
}

type job struct {
	pos int
	vp  geo.Viewpoint
}

// Run processes every viewpoint into outDir and returns one Frame per
// viewpoint in input order. Frames whose chain did not complete carry Err.
func (p *Pipeline) Run(ctx context.Context, viewpoints []geo.Viewpoint, outDir string, target Target) []Frame {
	total := len(viewpoints)
	frames := make([]Frame, total)
	if total == 0 {
		return frames
	}

	jobs := make(chan job, total)
	for i, vp := range viewpoints {
		jobs <- job{pos: i, vp: vp}
	}
	close(jobs)

	workerCount := p.opts.Workers
	if total < workerCount {
		workerCount = total
	}

	var done int64
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				// Each worker owns distinct positions, so no lock is needed
				frames[j.pos] = p.process(ctx, j.vp, outDir, target)
				p.record(frames[j.pos])

				n := atomic.AddInt64(&done, 1)
				if p.onProgress != nil {
					p.onProgress(int(n), total)
				}
			}
		}()
	}
	wg.Wait()

	return frames
}

func (p *Pipeline) process(ctx context.Context, vp geo.Viewpoint, outDir string, target Target) Frame {
	zoom := p.ZoomFor(vp)
	frame := Frame{
		Viewpoint: vp,
		Zoom:      zoom,
		Tile:      geo.ToTile(vp.Coordinate, zoom),
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "flyover.frame")
	defer span.End()
	span.SetAttributes(
		attribute.String("frame", vp.Label()),
		attribute.Int("zoom", zoom),
		attribute.String("tile", frame.Tile.String()),
	)

	if err := ctx.Err(); err != nil {
		frame.Err = err
		return frame
	}

	res, err := p.fetcher.Fetch(ctx, vp, zoom, filepath.Join(outDir, naming.RawFrameName(vp)))
	if err != nil {
		slog.Warn("frame fetch failed", "frame", vp.Label(), "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		frame.Err = err
		return frame
	}
	frame.RawPath = res.Path
	frame.Source = res.Source
	frame.Cached = res.Cached
	frame.Tiled = res.Tiled
	span.SetAttributes(attribute.String("source", res.Source))

	if err := ctx.Err(); err != nil {
		frame.Err = err
		return frame
	}

	enhanced := p.enhancer.Enhance(res.Path)
	frame.EnhancedPath = enhanced.Path
	frame.EnhanceStatus = enhanced.Status
	if enhanced.Err != nil {
		slog.Warn("frame enhancement degraded", "frame", vp.Label(), "error", enhanced.Err)
	}

	if err := ctx.Err(); err != nil {
		frame.Err = err
		return frame
	}

	annotated := p.annotator.Annotate(enhanced.Path, hud.Metadata{
		Viewpoint: vp,
		POI:       target.POI,
		Location:  target.Location,
	})
	frame.AnnotatedPath = annotated.Path
	frame.AnnotateStatus = annotated.Status
	if annotated.Err != nil {
		slog.Warn("frame annotation degraded", "frame", vp.Label(), "error", annotated.Err)
	}

	slog.Debug("frame ready", "frame", vp.Label(), "source", frame.Source, "path", frame.AnnotatedPath)
	return frame
}

func (p *Pipeline) record(f Frame) {
	if p.recorder == nil {
		return
	}
	switch {
	case !f.Completed():
		p.recorder.RecordFrame(OutcomeFailed)
	case f.Degraded():
		p.recorder.RecordFrame(OutcomeDegraded)
	default:
		p.recorder.RecordFrame(OutcomeCompleted)
	}
}
