package flyover

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"

	"recon-flyover/internal/utils/naming"
)

// PlaybackInterval is the auto-play delay between frames, in milliseconds
const PlaybackInterval = 2500

type viewerFrame struct {
	Label   string `json:"label"`
	Bearing string `json:"bearing"`
	Nadir   bool   `json:"nadir"`
	Src     string `json:"src"`
	Lat     string `json:"lat"`
	Lon     string `json:"lon"`
	Source  string `json:"source"`
}

type viewerData struct {
	POI      string
	Location string
	Lat      string
	Lon      string
	Frames   []viewerFrame
	Ring     []int
	Nadir    int
	HasNadir bool
	Interval int
}

var viewerTemplate = template.Must(template.New("viewer").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Drone Simulation - {{.POI}}</title>
<style>
  body { margin: 0; padding: 20px; background: #0a0a0a; color: #00ff00; font-family: "Courier New", monospace; }
  .container { max-width: 1400px; margin: 0 auto; }
  .header { text-align: center; background: rgba(0,0,0,0.9); border: 3px solid #00ff00; border-radius: 15px; padding: 30px; margin-bottom: 30px; }
  .viewer { display: grid; grid-template-columns: 1fr 350px; gap: 30px; }
  .image-viewer { background: rgba(0,0,0,0.8); border: 2px solid #00ff00; border-radius: 10px; padding: 20px; text-align: center; }
  .drone-image { max-width: 100%; max-height: 700px; border: 3px solid #00ff00; border-radius: 10px; }
  .controls { background: rgba(0,0,0,0.9); border: 2px solid #00ff00; border-radius: 10px; padding: 20px; }
  .btn { background: #00cc00; color: #000; border: none; padding: 12px; margin: 3px 0; width: 100%; cursor: pointer; font-family: inherit; font-weight: bold; border-radius: 5px; }
  .btn:hover { background: #ffcc00; }
  .btn.active { background: #ffff00; }
  .current { margin-top: 15px; color: #ffff00; }
</style>
</head>
<body>
<div class="container">
  <div class="header">
    <h1>DRONE SIMULATION</h1>
    <h2>{{.POI}}{{if .Location}} - {{.Location}}{{end}}</h2>
    <p>Coordinates: {{.Lat}}, {{.Lon}}</p>
  </div>
  <div class="viewer">
    <div class="image-viewer">
      <img id="droneImage" class="drone-image" alt="Drone View">
      <div class="current"><strong>Current View:</strong> <span id="currentView"></span></div>
    </div>
    <div class="controls">
      <button class="btn" id="playBtn" onclick="togglePlay()">PLAY FLYOVER</button>
      <button class="btn" onclick="previousFrame()">PREVIOUS</button>
      <button class="btn" onclick="nextFrame()">NEXT</button>
      <hr>
      {{range $i, $f := .Frames}}{{if not $f.Nadir}}<button class="btn frame-btn" data-frame="{{$i}}" onclick="showFrame({{$i}})">Frame {{$f.Label}} ({{$f.Bearing}}°)</button>
      {{end}}{{end}}{{if .HasNadir}}<button class="btn frame-btn" data-frame="{{.Nadir}}" onclick="showFrame({{.Nadir}})">CENTER OVERHEAD</button>
      {{end}}
    </div>
  </div>
</div>
<script>
  const frames = {{.Frames}};
  const ring = {{.Ring}};
  const interval = {{.Interval}};
  let current = ring.length ? ring[0] : 0;
  let timer = null;

  function showFrame(i) {
    if (i < 0 || i >= frames.length) return;
    current = i;
    const f = frames[i];
    document.getElementById('droneImage').src = f.src;
    document.getElementById('currentView').textContent = f.nadir
      ? 'Center Overhead'
      : 'Frame ' + f.label + ' (' + f.bearing + '°)';
    document.querySelectorAll('.frame-btn').forEach(b => {
      b.classList.toggle('active', Number(b.dataset.frame) === i);
    });
  }

  function cycle() {
    return ring.length ? ring : frames.map((_, i) => i);
  }

  function nextFrame() {
    const c = cycle();
    const pos = c.indexOf(current);
    showFrame(c[(pos + 1) % c.length]);
  }

  function previousFrame() {
    const c = cycle();
    const pos = c.indexOf(current);
    showFrame(c[(pos - 1 + c.length) % c.length]);
  }

  function togglePlay() {
    const btn = document.getElementById('playBtn');
    if (timer) {
      clearInterval(timer);
      timer = null;
      btn.textContent = 'PLAY FLYOVER';
      return;
    }
    timer = setInterval(nextFrame, interval);
    btn.textContent = 'STOP';
  }

  document.addEventListener('keydown', e => {
    if (e.key === 'ArrowRight') nextFrame();
    if (e.key === 'ArrowLeft') previousFrame();
    if (e.key === ' ') { e.preventDefault(); togglePlay(); }
  });

  showFrame(current);
</script>
</body>
</html>
`))

// WriteViewer renders the self-contained HTML viewer for seq into dir and
// returns its path
func WriteViewer(seq *Sequence, dir string) (string, error) {
	if seq == nil || seq.Len() == 0 {
		return "", ErrSequenceEmpty
	}

	data := viewerData{
		POI:      seq.POI,
		Location: seq.Location,
		Lat:      fmt.Sprintf("%.6f", seq.Center.Latitude),
		Lon:      fmt.Sprintf("%.6f", seq.Center.Longitude),
		Ring:     []int{},
		Interval: PlaybackInterval,
	}
	for i, f := range seq.Frames {
		data.Frames = append(data.Frames, viewerFrame{
			Label:   f.Viewpoint.Label(),
			Bearing: f.Viewpoint.BearingLabel(),
			Nadir:   f.Viewpoint.Nadir,
			Src:     relativePath(dir, f.ImagePath()),
			Lat:     fmt.Sprintf("%.6f", f.Viewpoint.Coordinate.Latitude),
			Lon:     fmt.Sprintf("%.6f", f.Viewpoint.Coordinate.Longitude),
			Source:  f.Source,
		})
		if f.Viewpoint.Nadir {
			data.Nadir = i
			data.HasNadir = true
		} else {
			data.Ring = append(data.Ring, i)
		}
	}

	var buf bytes.Buffer
	if err := viewerTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render viewer: %w", err)
	}

	path := filepath.Join(dir, naming.ViewerFile)
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return "", err
	}
	return path, nil
}

// relativePath makes frame paths relative to the viewer so the output
// directory can be moved or served as a whole
func relativePath(dir, path string) string {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return filepath.ToSlash(filepath.Base(path))
	}
	return filepath.ToSlash(rel)
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
