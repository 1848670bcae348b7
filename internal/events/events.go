package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"recon-flyover/internal/mission"
)

// DefaultSubjectPrefix is prepended to every mission event subject
const DefaultSubjectPrefix = "recon.mission"

// Event types
const (
	EventCompleted = "completed"
	EventFailed    = "failed"
)

// NATSConfig holds connection settings for the event bus
type NATSConfig struct {
	URL            string        `yaml:"url"`
	SubjectPrefix  string        `yaml:"subject_prefix"`
	MaxReconnects  int           `yaml:"max_reconnects"`
	ReconnectWait  time.Duration `yaml:"reconnect_wait"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// MissionEvent is the payload published when a mission finishes
type MissionEvent struct {
	MissionID  string    `json:"mission_id"`
	Event      string    `json:"event"`
	POI        string    `json:"poi"`
	Location   string    `json:"location,omitempty"`
	Latitude   float64   `json:"lat"`
	Longitude  float64   `json:"lon"`
	Frames     int       `json:"frames"`
	ViewerPath string    `json:"viewer_path,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Conn is the subset of *nats.Conn the publisher needs
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher announces finished missions on the event bus
type Publisher struct {
	conn   Conn
	prefix string
}

// NewPublisher wraps an existing connection. A nil conn yields a publisher
// that drops every event.
func NewPublisher(conn Conn, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Publisher{conn: conn, prefix: prefix}
}

// Connect dials NATS with reconnect handling
func Connect(cfg NATSConfig) (*nats.Conn, error) {
	options := []nats.Option{
		nats.Name("recon-flyover"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			slog.Info("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to NATS: %w", err)
	}
	return nc, nil
}

// Subject returns the subject for an event type
func (p *Publisher) Subject(event string) string {
	return fmt.Sprintf("%s.%s", p.prefix, event)
}

// PublishResult publishes a terminal mission result. Non-terminal results
// are ignored.
func (p *Publisher) PublishResult(r *mission.Result) error {
	if p == nil || p.conn == nil || r == nil {
		return nil
	}

	var event string
	switch r.Status {
	case mission.StatusSuccess:
		event = EventCompleted
	case mission.StatusFailed:
		event = EventFailed
	default:
		return nil
	}

	data, err := json.Marshal(MissionEvent{
		MissionID:  r.ID,
		Event:      event,
		POI:        r.POI,
		Location:   r.Location,
		Latitude:   r.Coordinate.Latitude,
		Longitude:  r.Coordinate.Longitude,
		Frames:     len(r.Frames),
		ViewerPath: r.ViewerPath,
		Error:      r.Error,
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode mission event: %w", err)
	}

	subject := p.Subject(event)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	slog.Debug("mission event published", "subject", subject, "mission_id", r.ID)
	return nil
}
