package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the recon pipeline's Prometheus metrics. It satisfies
// the recorder interfaces of the geocoder, the imagery fetcher and the
// flyover pipeline.
type Collector struct {
	gatherer prometheus.Gatherer

	GeocodeAttempts  *prometheus.CounterVec
	FetchAttempts    *prometheus.CounterVec
	Frames           *prometheus.CounterVec
	Missions         *prometheus.CounterVec
	MissionDurations *prometheus.HistogramVec
	HTTPRequests     *prometheus.CounterVec
}

// NewCollector registers metrics against reg, defaulting to the global
// registry when nil
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	geocode, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recon_geocode_attempts_total",
		Help: "Geocoder provider attempts, labeled by provider and result.",
	}, []string{"provider", "result"}), "recon_geocode_attempts_total")
	if err != nil {
		return nil, err
	}

	fetch, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recon_imagery_fetch_total",
		Help: "Imagery source attempts, labeled by source and outcome.",
	}, []string{"source", "outcome"}), "recon_imagery_fetch_total")
	if err != nil {
		return nil, err
	}

	frames, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recon_frames_total",
		Help: "Processed flyover frames, labeled by outcome.",
	}, []string{"outcome"}), "recon_frames_total")
	if err != nil {
		return nil, err
	}

	missions, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recon_missions_total",
		Help: "Finished recon missions, labeled by status.",
	}, []string{"status"}), "recon_missions_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "recon_mission_duration_seconds",
		Help:    "End-to-end recon mission latency in seconds.",
		Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300},
	}, []string{"status"}), "recon_mission_duration_seconds")
	if err != nil {
		return nil, err
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recon_http_requests_total",
		Help: "Handled API requests, labeled by method, route and status code.",
	}, []string{"method", "route", "code"}), "recon_http_requests_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:         gatherer,
		GeocodeAttempts:  geocode,
		FetchAttempts:    fetch,
		Frames:           frames,
		Missions:         missions,
		MissionDurations: durations,
		HTTPRequests:     requests,
	}, nil
}

// RecordGeocode counts one geocoder provider attempt
func (c *Collector) RecordGeocode(provider string, ok bool) {
	if c == nil {
		return
	}
	result := "miss"
	if ok {
		result = "hit"
	}
	c.GeocodeAttempts.WithLabelValues(provider, result).Inc()
}

// RecordFetch counts one imagery source attempt
func (c *Collector) RecordFetch(source, outcome string) {
	if c == nil {
		return
	}
	c.FetchAttempts.WithLabelValues(source, outcome).Inc()
}

// RecordFrame counts one processed frame
func (c *Collector) RecordFrame(outcome string) {
	if c == nil {
		return
	}
	c.Frames.WithLabelValues(outcome).Inc()
}

// RecordMission counts a finished mission and observes its duration
func (c *Collector) RecordMission(status string, d time.Duration) {
	if c == nil {
		return
	}
	c.Missions.WithLabelValues(status).Inc()
	c.MissionDurations.WithLabelValues(status).Observe(d.Seconds())
}

// RecordRequest counts one handled API request
func (c *Collector) RecordRequest(method, route string, code int) {
	if c == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	c.HTTPRequests.WithLabelValues(method, route, fmt.Sprintf("%d", code)).Inc()
}

// Handler exposes a ready-to-use /metrics handler
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
