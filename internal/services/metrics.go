package services

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects client counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RetriesTotal    *prometheus.CounterVec
	RefreshesTotal  *prometheus.CounterVec
	AddsTotal       prometheus.Counter
	DuplicatesTotal prometheus.Counter
	PlaylistSize    prometheus.Gauge
}

// NewMetrics creates the client metrics and registers them with reg when it is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jukebox_requests_total",
				Help: "Total number of dispatched API requests",
			},
			[]string{"family", "outcome"},
		),
		RetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jukebox_retries_total",
				Help: "Total number of rejected attempts by status",
			},
			[]string{"status"},
		),
		RefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jukebox_token_refreshes_total",
				Help: "Total number of access token refreshes",
			},
			[]string{"outcome"},
		),
		AddsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "jukebox_adds_total",
				Help: "Total number of tracks added to the playlist",
			},
		),
		DuplicatesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "jukebox_duplicates_total",
				Help: "Total number of duplicate tracks rejected",
			},
		),
		PlaylistSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "jukebox_playlist_size",
				Help: "Number of tracks in the playlist cache",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.RequestsTotal,
			m.RetriesTotal,
			m.RefreshesTotal,
			m.AddsTotal,
			m.DuplicatesTotal,
			m.PlaylistSize,
		)
	}

	return m
}

func (m *Metrics) request(family Family, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
	}
	m.RequestsTotal.WithLabelValues(string(family), outcome).Inc()
}

func (m *Metrics) retry(status int) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(strconv.Itoa(status)).Inc()
}

func (m *Metrics) refreshed(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.RefreshesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) added() {
	if m == nil {
		return
	}
	m.AddsTotal.Inc()
}

func (m *Metrics) duplicate() {
	if m == nil {
		return
	}
	m.DuplicatesTotal.Inc()
}

func (m *Metrics) cacheSize(n int) {
	if m == nil {
		return
	}
	m.PlaylistSize.Set(float64(n))
}
