package collector

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// WriteTextfile writes the report as Prometheus metrics for the node
// exporter's textfile collector, so cron-driven runs can be alerted on.
func (r Report) WriteTextfile(path string, finished float64) error {
	registry := prometheus.NewRegistry()
	auto := promauto.With(registry)

	const namespace = "listening"
	const subsystem = "collector"

	auto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "events_added",
		Help:      "Listening events added by the last run",
	}).Set(float64(r.EventsAdded))

	auto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "events_skipped",
		Help:      "Listening events already present in the last run",
	}).Set(float64(r.EventsSkipped))

	auto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "artists_ranked",
		Help:      "Top-artist chart entries stored by the last run",
	}).Set(float64(r.ArtistsRanked))

	auto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "errors",
		Help:      "Recoverable errors in the last run",
	}).Set(float64(len(r.Errors)))

	auto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "duration_seconds",
		Help:      "Wall time of the last run",
	}).Set(r.Duration.Seconds())

	auto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time the last run finished",
	}).Set(finished)

	if err := prometheus.WriteToTextfile(path, registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
