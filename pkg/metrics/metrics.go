// Package metrics provides Prometheus collectors for the capture, reference
// and scoring pipeline.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gesture"

// Recorder frame outcomes.
const (
	FrameAdmitted    = "admitted"
	FrameDroppedRate = "dropped_rate"
	FrameDroppedBusy = "dropped_busy"
	FrameExtracted   = "extracted"
	FrameNoHand      = "no_hand"
	FrameFailed      = "failed"
)

// Cache events.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheEvict = "evict"
)

var (
	// recorderFrames counts live frames by outcome.
	recorderFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recorder_frames_total",
			Help:      "Live frames seen by the landmark recorder, by outcome",
		},
		[]string{"outcome"},
	)

	// detectDuration is a histogram of single detector call duration.
	detectDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detect_duration_seconds",
			Help:      "Duration of pose detector calls in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"source"}, // source: live, reference
	)

	// extractions counts reference clip extractions.
	extractions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reference_extractions_total",
			Help:      "Reference clip extractions, by status",
		},
		[]string{"status"}, // status: success, error
	)

	// extractionDuration is a histogram of full reference clip extractions.
	extractionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reference_extraction_duration_seconds",
			Help:      "Duration of reference clip extractions in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// cacheEvents counts reference cache hits, misses and evictions.
	cacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reference_cache_events_total",
			Help:      "Reference clip cache events",
		},
		[]string{"event"},
	)

	// scores is a histogram of attempt scores.
	scores = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "score",
			Help:      "Distribution of motion scores",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	// attempts counts graded attempts by outcome.
	attempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Graded attempts, by outcome",
		},
		[]string{"outcome"}, // outcome: pass, fail, no_frames, insufficient_frames
	)
)

// Collectors returns every collector in this package.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		recorderFrames,
		detectDuration,
		extractions,
		extractionDuration,
		cacheEvents,
		scores,
		attempts,
	}
}

// Register registers all collectors with reg. Collectors that are already
// registered are ignored so Register can be called more than once.
func Register(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// RecordFrame counts one live frame outcome.
func RecordFrame(outcome string) {
	recorderFrames.WithLabelValues(outcome).Inc()
}

// RecordDetect observes one detector call.
func RecordDetect(source string, d time.Duration) {
	detectDuration.WithLabelValues(source).Observe(d.Seconds())
}

// RecordExtraction observes one reference extraction.
func RecordExtraction(err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	extractions.WithLabelValues(status).Inc()
	extractionDuration.Observe(d.Seconds())
}

// RecordCache counts one cache event.
func RecordCache(event string) {
	cacheEvents.WithLabelValues(event).Inc()
}

// RecordScore observes a graded attempt. Insufficient-data outcomes are
// counted but not added to the score histogram.
func RecordScore(score float64, outcome string) {
	attempts.WithLabelValues(outcome).Inc()
	if outcome == "pass" || outcome == "fail" {
		scores.Observe(score)
	}
}
