// SPDX-License-Identifier: MIT

// Package metrics exposes Prometheus collectors for builds and installs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline stages used as the stage label.
const (
	StageFetch   = "fetch"
	StagePack    = "pack"
	StagePublish = "publish"
	StageInstall = "install"
	StageVerify  = "verify"
)

var (
	buildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pupistry_builds_total",
		Help: "Total number of artifact builds by outcome",
	}, []string{"outcome"}) // outcome=success|failure

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pupistry_build_stage_duration_seconds",
		Help:    "Duration of build pipeline stages",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"stage"})

	stageFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pupistry_stage_failures_total",
		Help: "Total number of pipeline failures by stage",
	}, []string{"stage"}) // stage=fetch|pack|publish|install|verify

	artifactSizeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pupistry_artifact_size_bytes",
		Help: "Compressed size of the last built artifact",
	})

	artifactFiles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pupistry_artifact_files",
		Help: "Number of files in the last built artifact",
	})

	lastBuildTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pupistry_last_build_timestamp_seconds",
		Help: "Unix time of the last successful build",
	})

	installsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pupistry_installs_total",
		Help: "Total number of artifact installs by outcome",
	}, []string{"outcome"}) // outcome=success|failure

	configErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pupistry_config_errors_total",
		Help: "Total number of configuration errors detected at runtime",
	})
)

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// ObserveStage records a stage duration and, on failure, bumps its failure counter.
func ObserveStage(stage string, d time.Duration, err error) {
	stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if err != nil {
		stageFailuresTotal.WithLabelValues(stage).Inc()
	}
}

// RecordBuild records the outcome of a full build.
func RecordBuild(ok bool) {
	buildsTotal.WithLabelValues(outcome(ok)).Inc()
}

// RecordArtifact records the shape of a successfully built artifact.
func RecordArtifact(size int64, files int, builtAt time.Time) {
	artifactSizeBytes.Set(float64(size))
	artifactFiles.Set(float64(files))
	lastBuildTimestamp.Set(float64(builtAt.Unix()))
}

// RecordInstall records the outcome of an install.
func RecordInstall(ok bool) {
	installsTotal.WithLabelValues(outcome(ok)).Inc()
}

// IncConfigError counts a configuration problem found while running.
func IncConfigError() {
	configErrorsTotal.Inc()
}
