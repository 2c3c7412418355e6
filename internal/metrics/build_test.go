// SPDX-License-Identifier: MIT

package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordBuild(t *testing.T) {
	beforeOK := testutil.ToFloat64(buildsTotal.WithLabelValues("success"))
	beforeFail := testutil.ToFloat64(buildsTotal.WithLabelValues("failure"))

	RecordBuild(true)
	RecordBuild(false)
	RecordBuild(false)

	assert.Equal(t, beforeOK+1, testutil.ToFloat64(buildsTotal.WithLabelValues("success")))
	assert.Equal(t, beforeFail+2, testutil.ToFloat64(buildsTotal.WithLabelValues("failure")))
}

func TestObserveStage(t *testing.T) {
	before := testutil.ToFloat64(stageFailuresTotal.WithLabelValues(StageFetch))

	ObserveStage(StageFetch, 150*time.Millisecond, nil)
	ObserveStage(StageFetch, 2*time.Second, errors.New("boom"))

	assert.Equal(t, before+1, testutil.ToFloat64(stageFailuresTotal.WithLabelValues(StageFetch)))

	m := &dto.Metric{}
	require.NoError(t, stageDuration.WithLabelValues(StageFetch).(prometheus.Histogram).Write(m))
	assert.GreaterOrEqual(t, m.GetHistogram().GetSampleCount(), uint64(2))
	assert.GreaterOrEqual(t, m.GetHistogram().GetSampleSum(), 2.15)
}

func TestRecordArtifact(t *testing.T) {
	at := time.Unix(1760000000, 0)
	RecordArtifact(4096, 12, at)

	assert.Equal(t, float64(4096), testutil.ToFloat64(artifactSizeBytes))
	assert.Equal(t, float64(12), testutil.ToFloat64(artifactFiles))
	assert.Equal(t, float64(1760000000), testutil.ToFloat64(lastBuildTimestamp))
}

func TestRecordInstallAndConfigErrors(t *testing.T) {
	before := testutil.ToFloat64(installsTotal.WithLabelValues("failure"))
	beforeCfg := testutil.ToFloat64(configErrorsTotal)

	RecordInstall(false)
	IncConfigError()

	assert.Equal(t, before+1, testutil.ToFloat64(installsTotal.WithLabelValues("failure")))
	assert.Equal(t, beforeCfg+1, testutil.ToFloat64(configErrorsTotal))
}

func TestWriteTextfile(t *testing.T) {
	RecordBuild(true)
	path := filepath.Join(t.TempDir(), "collector", "pupistry.prom")

	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `pupistry_builds_total{outcome="success"}`), "textfile:\n%s", data)
}

func TestWriteTextfile_EmptyPathNoop(t *testing.T) {
	assert.NoError(t, WriteTextfile(""))
}

func TestWriteTextfile_CustomGatherer(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "pupistry_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Add(3)

	path := filepath.Join(t.TempDir(), "test.prom")
	require.NoError(t, writeTextfile(path, reg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "pupistry_test_total 3")
}
