// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ManuGH/pupistry/internal/config"
	"github.com/ManuGH/pupistry/internal/manifest"
	"github.com/ManuGH/pupistry/internal/telemetry"
)

// MockLogger records message-level log calls.
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Info(msg string)  { m.Called(msg) }
func (m *MockLogger) Warn(msg string)  { m.Called(msg) }
func (m *MockLogger) Fatal(msg string) { m.Called(msg) }

// MockFetcher is a Fetcher whose results are scripted per test.
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, source, workspace string) (FetchResult, error) {
	args := m.Called(ctx, source, workspace)
	return args.Get(0).(FetchResult), args.Error(1)
}

// fakePublisher moves tarballs into dir and remembers the manifests.
type fakePublisher struct {
	dir       string
	err       error
	published []manifest.Manifest
}

func (p *fakePublisher) Publish(_ context.Context, m manifest.Manifest, tarball string) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, m)
	return os.Rename(tarball, filepath.Join(p.dir, manifest.ArtifactName(m.Version)))
}

var fixedNow = time.Date(2025, 10, 9, 8, 53, 20, 0, time.UTC)

func testConfig(t *testing.T, puppetcode string) config.AppConfig {
	t.Helper()
	cfg := config.Default()
	cfg.General.AppCache = t.TempDir()
	cfg.Build.PuppetCode = puppetcode
	return cfg
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, body := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o640))
	}
	return root
}

func puppetTree(t *testing.T) string {
	return writeTree(t, map[string]string{
		"production/manifests/site.pp":             "node default { include ntp }\n",
		"production/modules/ntp/manifests/init.pp": "class ntp {}\n",
		"staging/Puppetfile":                       "mod 'puppetlabs/stdlib'\n",
		".git/HEAD":                                "ref: refs/heads/main\n",
		"README.md":                                "code\n",
	})
}

func TestFetchR10k_MissingPuppetCode(t *testing.T) {
	logger := new(MockLogger)
	logger.On("Info", mock.AnythingOfType("string")).Once()
	logger.On("Fatal", mock.AnythingOfType("string")).Once()
	fetcher := new(MockFetcher)

	a := New(testConfig(t, ""), WithLogger(logger), WithFetcher(fetcher))
	err := a.FetchR10k(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrMissingField))
	var missing *config.MissingFieldError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "build.puppetcode", missing.Field)

	logger.AssertExpectations(t)
	require.Len(t, logger.Calls, 2)
	assert.Equal(t, "Info", logger.Calls[0].Method)
	assert.Equal(t, "Fatal", logger.Calls[1].Method)
	logger.AssertNotCalled(t, "Warn", mock.Anything)
	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything, mock.Anything)

	_, ok := a.LastFetch()
	assert.False(t, ok)
}

func TestFetchR10k_EmptyBuildSectionFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("build: {}\n"), 0o600))
	t.Setenv(config.EnvAppCache, t.TempDir())
	t.Setenv(config.EnvBuildPuppetCode, "")

	cfg, err := config.NewLoader(path, "test").Load()
	require.NoError(t, err)

	logger := new(MockLogger)
	logger.On("Info", mock.AnythingOfType("string")).Once()
	logger.On("Fatal", mock.AnythingOfType("string")).Once()

	err = New(cfg, WithLogger(logger)).FetchR10k(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMissingField)
	logger.AssertExpectations(t)
	assert.Equal(t, []string{"Info", "Fatal"}, []string{logger.Calls[0].Method, logger.Calls[1].Method})
}

func TestFetchR10k_LocalTree(t *testing.T) {
	source := puppetTree(t)
	cfg := testConfig(t, source)
	logger := new(MockLogger)
	logger.On("Info", mock.AnythingOfType("string")).Once()

	a := New(cfg, WithLogger(logger))
	require.NoError(t, a.FetchR10k(context.Background()))
	logger.AssertExpectations(t)
	logger.AssertNotCalled(t, "Fatal", mock.Anything)

	body, err := os.ReadFile(filepath.Join(cfg.WorkspaceDir(), "production", "manifests", "site.pp"))
	require.NoError(t, err)
	assert.Equal(t, "node default { include ntp }\n", string(body))
	assert.NoDirExists(t, filepath.Join(cfg.WorkspaceDir(), ".git"))

	res, ok := a.LastFetch()
	require.True(t, ok)
	assert.Equal(t, []string{"production", "staging"}, res.Environments)
	assert.Equal(t, 4, res.Files)
}

func TestFetchR10k_NoEnvironmentsWarns(t *testing.T) {
	source := writeTree(t, map[string]string{"notes.txt": "nothing here\n"})
	logger := new(MockLogger)
	logger.On("Info", mock.AnythingOfType("string")).Once()
	logger.On("Warn", mock.AnythingOfType("string")).Once()

	require.NoError(t, New(testConfig(t, source), WithLogger(logger)).FetchR10k(context.Background()))
	logger.AssertExpectations(t)
}

func TestFetchR10k_RemoteSourceRejected(t *testing.T) {
	logger := new(MockLogger)
	logger.On("Info", mock.AnythingOfType("string")).Once()

	err := New(testConfig(t, "git@github.com:example/puppet.git"), WithLogger(logger)).FetchR10k(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemoteSource)
	assert.NotErrorIs(t, err, config.ErrMissingField)
	logger.AssertExpectations(t)
}

func TestFetchR10k_UsesInjectedFetcher(t *testing.T) {
	cfg := testConfig(t, "/srv/puppet")
	logger := new(MockLogger)
	logger.On("Info", mock.Anything).Once()
	fetcher := new(MockFetcher)
	fetcher.On("Fetch", mock.Anything, "/srv/puppet", cfg.WorkspaceDir()).
		Return(FetchResult{Workspace: cfg.WorkspaceDir(), Environments: []string{"production"}}, nil).Once()

	a := New(cfg, WithLogger(logger), WithFetcher(fetcher))
	require.NoError(t, a.FetchR10k(context.Background()))
	fetcher.AssertExpectations(t)

	res, ok := a.LastFetch()
	require.True(t, ok)
	assert.Equal(t, []string{"production"}, res.Environments)
}

func TestFetchR10k_FetcherError(t *testing.T) {
	cfg := testConfig(t, "/srv/puppet")
	logger := new(MockLogger)
	logger.On("Info", mock.Anything).Once()
	fetcher := new(MockFetcher)
	boom := errors.New("disk on fire")
	fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything).Return(FetchResult{}, boom)

	err := New(cfg, WithLogger(logger), WithFetcher(fetcher)).FetchR10k(context.Background())
	assert.ErrorIs(t, err, boom)
	logger.AssertNotCalled(t, "Fatal", mock.Anything)
}

func TestPack_EmptyWorkspace(t *testing.T) {
	a := New(testConfig(t, "/srv/puppet"), WithLogger(quietLogger()))
	_, _, err := a.Pack(context.Background())
	assert.ErrorIs(t, err, ErrWorkspaceEmpty)
}

func TestPack_Manifest(t *testing.T) {
	cfg := testConfig(t, puppetTree(t))
	a := New(cfg, WithLogger(quietLogger()), WithClock(func() time.Time { return fixedNow }), WithHostname("build01"))
	require.NoError(t, a.FetchR10k(context.Background()))

	m, tarball, err := a.Pack(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Remove(tarball) })

	assert.Equal(t, "1760000000", m.Version)
	assert.Equal(t, "build01", m.Builder)
	assert.Equal(t, cfg.Build.PuppetCode, m.Source)
	assert.Equal(t, 4, m.Files)
	assert.Equal(t, []string{"production", "staging"}, m.Environments)
	assert.True(t, m.CreatedAt.Equal(fixedNow))
	assert.NotEmpty(t, m.BuildID)
	require.NoError(t, m.Validate())

	data, err := os.ReadFile(tarball)
	require.NoError(t, err)
	sum := sha256.Sum256(data)
	assert.Equal(t, hex.EncodeToString(sum[:]), m.Checksum)
	assert.Equal(t, int64(len(data)), m.Size)
	assert.Equal(t, cfg.ArtifactDir(), filepath.Dir(tarball))
}

func TestBuild_PublishesAndTraces(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	cfg := testConfig(t, puppetTree(t))
	repo := &fakePublisher{dir: t.TempDir()}
	a := New(cfg,
		WithLogger(quietLogger()),
		WithTracer(tp.Tracer("test")),
		WithClock(func() time.Time { return fixedNow }),
	)

	m, err := a.Build(context.Background(), repo)
	require.NoError(t, err)
	require.Len(t, repo.published, 1)
	assert.Equal(t, m, repo.published[0])
	assert.FileExists(t, filepath.Join(repo.dir, manifest.ArtifactName(m.Version)))

	names := map[string]bool{}
	for _, span := range recorder.Ended() {
		names[span.Name()] = true
	}
	for _, want := range []string{"artifact.build", "artifact.fetch", "artifact.pack", "artifact.publish"} {
		assert.True(t, names[want], "missing span %s", want)
	}
}

func TestBuild_MissingPuppetCodeIsFetchStageError(t *testing.T) {
	logger := new(MockLogger)
	logger.On("Info", mock.AnythingOfType("string")).Once()
	logger.On("Fatal", mock.AnythingOfType("string")).Once()
	repo := &fakePublisher{dir: t.TempDir()}

	_, err := New(testConfig(t, ""), WithLogger(logger)).Build(context.Background(), repo)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMissingField)

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, "fetch", stageErr.Stage)
	assert.Empty(t, repo.published)
	logger.AssertExpectations(t)
}

func TestBuild_PublishFailureRemovesTarball(t *testing.T) {
	cfg := testConfig(t, puppetTree(t))
	repo := &fakePublisher{err: errors.New("repository locked")}

	_, err := New(cfg, WithLogger(quietLogger())).Build(context.Background(), repo)
	require.Error(t, err)

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, "publish", stageErr.Stage)

	entries, err := os.ReadDir(cfg.ArtifactDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func quietLogger() *MockLogger {
	l := new(MockLogger)
	l.On("Info", mock.Anything).Maybe()
	l.On("Warn", mock.Anything).Maybe()
	l.On("Fatal", mock.Anything).Maybe()
	return l
}

func TestBuild_FailedSpansCarryErrorAttributes(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	repo := &fakePublisher{dir: t.TempDir()}
	_, err := New(testConfig(t, ""), WithLogger(quietLogger()), WithTracer(tp.Tracer("test"))).
		Build(context.Background(), repo)
	require.Error(t, err)

	attrs := map[string]map[string]string{}
	for _, span := range recorder.Ended() {
		kv := map[string]string{}
		for _, a := range span.Attributes() {
			kv[string(a.Key)] = a.Value.Emit()
		}
		attrs[span.Name()] = kv
	}
	for _, name := range []string{"artifact.build", "artifact.fetch"} {
		require.Contains(t, attrs, name)
		assert.Equal(t, "true", attrs[name][telemetry.ErrorKey], name)
		assert.Equal(t, telemetry.ErrorTypeConfig, attrs[name][telemetry.ErrorTypeKey], name)
		assert.Equal(t, "fetch", attrs[name][telemetry.StageNameKey], name)
	}
	assert.NotContains(t, attrs, "artifact.pack")
}
