package cmd

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/search-harvester/internal/app"
	"github.com/JakeFAU/search-harvester/internal/config"
	"github.com/JakeFAU/search-harvester/internal/dataset"
	"github.com/JakeFAU/search-harvester/internal/harvest"
)

// MockApp mocks the App interface.
type MockApp struct {
	mock.Mock
	cfg config.Config
}

func (m *MockApp) Close() {
	m.Called()
}

func (m *MockApp) Logger() *zap.Logger {
	return zap.NewNop()
}

func (m *MockApp) Config() config.Config {
	return m.cfg
}

func (m *MockApp) RunID() string {
	return "run-1"
}

func (m *MockApp) NewRun(ctx context.Context, hc harvest.Config, resume bool) (*app.Run, error) {
	args := m.Called(ctx, hc, resume)
	run, _ := args.Get(0).(*app.Run)
	return run, args.Error(1)
}

func (m *MockApp) Dedupe(ctx context.Context, language string, since time.Time) (dataset.DedupeResult, error) {
	args := m.Called(ctx, language, since)
	return args.Get(0).(dataset.DedupeResult), args.Error(1)
}

func (m *MockApp) Shard(ctx context.Context, language string, size int, excludePath string) ([]dataset.Manifest, error) {
	args := m.Called(ctx, language, size, excludePath)
	manifests, _ := args.Get(0).([]dataset.Manifest)
	return manifests, args.Error(1)
}

// execute runs the root command with a factory that captures the loaded
// configuration into the mock.
func execute(t *testing.T, m *MockApp, args ...string) error {
	t.Helper()
	orig := newApp
	t.Cleanup(func() { newApp = orig })
	newApp = func(_ context.Context, cfg config.Config) (App, error) {
		m.cfg = cfg
		return m, nil
	}
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return root.ExecuteContext(context.Background())
}

func TestDedupeCommand_FlagsReachApp(t *testing.T) {
	m := &MockApp{}
	since := time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC)
	m.On("Dedupe", mock.Anything, "Go", since).Return(dataset.DedupeResult{Unique: 3}, nil).Once()
	m.On("Close").Return().Once()

	err := execute(t, m, "dedupe", "--language", "Go", "--since", "2023-01-15")
	require.NoError(t, err)
	m.AssertExpectations(t)
}

func TestDedupeCommand_RequiresLanguage(t *testing.T) {
	m := &MockApp{}

	err := execute(t, m, "dedupe")
	require.ErrorContains(t, err, "search.language is required")
	m.AssertNotCalled(t, "Dedupe", mock.Anything, mock.Anything, mock.Anything)
}

func TestShardCommand_FlagsReachApp(t *testing.T) {
	m := &MockApp{}
	m.On("Shard", mock.Anything, "C++", 250, "seen.csv").
		Return([]dataset.Manifest{{Part: 1, Records: 250}, {Part: 2, Records: 10}}, nil).Once()
	m.On("Close").Return().Once()

	err := execute(t, m, "shard", "--language", "C++", "--shard-size", "250", "--exclude", "seen.csv")
	require.NoError(t, err)
	m.AssertExpectations(t)
}

func TestShardCommand_DefaultSize(t *testing.T) {
	m := &MockApp{}
	m.On("Shard", mock.Anything, "Go", 10000, "").Return([]dataset.Manifest(nil), nil).Once()
	m.On("Close").Return().Once()

	err := execute(t, m, "shard", "--language", "Go")
	require.NoError(t, err)
	m.AssertExpectations(t)
}

func TestShardCommand_PropagatesError(t *testing.T) {
	m := &MockApp{}
	m.On("Shard", mock.Anything, "Go", 10000, "").Return(nil, errors.New("no canonical dataset")).Once()

	err := execute(t, m, "shard", "--language", "Go")
	require.ErrorContains(t, err, "no canonical dataset")
}

func TestCrawlCommand_RequiresStartDate(t *testing.T) {
	m := &MockApp{}

	err := execute(t, m, "crawl", "--language", "Go")
	require.ErrorContains(t, err, "partition.start_date is required")
	m.AssertNotCalled(t, "NewRun", mock.Anything, mock.Anything, mock.Anything)
}

func TestCrawlCommand_InitFailure(t *testing.T) {
	m := &MockApp{}
	m.On("NewRun", mock.Anything, mock.MatchedBy(func(hc harvest.Config) bool {
		return hc.Language == "Go" && hc.Year == 2020 && hc.StartDay.Equal(hc.EndDay)
	}), true).Return(nil, errors.New("no token")).Once()

	err := execute(t, m, "crawl", "--language", "Go", "--year", "2020",
		"--start-date", "2021-01-01", "--end-date", "2021-01-01", "--resume")
	require.ErrorContains(t, err, "init crawl: no token")
	m.AssertExpectations(t)
}

func TestRoot_MissingConfigFile(t *testing.T) {
	err := execute(t, &MockApp{}, "--config", "/does/not/exist.yaml", "dedupe")
	require.ErrorContains(t, err, "read config")
}

func TestRoot_AppFactoryFailure(t *testing.T) {
	orig := newApp
	t.Cleanup(func() { newApp = orig })
	newApp = func(context.Context, config.Config) (App, error) {
		return nil, errors.New("boom")
	}
	root := newRootCmd()
	root.SetArgs([]string{"dedupe", "--language", "Go"})
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)

	err := root.ExecuteContext(context.Background())
	require.ErrorContains(t, err, "failed to initialize application services: boom")
}

func TestResolveApp_Missing(t *testing.T) {
	_, err := resolveApp(context.Background())
	assert.EqualError(t, err, "application services not initialized")
}
