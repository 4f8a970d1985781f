package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/web-connector/internal/config"
	"github.com/JakeFAU/web-connector/internal/crawler"
)

// mockWriter mocks the batch writers.
type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) WriteDocuments(batch []crawler.Document) error {
	args := m.Called(batch)
	return args.Error(0)
}

func (m *mockWriter) WriteSlim(batch []crawler.SlimDocument) error {
	args := m.Called(batch)
	return args.Error(0)
}

type fakeSource struct {
	docs    [][]crawler.Document
	slim    [][]crawler.SlimDocument
	err     error
	emitErr error
}

func (f *fakeSource) LoadFromState(_ context.Context, emit func([]crawler.Document) error) error {
	for _, batch := range f.docs {
		if err := emit(batch); err != nil {
			f.emitErr = err
			return err
		}
	}
	return f.err
}

func (f *fakeSource) RetrieveAllSlimDocuments(_ context.Context, emit func([]crawler.SlimDocument) error) error {
	for _, batch := range f.slim {
		if err := emit(batch); err != nil {
			f.emitErr = err
			return err
		}
	}
	return f.err
}

func TestCrawlIntoWritesEveryBatch(t *testing.T) {
	t.Parallel()

	first := []crawler.Document{{ID: "https://example.com/a"}, {ID: "https://example.com/b"}}
	second := []crawler.Document{{ID: "https://example.com/c"}}
	src := &fakeSource{docs: [][]crawler.Document{first, second}}

	out := &mockWriter{}
	out.On("WriteDocuments", first).Return(nil).Once()
	out.On("WriteDocuments", second).Return(nil).Once()

	require.NoError(t, crawlInto(context.Background(), src, out, zap.NewNop()))
	out.AssertExpectations(t)
}

func TestCrawlIntoPropagatesErrors(t *testing.T) {
	t.Parallel()

	src := &fakeSource{err: crawler.ErrNoDocuments}
	err := crawlInto(context.Background(), src, &mockWriter{}, zap.NewNop())
	require.ErrorIs(t, err, crawler.ErrNoDocuments)

	batch := []crawler.Document{{ID: "x"}}
	boom := errors.New("disk full")
	out := &mockWriter{}
	out.On("WriteDocuments", batch).Return(boom).Once()
	src = &fakeSource{docs: [][]crawler.Document{batch}}
	err = crawlInto(context.Background(), src, out, zap.NewNop())
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, src.emitErr, boom)
}

func TestSlimIntoWritesBatches(t *testing.T) {
	t.Parallel()

	batch := []crawler.SlimDocument{{ID: "https://example.com/a"}}
	out := &mockWriter{}
	out.On("WriteSlim", batch).Return(nil).Once()

	require.NoError(t, slimInto(context.Background(), &fakeSource{slim: [][]crawler.SlimDocument{batch}}, out, zap.NewNop()))
	out.AssertExpectations(t)

	err := slimInto(context.Background(), &fakeSource{err: crawler.ErrMissingPairIDs}, &mockWriter{}, zap.NewNop())
	require.ErrorIs(t, err, crawler.ErrMissingPairIDs)
}

func TestLoadConfigFlagsAndFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("connector:\n  base_url: https://file.example.com\n  batch_size: 8\n"), 0o600))

	root := newRootCmd()
	require.NoError(t, root.PersistentFlags().Parse([]string{"--mode", "single", "--batch-size", "4"}))

	v := config.NewViper()
	bindFlags(v, root.PersistentFlags())
	cfg, err := loadConfig(v, path, false)
	require.NoError(t, err)
	require.Equal(t, "https://file.example.com", cfg.Connector.BaseURL)
	require.Equal(t, "single", cfg.Connector.Mode)
	require.Equal(t, 4, cfg.Connector.BatchSize, "flags override the file")
	require.True(t, cfg.Connector.MintlifyCleanup)
}

func TestLoadConfigSlimValidation(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	require.NoError(t, root.PersistentFlags().Parse([]string{"--base-url", "https://example.com"}))
	v := config.NewViper()
	bindFlags(v, root.PersistentFlags())

	_, err := loadConfig(v, "", false)
	require.NoError(t, err)

	_, err = loadConfig(v, "", true)
	require.ErrorIs(t, err, crawler.ErrMissingPairIDs)
	require.ErrorContains(t, err, "db.dsn")
}

func TestLoadConfigZeroPairIDsFromFlags(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	require.NoError(t, root.PersistentFlags().Parse([]string{
		"--base-url", "https://example.com",
		"--db-dsn", "postgres://localhost/onyx",
		"--connector-id", "0",
		"--credential-id", "0",
	}))
	v := config.NewViper()
	bindFlags(v, root.PersistentFlags())

	cfg, err := loadConfig(v, "", true)
	require.NoError(t, err)
	require.NotNil(t, cfg.Connector.ConnectorID)
	require.Zero(t, *cfg.Connector.ConnectorID)
	require.NotNil(t, cfg.Connector.CredentialID)
	require.Zero(t, *cfg.Connector.CredentialID)
}

func TestRootCommandRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	root.SetArgs([]string{"crawl", "--mode", "bogus", "--base-url", "https://example.com"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	err := root.ExecuteContext(context.Background())
	require.ErrorIs(t, err, crawler.ErrInvalidMode)
}

func TestRootCommandAppInitFailure(t *testing.T) {
	orig := newApp
	t.Cleanup(func() { newApp = orig })
	newApp = func(context.Context, config.Config, *zap.Logger) (App, error) {
		return nil, errors.New("postgres unreachable")
	}

	root := newRootCmd()
	root.SetArgs([]string{"crawl", "--base-url", "https://example.com"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	err := root.ExecuteContext(context.Background())
	require.ErrorContains(t, err, "failed to initialize application services")
	require.ErrorContains(t, err, "postgres unreachable")
}

func TestResolveAppMissing(t *testing.T) {
	t.Parallel()

	_, err := resolveApp(context.Background())
	require.EqualError(t, err, "application services not initialized")
}

func TestStartStatusServerDisabled(t *testing.T) {
	t.Parallel()

	stop := startStatusServer(context.Background(), "", nil, zap.NewNop())
	stop()
}
