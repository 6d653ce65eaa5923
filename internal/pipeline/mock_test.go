package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/movie-etl/internal/model"
	"github.com/sells-group/movie-etl/internal/store"
)

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) MovieIDs(ctx context.Context) (map[int64]struct{}, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int64]struct{}), args.Error(1)
}

func (m *mockStore) SaveMovie(ctx context.Context, movie model.Movie, meta *model.Metadata, genres []string) (store.SaveResult, error) {
	args := m.Called(ctx, movie, meta, genres)
	return args.Get(0).(store.SaveResult), args.Error(1)
}

func (m *mockStore) EnrichMovie(ctx context.Context, id int64, meta model.Metadata) (store.EnrichResult, error) {
	args := m.Called(ctx, id, meta)
	return args.Get(0).(store.EnrichResult), args.Error(1)
}

func (m *mockStore) EnrichmentCandidates(ctx context.Context, limit int) ([]model.Candidate, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Candidate), args.Error(1)
}

func (m *mockStore) InsertRatings(ctx context.Context, ratings []model.Rating) (int64, error) {
	args := m.Called(ctx, ratings)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) StartRun(ctx context.Context, mode model.RunMode) (*model.Run, error) {
	args := m.Called(ctx, mode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *mockStore) CompleteRun(ctx context.Context, runID string, summary *model.RunSummary) error {
	return m.Called(ctx, runID, summary).Error(0)
}

func (m *mockStore) FailRun(ctx context.Context, runID string, summary *model.RunSummary, runErr error) error {
	return m.Called(ctx, runID, summary, runErr).Error(0)
}

func (m *mockStore) ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Run), args.Error(1)
}

func (m *mockStore) Query(ctx context.Context, stmt string) (*store.QueryResult, error) {
	args := m.Called(ctx, stmt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.QueryResult), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) ApplySchemaFile(ctx context.Context, path string) (bool, error) {
	args := m.Called(ctx, path)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}

// --- Flusher Mock ---

type mockFlusher struct {
	mock.Mock
}

func (m *mockFlusher) Flush() error {
	return m.Called().Error(0)
}
