package enrich

import (
	"context"

	"github.com/sells-group/movie-etl/pkg/omdb"
)

// fakeAPI is a scripted omdb.Client that records every call.
type fakeAPI struct {
	byTitle func(title string, year *int) (*omdb.Movie, error)
	byID    func(id string) (*omdb.Movie, error)
	search  func(title string, year *int) (*omdb.SearchResponse, error)

	titleCalls  []string
	idCalls     []string
	searchCalls []string
}

func (f *fakeAPI) ByTitle(_ context.Context, title string, year *int) (*omdb.Movie, error) {
	f.titleCalls = append(f.titleCalls, title)
	if f.byTitle == nil {
		return &omdb.Movie{Response: "False", Error: "Movie not found!"}, nil
	}
	return f.byTitle(title, year)
}

func (f *fakeAPI) ByID(_ context.Context, id string) (*omdb.Movie, error) {
	f.idCalls = append(f.idCalls, id)
	if f.byID == nil {
		return &omdb.Movie{Response: "False", Error: "Incorrect IMDb ID."}, nil
	}
	return f.byID(id)
}

func (f *fakeAPI) Search(_ context.Context, title string, year *int) (*omdb.SearchResponse, error) {
	f.searchCalls = append(f.searchCalls, title)
	if f.search == nil {
		return &omdb.SearchResponse{Response: "False", Error: "Movie not found!"}, nil
	}
	return f.search(title, year)
}

func (f *fakeAPI) networkCalls() int {
	return len(f.titleCalls) + len(f.idCalls) + len(f.searchCalls)
}

type mapCache map[string]omdb.Movie

func (m mapCache) Get(key string) (omdb.Movie, bool) {
	v, ok := m[key]
	return v, ok
}

func (m mapCache) Put(key string, v omdb.Movie) {
	m[key] = v
}
