// Package dataset reads the MovieLens movies and ratings CSV files.
package dataset

import (
	"encoding/csv"
	"errors"
	"io"
	"os"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/movie-etl/internal/model"
)

// MovieRow is one line of movies.csv before title parsing.
type MovieRow struct {
	ID       int64  `csv:"movieId"`
	RawTitle string `csv:"title"`
	Genres   string `csv:"genres,omitempty"`
}

// Movie parses the raw title into a catalog movie.
func (r MovieRow) Movie() model.Movie {
	title, year := model.ParseTitleYear(r.RawTitle)
	return model.Movie{ID: r.ID, Title: title, Year: year}
}

type ratingRow struct {
	UserID    int64   `csv:"userId"`
	MovieID   int64   `csv:"movieId"`
	Rating    float64 `csv:"rating"`
	Timestamp *int64  `csv:"timestamp,omitempty"`
}

// CheckInputs returns an error naming every path that does not exist.
func CheckInputs(paths ...string) error {
	var missing []string
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return eris.Errorf("dataset: input files not found: %v (place them in the working directory or set input.movies_csv / input.ratings_csv)", missing)
	}
	return nil
}

// ReadMovies decodes movies.csv. When limit > 0 only the first limit rows
// are returned.
func ReadMovies(path string, limit int) ([]MovieRow, error) {
	var rows []MovieRow
	err := decodeFile(path, func(dec *csvutil.Decoder) (bool, error) {
		var r MovieRow
		if err := dec.Decode(&r); err != nil {
			return false, err
		}
		rows = append(rows, r)
		return limit > 0 && len(rows) >= limit, nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ReadRatings decodes ratings.csv. An empty timestamp decodes as nil.
func ReadRatings(path string) ([]model.Rating, error) {
	var out []model.Rating
	err := decodeFile(path, func(dec *csvutil.Decoder) (bool, error) {
		var r ratingRow
		if err := dec.Decode(&r); err != nil {
			return false, err
		}
		out = append(out, model.Rating{
			UserID:    r.UserID,
			MovieID:   r.MovieID,
			Rating:    r.Rating,
			Timestamp: r.Timestamp,
		})
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// decodeFile opens path and calls next until it reports done or input ends.
func decodeFile(path string, next func(*csvutil.Decoder) (bool, error)) error {
	f, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "dataset: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	dec, err := csvutil.NewDecoder(csv.NewReader(f))
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return eris.Wrapf(err, "dataset: read header of %s", path)
	}

	// Line 1 is the header.
	line := 1
	for {
		line++
		done, err := next(dec)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return eris.Wrapf(err, "dataset: decode %s line %d", path, line)
		}
		if done {
			return nil
		}
	}
}
