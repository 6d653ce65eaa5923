// Package model defines the movie catalog types shared by the loaders, the
// enrichment client and the store.
package model

// Movie is a row of the movies table as loaded from the catalog file.
type Movie struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Year  *int   `json:"year,omitempty"`
}

// Rating is a single user rating of a movie.
type Rating struct {
	UserID    int64   `json:"user_id"`
	MovieID   int64   `json:"movie_id"`
	Rating    float64 `json:"rating"`
	Timestamp *int64  `json:"timestamp,omitempty"`
}

// Candidate is a stored movie selected for enrichment.
type Candidate struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Year        *int   `json:"year,omitempty"`
	RatingCount int64  `json:"rating_count"`
}

// Metadata is the canonical partial record extracted from an OMDb response.
// A nil field means unknown and never overwrites a stored value.
type Metadata struct {
	ExternalID     *string `json:"imdb_id,omitempty"`
	Director       *string `json:"director,omitempty"`
	Plot           *string `json:"plot,omitempty"`
	BoxOffice      *string `json:"box_office,omitempty"`
	Released       *string `json:"released,omitempty"`
	RuntimeMinutes *int    `json:"runtime_minutes,omitempty"`
}

// Empty reports whether no field is present.
func (m *Metadata) Empty() bool {
	if m == nil {
		return true
	}
	return m.ExternalID == nil && !m.HasNonIDFields()
}

// HasNonIDFields reports whether any field other than the external ID is present.
func (m *Metadata) HasNonIDFields() bool {
	if m == nil {
		return false
	}
	return m.Director != nil || m.Plot != nil || m.BoxOffice != nil ||
		m.Released != nil || m.RuntimeMinutes != nil
}

// WithoutExternalID returns a copy with the external ID cleared.
func (m Metadata) WithoutExternalID() Metadata {
	m.ExternalID = nil
	return m
}

// NoGenres is the MovieLens placeholder for an empty genre list.
const NoGenres = "(no genres listed)"
