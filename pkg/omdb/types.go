package omdb

import "strings"

// NotAvailable is the marker OMDb uses for fields it has no value for.
const NotAvailable = "N/A"

// Movie is an OMDb title document. Failures carry Response "False" and Error.
// Field names follow the OMDb JSON so cached documents round-trip unchanged.
type Movie struct {
	Title      string   `json:"Title,omitempty"`
	Year       string   `json:"Year,omitempty"`
	Rated      string   `json:"Rated,omitempty"`
	Released   string   `json:"Released,omitempty"`
	Runtime    string   `json:"Runtime,omitempty"`
	Genre      string   `json:"Genre,omitempty"`
	Director   string   `json:"Director,omitempty"`
	Writer     string   `json:"Writer,omitempty"`
	Actors     string   `json:"Actors,omitempty"`
	Plot       string   `json:"Plot,omitempty"`
	Language   string   `json:"Language,omitempty"`
	Country    string   `json:"Country,omitempty"`
	Awards     string   `json:"Awards,omitempty"`
	Poster     string   `json:"Poster,omitempty"`
	Ratings    []Rating `json:"Ratings,omitempty"`
	Metascore  string   `json:"Metascore,omitempty"`
	IMDbRating string   `json:"imdbRating,omitempty"`
	IMDbVotes  string   `json:"imdbVotes,omitempty"`
	IMDbID     string   `json:"imdbID,omitempty"`
	Type       string   `json:"Type,omitempty"`
	DVD        string   `json:"DVD,omitempty"`
	BoxOffice  string   `json:"BoxOffice,omitempty"`
	Production string   `json:"Production,omitempty"`
	Website    string   `json:"Website,omitempty"`
	Response   string   `json:"Response"`
	Error      string   `json:"Error,omitempty"`
}

// Rating is a third-party score attached to a title.
type Rating struct {
	Source string `json:"Source"`
	Value  string `json:"Value"`
}

// OK reports whether OMDb marked the document as a successful lookup.
func (m Movie) OK() bool {
	return strings.EqualFold(m.Response, "True")
}

// Failure builds a failed lookup document carrying msg.
func Failure(msg string) Movie {
	return Movie{Response: "False", Error: msg}
}

// SearchResponse is the result of an s= search.
type SearchResponse struct {
	Search       []SearchResult `json:"Search,omitempty"`
	TotalResults string         `json:"totalResults,omitempty"`
	Response     string         `json:"Response"`
	Error        string         `json:"Error,omitempty"`
}

// SearchResult is one entry of a search response.
type SearchResult struct {
	Title  string `json:"Title"`
	Year   string `json:"Year"`
	IMDbID string `json:"imdbID"`
	Type   string `json:"Type"`
	Poster string `json:"Poster,omitempty"`
}

// OK reports whether the search returned matches.
func (s SearchResponse) OK() bool {
	return strings.EqualFold(s.Response, "True")
}
