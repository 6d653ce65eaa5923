package enrich

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/movie-etl/internal/model"
	"github.com/sells-group/movie-etl/pkg/omdb"
)

// releasedLayouts are tried in order; OMDb normally sends the first.
var releasedLayouts = []string{"2 Jan 2006", "2006-01-02"}

var runtimeRe = regexp.MustCompile(`^\s*(\d+)\s*min`)

// Normalize converts an OMDb document into a canonical partial record.
// It returns nil for failed or empty documents and never fails: a field that
// does not parse is left nil.
func Normalize(doc omdb.Movie) *model.Metadata {
	if !doc.OK() {
		return nil
	}
	meta := &model.Metadata{
		ExternalID:     available(doc.IMDbID),
		Director:       available(doc.Director),
		Plot:           available(doc.Plot),
		BoxOffice:      available(doc.BoxOffice),
		Released:       ParseReleased(doc.Released),
		RuntimeMinutes: ParseRuntime(doc.Runtime),
	}
	if meta.Empty() {
		return nil
	}
	return meta
}

// ParseRuntime parses "<N> min" into minutes.
func ParseRuntime(s string) *int {
	m := runtimeRe.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &n
}

// ParseReleased parses an OMDb release date into ISO YYYY-MM-DD.
func ParseReleased(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" || s == omdb.NotAvailable {
		return nil
	}
	for _, layout := range releasedLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			iso := t.Format("2006-01-02")
			return &iso
		}
	}
	return nil
}

func available(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" || s == omdb.NotAvailable {
		return nil
	}
	return &s
}
