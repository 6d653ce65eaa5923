package enrich

import (
	"errors"
	"net/url"
	"strings"

	"github.com/sells-group/movie-etl/pkg/omdb"
)

// Outcome classifies the result of a single OMDb call.
type Outcome int

const (
	OutcomeFound Outcome = iota
	OutcomeNotFound
	OutcomeRateLimited
	OutcomeNetwork
	OutcomeMalformed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFound:
		return "found"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeNetwork:
		return "network"
	case OutcomeMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// rateLimitMarkers are matched case-insensitively against OMDb error text.
// OMDb reports quota and credential problems only as free text.
var rateLimitMarkers = []string{
	"request limit",
	"limit reached",
	"invalid api key",
	"no api key provided",
}

// IsRateLimitMessage reports whether an OMDb error message means further
// calls in this run will fail the same way.
func IsRateLimitMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, m := range rateLimitMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// Classify maps a wire client result to an Outcome.
func Classify(doc *omdb.Movie, err error) Outcome {
	if err != nil {
		var re *omdb.ResponseError
		if errors.As(err, &re) {
			return OutcomeMalformed
		}
		return OutcomeNetwork
	}
	if doc == nil {
		return OutcomeMalformed
	}
	if doc.OK() {
		return OutcomeFound
	}
	if IsRateLimitMessage(doc.Error) {
		return OutcomeRateLimited
	}
	return OutcomeNotFound
}

// failureDoc converts a transport error into the failure document that is
// cached in its place.
func failureDoc(err error) omdb.Movie {
	var re *omdb.ResponseError
	if errors.As(err, &re) {
		return omdb.Failure(re.Error())
	}
	// Drop the request URL so the api key never reaches the cache file.
	var ue *url.Error
	if errors.As(err, &ue) {
		return omdb.Failure("Network error: " + ue.Err.Error())
	}
	return omdb.Failure("Network error: " + err.Error())
}
