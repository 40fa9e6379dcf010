package http

import (
	"net/http"
	"strconv"
	"time"

	"rentro/pkg/config"
	apperrors "rentro/pkg/errors"
)

func ExtractLimitOffset(r *http.Request) (int, int64, error) {
	query := r.URL.Query()

	limit := 0
	if s := query.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid limit parameter: " + s)
		}
		limit = v
	}

	var offset int64 = 0
	if s := query.Get("offset"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid offset parameter: " + s)
		}
		offset = int64(v)
	}

	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	return limit, offset, nil
}

// ExtractTime parses an RFC3339 query parameter. Required parameters that are
// missing or malformed produce an InvalidInput error.
func ExtractTime(r *http.Request, name string, required bool) (*time.Time, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		if required {
			return nil, apperrors.InvalidInput("'" + name + "' query parameter is required")
		}
		return nil, nil
	}

	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, apperrors.InvalidInput("invalid " + name + " format, must be RFC3339")
	}
	return &parsed, nil
}
