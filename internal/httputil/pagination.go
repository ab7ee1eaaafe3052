package httputil

import (
	"fmt"
	"net/http"
	"strconv"
)

// ParseLimit safely parses and validates the limit query parameter.
// It defaults to 50 and cannot exceed 100.
func ParseLimit(r *http.Request) (int, error) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return 50, nil
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 1 || limit > 100 {
		return 0, fmt.Errorf("invalid limit parameter: must be between 1 and 100")
	}

	return limit, nil
}
