// Package handler provides the HTTP handlers of the route planning API.
package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/haulplan/haulplan/internal/api/middleware"
)

// GetDriverID returns the authenticated driver, or "" when auth is disabled.
func GetDriverID(ctx context.Context) string {
	return middleware.GetDriverID(ctx)
}

// routeID parses the {id} path parameter.
func routeID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
