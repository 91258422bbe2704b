// Package handlers contains the HTTP handler implementations for the Advisy API.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"advisy/internal/core"
	"advisy/internal/types"
)

// requireActor extracts the authenticated actor from the request context,
// writing a 401 response and returning false when absent. Every tenant-scoped
// handler starts here.
func requireActor(w http.ResponseWriter, r *http.Request) (types.Actor, bool) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthTokenMissing,
			"Authentication required",
			nil,
		))
		return types.Actor{}, false
	}
	return actor, true
}

// urlID extracts a required URL parameter, writing a validation error and
// returning false when it is missing.
func urlID(w http.ResponseWriter, r *http.Request, param, label string) (string, bool) {
	id := chi.URLParam(r, param)
	if id == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			label+" is required",
			nil,
		))
		return "", false
	}
	return id, true
}
