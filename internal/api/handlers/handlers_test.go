package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"advisy/internal/core"
	"advisy/internal/types"
)

// testValidator is shared across handler tests; the validator registers its
// custom tags once.
var testValidator = core.NewValidator()

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

// contextWithActor builds a request context carrying an authenticated user.
func contextWithActor(tenantID string, role types.UserRole) context.Context {
	ctx := types.WithRequestID(context.Background(), "req_test_123")
	return types.WithActor(ctx, types.Actor{
		ID:       "usr_test_123",
		Type:     types.ActorTypeUser,
		TenantID: tenantID,
		Role:     role,
	})
}

// makeRequest builds an HTTP request with a JSON body and the given context.
func makeRequest(method, path string, body any, ctx context.Context) *http.Request {
	var reqBody *bytes.Buffer
	if body != nil {
		data, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if ctx != nil {
		req = req.WithContext(ctx)
	}
	return req
}

// serve routes the request through a chi router with the handler's routes
// mounted, so URL parameters resolve like in production.
func serve(h interface{ RegisterRoutes(chi.Router) }, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	serveInto(h, rr, req)
	return rr
}

// serveInto is serve with a caller-owned recorder, for tests that inspect
// the response while the handler is still running.
func serveInto(h interface{ RegisterRoutes(chi.Router) }, rr *httptest.ResponseRecorder, req *http.Request) {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	r.ServeHTTP(rr, req)
}

// parseJSONResponse decodes the response body into the given target.
func parseJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse response body: %v\nbody: %s", err, rr.Body.String())
	}
}

// errorCode extracts the error code from an error response body.
func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	parseJSONResponse(t, rr, &resp)
	return resp.Error.Code
}
