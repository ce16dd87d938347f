package common

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serveParam routes path through a chi pattern and runs fn on the request.
func serveParam(t *testing.T, path string, fn func(r *http.Request)) {
	t.Helper()
	called := false
	r := chi.NewRouter()
	r.Get("/users/{userID}", func(_ http.ResponseWriter, req *http.Request) {
		called = true
		fn(req)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	require.True(t, called, "route did not match %s", path)
}

func TestGetAndValidateURLParam(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		wantValue  string
		wantErrMsg string
	}{
		{name: "plain", path: "/users/abc-123", wantValue: "abc-123"},
		{name: "encoded slash", path: "/users/a%2Fb", wantValue: "a/b"},
		{name: "encoded space", path: "/users/a%20b", wantErrMsg: "cannot contain whitespace"},
		{name: "only whitespace", path: "/users/%20%20", wantErrMsg: "cannot be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			serveParam(t, tt.path, func(r *http.Request) {
				got, err := GetAndValidateURLParam(r, "userID")
				if tt.wantErrMsg != "" {
					assert.ErrorContains(t, err, tt.wantErrMsg)
					return
				}
				assert.NoError(t, err)
				assert.Equal(t, tt.wantValue, got)
			})
		})
	}
}

func TestGetUUIDURLParam(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	serveParam(t, "/users/"+id.String(), func(r *http.Request) {
		got, err := GetUUIDURLParam(r, "userID")
		assert.NoError(t, err)
		assert.Equal(t, id, got)
	})

	serveParam(t, "/users/not-a-uuid", func(r *http.Request) {
		_, err := GetUUIDURLParam(r, "userID")
		assert.ErrorContains(t, err, "must be a UUID")
	})
}
