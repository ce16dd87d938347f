package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/readlist/readlist-sync/internal/api/common"
	"github.com/readlist/readlist-sync/internal/status"
	"github.com/readlist/readlist-sync/internal/sync/coordinator"
	"github.com/readlist/readlist-sync/internal/sync/state"
)

type syncRoutes struct {
	coordinator coordinator.Coordinator
	store       state.Store
	secret      string
}

func newSyncRoutes(coord coordinator.Coordinator, store state.Store, secret string) *syncRoutes {
	return &syncRoutes{coordinator: coord, store: store, secret: secret}
}

func (s *syncRoutes) router() http.Handler {
	r := chi.NewRouter()
	r.With(s.requireSecret).Post("/run", s.run)
	r.Get("/status/{userID}", s.userStatus)
	return r
}

// requireSecret checks the shared trigger secret in constant time.
func (s *syncRoutes) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || s.secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.secret)) != 1 {
			common.WriteErrorResponse(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// run executes one pass. A client that disconnects does not abort it.
func (s *syncRoutes) run(w http.ResponseWriter, r *http.Request) {
	report, err := s.coordinator.RunPass(context.WithoutCancel(r.Context()))
	if err != nil {
		slog.Error("Triggered sync pass failed", "error", err)
		common.WriteErrorResponse(w, "sync pass failed", http.StatusInternalServerError)
		return
	}

	results := report.Results
	if results == nil {
		results = []status.UserResult{}
	}
	common.WriteJSONResponse(w, RunResponse{Results: results}, http.StatusOK)
}

func (s *syncRoutes) userStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := common.GetUUIDURLParam(r, "userID")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	st, err := s.store.Get(r.Context(), userID)
	if errors.Is(err, state.ErrNotFound) {
		common.WriteErrorResponse(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Failed to load sync state", "user_id", userID, "error", err)
		common.WriteErrorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}

	common.WriteJSONResponse(w, status.UserSyncStatus{
		UserID:        st.UserID,
		InProgress:    st.InProgress,
		LastSyncAt:    st.LastSyncAt,
		NextAllowedAt: st.NextAllowedAt,
	}, http.StatusOK)
}
