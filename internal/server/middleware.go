package server

import (
	"context"
	"net/http"

	"github.com/playperu/treasurehunt/internal/hunt"
	"github.com/playperu/treasurehunt/internal/identity"
	"github.com/playperu/treasurehunt/internal/readcache"
)

type ctxKey int

const (
	ctxKeyCaller ctxKey = iota
)

// batchMiddleware gives each request its own read batch, so repeated event,
// team and graph lookups within one request hit storage once.
func batchMiddleware(graphs *readcache.Cache) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := readcache.WithBatch(r.Context(), graphs.NewBatch())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// callerMiddleware requires an identity token or staff session.
func callerMiddleware(verifier *identity.Verifier, staff StaffStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, err := callerFromRequest(r, verifier, staff)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "not authenticated")
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyCaller, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func callerFrom(r *http.Request) hunt.Caller {
	return r.Context().Value(ctxKeyCaller).(hunt.Caller)
}
