package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/simonvc/custody/internal/ledger"
	"go.uber.org/zap"
)

// AccountHeader carries the caller's hex account ID. Browsers opening the
// event websocket pass it as the "account" query parameter instead.
const AccountHeader = "X-Account-ID"

type callerKey struct{}

func callerFrom(ctx context.Context) ledger.AccountID {
	id, _ := ctx.Value(callerKey{}).(ledger.AccountID)
	return id
}

func identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(AccountHeader)
		if raw == "" {
			raw = r.URL.Query().Get("account")
		}
		if raw == "" {
			writeKind(w, ledger.KindInvalidRequest, "missing "+AccountHeader+" header")
			return
		}
		id, err := ledger.ParseAccountID(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, id)))
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := callerFrom(r.Context())
		if !s.limiter.Allow(caller.String(), time.Now()) {
			s.log.Debug("rate limited", zap.Stringer("account", caller))
			writeKind(w, ledger.KindRateLimited, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequestLogger logs one line per request with status, size and latency.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("elapsed", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
