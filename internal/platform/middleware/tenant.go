package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	id "riskgraph/pkg/domain"
	dErrors "riskgraph/pkg/domain-errors"
	"riskgraph/pkg/platform/httputil"
	"riskgraph/pkg/requestcontext"
)

const (
	headerTenantID = "X-Tenant-ID"
	headerActor    = "X-Actor"
	headerRequest  = "X-Request-ID"
)

// RequireTenant resolves the tenant scope from the X-Tenant-ID header and
// rejects requests without one. All graph and scoring routes sit behind this;
// tenant isolation starts here.
func RequireTenant(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(headerTenantID)
			tenantID, err := id.ParseTenantID(raw)
			if err != nil {
				logger.WarnContext(r.Context(), "request rejected, missing or invalid tenant",
					"request_id", requestcontext.RequestID(r.Context()),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "X-Tenant-ID header is required"))
				return
			}

			ctx := requestcontext.WithTenantID(r.Context(), tenantID)
			if actor := r.Header.Get(headerActor); actor != "" {
				ctx = requestcontext.WithActor(ctx, actor)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestMetadata stamps each request with an ID and a request-scoped time so
// every computation inside one request observes the same clock reading.
func RequestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(headerRequest)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		ctx = requestcontext.WithTime(ctx, time.Now().UTC())
		w.Header().Set(headerRequest, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
