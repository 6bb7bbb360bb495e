// Package requestid assigns each request a correlation ID. Incoming
// X-Request-Id headers are honored so IDs survive proxy hops; otherwise a
// fresh UUID is minted. The ID is echoed on the response for client-side
// correlation.
package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"comply/pkg/requestcontext"
)

const Header = "X-Request-Id"

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(Header)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		w.Header().Set(Header, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
