package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/parcel-intake-backend/pkg/logger"
)

const operatorIDHeader = "X-Operator-Id"

// Operator reads the optional operator header sent by scanning stations. It
// scopes idempotency records and rate limits; it is not authentication.
func Operator(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			operatorID := strings.TrimSpace(r.Header.Get(operatorIDHeader))
			if operatorID == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := WithOperatorID(r.Context(), operatorID)
			if logg != nil {
				ctx = logg.WithOperatorID(ctx, operatorID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
