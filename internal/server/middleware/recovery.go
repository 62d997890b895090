package middleware

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	apperrors "github.com/arcfield/jobforge/internal/errors"
	"github.com/arcfield/jobforge/internal/observability"
)

// Recovery converts handler panics into the standard INTERNAL_ERROR
// envelope instead of tearing down the connection.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				observability.ServerLogger.Error("handler panic",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
					zap.String("request_id", GetRequestID(r.Context())))
				apperrors.RespondWithError(w, GetRequestID(r.Context()),
					fmt.Errorf("panic: %v", rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
