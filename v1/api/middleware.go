package api

import (
	"log"
	"net/http"
	"time"

	uuid "github.com/hashicorp/go-uuid"
)

// responseWriter captures the status code for the request log.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggerMiddleware logs every request with a generated request id. The id is
// echoed in the X-Request-Id header so clients can correlate.
func loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID, err := uuid.GenerateUUID()
		if err != nil {
			reqID = "unknown"
		}
		w.Header().Set("X-Request-Id", reqID)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		log.Printf("%s %s => %d took %s [req %s]", r.Method, r.URL.Path, rw.statusCode, time.Since(start), reqID)
	})
}
