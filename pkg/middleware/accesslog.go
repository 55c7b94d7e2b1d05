package middleware

import (
	"net/http"
	"runtime/debug"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// AccessLog logs one line per request with status and latency. A second
// WriteHeader on the same response is logged with a stack trace and dropped.
func AccessLog(log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, log: log, method: r.Method, path: r.URL.Path}
			next.ServeHTTP(sw, r)
			status := sw.code
			if status == 0 {
				status = http.StatusOK
			}
			log.Infow("http",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", sw.bytes,
				"took", time.Since(start),
				"reqid", RequestIDFrom(r.Context()),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	log    *zap.SugaredLogger
	wrote  int32
	method string
	path   string
	code   int
	bytes  int
}

func (s *statusWriter) WriteHeader(code int) {
	if atomic.CompareAndSwapInt32(&s.wrote, 0, 1) {
		s.code = code
		s.ResponseWriter.WriteHeader(code)
		return
	}
	s.log.Warnw("double WriteHeader", "method", s.method, "path", s.path, "first", s.code, "second", code, "stack", string(debug.Stack()))
}

func (s *statusWriter) Write(b []byte) (int, error) {
	if atomic.LoadInt32(&s.wrote) == 0 {
		s.WriteHeader(http.StatusOK)
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}
