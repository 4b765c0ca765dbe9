package api

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

func withLogging(logger *log.Logger, next http.Handler) http.Handler {
	if logger == nil {
		logger = log.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Printf("REQ %s %s -> %d %dB in %s From=%s", r.Method, r.URL.String(), ww.Status(), ww.BytesWritten(), time.Since(start).Round(time.Microsecond), r.RemoteAddr)
		if v := r.Header.Get("Origin"); v != "" {
			logger.Printf("HDR Origin: %s", v)
		}
	})
}
