package middleware

import (
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Compress gzips JSON responses unless the request opts out with
// nocompress=true. The underlying compressor still negotiates
// Accept-Encoding, so clients that cannot decode gzip are unaffected.
func Compress(level int) func(next http.Handler) http.Handler {
	compressor := chimiddleware.Compress(level, "application/json")
	return func(next http.Handler) http.Handler {
		compressed := compressor(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("nocompress") == "true" {
				next.ServeHTTP(w, r)
				return
			}
			compressed.ServeHTTP(w, r)
		})
	}
}
