// Package health provides liveness and readiness HTTP handlers.
package health

import "net/http"

// Healthz reports process liveness: if the process can answer at
// all, it's alive.
func Healthz() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

// Readyz reports readiness. The relay has no external dependencies to
// wait on (no database, no broker), so it's ready as soon as it's
// alive.
func Readyz() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
}
