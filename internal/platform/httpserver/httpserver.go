// Package httpserver builds the API server the service listens on.
package httpserver

import (
	"net/http"
	"time"
)

// New returns an http.Server for the given handler. Header reads and idle
// keep-alives are bounded so stalled connections cannot pin workers; search
// responses can be large, so there is no write timeout.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
