// internal/server/timeouts.go
//
// *http.Server construction for the multi-tenant edge.
//
// Every tenant site and the platform surface share one listener, so a
// slow-loris client or a stalled response on one tenant's host must not
// pin connections the rest of the fleet needs.  ReadTimeout bounds
// header arrival, WriteTimeout caps total response time, and IdleTimeout
// reaps quiet keep-alives.  The values come from the `http` config
// section; zero fields fall back to the defaults below.

package server

import (
	"net/http"
	"time"
)

// Timeouts carries the listener's connection deadlines.
type Timeouts struct {
	Read  time.Duration
	Write time.Duration
	Idle  time.Duration
}

// New constructs the edge *http.Server.  TLSConfig may be injected by
// callers afterwards (e.g., autocert).
func New(addr string, handler http.Handler, t Timeouts) *http.Server {
	if t.Read == 0 {
		t.Read = 10 * time.Second
	}
	if t.Write == 0 {
		t.Write = 15 * time.Second
	}
	if t.Idle == 0 {
		t.Idle = 60 * time.Second
	}
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  t.Read,
		WriteTimeout: t.Write,
		IdleTimeout:  t.Idle,
	}
}
