// internal/server/timeouts_test.go
//
// Run: go test ./internal/server -v

package server

import (
	"net/http"
	"testing"
	"time"
)

func TestNewAppliesDefaults(t *testing.T) {
	srv := New(":8080", http.NotFoundHandler(), Timeouts{})
	if srv.ReadTimeout != 10*time.Second ||
		srv.WriteTimeout != 15*time.Second ||
		srv.IdleTimeout != 60*time.Second {
		t.Fatalf("unexpected defaults: read=%v write=%v idle=%v",
			srv.ReadTimeout, srv.WriteTimeout, srv.IdleTimeout)
	}
}

func TestNewHonorsConfiguredTimeouts(t *testing.T) {
	srv := New(":8080", http.NotFoundHandler(), Timeouts{
		Read:  2 * time.Second,
		Write: 3 * time.Second,
		Idle:  4 * time.Second,
	})
	if srv.ReadTimeout != 2*time.Second ||
		srv.WriteTimeout != 3*time.Second ||
		srv.IdleTimeout != 4*time.Second {
		t.Fatalf("configured timeouts overridden: read=%v write=%v idle=%v",
			srv.ReadTimeout, srv.WriteTimeout, srv.IdleTimeout)
	}
}
