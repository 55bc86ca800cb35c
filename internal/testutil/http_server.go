// Package testutil provides HTTP fixtures for pledo tests: an IPv4 test
// server, a media file server and a Plex API double.
package testutil

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

func listen4() (net.Listener, error) {
	return net.Listen("tcp4", "127.0.0.1:0")
}

// NewHTTPServer starts an httptest server bound to IPv4 to avoid IPv6 listener issues in sandboxed environments.
func NewHTTPServer(handler http.Handler) *httptest.Server {
	ln, err := listen4()
	if err != nil {
		return httptest.NewServer(handler)
	}
	srv := &httptest.Server{Listener: ln, Config: &http.Server{Handler: handler}}
	srv.Start()
	return srv
}

// NewHTTPServerT starts an IPv4 httptest server that is closed with the
// test. The test is skipped when no IPv4 listener can be bound.
func NewHTTPServerT(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	ln, err := listen4()
	if err != nil {
		t.Skipf("tcp4 listener unavailable: %v", err)
		return nil
	}
	srv := &httptest.Server{Listener: ln, Config: &http.Server{Handler: handler}}
	srv.Start()
	t.Cleanup(srv.Close)
	return srv
}

// UnreachableURL returns the base URL of a port nothing listens on.
func UnreachableURL(t *testing.T) string {
	t.Helper()
	ln, err := listen4()
	if err != nil {
		t.Skipf("tcp4 listener unavailable: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return "http://" + addr
}
