package main

import (
	"fmt"
	"net/http"
	"time"
)

// newServer returns an *http.Server for h. There is no write timeout: a send
// request may legitimately sleep for the whole configured delay cap.
func newServer(port int, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
