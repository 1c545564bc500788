package main

import (
	"net/url"
	"os"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// hostOf returns the host[:port] of a base URL for websocket origin checks.
func hostOf(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return "localhost"
	}
	return u.Host
}
