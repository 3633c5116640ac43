//go:build integration
// +build integration

package integration

import (
	"context"
	"log"
	"net"
	"net/url"
	"os"
	"time"
)

// WaitForOpenOrFail waits until the URL host accepts tcp connections
func WaitForOpenOrFail(ctx context.Context, URL string) {
	u, err := url.Parse(URL)
	if err != nil {
		log.Fatalf("FAIL: can't parse %s", URL)
	}
	addr := net.JoinHostPort(u.Hostname(), port(u))
	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()
	for {
		if err := dial(addr); err == nil {
			return
		}
		select {
		case <-ctx.Done():
			log.Fatalf("FAIL: can't access %s", URL)
		case <-tick.C:
		}
	}
}

// GetEnvOrFail returns env value or stops tests
func GetEnvOrFail(s string) string {
	res := os.Getenv(s)
	if res == "" {
		log.Fatalf("no env '%s'", s)
	}
	return res
}

func port(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	if u.Scheme == "https" || u.Scheme == "wss" {
		return "443"
	}
	return "80"
}

func dial(addr string) error {
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		log.Printf("waiting for %s", addr)
		return err
	}
	return conn.Close()
}
