package main

import "testing"

func TestListenerURL(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		scheme  string
		address string
		path    string
		want    string
	}{
		"port_only":            {scheme: "ws", address: ":10202", want: "ws://localhost:10202/"},
		"explicit_loopback":    {scheme: "ws", address: "127.0.0.1:10202", path: "/", want: "ws://127.0.0.1:10202/"},
		"ipv4_any":             {scheme: "ws", address: "0.0.0.0:9000", path: "/ws", want: "ws://localhost:9000/ws"},
		"ipv6_any":             {scheme: "http", address: "[::]:9090", path: "/metrics", want: "http://localhost:9090/metrics"},
		"ipv6_custom":          {scheme: "ws", address: "[2001:db8::1]:10202", want: "ws://[2001:db8::1]:10202/"},
		"path_without_slash":   {scheme: "ws", address: "localhost:8000", path: "feed", want: "ws://localhost:8000/feed"},
		"address_without_port": {scheme: "http", address: "example.internal", path: "/livez", want: "http://example.internal/livez"},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got := listenerURL(tc.scheme, tc.address, tc.path)
			if got != tc.want {
				t.Fatalf("listenerURL(%q, %q, %q) = %q, want %q", tc.scheme, tc.address, tc.path, got, tc.want)
			}
		})
	}
}

func TestNormaliseHostPortNoPort(t *testing.T) {
	t.Parallel()

	got := normaliseHostPort("")
	if got != "localhost" {
		t.Fatalf("expected localhost for empty address, got %q", got)
	}
}
