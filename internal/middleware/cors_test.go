package middleware

import (
	"context"
	"net/http"
	"testing"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/cloudwego/hertz/pkg/route"
)

func corsEngine(allowed []string) *route.Engine {
	engine := route.NewEngine(config.NewOptions([]config.Option{}))
	engine.Use(newCORS(allowed))
	engine.GET("/ping", func(ctx context.Context, c *app.RequestContext) {
		c.String(http.StatusOK, "pong")
	})
	engine.OPTIONS("/ping", func(ctx context.Context, c *app.RequestContext) {
		c.String(http.StatusOK, "handler should not run")
	})
	return engine
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    string
	}{
		{name: "any origin, no header", want: "*"},
		{name: "any origin, echoed", origin: "https://scan.example.org", want: "https://scan.example.org"},
		{name: "allow list hit", allowed: []string{" https://Scan.example.org "}, origin: "https://scan.example.org", want: "https://scan.example.org"},
		{name: "allow list miss", allowed: []string{"https://scan.example.org"}, origin: "https://evil.example.com", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var headers []ut.Header
			if tt.origin != "" {
				headers = append(headers, ut.Header{Key: "Origin", Value: tt.origin})
			}
			w := ut.PerformRequest(corsEngine(tt.allowed), http.MethodGet, "/ping", nil, headers...)
			resp := w.Result()
			if resp.StatusCode() != http.StatusOK {
				t.Fatalf("status = %d", resp.StatusCode())
			}
			if got := string(resp.Header.Peek("Access-Control-Allow-Origin")); got != tt.want {
				t.Fatalf("Access-Control-Allow-Origin = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	w := ut.PerformRequest(corsEngine(nil), http.MethodOptions, "/ping", nil,
		ut.Header{Key: "Origin", Value: "https://scan.example.org"})
	if got := w.Result().StatusCode(); got != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", got)
	}
}
