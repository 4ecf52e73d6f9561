package discord

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/watchrelay/watchrelay/core"
)

func TestSinkSendPostsPayload(t *testing.T) {
	var gotBody []byte
	var gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	sink, err := NewSink(server.URL, WithSinkHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}

	payload := core.Payload{Body: []byte(`{"embeds":[]}`), Summary: "Heat (1995)"}
	if err := sink.Send(context.Background(), payload); err != nil {
		t.Fatalf("send: %v", err)
	}
	if string(gotBody) != `{"embeds":[]}` {
		t.Fatalf("body: got %q", string(gotBody))
	}
	if gotContentType != "application/json" {
		t.Fatalf("content type: got %q", gotContentType)
	}
}

func TestSinkSendClassifiesFailures(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		transient bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusBadGateway, true},
		{"rejected", http.StatusBadRequest, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			sink, err := NewSink(server.URL, WithSinkHTTPClient(server.Client()))
			if err != nil {
				t.Fatalf("new sink: %v", err)
			}
			err = sink.Send(context.Background(), core.Payload{Body: []byte(`{}`)})
			if err == nil {
				t.Fatalf("expected error")
			}
			if got := core.IsTransientError(err); got != tc.transient {
				t.Fatalf("IsTransientError = %v, want %v (%v)", got, tc.transient, err)
			}
		})
	}
}

func TestSinkSendRejectsEmptyPayload(t *testing.T) {
	sink, err := NewSink("https://discord.example/webhook")
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	if err := sink.Send(context.Background(), core.Payload{}); err == nil {
		t.Fatalf("expected error for empty payload")
	}
}

func TestNewSinkRequiresURL(t *testing.T) {
	if _, err := NewSink("  "); err == nil {
		t.Fatalf("expected error for blank webhook url")
	}
}
