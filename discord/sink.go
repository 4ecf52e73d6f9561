package discord

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/watchrelay/watchrelay/core"
)

const defaultSendTimeout = 10 * time.Second

// Sink posts rendered payloads to a Discord-compatible webhook URL.
type Sink struct {
	webhookURL  string
	httpClient  *http.Client
	logger      core.Logger
	sendTimeout time.Duration
}

type SinkOption func(*Sink)

func WithSinkHTTPClient(httpClient *http.Client) SinkOption {
	return func(s *Sink) {
		if httpClient != nil {
			s.httpClient = httpClient
		}
	}
}

func WithSinkLogger(logger core.Logger) SinkOption {
	return func(s *Sink) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithSendTimeout(timeout time.Duration) SinkOption {
	return func(s *Sink) {
		if timeout > 0 {
			s.sendTimeout = timeout
		}
	}
}

func NewSink(webhookURL string, options ...SinkOption) (*Sink, error) {
	webhookURL = strings.TrimSpace(webhookURL)
	if webhookURL == "" {
		return nil, fmt.Errorf("discord: webhook url is required")
	}
	sink := &Sink{
		webhookURL:  webhookURL,
		httpClient:  &http.Client{},
		logger:      glog.Nop(),
		sendTimeout: defaultSendTimeout,
	}
	for _, option := range options {
		if option != nil {
			option(sink)
		}
	}
	return sink, nil
}

func (s *Sink) Send(ctx context.Context, payload core.Payload) error {
	if s == nil || s.httpClient == nil {
		return fmt.Errorf("discord: sink is not configured")
	}
	if len(payload.Body) == 0 {
		return core.NewSinkRejectedError("discord: payload body is empty")
	}

	requestCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(
		requestCtx,
		http.MethodPost,
		s.webhookURL,
		bytes.NewReader(payload.Body),
	)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	response, err := s.httpClient.Do(httpReq)
	if err != nil {
		return core.NewSinkUnavailableError(fmt.Sprintf("discord: webhook request failed: %v", err))
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, 1<<16))

	switch {
	case response.StatusCode >= http.StatusOK && response.StatusCode < http.StatusMultipleChoices:
		return nil
	case response.StatusCode == http.StatusTooManyRequests || response.StatusCode >= http.StatusInternalServerError:
		return core.NewSinkUnavailableError(fmt.Sprintf("discord: webhook returned %d", response.StatusCode))
	default:
		return core.NewSinkRejectedError(fmt.Sprintf("discord: webhook rejected payload (%d)", response.StatusCode))
	}
}

var _ core.NotificationSink = (*Sink)(nil)
