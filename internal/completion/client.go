package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// DefaultBaseURL is the OpenAI API root.
const DefaultBaseURL = "https://api.openai.com/v1"

// maxErrorBody caps how much of a non-2xx body is read for the error message.
const maxErrorBody = 64 * 1024

var errEventTooLarge = errors.New("sse event exceeds size limit")

// sharedStreamingClient has no overall timeout: a reply may take as long as
// the API needs. Only connection setup is bounded.
var sharedStreamingClient = &http.Client{
	Transport: &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
	},
}

// Config holds the client settings shared by every session.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Client is an OpenAI-compatible chat-completions client bound to one API key.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for apiKey.
func NewClient(apiKey string, cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = sharedStreamingClient
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// NewFactory returns a Factory that builds clients sharing cfg.
func NewFactory(cfg Config) Factory {
	return func(credential string) Streamer {
		return NewClient(credential, cfg)
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

// Stream sends req with stream=true and yields reply fragments as they
// arrive.
func (c *Client) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	var consumed atomic.Bool

	return func(yield func(string, error) bool) {
		if !consumed.CompareAndSwap(false, true) {
			yield("", ErrStreamConsumed)
			return
		}

		resp, err := c.open(ctx, req)
		if err != nil {
			yield("", err)
			return
		}
		defer func() {
			if closeErr := resp.Body.Close(); closeErr != nil {
				slog.Debug("completion: failed to close response body", "error", closeErr)
			}
		}()

		reader := newSSEReader(resp.Body)
		finished := false
		for {
			data, err := reader.next()
			if err != nil {
				if errors.Is(err, io.EOF) {
					if !finished {
						yield("", &Error{Kind: KindStreamInterrupted, Message: "stream ended before the reply was complete"})
					}
					return
				}
				yield("", &Error{Kind: KindStreamInterrupted, Err: err})
				return
			}

			if bytes.Equal(data, []byte("[DONE]")) {
				return
			}

			var chunk streamChunk
			if err := json.Unmarshal(data, &chunk); err != nil {
				slog.Debug("completion: skipping malformed chunk", "error", err, "size", len(data))
				continue
			}
			if chunk.Error != nil {
				yield("", &Error{Kind: KindUpstream, Message: chunk.Error.Message})
				return
			}

			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					if !yield(choice.Delta.Content, nil) {
						return
					}
				}
				if choice.FinishReason != nil && *choice.FinishReason != "" {
					finished = true
				}
			}
		}
	}
}

// open performs the HTTP request and returns the response once the API has
// accepted it.
func (c *Client) open(ctx context.Context, req Request) (*http.Response, error) {
	messages := make([]chatMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = chatMessage{Role: string(m.Role), Content: m.Content}
	}

	body, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := errorMessage(raw)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &Error{
			Kind:       kindForStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Message:    msg,
		}
	}

	return resp, nil
}

// errorMessage extracts the API's error message from a failure body.
func errorMessage(raw []byte) string {
	var envelope struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return truncate(strings.TrimSpace(string(raw)), 400)
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
