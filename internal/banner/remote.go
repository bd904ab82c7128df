package banner

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif" // register decoder
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ashureev/aerochat/internal/session"
	"golang.org/x/sync/singleflight"
)

const (
	defaultFetchTimeout = 5 * time.Second
	maxRemoteBytes      = 10 << 20
	retryFailedAfter    = 10 * time.Minute
)

// Remote fetches the first candidate that answers with a decodable image.
// The first success is cached; when every candidate fails the fallback URL
// is returned and candidates are retried after a while.
//
// Fetches run outside the lock and are shared between concurrent callers.
// They do not inherit the caller's cancellation.
type Remote struct {
	Candidates  []string
	FallbackURL string
	Caption     string
	Client      *http.Client
	Timeout     time.Duration

	group singleflight.Group

	mu       sync.Mutex
	cached   *Image
	failedAt time.Time
	now      func() time.Time
}

// NewRemote creates a remote provider.
func NewRemote(candidates []string, fallbackURL, caption string, timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &Remote{
		Candidates:  candidates,
		FallbackURL: fallbackURL,
		Caption:     caption,
		Client:      &http.Client{Timeout: timeout},
		Timeout:     timeout,
		now:         time.Now,
	}
}

// Banner implements Provider.
func (r *Remote) Banner(ctx context.Context, _ *session.Session) (*Image, error) {
	if img, done := r.lookup(); done {
		return img, nil
	}

	ch := r.group.DoChan("fetch", func() (any, error) {
		return r.fetchCandidates(context.WithoutCancel(ctx)), nil
	})
	select {
	case res := <-ch:
		if img, ok := res.Val.(*Image); ok && img != nil {
			return img, nil
		}
		return r.fallback(), nil
	case <-ctx.Done():
		return r.fallback(), nil
	}
}

// lookup returns the cached image, or the fallback inside the retry window.
func (r *Remote) lookup() (*Image, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != nil {
		return r.cached, true
	}
	if !r.failedAt.IsZero() && r.now().Sub(r.failedAt) < retryFailedAfter {
		return r.fallback(), true
	}
	return nil, false
}

// fetchCandidates tries each candidate in order and records the outcome.
// It returns nil when every candidate failed.
func (r *Remote) fetchCandidates(ctx context.Context) *Image {
	for _, candidate := range r.Candidates {
		img, err := r.fetch(ctx, candidate)
		if err != nil {
			slog.Warn("Banner candidate failed", "url", candidate, "error", err)
			continue
		}
		r.mu.Lock()
		r.cached, r.failedAt = img, time.Time{}
		r.mu.Unlock()
		return img
	}

	r.mu.Lock()
	r.failedAt = r.now()
	r.mu.Unlock()
	return nil
}

func (r *Remote) fallback() *Image {
	return &Image{URL: r.FallbackURL, Caption: r.Caption, Source: ModeRemote}
}

func (r *Remote) fetch(ctx context.Context, url string) (*Image, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(data) > maxRemoteBytes {
		return nil, fmt.Errorf("image larger than %d bytes", maxRemoteBytes)
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	return &Image{
		Data:        data,
		ContentType: "image/" + format,
		Caption:     r.Caption,
		Source:      ModeRemote,
	}, nil
}
