// Package banner supplies the decorative image shown above the chat.
// Banner failures never reach the chat flow; every provider degrades to a
// fixed URL.
package banner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/aerochat/internal/session"
)

// Modes accepted by New.
const (
	ModeStatic    = "static"
	ModeGenerated = "generated"
	ModeUpload    = "upload"
	ModeRemote    = "remote"
)

var (
	// ErrUnsupportedImage is returned for uploads that are not JPEG or PNG.
	ErrUnsupportedImage = errors.New("banner: image must be a JPEG or PNG")
	// ErrImageTooLarge is returned for uploads above the size cap.
	ErrImageTooLarge = errors.New("banner: image exceeds the upload size limit")
	// ErrImageDimensions is returned for uploads whose pixel count is above
	// MaxUploadPixels.
	ErrImageDimensions = errors.New("banner: image dimensions are too large")
)

// Image is either a URL for the browser to load or inline bytes.
type Image struct {
	URL         string `json:"url,omitempty"`
	Data        []byte `json:"-"`
	ContentType string `json:"content_type,omitempty"`
	Caption     string `json:"caption,omitempty"`
	Source      string `json:"source"`
}

// Inline reports whether the image is served from memory.
func (i *Image) Inline() bool {
	return len(i.Data) > 0
}

// Provider returns the banner for a session.
type Provider interface {
	Banner(ctx context.Context, sess *session.Session) (*Image, error)
}

// Config selects and configures a provider.
type Config struct {
	Mode           string
	URL            string
	Caption        string
	Candidates     []string
	FallbackURL    string
	FetchTimeout   time.Duration
	MaxUploadBytes int64
}

// New builds the provider for cfg.Mode. An empty mode means static.
func New(cfg Config) (Provider, error) {
	static := &Static{URL: cfg.URL, Caption: cfg.Caption}

	switch cfg.Mode {
	case "", ModeStatic:
		if cfg.URL == "" {
			return nil, fmt.Errorf("banner: static mode requires a url")
		}
		return static, nil
	case ModeGenerated:
		return NewGenerated(cfg.Caption), nil
	case ModeUpload:
		return &Uploaded{Fallback: static, MaxBytes: cfg.MaxUploadBytes}, nil
	case ModeRemote:
		fallback := cfg.FallbackURL
		if fallback == "" {
			fallback = cfg.URL
		}
		if len(cfg.Candidates) == 0 && fallback == "" {
			return nil, fmt.Errorf("banner: remote mode requires candidates or a fallback url")
		}
		return NewRemote(cfg.Candidates, fallback, cfg.Caption, cfg.FetchTimeout), nil
	default:
		return nil, fmt.Errorf("banner: unknown mode %q", cfg.Mode)
	}
}

// Static always returns the same URL.
type Static struct {
	URL     string
	Caption string
}

// Banner implements Provider.
func (s *Static) Banner(context.Context, *session.Session) (*Image, error) {
	return &Image{URL: s.URL, Caption: s.Caption, Source: ModeStatic}, nil
}
