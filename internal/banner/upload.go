package banner

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder

	"github.com/ashureev/aerochat/internal/session"
)

const (
	// DefaultMaxUploadBytes caps uploads when Uploaded.MaxBytes is unset.
	DefaultMaxUploadBytes = 5 << 20
	// MaxUploadPixels caps the decoded size of an upload.
	MaxUploadPixels = 40_000_000
)

// Uploaded shows the visitor's own image, or Fallback until one is uploaded.
type Uploaded struct {
	Fallback Provider
	MaxBytes int64
}

// Limit returns the upload size cap in bytes.
func (u *Uploaded) Limit() int64 {
	if u.MaxBytes <= 0 {
		return DefaultMaxUploadBytes
	}
	return u.MaxBytes
}

// Banner implements Provider.
func (u *Uploaded) Banner(ctx context.Context, sess *session.Session) (*Image, error) {
	if sess != nil {
		if up := sess.Upload(); up != nil {
			return &Image{Data: up.Data, ContentType: up.ContentType, Caption: up.Name, Source: ModeUpload}, nil
		}
	}
	return u.Fallback.Banner(ctx, sess)
}

// ValidateUpload decodes data fully and returns its content type. Only
// JPEG and PNG are accepted. The header is checked against MaxUploadPixels
// before any pixel data is decoded.
func ValidateUpload(data []byte, maxBytes int64) (string, error) {
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return "", ErrImageTooLarge
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || (format != "jpeg" && format != "png") {
		return "", ErrUnsupportedImage
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxUploadPixels {
		return "", ErrImageDimensions
	}
	if _, _, err := image.Decode(bytes.NewReader(data)); err != nil {
		return "", ErrUnsupportedImage
	}
	switch format {
	case "jpeg":
		return "image/jpeg", nil
	case "png":
		return "image/png", nil
	default:
		return "", ErrUnsupportedImage
	}
}
