package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path"

	"github.com/ashureev/aerochat/internal/banner"
	"github.com/ashureev/aerochat/internal/session"
)

const bannerPath = "/api/banner"

type bannerView struct {
	URL         string `json:"url,omitempty"`
	Caption     string `json:"caption,omitempty"`
	Source      string `json:"source,omitempty"`
	Uploadable  bool   `json:"uploadable"`
	Unavailable string `json:"unavailable,omitempty"`
}

func (h *ChatHandler) bannerView(ctx context.Context, sess *session.Session) bannerView {
	_, uploadable := h.banner.(*banner.Uploaded)
	v := bannerView{Uploadable: uploadable}

	img, err := h.banner.Banner(ctx, sess)
	if err != nil || img == nil || (img.URL == "" && !img.Inline()) {
		slog.Warn("Banner unavailable", "session_key", sess.Key, "error", err)
		v.Unavailable = "Image unavailable"
		return v
	}

	v.Caption, v.Source = img.Caption, img.Source
	if img.Inline() {
		v.URL = bannerPath
	} else {
		v.URL = img.URL
	}
	return v
}

// Banner serves the session's banner image, or redirects to its URL.
func (h *ChatHandler) Banner(w http.ResponseWriter, r *http.Request) {
	sess := h.session(r)

	img, err := h.banner.Banner(r.Context(), sess)
	if err != nil || img == nil {
		slog.Warn("Banner unavailable", "session_key", sess.Key, "error", err)
		Error(w, http.StatusServiceUnavailable, "image unavailable")
		return
	}

	switch {
	case img.Inline():
		w.Header().Set("Content-Type", img.ContentType)
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(img.Data); err != nil {
			slog.Debug("Failed to write banner", "error", err)
		}
	case img.URL != "":
		http.Redirect(w, r, img.URL, http.StatusFound)
	default:
		Error(w, http.StatusServiceUnavailable, "image unavailable")
	}
}

// UploadBanner accepts a JPEG or PNG as the session's banner.
func (h *ChatHandler) UploadBanner(w http.ResponseWriter, r *http.Request) {
	sess := h.session(r)

	uploaded, ok := h.banner.(*banner.Uploaded)
	if !ok {
		Error(w, http.StatusConflict, "uploads are disabled for this persona")
		return
	}
	limit := uploaded.Limit()

	// Allow room for the multipart envelope around the file.
	r.Body = http.MaxBytesReader(w, r.Body, limit+64<<10)
	file, header, err := r.FormFile("image")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			Error(w, http.StatusRequestEntityTooLarge, banner.ErrImageTooLarge.Error())
			return
		}
		Error(w, http.StatusBadRequest, "multipart field \"image\" is required")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		Error(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	contentType, err := banner.ValidateUpload(data, limit)
	switch {
	case errors.Is(err, banner.ErrImageTooLarge), errors.Is(err, banner.ErrImageDimensions):
		Error(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	case err != nil:
		Error(w, http.StatusUnsupportedMediaType, err.Error())
		return
	}

	name := path.Base(header.Filename)
	sess.SetUpload(&session.Upload{Data: data, ContentType: contentType, Name: name})
	slog.Info("Banner uploaded", "session_key", sess.Key, "content_type", contentType, "size", len(data))

	JSON(w, http.StatusOK, bannerView{URL: bannerPath, Caption: name, Source: banner.ModeUpload, Uploadable: true})
}
