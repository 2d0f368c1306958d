package handlers

import (
	"net/http"
	"strings"

	"github.com/AnshRaj112/neighbourwatch-backend/internal/apperrors"
)

const maxUploadBytes = 10 << 20

// UploadMedia stores an image or video for a post and returns its URL, which
// the client then sends as mediaUrl.
func (h *Handler) UploadMedia(w http.ResponseWriter, r *http.Request) {
	if _, err := caller(r); err != nil {
		h.fail(w, r, err)
		return
	}
	if h.media == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, Response{Success: false, Error: "Media uploads are not configured"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+1024)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.fail(w, r, apperrors.Validation("Failed to parse form: file must be at most 10MB"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.fail(w, r, apperrors.Validation("No file provided"))
		return
	}
	defer file.Close()

	sniff := make([]byte, 512)
	n, _ := file.Read(sniff)
	contentType := http.DetectContentType(sniff[:n])
	if !strings.HasPrefix(contentType, "image/") && !strings.HasPrefix(contentType, "video/") {
		h.fail(w, r, apperrors.Validation("Only image and video uploads are supported"))
		return
	}
	if _, err := file.Seek(0, 0); err != nil {
		h.fail(w, r, apperrors.Upstream("rewind upload", err))
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	url, err := h.media.Upload(ctx, file)
	if err != nil {
		h.fail(w, r, apperrors.Upstream("upload media", err))
		return
	}

	h.log.WithField("file", header.Filename).WithField("bytes", header.Size).Info("media uploaded")
	h.ok(w, "File uploaded successfully", map[string]interface{}{"url": url})
}
