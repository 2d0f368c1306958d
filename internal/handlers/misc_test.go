package handlers_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/neighbourwatch-backend/internal/handlers"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/middleware"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/services"
)

var pngHeader = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)

func multipartBody(t *testing.T, field string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, "photo.png")
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (e *testEnv) upload(t *testing.T, token, field string, content []byte) (int, envelope) {
	t.Helper()
	body, contentType := multipartBody(t, field, content)
	req := httptest.NewRequest(http.MethodPost, "/api/posts/media", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var out envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w.Code, out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/", "/health"} {
		status, resp := env.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, status)
		assert.True(t, resp.Success)
		assert.False(t, resp.Timestamp.IsZero())
	}
}

func TestUploadMedia(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.signUp(t, "a@x.com", "Walmer")

	status, resp := env.upload(t, token, "file", pngHeader)
	require.Equal(t, http.StatusOK, status, resp.Error)
	url := decodeData[map[string]string](t, resp)["url"]
	assert.Contains(t, url, "https://res.cloudinary.com/")
	assert.Equal(t, pngHeader, env.media.body, "the uploader receives the whole file")

	status, resp = env.upload(t, token, "file", []byte("just some notes"))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, resp.Error, "image")

	status, _ = env.upload(t, token, "attachment", pngHeader)
	assert.Equal(t, http.StatusBadRequest, status)

	env.media.err = errStoreDown
	status, resp = env.upload(t, token, "file", pngHeader)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.NotContains(t, resp.Error, errStoreDown.Error())
}

func TestUploadMedia_NotConfigured(t *testing.T) {
	h := handlers.New(handlers.Deps{Store: newMemoryStore()})

	body, contentType := multipartBody(t, "file", pngHeader)
	req := httptest.NewRequest(http.MethodPost, "/api/posts/media", body)
	req.Header.Set("Content-Type", contentType)
	req = req.WithContext(middleware.WithIdentity(req.Context(), services.Identity{UID: "u1", Email: "a@x.com"}))
	w := httptest.NewRecorder()
	h.UploadMedia(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
