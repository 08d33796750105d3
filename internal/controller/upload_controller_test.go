package controller

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ottoseguridad_backend/internal/model"
	"ottoseguridad_backend/pkg/storage"
)

type memStore struct {
	objects map[string][]byte
	types   map[string]string
}

func (m *memStore) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.objects[key] = raw
	m.types[key] = contentType
	return "https://cdn.test/" + key, nil
}

func (m *memStore) Delete(ctx context.Context, url string) error {
	delete(m.objects, strings.TrimPrefix(url, "https://cdn.test/"))
	return nil
}

func useStore(t *testing.T, s storage.Store) {
	t.Helper()
	prev := storage.Default
	storage.Default = s
	t.Cleanup(func() { storage.Default = prev })
}

func multipartBody(t *testing.T, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func (e *testEnv) upload(t *testing.T, path, token, filename, contentType string, content []byte) int {
	t.Helper()
	body, ct := multipartBody(t, filename, contentType, content)
	req := httptest.NewRequest("POST", path, body)
	req.Header.Set(fiber.HeaderContentType, ct)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestUploadImage(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.login(t, "editor@otto.ec", model.RoleEditor)

	assert.Equal(t, fiber.StatusServiceUnavailable, e.upload(t, "/api/upload/image", token, "foto.png", "image/png", pngBytes(t)))

	store := &memStore{objects: map[string][]byte{}, types: map[string]string{}}
	useStore(t, store)

	assert.Equal(t, fiber.StatusCreated, e.upload(t, "/api/upload/image", token, "foto.png", "image/png", pngBytes(t)))
	require.Len(t, store.objects, 1)
	for key, ct := range store.types {
		assert.True(t, strings.HasPrefix(key, "uploads/images/"), key)
		assert.True(t, strings.HasSuffix(key, ".png"), key)
		assert.Equal(t, "image/png", ct)
	}

	assert.Equal(t, fiber.StatusBadRequest, e.upload(t, "/api/upload/image", token, "notas.txt", "text/plain", []byte("hola")))
	assert.Equal(t, fiber.StatusBadRequest, e.upload(t, "/api/upload/image", token, "roto.png", "image/png", []byte("not a png")))
}

func TestUploadVideo(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.login(t, "editor@otto.ec", model.RoleEditor)
	store := &memStore{objects: map[string][]byte{}, types: map[string]string{}}
	useStore(t, store)

	assert.Equal(t, fiber.StatusCreated, e.upload(t, "/api/upload/video", token, "resumen.webm", "video/webm", []byte("webm-bytes")))
	require.Len(t, store.objects, 1)
	for key, raw := range store.objects {
		assert.True(t, strings.HasPrefix(key, "uploads/videos/"), key)
		assert.Equal(t, "webm-bytes", string(raw))
		assert.Equal(t, "video/webm", store.types[key])
	}

	assert.Equal(t, fiber.StatusBadRequest, e.upload(t, "/api/upload/video", token, "resumen.avi", "video/x-msvideo", []byte("avi")))
}
