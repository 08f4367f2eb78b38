package media

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Smallest valid PNG header so content sniffing sees an image.
var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func multipartUpload(t *testing.T, filename string, data []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/media/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestUploadStoresImage(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	handler := NewUploadHandler(store)

	rec := httptest.NewRecorder()
	handler.Upload(rec, multipartUpload(t, "photo.png", pngBytes))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"filename"`)
}

func TestUploadRejectsNonImage(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	handler := NewUploadHandler(store)

	rec := httptest.NewRecorder()
	handler.Upload(rec, multipartUpload(t, "notes.png", []byte("plain text, not an image")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadRejectsDisallowedExtension(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	handler := NewUploadHandler(store)

	rec := httptest.NewRecorder()
	handler.Upload(rec, multipartUpload(t, "photo.bmp", pngBytes))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "not allowed")
}

func TestUploadRejectsEmptyFile(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	handler := NewUploadHandler(store)

	rec := httptest.NewRecorder()
	handler.Upload(rec, multipartUpload(t, "photo.png", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
