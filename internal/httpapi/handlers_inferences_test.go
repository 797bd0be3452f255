package httpapi

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visiond/internal/config"
)

func TestObjectKeyFromURL(t *testing.T) {
	tests := []struct {
		url    string
		bucket string
		key    string
		ok     bool
	}{
		{"http://minio:9000/inferences/1/abc/result.jpg", "inferences", "1/abc/result.jpg", true},
		{"https://cdn.example.com/inferences/42/x/metadata.json", "inferences", "42/x/metadata.json", true},
		{"http://minio:9000/other/1/abc.jpg", "inferences", "", false},
		{"http://minio:9000/inferences/", "inferences", "", false},
	}

	for _, tc := range tests {
		key, ok := objectKeyFromURL(tc.url, tc.bucket)
		assert.Equal(t, tc.ok, ok, tc.url)
		assert.Equal(t, tc.key, key, tc.url)
	}
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "street_scene_01", sanitizeFilename("street scene 01"))
	assert.Equal(t, "a-b_c", sanitizeFilename("a-b_c"))
	assert.Equal(t, "___", sanitizeFilename("../"))
}

// stubStore serves canned object bodies keyed by bucket/key.
type stubStore struct {
	objects map[string][]byte
}

func (s *stubStore) ListObjects(context.Context, string) ([]string, error) { return nil, nil }
func (s *stubStore) DeleteObject(context.Context, string, string) error    { return nil }
func (s *stubStore) PresignGet(context.Context, string, string, time.Duration) (string, error) {
	return "", nil
}
func (s *stubStore) PresignPut(context.Context, string, string, time.Duration) (string, error) {
	return "", nil
}

func (s *stubStore) GetObject(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	data, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func TestInferenceArchiveStreamsZip(t *testing.T) {
	api, mock := newTestAPI(t, config.Config{InferenceBucket: "inferences"})
	api.Store = &stubStore{objects: map[string][]byte{
		"inferences/7/aaa/result.jpg": []byte("image-one"),
		"inferences/7/bbb/result.jpg": []byte("image-two"),
	}}

	rows := sqlmock.NewRows([]string{"id", "user_id", "name", "base_image_url", "generated_image_url", "metadata_url", "created_on"}).
		AddRow(1, 7, "first", "http://s/inferences/7/aaa/original.jpg", "http://s/inferences/7/aaa/result.jpg", "", time.Now()).
		AddRow(2, 7, "second", "http://s/inferences/7/bbb/original.jpg", "http://s/inferences/7/bbb/result.jpg", "", time.Now()).
		AddRow(3, 7, "broken", "", "http://s/elsewhere/x.jpg", "", time.Now())
	mock.ExpectQuery(`SELECT \* FROM "inferences"`).WillReturnRows(rows)

	req := httptest.NewRequest(http.MethodGet, "/inferences/archive", nil)
	req = req.WithContext(withAuthUser(req.Context(), AuthUser{ID: 7}))

	rec := httptest.NewRecorder()
	api.handleInferenceArchive(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))

	reader, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)

	// The record with an unrecognized URL is skipped, not fatal.
	require.Len(t, reader.File, 2)
	assert.Equal(t, "1_first.jpg", reader.File[0].Name)
	assert.Equal(t, "2_second.jpg", reader.File[1].Name)

	entry, err := reader.File[0].Open()
	require.NoError(t, err)
	defer entry.Close()
	data, err := io.ReadAll(entry)
	require.NoError(t, err)
	assert.Equal(t, "image-one", string(data))
}

func TestInferenceArchiveEmpty(t *testing.T) {
	api, mock := newTestAPI(t, config.Config{InferenceBucket: "inferences"})
	api.Store = &stubStore{}

	mock.ExpectQuery(`SELECT \* FROM "inferences"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	req := httptest.NewRequest(http.MethodGet, "/inferences/archive", nil)
	req = req.WithContext(withAuthUser(req.Context(), AuthUser{ID: 7}))

	rec := httptest.NewRecorder()
	api.handleInferenceArchive(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
