package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func verifyBearer(t *testing.T, r *http.Request, secret string) *jwt.RegisteredClaims {
	t.Helper()

	header := r.Header.Get("Authorization")
	require.True(t, strings.HasPrefix(header, "Bearer "))

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(strings.TrimPrefix(header, "Bearer "), claims,
		func(*jwt.Token) (interface{}, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	require.NoError(t, err)
	require.True(t, token.Valid)
	return claims
}

func TestGenerateInference(t *testing.T) {
	const secret = "nn-secret"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/inference", r.URL.Path)

		claims := verifyBearer(t, r, secret)
		assert.NotEmpty(t, claims.ID)
		assert.WithinDuration(t, time.Now().Add(tokenTTL), claims.ExpiresAt.Time, 5*time.Second)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "abc/original_img.jpg", body["imgObjectKey"])

		json.NewEncoder(w).Encode(map[string]string{
			"generatedImgUrl": "https://s3/results/abc/result.jpg",
			"metadataUrl":     "https://s3/results/abc/metadata.json",
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, secret)
	result, err := client.GenerateInference(context.Background(), "abc/original_img.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://s3/results/abc/result.jpg", result.GeneratedImageURL)
	assert.Equal(t, "https://s3/results/abc/metadata.json", result.MetadataURL)
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]string{
				{"name": "segmenter-v2", "description": "tissue segmentation"},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "nn-secret")
	infos, err := client.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "segmenter-v2", infos[0].Name)
}

func TestUpstreamErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "nn-secret")
	_, err := client.ListModels(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestCancelTraining(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/train/job-1", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "nn-secret")
	require.NoError(t, client.CancelTraining(context.Background(), "job-1"))
}
