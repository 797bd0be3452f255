// Package inference talks to the external neural-network service that runs
// model inference and training. Every call carries a freshly minted
// short-lived HS256 bearer token.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// tokenTTL bounds how long an issued service token stays usable. Tokens are
// single-request, so the window is deliberately tight.
const tokenTTL = 30 * time.Second

// Client calls the inference service API.
type Client struct {
	baseURL string
	secret  []byte
	http    *http.Client

	now func() time.Time
}

// NewClient builds a Client for the service at baseURL, signing request
// tokens with secret.
func NewClient(baseURL, secret string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  []byte(secret),
		http:    &http.Client{Timeout: 2 * time.Minute},
		now:     time.Now,
	}
}

// GenerateResult is the service's response to an inference request.
type GenerateResult struct {
	GeneratedImageURL string `json:"generatedImgUrl"`
	MetadataURL       string `json:"metadataUrl,omitempty"`
}

// GenerateInference submits the object key of an uploaded image and returns
// references to the generated result image and optional metadata document.
func (c *Client) GenerateInference(ctx context.Context, imgObjectKey string) (*GenerateResult, error) {
	var result GenerateResult
	err := c.post(ctx, "/inference", map[string]any{"imgObjectKey": imgObjectKey}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ModelInfo describes one model the service can serve.
type ModelInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ListModels fetches the models currently available on the service.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	var payload struct {
		Models []ModelInfo `json:"models"`
	}
	if err := c.get(ctx, "/models", &payload); err != nil {
		return nil, err
	}
	return payload.Models, nil
}

// TrainingParams tune a training run.
type TrainingParams struct {
	Epochs       int     `json:"epochs"`
	ImageSize    int     `json:"imageSize"`
	BatchSize    int     `json:"batchSize"`
	LearningRate float64 `json:"learningRate"`
	Patience     int     `json:"patience"`
}

// TrainingJob reports the state of a training run.
type TrainingJob struct {
	JobID         string `json:"jobId"`
	Status        string `json:"status"`
	EstimatedTime string `json:"estimatedTime,omitempty"`
}

// StartTraining asks the service to train a new model against a dataset.
func (c *Client) StartTraining(ctx context.Context, modelName, datasetPath string, params TrainingParams) (*TrainingJob, error) {
	var job TrainingJob
	err := c.post(ctx, "/train", map[string]any{
		"modelName":   modelName,
		"datasetPath": datasetPath,
		"params":      params,
	}, &job)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// TrainingStatus queries a running training job.
func (c *Client) TrainingStatus(ctx context.Context, jobID string) (*TrainingJob, error) {
	var job TrainingJob
	if err := c.get(ctx, "/train/"+jobID, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// CancelTraining aborts a running training job.
func (c *Client) CancelTraining(ctx context.Context, jobID string) error {
	return c.do(ctx, http.MethodDelete, "/train/"+jobID, nil, nil)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}

	token, err := c.serviceToken()
	if err != nil {
		return fmt.Errorf("sign service token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("inference service: %s %s returned %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// serviceToken mints a single-use bearer token carrying only jti/iat/exp.
func (c *Client) serviceToken() (string, error) {
	now := c.now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	})
	return token.SignedString(c.secret)
}
