package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"

	"visiond/internal/events"
	"visiond/internal/models"
)

// handlePresignInferenceUpload hands out a presigned PUT URL for the source
// image. Object keys are prefixed with the owning user id so one user cannot
// reach another's objects.
func (a *API) handlePresignInferenceUpload(w http.ResponseWriter, r *http.Request) {
	user, _ := authUserFrom(r.Context())

	folder := strings.ReplaceAll(uuid.NewString(), "-", "")
	objectKey := fmt.Sprintf("%d/%s/original_img.jpg", user.ID, folder)

	uploadURL, err := a.Store.PresignPut(r.Context(), a.Cfg.InferenceBucket, objectKey, a.Cfg.PresignExpiry)
	if err != nil {
		respondFailure(w, a.Log, fmt.Errorf("%w: presigning upload: %v", errUpstream, err))
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"uploadURL":    uploadURL,
		"liveURL":      fmt.Sprintf("%s%s/%s", a.Cfg.S3PublicBaseURL, a.Cfg.InferenceBucket, objectKey),
		"imgObjectKey": objectKey,
	})
}

type generateInferenceRequest struct {
	Name         string `json:"name"`
	ImgURL       string `json:"imgUrl"`
	ImgObjectKey string `json:"imgObjectKey"`
}

// handleGenerateInference runs the uploaded image through the external
// inference service and records the result.
func (a *API) handleGenerateInference(w http.ResponseWriter, r *http.Request) {
	user, _ := authUserFrom(r.Context())

	var req generateInferenceRequest
	if err := decodeJSON(r, &req); err != nil || req.Name == "" || req.ImgURL == "" || req.ImgObjectKey == "" {
		respondFailure(w, a.Log, errBadRequest)
		return
	}

	// Keys always start with the caller's id; reject attempts to run
	// inference over someone else's upload.
	if !strings.HasPrefix(req.ImgObjectKey, fmt.Sprintf("%d/", user.ID)) {
		respondFailure(w, a.Log, fmt.Errorf("%w: object key not owned by caller", errForbidden))
		return
	}

	result, err := a.Inference.GenerateInference(r.Context(), req.ImgObjectKey)
	if err != nil {
		respondFailure(w, a.Log, fmt.Errorf("%w: generating inference: %v", errUpstream, err))
		return
	}

	record := models.Inference{
		UserID:            user.ID,
		Name:              req.Name,
		BaseImageURL:      req.ImgURL,
		GeneratedImageURL: result.GeneratedImageURL,
		MetadataURL:       result.MetadataURL,
		CreatedOn:         a.clock(),
	}
	if err := a.DB.WithContext(r.Context()).Create(&record).Error; err != nil {
		respondFailure(w, a.Log, fmt.Errorf("saving inference: %w", err))
		return
	}

	inferencesGenerated.Inc()
	a.Events.Publish(events.SubjectInferenceDone, map[string]any{
		"inferenceId": record.ID,
		"userId":      user.ID,
	})
	a.Log.Info().Uint("uid", user.ID).Uint("inference", record.ID).Msg("inference generated")

	respondJSON(w, http.StatusOK, map[string]any{
		"inferenceId":     record.ID,
		"generatedImgUrl": result.GeneratedImageURL,
	})
}

// handleInferenceImage streams an inference image through the backend so
// results stay reachable when the object store is not public. kind selects
// the original upload or the generated result.
func (a *API) handleInferenceImage(w http.ResponseWriter, r *http.Request) {
	user, _ := authUserFrom(r.Context())

	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondFailure(w, a.Log, errBadRequest)
		return
	}

	var record models.Inference
	err = a.DB.WithContext(r.Context()).
		Where("id = ? AND user_id = ?", id, user.ID).First(&record).Error
	if err != nil {
		respondFailure(w, a.Log, fmt.Errorf("%w: inference", errNotFound))
		return
	}

	var sourceURL string
	switch chi.URLParam(r, "kind") {
	case "original":
		sourceURL = record.BaseImageURL
	case "result":
		sourceURL = record.GeneratedImageURL
	default:
		respondFailure(w, a.Log, fmt.Errorf("%w: unknown image kind", errBadRequest))
		return
	}

	key, ok := objectKeyFromURL(sourceURL, a.Cfg.InferenceBucket)
	if !ok {
		respondFailure(w, a.Log, fmt.Errorf("%w: image location unknown", errNotFound))
		return
	}

	body, err := a.Store.GetObject(r.Context(), a.Cfg.InferenceBucket, key)
	if err != nil {
		respondFailure(w, a.Log, fmt.Errorf("%w: fetching image: %v", errUpstream, err))
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}

// objectKeyFromURL extracts the object key from a stored URL by splitting on
// the bucket path segment.
func objectKeyFromURL(rawURL, bucket string) (string, bool) {
	marker := "/" + bucket + "/"
	idx := strings.Index(rawURL, marker)
	if idx < 0 {
		return "", false
	}
	key := rawURL[idx+len(marker):]
	if key == "" {
		return "", false
	}
	return key, true
}

// handleInferenceArchive streams a zip of the caller's generated images.
// Unfetchable objects are skipped so one missing file does not sink the
// whole download.
func (a *API) handleInferenceArchive(w http.ResponseWriter, r *http.Request) {
	user, _ := authUserFrom(r.Context())

	var records []models.Inference
	err := a.DB.WithContext(r.Context()).Where("user_id = ?", user.ID).
		Order("created_on DESC").Find(&records).Error
	if err != nil {
		respondFailure(w, a.Log, fmt.Errorf("loading inferences: %w", err))
		return
	}
	if len(records) == 0 {
		respondFailure(w, a.Log, fmt.Errorf("%w: no inferences to archive", errNotFound))
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="inferences.zip"`)
	w.WriteHeader(http.StatusOK)

	archive := zip.NewWriter(w)
	defer archive.Close()

	for _, record := range records {
		key, ok := objectKeyFromURL(record.GeneratedImageURL, a.Cfg.InferenceBucket)
		if !ok {
			continue
		}

		body, err := a.Store.GetObject(r.Context(), a.Cfg.InferenceBucket, key)
		if err != nil {
			a.Log.Warn().Err(err).Uint("inference", record.ID).Msg("skipping unfetchable archive entry")
			continue
		}

		entry, err := archive.Create(fmt.Sprintf("%d_%s.jpg", record.ID, sanitizeFilename(record.Name)))
		if err != nil {
			body.Close()
			a.Log.Error().Err(err).Msg("writing archive entry header")
			return
		}
		if _, err := io.Copy(entry, body); err != nil {
			body.Close()
			a.Log.Error().Err(err).Msg("streaming archive entry")
			return
		}
		body.Close()
	}
}

func sanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
