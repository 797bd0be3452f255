package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"visiond/internal/models"
)

// handlePresignSceneUpload hands out presigned PUT URLs for a scene image
// and its label map, both destined for the datasets bucket.
func (a *API) handlePresignSceneUpload(w http.ResponseWriter, r *http.Request) {
	user, _ := authUserFrom(r.Context())

	folder := strings.ReplaceAll(uuid.NewString(), "-", "")
	imgKey := fmt.Sprintf("dataset/%d/%s/img.jpg", user.ID, folder)
	mapKey := fmt.Sprintf("dataset/%d/%s/map.txt", user.ID, folder)

	imgUpload, err := a.Store.PresignPut(r.Context(), a.Cfg.DatasetBucket, imgKey, a.Cfg.PresignExpiry)
	if err != nil {
		respondFailure(w, a.Log, fmt.Errorf("%w: presigning image upload: %v", errUpstream, err))
		return
	}
	mapUpload, err := a.Store.PresignPut(r.Context(), a.Cfg.DatasetBucket, mapKey, a.Cfg.PresignExpiry)
	if err != nil {
		respondFailure(w, a.Log, fmt.Errorf("%w: presigning map upload: %v", errUpstream, err))
		return
	}

	base := a.Cfg.S3PublicBaseURL + a.Cfg.DatasetBucket
	respondJSON(w, http.StatusOK, map[string]any{
		"imgUrls": map[string]any{"uploadURL": imgUpload, "liveURL": base + "/" + imgKey},
		"mapUrls": map[string]any{"uploadURL": mapUpload, "liveURL": base + "/" + mapKey},
	})
}

type addSceneRequest struct {
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl"`
	MapURL   string `json:"mapUrl"`
}

// handleAddScene records an uploaded scene. URLs must point into the
// datasets bucket.
func (a *API) handleAddScene(w http.ResponseWriter, r *http.Request) {
	user, _ := authUserFrom(r.Context())

	var req addSceneRequest
	if err := decodeJSON(r, &req); err != nil || req.Name == "" || req.ImageURL == "" || req.MapURL == "" {
		respondFailure(w, a.Log, errBadRequest)
		return
	}
	if len(req.Name) > 200 || len(req.ImageURL) > 500 || len(req.MapURL) > 500 {
		respondFailure(w, a.Log, fmt.Errorf("%w: field too long", errUnprocessable))
		return
	}

	expectedBase := a.Cfg.S3PublicBaseURL + a.Cfg.DatasetBucket
	if !strings.HasPrefix(req.ImageURL, expectedBase) {
		respondFailure(w, a.Log, fmt.Errorf("%w: invalid image URL", errBadRequest))
		return
	}
	if !strings.HasPrefix(req.MapURL, expectedBase) {
		respondFailure(w, a.Log, fmt.Errorf("%w: invalid map URL", errBadRequest))
		return
	}

	scene := models.Scene{
		UserID:     user.ID,
		Name:       req.Name,
		ImageURL:   req.ImageURL,
		MapURL:     req.MapURL,
		UploadedOn: a.clock(),
	}
	if err := a.DB.WithContext(r.Context()).Create(&scene).Error; err != nil {
		respondFailure(w, a.Log, fmt.Errorf("saving scene: %w", err))
		return
	}

	a.Log.Info().Uint("uid", user.ID).Uint("scene", scene.ID).Msg("scene added")
	respondJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "scene added successfully",
		"sceneId": scene.ID,
	})
}

func (a *API) handleListScenes(w http.ResponseWriter, r *http.Request) {
	user, _ := authUserFrom(r.Context())

	var scenes []models.Scene
	err := a.DB.WithContext(r.Context()).Where("user_id = ?", user.ID).
		Order("uploaded_on DESC").Find(&scenes).Error
	if err != nil {
		respondFailure(w, a.Log, fmt.Errorf("loading scenes: %w", err))
		return
	}

	list := make([]map[string]any, 0, len(scenes))
	for _, s := range scenes {
		list = append(list, map[string]any{
			"id":         s.ID,
			"name":       s.Name,
			"imageUrl":   s.ImageURL,
			"mapUrl":     s.MapURL,
			"uploadedOn": s.UploadedOn.UTC().Format(time.RFC3339),
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{"scenes": list})
}

// handleDeleteScene removes a scene the caller owns, including its backing
// objects.
func (a *API) handleDeleteScene(w http.ResponseWriter, r *http.Request) {
	user, _ := authUserFrom(r.Context())

	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondFailure(w, a.Log, errBadRequest)
		return
	}

	var scene models.Scene
	err = a.DB.WithContext(r.Context()).
		Where("id = ? AND user_id = ?", id, user.ID).First(&scene).Error
	if err != nil {
		respondFailure(w, a.Log, fmt.Errorf("%w: scene", errNotFound))
		return
	}

	if err := a.DB.WithContext(r.Context()).Delete(&scene).Error; err != nil {
		respondFailure(w, a.Log, fmt.Errorf("deleting scene: %w", err))
		return
	}

	// Object removal is best-effort: the record is already gone and a
	// stray object in the bucket is harmless.
	for _, rawURL := range []string{scene.ImageURL, scene.MapURL} {
		if key, ok := objectKeyFromURL(rawURL, a.Cfg.DatasetBucket); ok {
			if err := a.Store.DeleteObject(r.Context(), a.Cfg.DatasetBucket, key); err != nil {
				a.Log.Warn().Err(err).Str("key", key).Msg("deleting scene object")
			}
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Scene deleted successfully",
	})
}
