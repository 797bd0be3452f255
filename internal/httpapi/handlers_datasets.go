package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"visiond/internal/models"
)

// handleListDatasets returns every dataset, newest first, including
// deactivated ones so admins can see what the sync retired.
func (a *API) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	var datasets []models.Dataset
	err := a.DB.WithContext(r.Context()).Order("created_on DESC").Find(&datasets).Error
	if err != nil {
		respondFailure(w, a.Log, fmt.Errorf("loading datasets: %w", err))
		return
	}

	list := make([]models.DatasetResponse, 0, len(datasets))
	for _, d := range datasets {
		list = append(list, d.ToResponse())
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"datasets": list,
		"count":    len(list),
	})
}

func (a *API) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondFailure(w, a.Log, errBadRequest)
		return
	}

	var dataset models.Dataset
	if err := a.DB.WithContext(r.Context()).First(&dataset, id).Error; err != nil {
		respondFailure(w, a.Log, fmt.Errorf("%w: dataset", errNotFound))
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"dataset": dataset.ToResponse(),
	})
}
