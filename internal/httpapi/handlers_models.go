package httpapi

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"visiond/internal/events"
	"visiond/internal/inference"
	"visiond/internal/models"
)

// handleListModels returns every known model, newest first.
func (a *API) handleListModels(w http.ResponseWriter, r *http.Request) {
	var records []models.Model
	err := a.DB.WithContext(r.Context()).Order("created_on DESC").Find(&records).Error
	if err != nil {
		respondFailure(w, a.Log, fmt.Errorf("loading models: %w", err))
		return
	}

	list := make([]models.ModelResponse, 0, len(records))
	for _, m := range records {
		list = append(list, m.ToResponse())
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"models":  list,
		"count":   len(list),
	})
}

type trainModelRequest struct {
	ModelName      string                   `json:"modelName"`
	Description    string                   `json:"description"`
	ModelType      string                   `json:"modelType"`
	DatasetID      uint                     `json:"datasetId"`
	TrainingParams inference.TrainingParams `json:"trainingParams"`
}

var (
	validImageSizes = []int{416, 512, 640, 800}
	validBatchSizes = []int{8, 16, 32, 64}
)

func (req *trainModelRequest) applyDefaults() {
	if req.ModelType == "" {
		req.ModelType = "YOLOv8_m"
	}
	p := &req.TrainingParams
	if p.Epochs == 0 {
		p.Epochs = 50
	}
	if p.ImageSize == 0 {
		p.ImageSize = 640
	}
	if p.BatchSize == 0 {
		p.BatchSize = 16
	}
	if p.LearningRate == 0 {
		p.LearningRate = 0.01
	}
	if p.Patience == 0 {
		p.Patience = 30
	}
}

func (req trainModelRequest) validate() error {
	if req.ModelName == "" || len(req.ModelName) > 100 {
		return fmt.Errorf("%w: invalid model name", errBadRequest)
	}
	if req.DatasetID == 0 {
		return fmt.Errorf("%w: invalid dataset ID", errBadRequest)
	}
	p := req.TrainingParams
	if p.Epochs < 1 || p.Epochs > 1000 {
		return fmt.Errorf("%w: epochs must be between 1 and 1000", errBadRequest)
	}
	if !slices.Contains(validImageSizes, p.ImageSize) {
		return fmt.Errorf("%w: image size must be 416, 512, 640, or 800", errBadRequest)
	}
	if !slices.Contains(validBatchSizes, p.BatchSize) {
		return fmt.Errorf("%w: batch size must be 8, 16, 32, or 64", errBadRequest)
	}
	if p.LearningRate < 0.0001 || p.LearningRate > 0.1 {
		return fmt.Errorf("%w: learning rate must be between 0.0001 and 0.1", errBadRequest)
	}
	return nil
}

// handleTrainModel registers a model record and submits a training job to
// the inference service. The record is rolled back if the submission fails.
func (a *API) handleTrainModel(w http.ResponseWriter, r *http.Request) {
	actor, _ := authUserFrom(r.Context())

	var req trainModelRequest
	if err := decodeJSON(r, &req); err != nil {
		respondFailure(w, a.Log, errBadRequest)
		return
	}
	req.applyDefaults()
	if err := req.validate(); err != nil {
		respondFailure(w, a.Log, err)
		return
	}

	var dataset models.Dataset
	if err := a.DB.WithContext(r.Context()).First(&dataset, req.DatasetID).Error; err != nil {
		respondFailure(w, a.Log, fmt.Errorf("%w: dataset", errNotFound))
		return
	}

	var count int64
	if err := a.DB.WithContext(r.Context()).Model(&models.Model{}).
		Where("name = ?", req.ModelName).Count(&count).Error; err != nil {
		respondFailure(w, a.Log, fmt.Errorf("checking model name: %w", err))
		return
	}
	if count > 0 {
		respondFailure(w, a.Log, fmt.Errorf("%w: model name already exists", errConflict))
		return
	}

	now := a.clock()
	record := models.Model{
		Name:        req.ModelName,
		Version:     "1.0",
		Description: req.Description,
		ModelType:   req.ModelType,
		CreatedOn:   now,
		UpdatedOn:   &now,
	}

	var job *inference.TrainingJob
	err := a.DB.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("saving model record: %w", err)
		}

		var submitErr error
		job, submitErr = a.Inference.StartTraining(r.Context(), req.ModelName, dataset.S3Path, req.TrainingParams)
		if submitErr != nil {
			// Rolls back the model record.
			return fmt.Errorf("%w: starting training: %v", errUpstream, submitErr)
		}
		return nil
	})
	if err != nil {
		respondFailure(w, a.Log, err)
		return
	}

	trainingJobsStarted.Inc()
	a.audit(r, &actor.ID, "TRAINING_STARTED", "model", &record.ID, map[string]any{
		"jobId":     job.JobID,
		"datasetId": dataset.ID,
	})
	a.Events.Publish(events.SubjectTrainingStarted, map[string]any{
		"modelId": record.ID,
		"jobId":   job.JobID,
	})
	a.Log.Info().
		Uint("actor", actor.ID).
		Uint("model", record.ID).
		Str("jobId", job.JobID).
		Msg("model training started")

	respondJSON(w, http.StatusCreated, map[string]any{
		"success":       true,
		"message":       "Model training started successfully",
		"modelId":       record.ID,
		"jobId":         job.JobID,
		"estimatedTime": job.EstimatedTime,
	})
}

func (a *API) handleTrainingStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		respondFailure(w, a.Log, errBadRequest)
		return
	}

	job, err := a.Inference.TrainingStatus(r.Context(), jobID)
	if err != nil {
		respondFailure(w, a.Log, fmt.Errorf("%w: training status: %v", errUpstream, err))
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"job":     job,
	})
}

func (a *API) handleCancelTraining(w http.ResponseWriter, r *http.Request) {
	actor, _ := authUserFrom(r.Context())

	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		respondFailure(w, a.Log, errBadRequest)
		return
	}

	if err := a.Inference.CancelTraining(r.Context(), jobID); err != nil {
		respondFailure(w, a.Log, fmt.Errorf("%w: cancelling training: %v", errUpstream, err))
		return
	}

	a.audit(r, &actor.ID, "TRAINING_CANCELLED", "training_job", nil, map[string]any{"jobId": jobID})
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Training job cancelled",
	})
}
