package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/datatypes"

	"visiond/internal/models"
)

// audit appends an entry to the trail. Failures are logged and swallowed so
// auditing never fails the request it documents.
func (a *API) audit(r *http.Request, userID *uint, action, entityType string, entityID *uint, metadata map[string]any) {
	entry := models.AuditLog{
		UserID:     userID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Timestamp:  a.clock(),
	}
	if metadata != nil {
		if raw, err := json.Marshal(metadata); err == nil {
			entry.Metadata = datatypes.JSON(raw)
		}
	}
	if err := a.DB.WithContext(r.Context()).Create(&entry).Error; err != nil {
		a.Log.Error().Err(err).Str("action", action).Msg("writing audit entry")
	}
}

type auditLogRequest struct {
	Action     string         `json:"action"`
	EntityType string         `json:"entityType"`
	EntityID   *uint          `json:"entityId"`
	Metadata   map[string]any `json:"metadata"`
}

// handleAuditLog lets an authenticated client record a client-side action.
func (a *API) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	actor, _ := authUserFrom(r.Context())

	var req auditLogRequest
	if err := decodeJSON(r, &req); err != nil {
		respondFailure(w, a.Log, errBadRequest)
		return
	}
	if req.Action == "" || len(req.Action) > 100 {
		respondFailure(w, a.Log, fmt.Errorf("%w: invalid action", errBadRequest))
		return
	}
	if req.EntityType == "" || len(req.EntityType) > 50 {
		respondFailure(w, a.Log, fmt.Errorf("%w: invalid entity type", errBadRequest))
		return
	}

	entry := models.AuditLog{
		UserID:     &actor.ID,
		Action:     req.Action,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		Timestamp:  a.clock(),
	}
	if req.Metadata != nil {
		if raw, err := json.Marshal(req.Metadata); err == nil {
			entry.Metadata = datatypes.JSON(raw)
		}
	}
	if err := a.DB.WithContext(r.Context()).Create(&entry).Error; err != nil {
		respondFailure(w, a.Log, fmt.Errorf("saving audit entry: %w", err))
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"success":    true,
		"auditLogId": entry.ID,
	})
}

type auditLogResponse struct {
	ID         uint           `json:"id"`
	UserID     *uint          `json:"userId"`
	Action     string         `json:"action"`
	EntityType string         `json:"entityType"`
	EntityID   *uint          `json:"entityId"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Timestamp  string         `json:"timestamp"`
}

func toAuditResponse(entry models.AuditLog) auditLogResponse {
	resp := auditLogResponse{
		ID:         entry.ID,
		UserID:     entry.UserID,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Timestamp:  entry.Timestamp.UTC().Format(time.RFC3339),
	}
	if len(entry.Metadata) > 0 {
		_ = json.Unmarshal(entry.Metadata, &resp.Metadata)
	}
	return resp
}

// handleAuditLogs returns the trail, filtered and paginated, newest first.
func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	page, limit := pagination(r, 50, 100)

	query := a.DB.WithContext(r.Context()).Model(&models.AuditLog{})
	if action := r.URL.Query().Get("action"); action != "" {
		query = query.Where("action ILIKE ?", "%"+action+"%")
	}
	if entityType := r.URL.Query().Get("entityType"); entityType != "" {
		query = query.Where("entity_type = ?", entityType)
	}
	if userID := r.URL.Query().Get("userId"); userID != "" {
		id, err := strconv.ParseUint(userID, 10, 64)
		if err != nil {
			respondFailure(w, a.Log, fmt.Errorf("%w: invalid userId filter", errBadRequest))
			return
		}
		query = query.Where("user_id = ?", id)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		respondFailure(w, a.Log, fmt.Errorf("counting audit entries: %w", err))
		return
	}

	var entries []models.AuditLog
	err := query.Order("timestamp DESC").
		Limit(limit).Offset((page - 1) * limit).
		Find(&entries).Error
	if err != nil {
		respondFailure(w, a.Log, fmt.Errorf("loading audit entries: %w", err))
		return
	}

	logs := make([]auditLogResponse, 0, len(entries))
	for _, entry := range entries {
		logs = append(logs, toAuditResponse(entry))
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"auditLogs":  logs,
		"pagination": paginationInfo(page, limit, total),
	})
}

func (a *API) handleAuditLogByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondFailure(w, a.Log, errBadRequest)
		return
	}

	var entry models.AuditLog
	if err := a.DB.WithContext(r.Context()).First(&entry, id).Error; err != nil {
		respondFailure(w, a.Log, fmt.Errorf("%w: audit entry", errNotFound))
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"auditLog": toAuditResponse(entry),
	})
}

// pagination parses page/limit query params with defaults and a hard cap.
func pagination(r *http.Request, defaultLimit, maxLimit int) (page, limit int) {
	page = 1
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	limit = defaultLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}

func paginationInfo(page, limit int, total int64) map[string]any {
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return map[string]any{
		"page":       page,
		"limit":      limit,
		"total":      total,
		"totalPages": totalPages,
		"hasNext":    page < totalPages,
		"hasPrev":    page > 1,
	}
}
