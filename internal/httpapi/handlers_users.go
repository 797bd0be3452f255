package httpapi

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"gorm.io/gorm"

	"visiond/internal/events"
	"visiond/internal/models"
	"visiond/internal/security"
)

// handleUserStats aggregates activity statistics for the caller: analysis
// counts, last login, active days this month, the current login streak, and
// recent history.
func (a *API) handleUserStats(w http.ResponseWriter, r *http.Request) {
	user, _ := authUserFrom(r.Context())
	ctx := r.Context()
	now := a.clock()
	weekAgo := now.AddDate(0, 0, -7)
	monthAgo := now.AddDate(0, 0, -30)

	var totalAnalyses int64
	if err := a.DB.WithContext(ctx).Model(&models.Inference{}).
		Where("user_id = ?", user.ID).Count(&totalAnalyses).Error; err != nil {
		respondFailure(w, a.Log, fmt.Errorf("counting inferences: %w", err))
		return
	}

	var analysesThisWeek int64
	if err := a.DB.WithContext(ctx).Model(&models.Inference{}).
		Where("user_id = ? AND created_on >= ?", user.ID, weekAgo).
		Count(&analysesThisWeek).Error; err != nil {
		respondFailure(w, a.Log, fmt.Errorf("counting recent inferences: %w", err))
		return
	}

	var lastLogin sql.NullTime
	if err := a.DB.WithContext(ctx).Model(&models.UserSession{}).
		Where("user_id = ?", user.ID).
		Select("max(login_at)").Scan(&lastLogin).Error; err != nil {
		respondFailure(w, a.Log, fmt.Errorf("finding last login: %w", err))
		return
	}

	var activeDays int64
	if err := a.DB.WithContext(ctx).Model(&models.UserSession{}).
		Where("user_id = ? AND login_at >= ?", user.ID, monthAgo).
		Distinct("date(login_at)").Count(&activeDays).Error; err != nil {
		respondFailure(w, a.Log, fmt.Errorf("counting active days: %w", err))
		return
	}

	var loginDays []time.Time
	if err := a.DB.WithContext(ctx).Model(&models.UserSession{}).
		Where("user_id = ?", user.ID).
		Select("DISTINCT date(login_at) AS day").
		Order("day DESC").
		Pluck("day", &loginDays).Error; err != nil {
		respondFailure(w, a.Log, fmt.Errorf("loading login days: %w", err))
		return
	}

	var recentAnalyses []models.Inference
	if err := a.DB.WithContext(ctx).Where("user_id = ?", user.ID).
		Order("created_on DESC").Limit(10).Find(&recentAnalyses).Error; err != nil {
		respondFailure(w, a.Log, fmt.Errorf("loading recent inferences: %w", err))
		return
	}

	var recentSessions []models.UserSession
	if err := a.DB.WithContext(ctx).Where("user_id = ?", user.ID).
		Order("login_at DESC").Limit(10).Find(&recentSessions).Error; err != nil {
		respondFailure(w, a.Log, fmt.Errorf("loading recent sessions: %w", err))
		return
	}

	analyses := make([]map[string]any, 0, len(recentAnalyses))
	for _, inf := range recentAnalyses {
		analyses = append(analyses, a.inferenceJSON(inf))
	}

	sessions := make([]map[string]any, 0, len(recentSessions))
	for _, s := range recentSessions {
		entry := map[string]any{
			"id":        s.ID,
			"loginAt":   s.LoginAt.UTC().Format(time.RFC3339),
			"ipAddress": s.IPAddress,
			"isActive":  s.Active(),
		}
		if s.LogoutAt != nil {
			entry["logoutAt"] = s.LogoutAt.UTC().Format(time.RFC3339)
		}
		sessions = append(sessions, entry)
	}

	summary := map[string]any{
		"totalAnalyses":       totalAnalyses,
		"analysesThisWeek":    analysesThisWeek,
		"imagesProcessed":     totalAnalyses,
		"activeDaysThisMonth": activeDays,
		"currentLoginStreak":  loginStreak(loginDays, now),
	}
	if lastLogin.Valid {
		summary["lastLogin"] = lastLogin.Time.UTC().Format(time.RFC3339)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"summary":        summary,
		"recentAnalyses": analyses,
		"recentSessions": sessions,
	})
}

// loginStreak counts consecutive calendar days with at least one login,
// ending today or yesterday. days must be distinct dates sorted descending.
func loginStreak(days []time.Time, now time.Time) int {
	if len(days) == 0 {
		return 0
	}

	today := now.Truncate(24 * time.Hour)
	cursor := today
	first := days[0].Truncate(24 * time.Hour)
	switch {
	case first.Equal(today):
	case first.Equal(today.AddDate(0, 0, -1)):
		cursor = first
	default:
		return 0
	}

	streak := 0
	for _, day := range days {
		day = day.Truncate(24 * time.Hour)
		if !day.Equal(cursor) {
			break
		}
		streak++
		cursor = cursor.AddDate(0, 0, -1)
	}
	return streak
}

// inferenceJSON renders an inference with backend proxy URLs instead of raw
// object-store URLs, so images resolve even when the store is private.
func (a *API) inferenceJSON(inf models.Inference) map[string]any {
	entry := map[string]any{
		"id":                inf.ID,
		"name":              inf.Name,
		"baseImageUrl":      a.proxyImageURL(inf.ID, "original"),
		"generatedImageUrl": a.proxyImageURL(inf.ID, "result"),
		"metadataUrl":       inf.MetadataURL,
		"createdOn":         inf.CreatedOn.UTC().Format(time.RFC3339),
	}
	if inf.ModelID != nil {
		entry["modelId"] = *inf.ModelID
	}
	return entry
}

func (a *API) proxyImageURL(inferenceID uint, kind string) string {
	return fmt.Sprintf("%s/inferences/%d/image/%s", a.Cfg.APIBaseURL, inferenceID, kind)
}

// handleUserInferences returns the caller's inferences, paginated, or a
// single inference when ?id= is given.
func (a *API) handleUserInferences(w http.ResponseWriter, r *http.Request) {
	user, _ := authUserFrom(r.Context())

	if rawID := r.URL.Query().Get("id"); rawID != "" {
		id, err := strconv.ParseUint(rawID, 10, 64)
		if err != nil {
			respondFailure(w, a.Log, errBadRequest)
			return
		}

		var inf models.Inference
		err = a.DB.WithContext(r.Context()).
			Where("id = ? AND user_id = ?", id, user.ID).First(&inf).Error
		if err != nil {
			respondFailure(w, a.Log, fmt.Errorf("%w: inference", errNotFound))
			return
		}

		respondJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"inference": a.inferenceJSON(inf),
		})
		return
	}

	page, limit := pagination(r, 20, 100)

	var total int64
	if err := a.DB.WithContext(r.Context()).Model(&models.Inference{}).
		Where("user_id = ?", user.ID).Count(&total).Error; err != nil {
		respondFailure(w, a.Log, fmt.Errorf("counting inferences: %w", err))
		return
	}

	var records []models.Inference
	err := a.DB.WithContext(r.Context()).Where("user_id = ?", user.ID).
		Order("created_on DESC").
		Limit(limit).Offset((page - 1) * limit).
		Find(&records).Error
	if err != nil {
		respondFailure(w, a.Log, fmt.Errorf("loading inferences: %w", err))
		return
	}

	list := make([]map[string]any, 0, len(records))
	for _, inf := range records {
		list = append(list, a.inferenceJSON(inf))
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"inferences": list,
		"pagination": paginationInfo(page, limit, total),
	})
}

type updateProfileRequest struct {
	Name     string `json:"name"`
	LastName string `json:"lastName"`
	Email    string `json:"email"`
}

func (a *API) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	actor, _ := authUserFrom(r.Context())

	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil || req.Name == "" || req.LastName == "" || req.Email == "" {
		respondFailure(w, a.Log, errBadRequest)
		return
	}

	var user models.User
	if err := a.DB.WithContext(r.Context()).Preload("Role").First(&user, actor.ID).Error; err != nil {
		respondFailure(w, a.Log, fmt.Errorf("%w: user", errNotFound))
		return
	}

	if req.Email != user.Email {
		var count int64
		if err := a.DB.WithContext(r.Context()).Model(&models.User{}).
			Where("email = ? AND id <> ?", req.Email, user.ID).Count(&count).Error; err != nil {
			respondFailure(w, a.Log, fmt.Errorf("checking email uniqueness: %w", err))
			return
		}
		if count > 0 {
			respondFailure(w, a.Log, fmt.Errorf("%w: email already in use", errConflict))
			return
		}
	}

	user.Name = req.Name
	user.LastName = req.LastName
	user.Email = req.Email
	if err := a.DB.WithContext(r.Context()).Save(&user).Error; err != nil {
		respondFailure(w, a.Log, fmt.Errorf("saving profile: %w", err))
		return
	}

	a.Log.Info().Uint("uid", user.ID).Msg("profile updated")
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Profile updated successfully",
		"user":    user.ToPublic(),
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// handleChangePassword verifies the current password before installing the
// new hash.
func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	actor, _ := authUserFrom(r.Context())

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil || req.CurrentPassword == "" || req.NewPassword == "" {
		respondFailure(w, a.Log, errBadRequest)
		return
	}
	if !security.ValidPasswordLength(req.NewPassword) {
		respondFailure(w, a.Log, fmt.Errorf("%w: password too long", errUnprocessable))
		return
	}

	var user models.User
	if err := a.DB.WithContext(r.Context()).First(&user, actor.ID).Error; err != nil {
		respondFailure(w, a.Log, fmt.Errorf("%w: user", errNotFound))
		return
	}

	if !security.CheckPassword(user.PasswordHash, req.CurrentPassword) {
		respondFailure(w, a.Log, fmt.Errorf("%w: current password is incorrect", errBadRequest))
		return
	}

	hash, err := security.HashPassword(req.NewPassword)
	if err != nil {
		respondFailure(w, a.Log, fmt.Errorf("hashing password: %w", err))
		return
	}

	err = a.DB.WithContext(r.Context()).Model(&user).
		Update("password_hash", hash).Error
	if err != nil {
		respondFailure(w, a.Log, fmt.Errorf("saving password: %w", err))
		return
	}

	a.audit(r, &actor.ID, "PASSWORD_CHANGED", "user", &actor.ID, nil)
	a.Log.Info().Uint("uid", user.ID).Msg("password changed")
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Password changed successfully",
	})
}

// handleDeleteAccount removes the caller's account. SUPERADMIN accounts are
// never deleted. Open sessions are closed first; related records go with the
// cascade.
func (a *API) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	actor, _ := authUserFrom(r.Context())

	var user models.User
	if err := a.DB.WithContext(r.Context()).Preload("Role").First(&user, actor.ID).Error; err != nil {
		respondFailure(w, a.Log, fmt.Errorf("%w: user", errNotFound))
		return
	}

	if user.Role.Name == models.RoleSuperAdmin {
		respondFailure(w, a.Log, fmt.Errorf("%w: SUPERADMIN accounts cannot be deleted", errForbidden))
		return
	}

	if err := a.deleteUser(r, &user); err != nil {
		respondFailure(w, a.Log, err)
		return
	}

	a.clearSessionCookie(w)
	a.Log.Info().Uint("uid", user.ID).Str("email", user.Email).Msg("account deleted")
	a.Events.Publish(events.SubjectUserDeleted, map[string]any{"userId": user.ID})
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Account deleted successfully",
	})
}

// deleteUser closes open sessions and removes the user row in one
// transaction. FK cascades clean up owned records.
func (a *API) deleteUser(r *http.Request, user *models.User) error {
	now := a.clock()
	err := a.DB.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.UserSession{}).
			Where("user_id = ? AND logout_at IS NULL", user.ID).
			Update("logout_at", gorm.Expr("GREATEST(login_at, ?)", now)).Error
		if err != nil {
			return fmt.Errorf("closing sessions: %w", err)
		}
		if err := tx.Delete(user).Error; err != nil {
			return fmt.Errorf("deleting user: %w", err)
		}
		return nil
	})
	if err != nil && errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: user", errNotFound)
	}
	return err
}
