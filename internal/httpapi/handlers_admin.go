package httpapi

import (
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"visiond/internal/events"
	"visiond/internal/models"
)

// handleAdminUsers lists every account with per-user activity figures.
func (a *API) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	var users []models.User
	err := a.DB.WithContext(r.Context()).Preload("Role").Order("id").Find(&users).Error
	if err != nil {
		respondFailure(w, a.Log, fmt.Errorf("loading users: %w", err))
		return
	}

	list := make([]map[string]any, 0, len(users))
	for _, u := range users {
		var inferenceCount int64
		if err := a.DB.WithContext(r.Context()).Model(&models.Inference{}).
			Where("user_id = ?", u.ID).Count(&inferenceCount).Error; err != nil {
			respondFailure(w, a.Log, fmt.Errorf("counting inferences: %w", err))
			return
		}

		var lastLogin sql.NullTime
		if err := a.DB.WithContext(r.Context()).Model(&models.UserSession{}).
			Where("user_id = ?", u.ID).
			Select("max(login_at)").Scan(&lastLogin).Error; err != nil {
			respondFailure(w, a.Log, fmt.Errorf("finding last login: %w", err))
			return
		}

		entry := map[string]any{
			"id":             u.ID,
			"name":           u.Name,
			"lastName":       u.LastName,
			"email":          u.Email,
			"role":           map[string]any{"id": u.Role.ID, "name": u.Role.Name},
			"inferenceCount": inferenceCount,
		}
		if lastLogin.Valid {
			entry["lastLogin"] = lastLogin.Time.UTC().Format(time.RFC3339)
		}
		list = append(list, entry)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"users":   list,
		"total":   len(list),
	})
}

func (a *API) handleAdminRoles(w http.ResponseWriter, r *http.Request) {
	var roles []models.Role
	if err := a.DB.WithContext(r.Context()).Order("id").Find(&roles).Error; err != nil {
		respondFailure(w, a.Log, fmt.Errorf("loading roles: %w", err))
		return
	}

	list := make([]map[string]any, 0, len(roles))
	for _, role := range roles {
		list = append(list, map[string]any{"id": role.ID, "name": role.Name})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"roles":   list,
	})
}

type updateRoleRequest struct {
	RoleID uint `json:"roleId"`
}

// handleUpdateUserRole reassigns a user's role. Touching a SUPERADMIN
// account or assigning the SUPERADMIN role requires the caller to hold it.
func (a *API) handleUpdateUserRole(w http.ResponseWriter, r *http.Request) {
	actor, _ := authUserFrom(r.Context())

	userID, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondFailure(w, a.Log, errBadRequest)
		return
	}

	var req updateRoleRequest
	if err := decodeJSON(r, &req); err != nil || req.RoleID == 0 {
		respondFailure(w, a.Log, errBadRequest)
		return
	}

	var user models.User
	if err := a.DB.WithContext(r.Context()).Preload("Role").First(&user, userID).Error; err != nil {
		respondFailure(w, a.Log, fmt.Errorf("%w: user", errNotFound))
		return
	}

	if user.Role.Name == models.RoleSuperAdmin && actor.Role != models.RoleSuperAdmin {
		respondFailure(w, a.Log, fmt.Errorf("%w: only SUPERADMIN can modify SUPERADMIN users", errForbidden))
		return
	}

	var newRole models.Role
	if err := a.DB.WithContext(r.Context()).First(&newRole, req.RoleID).Error; err != nil {
		respondFailure(w, a.Log, fmt.Errorf("%w: invalid role", errBadRequest))
		return
	}
	if newRole.Name == models.RoleSuperAdmin && actor.Role != models.RoleSuperAdmin {
		respondFailure(w, a.Log, fmt.Errorf("%w: only SUPERADMIN can assign SUPERADMIN role", errForbidden))
		return
	}

	oldRole := user.Role.Name
	err = a.DB.WithContext(r.Context()).Model(&user).
		Update("role_id", newRole.ID).Error
	if err != nil {
		respondFailure(w, a.Log, fmt.Errorf("saving role change: %w", err))
		return
	}

	a.audit(r, &actor.ID, "ROLE_CHANGED", "user", &user.ID, map[string]any{
		"from": oldRole,
		"to":   newRole.Name,
	})
	a.Log.Info().
		Uint("actor", actor.ID).
		Uint("user", user.ID).
		Str("from", string(oldRole)).
		Str("to", string(newRole.Name)).
		Msg("user role changed")

	user.Role = newRole
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "User role updated successfully",
		"user":    user.ToPublic(),
	})
}

// handleAdminDeleteUser removes another account. SUPERADMIN accounts and the
// caller's own account are refused.
func (a *API) handleAdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := authUserFrom(r.Context())

	userID, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondFailure(w, a.Log, errBadRequest)
		return
	}

	var user models.User
	if err := a.DB.WithContext(r.Context()).Preload("Role").First(&user, userID).Error; err != nil {
		respondFailure(w, a.Log, fmt.Errorf("%w: user", errNotFound))
		return
	}

	if user.Role.Name == models.RoleSuperAdmin {
		respondFailure(w, a.Log, fmt.Errorf("%w: SUPERADMIN accounts cannot be deleted", errForbidden))
		return
	}
	if user.ID == actor.ID {
		respondFailure(w, a.Log, fmt.Errorf("%w: you cannot delete your own account", errBadRequest))
		return
	}

	if err := a.deleteUser(r, &user); err != nil {
		respondFailure(w, a.Log, err)
		return
	}

	a.audit(r, &actor.ID, "USER_DELETED", "user", &user.ID, map[string]any{"email": user.Email})
	a.Log.Info().Uint("actor", actor.ID).Uint("user", user.ID).Msg("user deleted by admin")
	a.Events.Publish(events.SubjectUserDeleted, map[string]any{"userId": user.ID})
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("User %s %s deleted successfully", user.Name, user.LastName),
	})
}

// handleAdminUserStats mirrors the self-service stats endpoint for an
// arbitrary account.
func (a *API) handleAdminUserStats(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondFailure(w, a.Log, errBadRequest)
		return
	}

	var user models.User
	if err := a.DB.WithContext(r.Context()).First(&user, userID).Error; err != nil {
		respondFailure(w, a.Log, fmt.Errorf("%w: user", errNotFound))
		return
	}

	ctx := r.Context()
	monthAgo := a.clock().AddDate(0, 0, -30)

	var totalInferences int64
	if err := a.DB.WithContext(ctx).Model(&models.Inference{}).
		Where("user_id = ?", user.ID).Count(&totalInferences).Error; err != nil {
		respondFailure(w, a.Log, fmt.Errorf("counting inferences: %w", err))
		return
	}

	var sessionsThisMonth int64
	if err := a.DB.WithContext(ctx).Model(&models.UserSession{}).
		Where("user_id = ? AND login_at >= ?", user.ID, monthAgo).
		Count(&sessionsThisMonth).Error; err != nil {
		respondFailure(w, a.Log, fmt.Errorf("counting sessions: %w", err))
		return
	}

	var lastLogin sql.NullTime
	if err := a.DB.WithContext(ctx).Model(&models.UserSession{}).
		Where("user_id = ?", user.ID).
		Select("max(login_at)").Scan(&lastLogin).Error; err != nil {
		respondFailure(w, a.Log, fmt.Errorf("finding last login: %w", err))
		return
	}

	stats := map[string]any{
		"userId":            user.ID,
		"totalInferences":   totalInferences,
		"sessionsThisMonth": sessionsThisMonth,
	}
	if lastLogin.Valid {
		stats["lastLogin"] = lastLogin.Time.UTC().Format(time.RFC3339)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"stats":   stats,
	})
}
