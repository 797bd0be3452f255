// Package httpapi exposes the REST surface: authentication and session
// management, user self-service, administration, dataset/model bookkeeping,
// inference workflows, scenes, audit, and metrics reporting.
package httpapi

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"visiond/internal/config"
	"visiond/internal/events"
	"visiond/internal/inference"
	"visiond/internal/models"
	"visiond/internal/security"
)

// ObjectStore is the slice of the S3 client the handlers use.
type ObjectStore interface {
	ListObjects(ctx context.Context, bucket string) ([]string, error)
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	DeleteObject(ctx context.Context, bucket, key string) error
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
	PresignPut(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// InferenceService is the slice of the inference client the handlers use.
type InferenceService interface {
	GenerateInference(ctx context.Context, imgObjectKey string) (*inference.GenerateResult, error)
	StartTraining(ctx context.Context, modelName, datasetPath string, params inference.TrainingParams) (*inference.TrainingJob, error)
	TrainingStatus(ctx context.Context, jobID string) (*inference.TrainingJob, error)
	CancelTraining(ctx context.Context, jobID string) error
}

// API holds the external dependencies required by the HTTP layer.
type API struct {
	DB        *gorm.DB
	Cfg       config.Config
	Log       zerolog.Logger
	Tokens    *security.TokenIssuer
	CSRF      *security.CSRFGuard
	Limiter   *security.RateLimiter
	Store     ObjectStore
	Inference InferenceService
	Events    *events.Publisher

	now func() time.Time
}

func (a *API) clock() time.Time {
	if a.now != nil {
		return a.now().UTC()
	}
	return time.Now().UTC()
}

// Routes builds the router. trace is the tracing/request-log middleware from
// telemetry.Init; pass nil to skip it.
func (a *API) Routes(trace func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if trace != nil {
		r.Use(trace)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(2 * time.Minute))
	r.Use(a.securityHeaders)

	allowed := a.Cfg.AllowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Authorization"},
		AllowCredentials: true,
		MaxAge:           int((10 * time.Minute).Seconds()),
	}))

	if a.Cfg.Production() {
		r.Use(httprate.Limit(a.Cfg.APIRateLimit, a.Cfg.APIRateLimitWindow))
	}
	r.Use(a.verifyCSRF)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", a.handleReady)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", a.handleLogin)
		r.Post("/logout", a.handleLogout)
		r.Get("/isLoggedIn", a.handleIsLoggedIn)
		r.Get("/csrf-token", a.handleCSRFToken)
		r.With(a.requireAuth()).Get("/getUserRole", a.handleGetUserRole)
		r.With(a.requireAuth(models.AdminRoles()...)).Post("/addUser", a.handleAddUser)
	})

	r.Route("/users", func(r chi.Router) {
		r.Use(a.requireAuth())
		r.Get("/stats", a.handleUserStats)
		r.Get("/inferences", a.handleUserInferences)
		r.Put("/update-profile", a.handleUpdateProfile)
		r.Put("/change-password", a.handleChangePassword)
		r.Delete("/delete-account", a.handleDeleteAccount)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(a.requireAuth(models.AdminRoles()...))
		r.Get("/users", a.handleAdminUsers)
		r.Get("/roles", a.handleAdminRoles)
		r.Put("/users/{id}/role", a.handleUpdateUserRole)
		r.Delete("/users/{id}", a.handleAdminDeleteUser)
		r.Get("/users/{id}/stats", a.handleAdminUserStats)
	})

	r.Route("/datasets", func(r chi.Router) {
		r.Use(a.requireAuth(models.AdminRoles()...))
		r.Get("/", a.handleListDatasets)
		r.Get("/{id}", a.handleGetDataset)
	})

	r.Route("/models", func(r chi.Router) {
		r.Use(a.requireAuth(models.AdminRoles()...))
		r.Get("/", a.handleListModels)
		r.Post("/train", a.handleTrainModel)
		r.Get("/train/{jobID}", a.handleTrainingStatus)
		r.Delete("/train/{jobID}", a.handleCancelTraining)
	})

	r.Route("/inferences", func(r chi.Router) {
		r.Use(a.requireAuth())
		r.Get("/presign-upload", a.handlePresignInferenceUpload)
		r.Post("/generate", a.handleGenerateInference)
		r.Get("/{id}/image/{kind}", a.handleInferenceImage)
		r.Get("/archive", a.handleInferenceArchive)
	})

	r.Route("/scenes", func(r chi.Router) {
		r.Use(a.requireAuth())
		r.Get("/presign-upload", a.handlePresignSceneUpload)
		r.Post("/", a.handleAddScene)
		r.Get("/", a.handleListScenes)
		r.Delete("/{id}", a.handleDeleteScene)
	})

	r.Route("/audit", func(r chi.Router) {
		r.With(a.requireAuth()).Post("/log", a.handleAuditLog)
		r.With(a.requireAuth(models.AdminRoles()...)).Get("/logs", a.handleAuditLogs)
		r.With(a.requireAuth(models.AdminRoles()...)).Get("/logs/{id}", a.handleAuditLogByID)
	})

	r.Route("/metrics", func(r chi.Router) {
		// Prometheus scrape endpoint shares the prefix with the
		// dashboard metrics routes.
		r.Method("GET", "/", promhttp.Handler())
		r.With(a.requireAuth()).Get("/summary", a.handleMetricsSummary)
		r.With(a.requireAuth()).Get("/class-detections", a.handleClassDetections)
		r.With(a.requireAuth()).Get("/time-series", a.handleTimeSeries)
	})

	return r
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	sqlDB, err := a.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(r.Context())
	}
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, errDatabaseNotReady)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
