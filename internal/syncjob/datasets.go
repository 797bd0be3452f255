// Package syncjob reconciles local dataset and model records against the
// object store and the external inference service. Both jobs run once at
// startup, are idempotent, and never fail process startup: an unreachable
// dependency leaves local state untouched.
package syncjob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"visiond/internal/events"
	"visiond/internal/models"
)

// BucketLister is the slice of the object-store client the dataset sync
// needs.
type BucketLister interface {
	ListObjects(ctx context.Context, bucket string) ([]string, error)
}

// DatasetSyncer aligns dataset rows with the contents of the datasets
// bucket.
type DatasetSyncer struct {
	DB              *gorm.DB
	Store           BucketLister
	Bucket          string
	SystemUserEmail string
	Log             zerolog.Logger
	Events          *events.Publisher

	now func() time.Time
}

// datasetPlan is the set of writes that would align the database with the
// bucket listing. An empty plan means the run is a no-op.
type datasetPlan struct {
	create     []datasetCreate
	reactivate []uint
	deactivate []uint
}

type datasetCreate struct {
	name      string
	objectKey string
}

func (p datasetPlan) empty() bool {
	return len(p.create) == 0 && len(p.reactivate) == 0 && len(p.deactivate) == 0
}

// Run lists the bucket, computes the reconciliation plan, and applies it in
// a single transaction. Records whose backing object vanished are
// deactivated, never deleted.
func (s *DatasetSyncer) Run(ctx context.Context) error {
	keys, err := s.Store.ListObjects(ctx, s.Bucket)
	if err != nil {
		s.Log.Warn().Err(err).Str("bucket", s.Bucket).Msg("dataset sync: listing bucket failed, leaving records untouched")
		return fmt.Errorf("list bucket %s: %w", s.Bucket, err)
	}

	var existing []models.Dataset
	if err := s.DB.WithContext(ctx).Find(&existing).Error; err != nil {
		return fmt.Errorf("load datasets: %w", err)
	}

	plan := planDatasets(keys, existing)
	if plan.empty() {
		s.Log.Info().Int("objects", len(keys)).Msg("dataset sync: nothing to do")
		return nil
	}

	var owner *models.User
	if len(plan.create) > 0 {
		owner, err = s.systemUser(ctx)
		if err != nil {
			// Refusing to invent an owner: without the seeded system
			// identity new records would carry a dangling reference.
			s.Log.Warn().Err(err).Msg("dataset sync: skipping record creation")
			plan.create = nil
			if plan.empty() {
				return nil
			}
		}
	}

	if err := s.apply(ctx, plan, owner); err != nil {
		return err
	}

	s.Log.Info().
		Int("created", len(plan.create)).
		Int("reactivated", len(plan.reactivate)).
		Int("deactivated", len(plan.deactivate)).
		Msg("dataset sync: applied changes")

	s.Events.Publish(events.SubjectDatasetSynced, map[string]any{
		"created":     len(plan.create),
		"reactivated": len(plan.reactivate),
		"deactivated": len(plan.deactivate),
	})
	return nil
}

func (s *DatasetSyncer) apply(ctx context.Context, plan datasetPlan, owner *models.User) error {
	now := s.clock()
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, c := range plan.create {
			record := models.Dataset{
				Name:        c.name,
				Description: fmt.Sprintf("Auto-synced dataset from object store: %s", c.objectKey),
				DatasetType: defaultDatasetType,
				S3Path:      fmt.Sprintf("s3://%s/%s", s.Bucket, c.objectKey),
				CreatedBy:   owner.ID,
				CreatedOn:   now,
				Active:      true,
			}
			if err := tx.Create(&record).Error; err != nil {
				return fmt.Errorf("create dataset %s: %w", c.name, err)
			}
		}

		if len(plan.reactivate) > 0 {
			if err := tx.Model(&models.Dataset{}).Where("id IN ?", plan.reactivate).
				Update("active", true).Error; err != nil {
				return fmt.Errorf("reactivate datasets: %w", err)
			}
		}

		if len(plan.deactivate) > 0 {
			if err := tx.Model(&models.Dataset{}).Where("id IN ?", plan.deactivate).
				Update("active", false).Error; err != nil {
				return fmt.Errorf("deactivate datasets: %w", err)
			}
		}

		return nil
	})
}

const defaultDatasetType = "YOLO"

func (s *DatasetSyncer) systemUser(ctx context.Context) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Where("email = ?", s.SystemUserEmail).First(&user).Error
	if err != nil {
		return nil, fmt.Errorf("system user %q: %w", s.SystemUserEmail, err)
	}
	return &user, nil
}

func (s *DatasetSyncer) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now().UTC()
}

// planDatasets diffs the bucket listing against existing records. Dataset
// names derive from object keys with the extension stripped.
func planDatasets(keys []string, existing []models.Dataset) datasetPlan {
	byName := make(map[string]*models.Dataset, len(existing))
	for i := range existing {
		byName[existing[i].Name] = &existing[i]
	}

	present := make(map[string]bool, len(keys))
	var plan datasetPlan
	for _, key := range keys {
		name := datasetName(key)
		present[name] = true

		record, ok := byName[name]
		if !ok {
			plan.create = append(plan.create, datasetCreate{name: name, objectKey: key})
			continue
		}
		if !record.Active {
			plan.reactivate = append(plan.reactivate, record.ID)
		}
	}

	for name, record := range byName {
		if !present[name] && record.Active {
			plan.deactivate = append(plan.deactivate, record.ID)
		}
	}

	return plan
}

func datasetName(objectKey string) string {
	if idx := strings.LastIndex(objectKey, "."); idx > 0 {
		return objectKey[:idx]
	}
	return objectKey
}
