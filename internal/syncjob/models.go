package syncjob

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"visiond/internal/events"
	"visiond/internal/inference"
	"visiond/internal/models"
)

// ModelLister is the slice of the inference client the model sync needs.
type ModelLister interface {
	ListModels(ctx context.Context) ([]inference.ModelInfo, error)
}

// ModelSyncer aligns model rows with the catalog reported by the inference
// service. Models that disappear from the catalog are left alone; only
// additions and description changes propagate.
type ModelSyncer struct {
	DB     *gorm.DB
	Remote ModelLister
	Log    zerolog.Logger
	Events *events.Publisher

	now func() time.Time
}

type modelPlan struct {
	create []inference.ModelInfo
	update []modelUpdate
}

type modelUpdate struct {
	id          uint
	description string
}

func (p modelPlan) empty() bool {
	return len(p.create) == 0 && len(p.update) == 0
}

const (
	defaultModelVersion = "1.0"
	defaultModelType    = "YOLOv8"
)

// Run fetches the remote catalog and applies creations and description
// updates in a single transaction.
func (s *ModelSyncer) Run(ctx context.Context) error {
	remote, err := s.Remote.ListModels(ctx)
	if err != nil {
		s.Log.Warn().Err(err).Msg("model sync: inference service unreachable, leaving records untouched")
		return fmt.Errorf("list remote models: %w", err)
	}

	var existing []models.Model
	if err := s.DB.WithContext(ctx).Find(&existing).Error; err != nil {
		return fmt.Errorf("load models: %w", err)
	}

	plan := planModels(remote, existing)
	if plan.empty() {
		s.Log.Info().Int("remote", len(remote)).Msg("model sync: nothing to do")
		return nil
	}

	now := s.clock()
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range plan.create {
			record := models.Model{
				Name:        m.Name,
				Description: m.Description,
				Version:     defaultModelVersion,
				ModelType:   defaultModelType,
				CreatedOn:   now,
			}
			if err := tx.Create(&record).Error; err != nil {
				return fmt.Errorf("create model %s: %w", m.Name, err)
			}
		}
		for _, u := range plan.update {
			if err := tx.Model(&models.Model{}).Where("id = ?", u.id).
				Updates(map[string]any{"description": u.description, "updated_on": now}).Error; err != nil {
				return fmt.Errorf("update model %d: %w", u.id, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.Log.Info().
		Int("created", len(plan.create)).
		Int("updated", len(plan.update)).
		Msg("model sync: applied changes")

	s.Events.Publish(events.SubjectModelSynced, map[string]any{
		"created": len(plan.create),
		"updated": len(plan.update),
	})
	return nil
}

func (s *ModelSyncer) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now().UTC()
}

func planModels(remote []inference.ModelInfo, existing []models.Model) modelPlan {
	byName := make(map[string]*models.Model, len(existing))
	for i := range existing {
		byName[existing[i].Name] = &existing[i]
	}

	var plan modelPlan
	for _, m := range remote {
		if m.Description == "" {
			m.Description = "Model: " + m.Name
		}
		record, ok := byName[m.Name]
		if !ok {
			plan.create = append(plan.create, m)
			continue
		}
		if record.Description != m.Description {
			plan.update = append(plan.update, modelUpdate{id: record.ID, description: m.Description})
		}
	}
	return plan
}
