package syncjob

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visiond/internal/inference"
	"visiond/internal/models"
)

func TestPlanModelsCreatesMissing(t *testing.T) {
	remote := []inference.ModelInfo{
		{Name: "yolov8n", Description: "nano detector"},
		{Name: "yolov8x", Description: "extra large detector"},
	}
	existing := []models.Model{
		{ID: 1, Name: "yolov8n", Description: "nano detector"},
	}

	plan := planModels(remote, existing)

	require.Len(t, plan.create, 1)
	assert.Equal(t, "yolov8x", plan.create[0].Name)
	assert.Empty(t, plan.update)
}

func TestPlanModelsUpdatesChangedDescription(t *testing.T) {
	remote := []inference.ModelInfo{
		{Name: "yolov8n", Description: "retrained on v2 data"},
	}
	existing := []models.Model{
		{ID: 4, Name: "yolov8n", Description: "nano detector"},
	}

	plan := planModels(remote, existing)

	assert.Empty(t, plan.create)
	require.Len(t, plan.update, 1)
	assert.Equal(t, uint(4), plan.update[0].id)
	assert.Equal(t, "retrained on v2 data", plan.update[0].description)
}

// A remote model without a description gets a name-derived placeholder
// instead of an empty field, and a record already carrying that placeholder
// is not rewritten on the next run.
func TestPlanModelsDefaultsEmptyDescription(t *testing.T) {
	remote := []inference.ModelInfo{
		{Name: "yolov8n"},
	}

	plan := planModels(remote, nil)
	require.Len(t, plan.create, 1)
	assert.Equal(t, "Model: yolov8n", plan.create[0].Description)

	existing := []models.Model{
		{ID: 1, Name: "yolov8n", Description: "Model: yolov8n"},
	}
	assert.True(t, planModels(remote, existing).empty())
}

func TestPlanModelsLeavesRemovedAlone(t *testing.T) {
	existing := []models.Model{
		{ID: 1, Name: "legacy", Description: "old model"},
	}

	// Models absent from the remote catalog are neither deleted nor
	// flagged; only additions and changed descriptions propagate.
	plan := planModels(nil, existing)

	assert.True(t, plan.empty())
}

func TestPlanModelsIdempotent(t *testing.T) {
	remote := []inference.ModelInfo{
		{Name: "yolov8n", Description: "nano detector"},
	}
	existing := []models.Model{
		{ID: 1, Name: "yolov8n", Description: "nano detector"},
	}

	assert.True(t, planModels(remote, existing).empty())
}
