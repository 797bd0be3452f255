package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"visiond/internal/models"
)

// detectionMetadata is the document the inference service writes next to
// each generated image.
type detectionMetadata struct {
	Detections []detection `json:"detections"`
}

type detection struct {
	ClassID *int `json:"class_id"`
}

// metadataForInference fetches and parses the detection metadata document
// for an inference. The key lives under the owner's prefix next to the
// generated image.
func (a *API) metadataForInference(ctx context.Context, userID uint, inf models.Inference) (*detectionMetadata, error) {
	if inf.GeneratedImageURL == "" {
		return nil, fmt.Errorf("inference %d has no generated image", inf.ID)
	}
	key, ok := objectKeyFromURL(inf.GeneratedImageURL, a.Cfg.InferenceBucket)
	if !ok {
		return nil, fmt.Errorf("inference %d: unrecognized image URL", inf.ID)
	}
	folder := folderOf(key)
	if folder == "" {
		return nil, fmt.Errorf("inference %d: no folder in object key", inf.ID)
	}

	metaKey := fmt.Sprintf("%d/%s/metadata.json", userID, folder)
	body, err := a.Store.GetObject(ctx, a.Cfg.InferenceBucket, metaKey)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", metaKey, err)
	}
	defer body.Close()

	raw, err := io.ReadAll(io.LimitReader(body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", metaKey, err)
	}

	var meta detectionMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", metaKey, err)
	}
	return &meta, nil
}

// folderOf returns the second-to-last path segment of an object key.
func folderOf(key string) string {
	parts := strings.Split(strings.Trim(key, "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2]
}

// handleClassDetections aggregates detection counts per class across all of
// the caller's inferences. Inferences with missing or unreadable metadata
// are skipped.
func (a *API) handleClassDetections(w http.ResponseWriter, r *http.Request) {
	user, _ := authUserFrom(r.Context())

	var records []models.Inference
	err := a.DB.WithContext(r.Context()).Where("user_id = ?", user.ID).Find(&records).Error
	if err != nil {
		respondFailure(w, a.Log, fmt.Errorf("loading inferences: %w", err))
		return
	}

	classCounts := map[string]int{}
	totalDetections := 0
	history := make([]map[string]any, 0, len(records))

	for _, inf := range records {
		meta, err := a.metadataForInference(r.Context(), user.ID, inf)
		if err != nil {
			a.Log.Warn().Err(err).Uint("inference", inf.ID).Msg("skipping inference metadata")
			continue
		}

		perInference := map[string]int{}
		for _, d := range meta.Detections {
			if d.ClassID == nil {
				continue
			}
			class := strconv.Itoa(*d.ClassID)
			classCounts[class]++
			perInference[class]++
			totalDetections++
		}

		history = append(history, map[string]any{
			"id":              inf.ID,
			"date":            inf.CreatedOn.UTC().Format(time.RFC3339),
			"totalDetections": len(meta.Detections),
			"classCounts":     perInference,
		})
	}

	classPercentages := map[string]float64{}
	if totalDetections > 0 {
		for class, count := range classCounts {
			pct := float64(count) / float64(totalDetections) * 100
			classPercentages[class] = math.Round(pct*100) / 100
		}
	}

	sort.Slice(history, func(i, j int) bool {
		return history[i]["date"].(string) > history[j]["date"].(string)
	})

	respondJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"totalInferences":  len(records),
		"totalDetections":  totalDetections,
		"classCounts":      classCounts,
		"classPercentages": classPercentages,
		"inferenceHistory": history,
	})
}

// bucketKey maps a timestamp to its aggregation bucket: the day, the week's
// Monday, or the calendar month.
func bucketKey(t time.Time, grouping string) string {
	t = t.UTC()
	switch grouping {
	case "week":
		offset := (int(t.Weekday()) + 6) % 7
		return t.AddDate(0, 0, -offset).Format("2006-01-02")
	case "month":
		return t.Format("2006-01")
	default:
		return t.Format("2006-01-02")
	}
}

// handleTimeSeries aggregates detection counts over time, grouped by day,
// week, or month, within a configurable look-back window.
func (a *API) handleTimeSeries(w http.ResponseWriter, r *http.Request) {
	user, _ := authUserFrom(r.Context())

	grouping := r.URL.Query().Get("grouping")
	if grouping == "" {
		grouping = "day"
	}
	daysBack := 30
	if v, err := strconv.Atoi(r.URL.Query().Get("days")); err == nil && v > 0 {
		daysBack = v
	}

	end := a.clock()
	start := end.AddDate(0, 0, -daysBack)

	var records []models.Inference
	err := a.DB.WithContext(r.Context()).
		Where("user_id = ? AND created_on >= ? AND created_on <= ?", user.ID, start, end).
		Order("created_on").Find(&records).Error
	if err != nil {
		respondFailure(w, a.Log, fmt.Errorf("loading inferences: %w", err))
		return
	}

	type bucket struct {
		totalDetections int
		inferenceCount  int
		classCounts     map[string]int
	}
	buckets := map[string]*bucket{}
	totalDetections := 0

	for _, inf := range records {
		meta, err := a.metadataForInference(r.Context(), user.ID, inf)
		if err != nil {
			a.Log.Warn().Err(err).Uint("inference", inf.ID).Msg("skipping inference metadata")
			continue
		}

		key := bucketKey(inf.CreatedOn, grouping)
		b := buckets[key]
		if b == nil {
			b = &bucket{classCounts: map[string]int{}}
			buckets[key] = b
		}

		b.inferenceCount++
		b.totalDetections += len(meta.Detections)
		for _, d := range meta.Detections {
			if d.ClassID == nil {
				continue
			}
			b.classCounts[strconv.Itoa(*d.ClassID)]++
			totalDetections++
		}
	}

	keys := make([]string, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	series := make([]map[string]any, 0, len(keys))
	for _, key := range keys {
		b := buckets[key]
		series = append(series, map[string]any{
			"date":            key,
			"totalDetections": b.totalDetections,
			"classCounts":     b.classCounts,
			"inferenceCount":  b.inferenceCount,
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"timeSeries":      series,
		"totalDetections": totalDetections,
		"dateRange": map[string]any{
			"start": start.Format(time.RFC3339),
			"end":   end.Format(time.RFC3339),
		},
	})
}

// handleMetricsSummary returns headline figures for the dashboard.
func (a *API) handleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	user, _ := authUserFrom(r.Context())
	ctx := r.Context()

	var total int64
	if err := a.DB.WithContext(ctx).Model(&models.Inference{}).
		Where("user_id = ?", user.ID).Count(&total).Error; err != nil {
		respondFailure(w, a.Log, fmt.Errorf("counting inferences: %w", err))
		return
	}

	monthAgo := a.clock().AddDate(0, 0, -30)
	var recent int64
	if err := a.DB.WithContext(ctx).Model(&models.Inference{}).
		Where("user_id = ? AND created_on >= ?", user.ID, monthAgo).
		Count(&recent).Error; err != nil {
		respondFailure(w, a.Log, fmt.Errorf("counting recent inferences: %w", err))
		return
	}

	var first, last sql.NullTime
	if err := a.DB.WithContext(ctx).Model(&models.Inference{}).
		Where("user_id = ?", user.ID).
		Select("min(created_on)").Scan(&first).Error; err != nil {
		respondFailure(w, a.Log, fmt.Errorf("finding first inference: %w", err))
		return
	}
	if err := a.DB.WithContext(ctx).Model(&models.Inference{}).
		Where("user_id = ?", user.ID).
		Select("max(created_on)").Scan(&last).Error; err != nil {
		respondFailure(w, a.Log, fmt.Errorf("finding last inference: %w", err))
		return
	}

	payload := map[string]any{
		"success":          true,
		"totalInferences":  total,
		"recentInferences": recent,
		"accountAge":       0,
	}
	if first.Valid {
		payload["firstInferenceDate"] = first.Time.UTC().Format(time.RFC3339)
		payload["accountAge"] = int(a.clock().Sub(first.Time) / (24 * time.Hour))
	}
	if last.Valid {
		payload["lastInferenceDate"] = last.Time.UTC().Format(time.RFC3339)
	}

	respondJSON(w, http.StatusOK, payload)
}
