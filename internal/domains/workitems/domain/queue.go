package domain

import (
	"sort"
	"time"
)

// TierCounts counts open items per tier.
type TierCounts struct {
	Critical int
	High     int
	Medium   int
	Low      int
}

// QueueSummary is the per-queue projection. It is recomputed from the
// detail rows every time, never incremented.
type QueueSummary struct {
	Key          QueueKey
	Counts       TierCounts
	OpenCount    int
	SnoozedCount int
	TopScore     int
	// ItemIDs lists open items by score descending, then creation time.
	ItemIDs []string
	// LastGlobalSequence is the highest global sequence that refreshed the row.
	LastGlobalSequence int64
	UpdatedAt          time.Time
}

// Summarize builds the queue row from the items currently assigned to key.
func Summarize(key QueueKey, items []WorkItem, globalSequence int64, at time.Time) QueueSummary {
	summary := QueueSummary{Key: key, LastGlobalSequence: globalSequence, UpdatedAt: at, ItemIDs: []string{}}
	open := make([]WorkItem, 0, len(items))
	for _, item := range items {
		if item.Queue != key {
			continue
		}
		switch item.Status {
		case StatusOpen:
			open = append(open, item)
		case StatusSnoozed:
			summary.SnoozedCount++
		}
	}
	sort.SliceStable(open, func(i, j int) bool {
		if open[i].Score != open[j].Score {
			return open[i].Score > open[j].Score
		}
		if !open[i].CreatedAt.Equal(open[j].CreatedAt) {
			return open[i].CreatedAt.Before(open[j].CreatedAt)
		}
		return open[i].ID < open[j].ID
	})
	for _, item := range open {
		switch item.Priority() {
		case TierCritical:
			summary.Counts.Critical++
		case TierHigh:
			summary.Counts.High++
		case TierMedium:
			summary.Counts.Medium++
		default:
			summary.Counts.Low++
		}
		summary.ItemIDs = append(summary.ItemIDs, item.ID)
	}
	summary.OpenCount = len(open)
	if len(open) > 0 {
		summary.TopScore = open[0].Score
	}
	return summary
}
