package engine

import (
	"fmt"
	"time"

	"formloft/models"

	"gorm.io/gorm"
)

// AlreadySent reports whether a delivery event of the given category
// has been recorded for the tenant at or after since. Period-bound
// send paths (the weekly digest) call this before rendering so that
// repeated ticks within one period stay no-ops.
func AlreadySent(db *gorm.DB, tenantID uint, category string, since time.Time) (bool, error) {
	var n int64
	err := db.Model(&models.DeliveryEvent{}).
		Where("tenant_id = ? AND category = ? AND sent_at >= ?", tenantID, category, since).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("checking prior %s sends for tenant %d: %w", category, tenantID, err)
	}
	return n > 0, nil
}

// WeekStart returns the most recent Monday 00:00 UTC at or before t.
// Computed purely from wall-clock time so every invocation within a
// week agrees on the boundary.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	daysSinceMonday := (int(t.Weekday()) + 6) % 7
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.AddDate(0, 0, -daysSinceMonday)
}
