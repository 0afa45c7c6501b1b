package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"formloft/models"
	"formloft/utils"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Evaluator opens new sequences for tenants whose behavior newly
// matches a segment. Runs once per coarse tick; tenants are evaluated
// independently with no ordering guarantee between them.
type Evaluator struct {
	DB       *gorm.DB
	Facts    FactRepository
	Segments []Segment
	Limit    int
	Logger   *logrus.Logger
}

// RunTick evaluates every tenant. A per-tenant failure is logged and
// counted but never aborts the remaining tenants; the tenant stays
// eligible and is re-evaluated next tick.
func (e *Evaluator) RunTick(ctx context.Context) (TickSummary, error) {
	ids, err := e.Facts.AllTenantIDs(ctx)
	if err != nil {
		return TickSummary{}, fmt.Errorf("evaluator tick: %w", err)
	}

	var (
		summary TickSummary
		mu      sync.Mutex
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.Limit)
	for _, id := range ids {
		tenantID := id
		g.Go(func() error {
			item := e.evaluateTenant(ctx, tenantID)
			summary.merge(&mu, item)
			return nil
		})
	}
	_ = g.Wait()

	if summary.Errors > 0 {
		e.Logger.WithFields(logrus.Fields{
			"processed": summary.Processed,
			"errors":    summary.Errors,
		}).Warn("evaluator tick finished with errors")
	}
	return summary, nil
}

func (e *Evaluator) evaluateTenant(ctx context.Context, tenantID uint) TickSummary {
	item := TickSummary{Processed: 1}

	facts, err := e.Facts.Facts(ctx, tenantID)
	if err != nil {
		utils.LogError("evaluate_tenant", err, map[string]interface{}{"tenant_id": tenantID})
		item.Errors++
		return item
	}

	if facts.LifecycleOptOut {
		return item
	}

	var existing []models.Sequence
	if err := e.DB.WithContext(ctx).Where("tenant_id = ?", tenantID).Find(&existing).Error; err != nil {
		utils.LogError("evaluate_tenant", err, map[string]interface{}{"tenant_id": tenantID})
		item.Errors++
		return item
	}

	for i := range e.Segments {
		seg := &e.Segments[i]
		if segmentBlocked(seg, existing) {
			continue
		}
		if !seg.Predicate(facts) {
			continue
		}

		now := time.Now().UTC()
		seq := models.Sequence{
			TenantID:    tenantID,
			SegmentName: seg.Name,
			CurrentStep: 1,
			Status:      models.SequenceActive,
			StartedAt:   now,
			NextSendAt:  &now, // step 1 fires on the next processing tick
		}
		if err := e.DB.WithContext(ctx).Create(&seq).Error; err != nil {
			// An interleaved tick won the race between the existing-
			// sequences read and this insert; the unique index on active
			// (tenant, segment) turned the duplicate into a benign skip
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				e.Logger.WithFields(logrus.Fields{
					"tenant_id": tenantID,
					"segment":   seg.Name,
				}).Info("sequence already opened by a concurrent tick")
				continue
			}
			utils.LogError("create_sequence", err, map[string]interface{}{
				"tenant_id": tenantID,
				"segment":   seg.Name,
			})
			item.Errors++
			continue
		}

		e.Logger.WithFields(logrus.Fields{
			"tenant_id":   tenantID,
			"segment":     seg.Name,
			"sequence_id": seq.ID,
		}).Info("sequence opened")
		item.Created++
	}
	return item
}

// segmentBlocked applies the one-shot rule: any prior sequence for the
// segment blocks recreation. Retriggerable segments block only while a
// sequence is currently active.
func segmentBlocked(seg *Segment, existing []models.Sequence) bool {
	for i := range existing {
		if existing[i].SegmentName != seg.Name {
			continue
		}
		if !seg.Retriggerable {
			return true
		}
		if existing[i].Status == models.SequenceActive {
			return true
		}
	}
	return false
}
