package engine

import (
	"context"
	"fmt"
	"time"

	"formloft/models"

	"gorm.io/gorm"
)

// TenantFacts is a read-only snapshot of one tenant, assembled fresh
// each cycle. Segment predicates depend on live counts, so facts are
// never cached across cycles.
type TenantFacts struct {
	TenantID   uint
	Name       string
	Email      string
	SignedUpAt time.Time

	PlanName        string
	SubmissionLimit int

	FormCount          int
	PublishedFormCount int
	OldestFormAt       *time.Time

	SubmissionCount      int
	NewSubmissionCount   int
	SubmissionsThisMonth int

	LifecycleOptOut bool
	DigestOptOut    bool
}

// FactRepository is the boundary to the tenant data store. It must
// support count-style aggregate queries; the engine owns none of the
// underlying tables.
type FactRepository interface {
	AllTenantIDs(ctx context.Context) ([]uint, error)
	Facts(ctx context.Context, tenantID uint) (*TenantFacts, error)
	SubmissionsSince(ctx context.Context, tenantID uint, since time.Time) (int, error)
}

// GormFactRepository assembles facts from the application database
type GormFactRepository struct {
	DB *gorm.DB
}

func NewGormFactRepository(db *gorm.DB) *GormFactRepository {
	return &GormFactRepository{DB: db}
}

func (r *GormFactRepository) AllTenantIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	if err := r.DB.WithContext(ctx).Model(&models.Tenant{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("listing tenants: %w", err)
	}
	return ids, nil
}

func (r *GormFactRepository) Facts(ctx context.Context, tenantID uint) (*TenantFacts, error) {
	db := r.DB.WithContext(ctx)

	var tenant models.Tenant
	if err := db.Preload("Plan").First(&tenant, tenantID).Error; err != nil {
		return nil, fmt.Errorf("fetching tenant %d: %w", tenantID, err)
	}

	facts := &TenantFacts{
		TenantID:        tenant.ID,
		Name:            tenant.Name,
		Email:           tenant.Email,
		SignedUpAt:      tenant.CreatedAt,
		PlanName:        tenant.Plan.Name,
		SubmissionLimit: tenant.Plan.SubmissionLimit,
		LifecycleOptOut: tenant.LifecycleOptOut,
		DigestOptOut:    tenant.DigestOptOut,
	}

	counts := []struct {
		dest  *int
		query *gorm.DB
	}{
		{&facts.FormCount, db.Model(&models.Form{}).Where("tenant_id = ?", tenantID)},
		{&facts.PublishedFormCount, db.Model(&models.Form{}).Where("tenant_id = ? AND status = ?", tenantID, "published")},
		{&facts.SubmissionCount, db.Model(&models.Submission{}).Where("tenant_id = ?", tenantID)},
		{&facts.NewSubmissionCount, db.Model(&models.Submission{}).Where("tenant_id = ? AND status = ?", tenantID, "new")},
	}
	for _, c := range counts {
		var n int64
		if err := c.query.Count(&n).Error; err != nil {
			return nil, fmt.Errorf("counting records for tenant %d: %w", tenantID, err)
		}
		*c.dest = int(n)
	}

	// Oldest form selected explicitly by minimum created_at
	var oldest models.Form
	err := db.Where("tenant_id = ?", tenantID).Order("created_at ASC").First(&oldest).Error
	if err == nil {
		facts.OldestFormAt = &oldest.CreatedAt
	} else if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("finding oldest form for tenant %d: %w", tenantID, err)
	}

	monthStart := MonthStart(time.Now().UTC())
	thisMonth, err := r.SubmissionsSince(ctx, tenantID, monthStart)
	if err != nil {
		return nil, err
	}
	facts.SubmissionsThisMonth = thisMonth

	return facts, nil
}

func (r *GormFactRepository) SubmissionsSince(ctx context.Context, tenantID uint, since time.Time) (int, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.Submission{}).
		Where("tenant_id = ? AND created_at >= ?", tenantID, since).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("counting submissions for tenant %d: %w", tenantID, err)
	}
	return int(n), nil
}

// MonthStart returns the first instant of t's month in UTC
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
