package models

import "gorm.io/gorm"

// Plan defines the limits a tenant's subscription grants
type Plan struct {
	gorm.Model
	Name        string `gorm:"not null;uniqueIndex" json:"name"` // free, starter, growth
	Description string `json:"description"`

	// Usage limits
	SubmissionLimit int `gorm:"not null" json:"submission_limit"` // per calendar month
	FormLimit       int `gorm:"not null" json:"form_limit"`

	// For display purposes
	DisplayPrice string `gorm:"-" json:"display_price"` // e.g. "$19"
}

// Tenant is a workspace account on the platform
type Tenant struct {
	gorm.Model
	PlanID uint `gorm:"not null;index" json:"plan_id"`
	Plan   Plan `json:"plan"`

	Name  string `gorm:"not null" json:"name"`
	Email string `gorm:"not null;uniqueIndex" json:"email"`

	// Messaging preferences
	LifecycleOptOut bool `gorm:"default:false" json:"lifecycle_opt_out"`
	DigestOptOut    bool `gorm:"default:false" json:"digest_opt_out"`
}

// Form is a hosted form owned by a tenant
type Form struct {
	gorm.Model
	TenantID uint   `gorm:"not null;index" json:"tenant_id"`
	Name     string `gorm:"not null" json:"name"`
	Kind     string `gorm:"default:standard" json:"kind"` // standard, upload, payment
	Status   string `gorm:"default:draft" json:"status"`  // draft, published, archived
}

// Submission is one response captured by a form
type Submission struct {
	gorm.Model
	FormID   uint   `gorm:"not null;index" json:"form_id"`
	TenantID uint   `gorm:"not null;index" json:"tenant_id"`
	Status   string `gorm:"default:new" json:"status"` // new, read, archived
}

// Initialize default plans in your database migration
func CreateDefaultPlans(db *gorm.DB) error {
	defaultPlans := []Plan{
		{
			Name:            "free",
			Description:     "Free plan with 100 submissions per month",
			SubmissionLimit: 100,
			FormLimit:       3,
		},
		{
			Name:            "starter",
			Description:     "Starter plan with 1,000 submissions per month",
			SubmissionLimit: 1000,
			FormLimit:       10,
			DisplayPrice:    "$19",
		},
		{
			Name:            "growth",
			Description:     "Growth plan with 10,000 submissions per month",
			SubmissionLimit: 10000,
			FormLimit:       50,
			DisplayPrice:    "$49",
		},
	}
	for _, plan := range defaultPlans {
		if err := db.FirstOrCreate(&plan, "name = ?", plan.Name).Error; err != nil {
			return err
		}
	}
	return nil
}
