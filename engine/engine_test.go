package engine

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"formloft/config"
	"formloft/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Plan{},
		&models.Tenant{},
		&models.Form{},
		&models.Submission{},
		&models.Sequence{},
		&models.DeliveryEvent{},
		&models.Unsubscribe{},
	))
	return db
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testSegments() []Segment {
	return DefaultSegments(config.LifecycleConfig{
		FrozenStarterFollowupDays: 4,
		IdleBuilderFollowupDays:   5,
	})
}

// seedTenant creates a plan and tenant whose signup time is backdated
// by signedUpAgo so age-based predicates can be exercised.
func seedTenant(t *testing.T, db *gorm.DB, signedUpAgo time.Duration) models.Tenant {
	t.Helper()

	plan := models.Plan{Name: "free-" + uuid.NewString(), SubmissionLimit: 100, FormLimit: 3}
	require.NoError(t, db.Create(&plan).Error)

	tenant := models.Tenant{
		PlanID: plan.ID,
		Name:   "Acme",
		Email:  uuid.NewString() + "@example.com",
	}
	require.NoError(t, db.Create(&tenant).Error)

	signedUpAt := time.Now().UTC().Add(-signedUpAgo)
	require.NoError(t, db.Model(&tenant).Update("created_at", signedUpAt).Error)
	tenant.CreatedAt = signedUpAt
	return tenant
}

type sentMail struct {
	To      string
	Subject string
	Body    string
	Tags    map[string]string
}

// fakeMailer records sends; Fail simulates a provider outage
type fakeMailer struct {
	mu   sync.Mutex
	Sent []sentMail
	Fail bool
}

func (m *fakeMailer) Send(to, subject, body string, tags map[string]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return "", fmt.Errorf("provider unavailable")
	}
	m.Sent = append(m.Sent, sentMail{To: to, Subject: subject, Body: body, Tags: tags})
	return uuid.NewString(), nil
}

func (m *fakeMailer) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

func newTestEngine(db *gorm.DB, mailer *fakeMailer) *Engine {
	return New(db, NewGormFactRepository(db), mailer, testSegments(), Options{
		BaseURL:     "https://app.formloft.test",
		LinkSecret:  "test-link-secret",
		WorkerLimit: 4,
	}, newTestLogger())
}

func TestActiveSequenceUniquePerTenantSegment(t *testing.T) {
	db := newTestDB(t)
	tenant := seedTenant(t, db, time.Hour)

	now := time.Now().UTC()
	first := models.Sequence{
		TenantID:    tenant.ID,
		SegmentName: "frozen_starter",
		CurrentStep: 1,
		Status:      models.SequenceActive,
		StartedAt:   now,
		NextSendAt:  &now,
	}
	require.NoError(t, db.Create(&first).Error)

	// A second active row for the same (tenant, segment) is rejected by
	// the partial unique index
	dup := models.Sequence{
		TenantID:    tenant.ID,
		SegmentName: "frozen_starter",
		CurrentStep: 1,
		Status:      models.SequenceActive,
		StartedAt:   now,
		NextSendAt:  &now,
	}
	require.ErrorIs(t, db.Create(&dup).Error, gorm.ErrDuplicatedKey)

	// Terminal rows stay outside the index: history coexists with a
	// fresh active run for a retriggerable segment
	done := models.Sequence{
		TenantID:    tenant.ID,
		SegmentName: "at_capacity",
		CurrentStep: 1,
		Status:      models.SequenceCompleted,
		StartedAt:   now.Add(-30 * 24 * time.Hour),
	}
	require.NoError(t, db.Create(&done).Error)

	again := models.Sequence{
		TenantID:    tenant.ID,
		SegmentName: "at_capacity",
		CurrentStep: 1,
		Status:      models.SequenceActive,
		StartedAt:   now,
		NextSendAt:  &now,
	}
	require.NoError(t, db.Create(&again).Error)
}

func TestCancelSequenceIsConditional(t *testing.T) {
	db := newTestDB(t)
	tenant := seedTenant(t, db, time.Hour)

	now := time.Now().UTC()
	seq := models.Sequence{
		TenantID:    tenant.ID,
		SegmentName: "frozen_starter",
		CurrentStep: 1,
		Status:      models.SequenceActive,
		StartedAt:   now,
		NextSendAt:  &now,
	}
	require.NoError(t, db.Create(&seq).Error)

	cancelled, err := CancelSequence(db, seq.ID, models.CancelBounced)
	require.NoError(t, err)
	require.True(t, cancelled)

	// Already terminal: a second cancel with a different reason is a
	// no-op and must not clobber the recorded reason
	cancelled, err = CancelSequence(db, seq.ID, models.CancelUnsubscribed)
	require.NoError(t, err)
	require.False(t, cancelled)

	var got models.Sequence
	require.NoError(t, db.First(&got, seq.ID).Error)
	require.Equal(t, models.SequenceCancelled, got.Status)
	require.Equal(t, models.CancelBounced, got.CancelReason)
	require.Nil(t, got.NextSendAt)
}
