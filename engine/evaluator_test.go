package engine

import (
	"context"
	"testing"
	"time"

	"formloft/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestEvaluatorOpensFrozenStarterSequence(t *testing.T) {
	db := newTestDB(t)
	eng := newTestEngine(db, &fakeMailer{})
	tenant := seedTenant(t, db, 25*time.Hour)

	summary, err := eng.Evaluator.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 0, summary.Errors)

	var seq models.Sequence
	require.NoError(t, db.Where("tenant_id = ?", tenant.ID).First(&seq).Error)
	assert.Equal(t, "frozen_starter", seq.SegmentName)
	assert.Equal(t, 1, seq.CurrentStep)
	assert.Equal(t, models.SequenceActive, seq.Status)
	require.NotNil(t, seq.NextSendAt)
	assert.WithinDuration(t, time.Now().UTC(), *seq.NextSendAt, 5*time.Second)
}

func TestEvaluatorIsIdempotentAcrossTicks(t *testing.T) {
	db := newTestDB(t)
	eng := newTestEngine(db, &fakeMailer{})
	tenant := seedTenant(t, db, 25*time.Hour)

	_, err := eng.Evaluator.RunTick(context.Background())
	require.NoError(t, err)

	// Immediate re-run with no fact changes creates nothing
	summary, err := eng.Evaluator.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Created)

	var count int64
	require.NoError(t, db.Model(&models.Sequence{}).Where("tenant_id = ?", tenant.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestEvaluatorSkipsFreshAndOptedOutTenants(t *testing.T) {
	db := newTestDB(t)
	eng := newTestEngine(db, &fakeMailer{})

	// Signed up an hour ago: not frozen yet
	fresh := seedTenant(t, db, time.Hour)

	// Old enough, but opted out of lifecycle mail
	optedOut := seedTenant(t, db, 48*time.Hour)
	require.NoError(t, db.Model(&optedOut).Update("lifecycle_opt_out", true).Error)

	summary, err := eng.Evaluator.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 0, summary.Created)

	var count int64
	require.NoError(t, db.Model(&models.Sequence{}).
		Where("tenant_id IN ?", []uint{fresh.ID, optedOut.ID}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestEvaluatorOneShotSegmentNeverRetriggers(t *testing.T) {
	db := newTestDB(t)
	eng := newTestEngine(db, &fakeMailer{})
	tenant := seedTenant(t, db, 48*time.Hour)

	// A cancelled historical run blocks recreation permanently
	seq := models.Sequence{
		TenantID:     tenant.ID,
		SegmentName:  "frozen_starter",
		CurrentStep:  1,
		Status:       models.SequenceCancelled,
		CancelReason: models.CancelProgressed,
		StartedAt:    time.Now().UTC().Add(-24 * time.Hour),
	}
	require.NoError(t, db.Create(&seq).Error)

	summary, err := eng.Evaluator.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Created)
}

func TestEvaluatorRetriggerableSegmentBlocksOnActiveOnly(t *testing.T) {
	db := newTestDB(t)
	eng := newTestEngine(db, &fakeMailer{})
	tenant := seedTenant(t, db, time.Hour)

	// Put the tenant at capacity: 100 submissions against a limit of 100.
	// A form also exists, so frozen_starter stays quiet.
	form := models.Form{TenantID: tenant.ID, Name: "Contact", Status: "published"}
	require.NoError(t, db.Create(&form).Error)
	subs := make([]models.Submission, 100)
	for i := range subs {
		subs[i] = models.Submission{FormID: form.ID, TenantID: tenant.ID}
	}
	require.NoError(t, db.CreateInBatches(&subs, 50).Error)

	// Completed prior run does not block a retriggerable segment
	prior := models.Sequence{
		TenantID:    tenant.ID,
		SegmentName: "at_capacity",
		CurrentStep: 1,
		Status:      models.SequenceCompleted,
		StartedAt:   time.Now().UTC().Add(-30 * 24 * time.Hour),
	}
	require.NoError(t, db.Create(&prior).Error)

	summary, err := eng.Evaluator.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Created)

	// At most one active sequence per (tenant, segment): a second tick
	// sees the active run and creates nothing
	summary, err = eng.Evaluator.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Created)

	var active int64
	require.NoError(t, db.Model(&models.Sequence{}).
		Where("tenant_id = ? AND segment_name = ? AND status = ?", tenant.ID, "at_capacity", models.SequenceActive).
		Count(&active).Error)
	assert.Equal(t, int64(1), active)
}

func TestEvaluatorSkipsSequenceOpenedByInterleavedTick(t *testing.T) {
	db := newTestDB(t)
	eng := newTestEngine(db, &fakeMailer{})
	tenant := seedTenant(t, db, 25*time.Hour)

	// A second evaluation tick wins the race inside the window between
	// the existing-sequences read and the insert: the competing active
	// row appears just before this tick's insert runs. Exec bypasses
	// create callbacks, so the injected insert does not recurse.
	var raced bool
	err := db.Callback().Create().Before("gorm:create").Register("interleaved_tick", func(tx *gorm.DB) {
		if _, ok := tx.Statement.Dest.(*models.Sequence); !ok || raced {
			return
		}
		raced = true
		now := time.Now().UTC()
		db.Exec(
			"INSERT INTO sequences (created_at, updated_at, tenant_id, segment_name, current_step, status, started_at, next_send_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			now, now, tenant.ID, "frozen_starter", 1, models.SequenceActive, now, now,
		)
	})
	require.NoError(t, err)

	summary, err := eng.Evaluator.RunTick(context.Background())
	require.NoError(t, err)
	assert.True(t, raced)
	assert.Equal(t, 0, summary.Created)
	assert.Equal(t, 0, summary.Errors)

	var active int64
	require.NoError(t, db.Model(&models.Sequence{}).
		Where("tenant_id = ? AND segment_name = ? AND status = ?", tenant.ID, "frozen_starter", models.SequenceActive).
		Count(&active).Error)
	assert.Equal(t, int64(1), active)
}

func TestEvaluatorOpensIdleBuilderSequence(t *testing.T) {
	db := newTestDB(t)
	eng := newTestEngine(db, &fakeMailer{})
	tenant := seedTenant(t, db, 10*24*time.Hour)

	form := models.Form{TenantID: tenant.ID, Name: "Signup", Status: "published"}
	require.NoError(t, db.Create(&form).Error)
	require.NoError(t, db.Model(&form).Update("created_at", time.Now().UTC().Add(-8*24*time.Hour)).Error)

	summary, err := eng.Evaluator.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Created)

	var seq models.Sequence
	require.NoError(t, db.Where("tenant_id = ?", tenant.ID).First(&seq).Error)
	assert.Equal(t, "idle_builder", seq.SegmentName)
}
