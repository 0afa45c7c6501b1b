package engine

import (
	"sync"

	"formloft/models"
	"formloft/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// TickSummary is the aggregate health report of one tick. Per-item
// failures are counted here, not escalated; the next tick retries them.
type TickSummary struct {
	Processed int `json:"processed"`
	Created   int `json:"created"`
	Sent      int `json:"sent"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
	Errors    int `json:"errors"`
}

func (s *TickSummary) merge(mu *sync.Mutex, other TickSummary) {
	mu.Lock()
	defer mu.Unlock()
	s.Processed += other.Processed
	s.Created += other.Created
	s.Sent += other.Sent
	s.Completed += other.Completed
	s.Cancelled += other.Cancelled
	s.Errors += other.Errors
}

// Options carries the cross-cutting engine settings
type Options struct {
	BaseURL     string
	LinkSecret  string
	WorkerLimit int
}

// Engine bundles the periodic tick runners and the webhook reactor
type Engine struct {
	Evaluator *Evaluator
	Processor *Processor
	Digest    *DigestSender
	Reactor   *Reactor
}

func New(db *gorm.DB, facts FactRepository, mailer utils.Mailer, segments []Segment, opts Options, logger *logrus.Logger) *Engine {
	if opts.WorkerLimit <= 0 {
		opts.WorkerLimit = 1
	}
	return &Engine{
		Evaluator: &Evaluator{DB: db, Facts: facts, Segments: segments, Limit: opts.WorkerLimit, Logger: logger},
		Processor: &Processor{DB: db, Facts: facts, Segments: segments, Mailer: mailer,
			BaseURL: opts.BaseURL, LinkSecret: opts.LinkSecret, Limit: opts.WorkerLimit, Logger: logger},
		Digest: &DigestSender{DB: db, Facts: facts, Mailer: mailer,
			BaseURL: opts.BaseURL, LinkSecret: opts.LinkSecret, Limit: opts.WorkerLimit, Logger: logger},
		Reactor: &Reactor{DB: db, Logger: logger},
	}
}

// CancelSequence transitions a sequence to cancelled only if it is
// still active. Both the processor and the webhook reactor cancel
// through this conditional write, so a racing terminal transition is
// never clobbered by a stale one.
func CancelSequence(db *gorm.DB, sequenceID uint, reason string) (bool, error) {
	res := db.Model(&models.Sequence{}).
		Where("id = ? AND status = ?", sequenceID, models.SequenceActive).
		Updates(map[string]interface{}{
			"status":        models.SequenceCancelled,
			"cancel_reason": reason,
			"next_send_at":  nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
