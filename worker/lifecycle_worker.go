package worker

import (
	"context"
	"log"
	"time"

	"formloft/engine"
)

// LifecycleWorker hosts the periodic ticks: segment evaluation on the
// coarse cadence, sequence processing on the finer one, and a digest
// attempt alongside evaluation (the dedup guard makes extra attempts
// within a week free).
type LifecycleWorker struct {
	Engine           *engine.Engine
	EvaluateInterval time.Duration
	ProcessInterval  time.Duration
	Logger           *log.Logger
}

func NewLifecycleWorker(eng *engine.Engine, evaluateInterval, processInterval time.Duration, logger *log.Logger) *LifecycleWorker {
	return &LifecycleWorker{
		Engine:           eng,
		EvaluateInterval: evaluateInterval,
		ProcessInterval:  processInterval,
		Logger:           logger,
	}
}

func (lw *LifecycleWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	time.Sleep(10 * time.Second)

	lw.Logger.Println("Lifecycle worker started")

	evaluateTicker := time.NewTicker(lw.EvaluateInterval)
	defer evaluateTicker.Stop()
	processTicker := time.NewTicker(lw.ProcessInterval)
	defer processTicker.Stop()

	// Run one evaluation pass right away so a freshly deployed engine
	// doesn't wait a full interval to pick up eligible tenants
	lw.runEvaluate(ctx)

	for {
		select {
		case <-ctx.Done():
			lw.Logger.Println("Lifecycle worker shutting down...")
			return
		case <-evaluateTicker.C:
			lw.runEvaluate(ctx)
			lw.runDigest(ctx)
		case <-processTicker.C:
			lw.runProcess(ctx)
		}
	}
}

func (lw *LifecycleWorker) runEvaluate(ctx context.Context) {
	summary, err := lw.Engine.Evaluator.RunTick(ctx)
	if err != nil {
		lw.Logger.Printf("Evaluation tick failed: %v", err)
		return
	}
	lw.Logger.Printf("Evaluation tick: %d tenants, %d sequences opened, %d errors",
		summary.Processed, summary.Created, summary.Errors)
}

func (lw *LifecycleWorker) runProcess(ctx context.Context) {
	summary, err := lw.Engine.Processor.RunTick(ctx)
	if err != nil {
		lw.Logger.Printf("Processing tick failed: %v", err)
		return
	}
	lw.Logger.Printf("Processing tick: %d sequences, %d sent, %d completed, %d cancelled, %d errors",
		summary.Processed, summary.Sent, summary.Completed, summary.Cancelled, summary.Errors)
}

func (lw *LifecycleWorker) runDigest(ctx context.Context) {
	summary, err := lw.Engine.Digest.RunTick(ctx)
	if err != nil {
		lw.Logger.Printf("Digest tick failed: %v", err)
		return
	}
	if summary.Sent > 0 || summary.Errors > 0 {
		lw.Logger.Printf("Digest tick: %d tenants, %d digests sent, %d errors",
			summary.Processed, summary.Sent, summary.Errors)
	}
}
