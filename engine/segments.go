package engine

import (
	"time"

	"formloft/config"
)

// Step is one message within a segment's sequence. Delay is measured
// from the previous step; the first step always fires immediately on
// creation, so its Delay is ignored.
type Step struct {
	Number   int
	Template string
	Subject  string
	Delay    time.Duration
}

// Segment is a named behavioral condition plus its message sequence.
// Segments are defined statically and never mutated at runtime. They
// are one-shot by default: once a sequence exists for (tenant, segment)
// in any status, the segment never retriggers. Retriggerable segments
// track a live threshold instead of a milestone, so only a currently
// active sequence blocks creation.
type Segment struct {
	Name          string
	Retriggerable bool

	// Predicate decides whether a sequence should be opened.
	Predicate func(f *TenantFacts) bool

	// StillQualifies is the looser re-check the processor runs before
	// each send: has the tenant resolved the underlying situation since
	// the sequence started?
	StillQualifies func(f *TenantFacts) bool

	Steps []Step
}

// Step returns the step with the given number, or nil past the end
func (s *Segment) Step(n int) *Step {
	for i := range s.Steps {
		if s.Steps[i].Number == n {
			return &s.Steps[i]
		}
	}
	return nil
}

// FindSegment looks a segment up by name
func FindSegment(segments []Segment, name string) *Segment {
	for i := range segments {
		if segments[i].Name == name {
			return &segments[i]
		}
	}
	return nil
}

// DefaultSegments builds the production segment catalogue. Step delays
// are product-tunable through config rather than hardcoded.
func DefaultSegments(cfg config.LifecycleConfig) []Segment {
	return []Segment{
		{
			// Signed up over a day ago and never created anything
			Name: "frozen_starter",
			Predicate: func(f *TenantFacts) bool {
				return time.Since(f.SignedUpAt) >= 24*time.Hour &&
					f.FormCount == 0 && f.SubmissionCount == 0
			},
			StillQualifies: func(f *TenantFacts) bool {
				return f.FormCount == 0
			},
			Steps: []Step{
				{Number: 1, Template: "frozen_starter_1", Subject: "Your first form is two minutes away"},
				{Number: 2, Template: "frozen_starter_2", Subject: "Need a hand getting set up?",
					Delay: time.Duration(cfg.FrozenStarterFollowupDays) * 24 * time.Hour},
			},
		},
		{
			// Built a form a week ago but has no submissions yet
			Name: "idle_builder",
			Predicate: func(f *TenantFacts) bool {
				return f.FormCount > 0 && f.SubmissionCount == 0 &&
					f.OldestFormAt != nil && time.Since(*f.OldestFormAt) >= 7*24*time.Hour
			},
			StillQualifies: func(f *TenantFacts) bool {
				return f.SubmissionCount == 0
			},
			Steps: []Step{
				{Number: 1, Template: "idle_builder_1", Subject: "Your form hasn't seen a response yet"},
				{Number: 2, Template: "idle_builder_2", Subject: "Three ways to get your first submission",
					Delay: time.Duration(cfg.IdleBuilderFollowupDays) * 24 * time.Hour},
			},
		},
		{
			// Live threshold: monthly submission quota reached
			Name:          "at_capacity",
			Retriggerable: true,
			Predicate: func(f *TenantFacts) bool {
				return f.SubmissionLimit > 0 && f.SubmissionsThisMonth >= f.SubmissionLimit
			},
			StillQualifies: func(f *TenantFacts) bool {
				return f.SubmissionLimit > 0 && f.SubmissionsThisMonth >= f.SubmissionLimit
			},
			Steps: []Step{
				{Number: 1, Template: "at_capacity_1", Subject: "You've hit your plan limit"},
			},
		},
	}
}
