package irtsim

import (
	"context"
	"errors"
	"testing"
)

func newTestSampler(gen Generator, concurrency int) *Sampler {
	stack := NewEvaluationStack(gen, testPromptStore(), EvalFused, sampleConversation(), "msg")
	return NewSampler(stack, concurrency)
}

func TestSamplerSequential(t *testing.T) {
	gen := &fakeGenerator{script: []string{"<plan>agency</plan>\nreply"}}
	s := newTestSampler(gen, 1)

	results, err := s.Run(context.Background(), 5, 0.7)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	for i, r := range results {
		if r.Index != i {
			t.Errorf("result %d has index %d", i, r.Index)
		}
		if r.Temperature != 0.7 {
			t.Errorf("result %d has temperature %g", i, r.Temperature)
		}
		if r.Plan != "<plan>agency</plan>" {
			t.Errorf("result %d plan %q", i, r.Plan)
		}
	}
}

func TestSamplerParallelKeepsOrder(t *testing.T) {
	gen := &fakeGenerator{script: []string{"<plan>safety</plan>\nreply"}}
	s := newTestSampler(gen, 4)

	results, err := s.Run(context.Background(), 8, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 8 {
		t.Fatalf("expected 8 results, got %d", len(results))
	}
	for i, r := range results {
		if r.Index != i {
			t.Errorf("slot %d holds index %d", i, r.Index)
		}
	}
}

func TestSamplerZeroTrials(t *testing.T) {
	s := newTestSampler(&fakeGenerator{}, 1)
	if _, err := s.Run(context.Background(), 0, 0.7); err == nil {
		t.Error("expected error for zero trials")
	}
}

func TestSamplerPropagatesErrors(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("boom")}
	s := newTestSampler(gen, 1)
	if _, err := s.Run(context.Background(), 3, 0.7); err == nil {
		t.Error("expected generation error to surface")
	}
}

func TestSamplerSweep(t *testing.T) {
	gen := &fakeGenerator{script: []string{"<plan>agency</plan>\nreply"}}
	s := newTestSampler(gen, 1)

	out, err := s.Sweep(context.Background(), 2, []float64{0.0, 0.7, 1.2})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 temperature buckets, got %d", len(out))
	}
	for temp, rs := range out {
		if len(rs) != 2 {
			t.Errorf("t=%.1f: expected 2 trials, got %d", temp, len(rs))
		}
		for _, r := range rs {
			if r.Temperature != temp {
				t.Errorf("trial in bucket %.1f carries temperature %.1f", temp, r.Temperature)
			}
		}
	}
}
