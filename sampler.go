package irtsim

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// TrialResult is one plan/response sample from the evaluation stack. In
// fused mode ResponseUsage stays zero because a single call produced both
// parts.
type TrialResult struct {
	Index         int      `json:"index"`
	Temperature   float64  `json:"temperature"`
	Plan          string   `json:"plan"`
	Response      string   `json:"response"`
	Strategies    []string `json:"strategies,omitempty"`
	PlanUsage     Usage    `json:"plan_usage"`
	ResponseUsage Usage    `json:"response_usage"`
	Elapsed       int64    `json:"elapsed_ms"`
}

// Sampler repeats trials against a frozen decision point.
type Sampler struct {
	stack       *EvaluationStack
	concurrency int
}

// NewSampler wraps an evaluation stack. With concurrency <= 1 trials run
// sequentially.
func NewSampler(stack *EvaluationStack, concurrency int) *Sampler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Sampler{stack: stack, concurrency: concurrency}
}

// Run collects n trials at one temperature. Results come back in trial
// order regardless of concurrency.
func (s *Sampler) Run(ctx context.Context, n int, temperature float64) ([]TrialResult, error) {
	if n < 1 {
		return nil, fmt.Errorf("trial count must be positive, got %d", n)
	}
	results := make([]TrialResult, n)

	if s.concurrency == 1 {
		for i := 0; i < n; i++ {
			r, err := s.trial(ctx, i, temperature)
			if err != nil {
				return nil, err
			}
			results[i] = r
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	var mu sync.Mutex
	for i := 0; i < n; i++ {
		g.Go(func() error {
			r, err := s.trial(gctx, i, temperature)
			if err != nil {
				return err
			}
			mu.Lock()
			results[i] = r
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Sweep runs n trials at each temperature and returns results keyed by
// temperature in input order.
func (s *Sampler) Sweep(ctx context.Context, n int, temperatures []float64) (map[float64][]TrialResult, error) {
	out := make(map[float64][]TrialResult, len(temperatures))
	for _, temp := range temperatures {
		rs, err := s.Run(ctx, n, temp)
		if err != nil {
			return nil, fmt.Errorf("sweep at t=%.2f: %w", temp, err)
		}
		out[temp] = rs
	}
	return out, nil
}

func (s *Sampler) trial(ctx context.Context, i int, temperature float64) (TrialResult, error) {
	start := time.Now()
	r, err := s.stack.RunTrial(ctx, temperature)
	if err != nil {
		return TrialResult{}, fmt.Errorf("trial %d: %w", i, err)
	}
	r.Index = i
	r.Elapsed = time.Since(start).Milliseconds()
	log.Printf("[irtsim] trial %d t=%.2f plan=%dc response=%dc %dms", i, temperature, len(r.Plan), len(r.Response), r.Elapsed)
	return r, nil
}
