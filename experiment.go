package irtsim

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ExperimentConfig is the frozen record of one stability run, written as
// config.yaml into the run directory so a run stays interpretable after the
// code moves on.
type ExperimentConfig struct {
	Model         string    `yaml:"model" json:"model"`
	Vignette      string    `yaml:"vignette" json:"vignette"`
	Mode          EvalMode  `yaml:"mode" json:"mode"`
	Trials        int       `yaml:"trials" json:"trials"`
	Temperature   float64   `yaml:"temperature" json:"temperature"`
	RewritingTurn int       `yaml:"rewriting_turn" json:"rewriting_turn"`
	Language      string    `yaml:"language" json:"language"`
	CreatedAt     time.Time `yaml:"created_at" json:"created_at"`
}

// ExperimentRunner executes a full stability run and lays its artifacts out
// on disk:
//
//	{timestamp}_{model}_{vignette}/
//	  config.yaml
//	  frozen_history.json
//	  trials/trial_00.json ...
//	  metrics.json
//	  judgments.json
type ExperimentRunner struct {
	sampler *Sampler
	frozen  *Conversation
	tax     *Taxonomy
	judge   *AlignmentJudge
	scorer  SimilarityScorer
	store   *Store
	rootDir string
}

// ExperimentOption customizes an ExperimentRunner.
type ExperimentOption func(*ExperimentRunner)

// WithAlignmentJudge enables plan/response alignment judging.
func WithAlignmentJudge(j *AlignmentJudge) ExperimentOption {
	return func(r *ExperimentRunner) { r.judge = j }
}

// WithSimilarityScorer enables response-level similarity metrics.
func WithSimilarityScorer(s SimilarityScorer) ExperimentOption {
	return func(r *ExperimentRunner) { r.scorer = s }
}

// WithRunIndex records finished runs in the store's run index.
func WithRunIndex(s *Store) ExperimentOption {
	return func(r *ExperimentRunner) { r.store = s }
}

// NewExperimentRunner wires a sampler and taxonomy into a run executor.
// frozen is the conversation prefix the trials run against (see
// EvaluationStack.Frozen); it is persisted verbatim as frozen_history.json.
// rootDir is where run directories are created.
func NewExperimentRunner(sampler *Sampler, frozen *Conversation, tax *Taxonomy, rootDir string, opts ...ExperimentOption) *ExperimentRunner {
	r := &ExperimentRunner{sampler: sampler, frozen: frozen, tax: tax, rootDir: rootDir}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the configured number of trials, computes metrics, and writes
// the run directory. It returns the run directory path.
func (r *ExperimentRunner) Run(ctx context.Context, cfg ExperimentConfig) (string, error) {
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = time.Now().UTC()
	}
	dir := filepath.Join(r.rootDir, runDirName(cfg))
	if err := os.MkdirAll(filepath.Join(dir, "trials"), 0o755); err != nil {
		return "", fmt.Errorf("create run dir: %w", err)
	}

	if err := writeYAML(filepath.Join(dir, "config.yaml"), cfg); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(dir, "frozen_history.json"), r.frozen); err != nil {
		return "", err
	}

	trials, err := r.sampler.Run(ctx, cfg.Trials, cfg.Temperature)
	if err != nil {
		return "", fmt.Errorf("sampling: %w", err)
	}

	metrics := ComputeStabilityMetrics(trials, r.tax)

	for _, t := range trials {
		name := fmt.Sprintf("trial_%02d.json", t.Index)
		if err := writeJSON(filepath.Join(dir, "trials", name), t); err != nil {
			return "", err
		}
	}

	if r.scorer != nil {
		responses := make([]string, len(trials))
		for i, t := range trials {
			responses[i] = t.Response
		}
		sim, err := ComputeResponseSimilarity(ctx, r.scorer, responses)
		if err != nil {
			log.Printf("[irtsim] response similarity failed: %v", err)
		} else {
			metrics.ResponseF1Mean = sim.F1
			metrics.ResponsePrec = sim.Precision
			metrics.ResponseRecall = sim.Recall
		}
	}

	if r.judge != nil {
		alignment := r.judge.JudgeBatch(ctx, trials)
		metrics.MeanAlignment = alignment.MeanAlignment
		metrics.AlignmentPerTrial = make([]float64, len(alignment.PerTrial))
		for i, tj := range alignment.PerTrial {
			metrics.AlignmentPerTrial[i] = tj.Score
		}
		metrics.AlignmentPerStrategy = alignment.PerStrategy
		metrics.AlignmentErrors = alignment.Errors
		if err := writeJSON(filepath.Join(dir, "judgments.json"), alignment); err != nil {
			return "", err
		}
	}

	if err := writeJSON(filepath.Join(dir, "metrics.json"), metrics); err != nil {
		return "", err
	}

	log.Printf("[irtsim] run %s: %d trials, validity %.2f, jaccard(valid) %.3f",
		filepath.Base(dir), metrics.Trials, metrics.ValidityRate, metrics.JaccardValid)

	if r.store != nil {
		if err := r.store.RecordRun(ctx, dir, cfg, metrics); err != nil {
			log.Printf("[irtsim] run index insert failed: %v", err)
		}
	}
	return dir, nil
}

func runDirName(cfg ExperimentConfig) string {
	ts := cfg.CreatedAt.Format("20060102_150405")
	return fmt.Sprintf("%s_%s_%s", ts, sanitize(cfg.Model), sanitize(cfg.Vignette))
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// --- Aggregation ---

// RunSummary is one run's row in an aggregate report.
type RunSummary struct {
	Dir     string           `json:"dir"`
	Config  ExperimentConfig `json:"config"`
	Metrics StabilityMetrics `json:"metrics"`
}

// GroupStats reduces a group of runs to validity and valid-Jaccard spread.
type GroupStats struct {
	Runs         int     `json:"runs"`
	MeanValidity float64 `json:"mean_validity"`
	MinJaccard   float64 `json:"min_jaccard_valid"`
	MeanJaccard  float64 `json:"mean_jaccard_valid"`
	MaxJaccard   float64 `json:"max_jaccard_valid"`
}

// AggregateReport groups run summaries by model and by vignette.
type AggregateReport struct {
	Runs        []RunSummary          `json:"runs"`
	ByModel     map[string]GroupStats `json:"by_model"`
	ByVignette  map[string]GroupStats `json:"by_vignette"`
	SkippedDirs []string              `json:"skipped_dirs,omitempty"`
}

// AggregateRuns scans a root directory of run directories and reduces them.
// Directories missing config.yaml or metrics.json are skipped with a log
// line rather than failing the whole report.
func AggregateRuns(rootDir string) (*AggregateReport, error) {
	entries, err := os.ReadDir(rootDir)
	if err != nil {
		return nil, fmt.Errorf("read runs dir: %w", err)
	}

	report := &AggregateReport{
		ByModel:    make(map[string]GroupStats),
		ByVignette: make(map[string]GroupStats),
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(rootDir, e.Name())
		summary, err := loadRunSummary(dir)
		if err != nil {
			log.Printf("[irtsim] skipping run dir %s: %v", e.Name(), err)
			report.SkippedDirs = append(report.SkippedDirs, e.Name())
			continue
		}
		report.Runs = append(report.Runs, *summary)
	}

	sort.Slice(report.Runs, func(i, j int) bool {
		return report.Runs[i].Config.CreatedAt.Before(report.Runs[j].Config.CreatedAt)
	})

	byModel := make(map[string][]RunSummary)
	byVignette := make(map[string][]RunSummary)
	for _, r := range report.Runs {
		byModel[r.Config.Model] = append(byModel[r.Config.Model], r)
		byVignette[r.Config.Vignette] = append(byVignette[r.Config.Vignette], r)
	}
	for k, rs := range byModel {
		report.ByModel[k] = reduceGroup(rs)
	}
	for k, rs := range byVignette {
		report.ByVignette[k] = reduceGroup(rs)
	}
	return report, nil
}

func loadRunSummary(dir string) (*RunSummary, error) {
	cfgData, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	var cfg ExperimentConfig
	if err := yaml.Unmarshal(cfgData, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	metData, err := os.ReadFile(filepath.Join(dir, "metrics.json"))
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	var metrics StabilityMetrics
	if err := json.Unmarshal(metData, &metrics); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	return &RunSummary{Dir: dir, Config: cfg, Metrics: metrics}, nil
}

func reduceGroup(runs []RunSummary) GroupStats {
	g := GroupStats{Runs: len(runs), MinJaccard: 1.0}
	if len(runs) == 0 {
		return g
	}
	var validitySum, jacSum float64
	for _, r := range runs {
		validitySum += r.Metrics.ValidityRate
		j := r.Metrics.JaccardValid
		jacSum += j
		if j < g.MinJaccard {
			g.MinJaccard = j
		}
		if j > g.MaxJaccard {
			g.MaxJaccard = j
		}
	}
	n := float64(len(runs))
	g.MeanValidity = validitySum / n
	g.MeanJaccard = jacSum / n
	return g
}
