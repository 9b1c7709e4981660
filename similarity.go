package irtsim

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// SimilarityScore is a precision/recall/F1 triple for one response pair.
type SimilarityScore struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// SimilarityScorer measures semantic closeness between two texts.
type SimilarityScorer interface {
	Score(ctx context.Context, candidate, reference string) (SimilarityScore, error)
}

// CosineSimilarity computes the cosine similarity between two float32 vectors.
// Returns 0 if either vector is zero-length or zero-norm.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// EmbeddingScorer scores response pairs by embedding their sentences and
// greedy-matching: precision matches each candidate sentence to its best
// reference sentence, recall the reverse. Sentence vectors are cached per
// scorer, so repeated pairwise scoring over the same trial batch reuses
// embeddings.
type EmbeddingScorer struct {
	provider EmbeddingProvider
	cache    map[string][]float32
}

// NewEmbeddingScorer wraps an embedding provider as a SimilarityScorer.
func NewEmbeddingScorer(provider EmbeddingProvider) *EmbeddingScorer {
	return &EmbeddingScorer{provider: provider, cache: make(map[string][]float32)}
}

// Score computes precision/recall/F1 between two texts.
func (s *EmbeddingScorer) Score(ctx context.Context, candidate, reference string) (SimilarityScore, error) {
	cand := splitSentences(candidate)
	ref := splitSentences(reference)
	if len(cand) == 0 || len(ref) == 0 {
		return SimilarityScore{}, fmt.Errorf("cannot score empty text")
	}

	cvecs, err := s.embedAll(ctx, cand)
	if err != nil {
		return SimilarityScore{}, err
	}
	rvecs, err := s.embedAll(ctx, ref)
	if err != nil {
		return SimilarityScore{}, err
	}

	precision := meanBestMatch(cvecs, rvecs)
	recall := meanBestMatch(rvecs, cvecs)
	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return SimilarityScore{Precision: precision, Recall: recall, F1: f1}, nil
}

func (s *EmbeddingScorer) embedAll(ctx context.Context, sentences []string) ([][]float32, error) {
	vecs := make([][]float32, len(sentences))
	for i, sent := range sentences {
		if v, ok := s.cache[sent]; ok {
			vecs[i] = v
			continue
		}
		v, err := s.provider.Embed(ctx, sent)
		if err != nil {
			return nil, fmt.Errorf("embed sentence: %w", err)
		}
		s.cache[sent] = v
		vecs[i] = v
	}
	return vecs, nil
}

func meanBestMatch(from, to [][]float32) float64 {
	sum := 0.0
	for _, f := range from {
		best := 0.0
		for _, t := range to {
			if sim := CosineSimilarity(f, t); sim > best {
				best = sim
			}
		}
		sum += best
	}
	return sum / float64(len(from))
}

func splitSentences(text string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	}) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ComputeResponseSimilarity averages pairwise similarity over all unordered
// pairs of trial responses. Blank responses are filtered first; with fewer
// than two left every trial agrees trivially and all three means are 1.0.
func ComputeResponseSimilarity(ctx context.Context, scorer SimilarityScorer, responses []string) (SimilarityScore, error) {
	var pool []string
	for _, r := range responses {
		if strings.TrimSpace(r) != "" {
			pool = append(pool, r)
		}
	}
	if len(pool) < 2 {
		return SimilarityScore{Precision: 1.0, Recall: 1.0, F1: 1.0}, nil
	}

	var sum SimilarityScore
	pairs := 0
	for i := 0; i < len(pool); i++ {
		for j := i + 1; j < len(pool); j++ {
			sc, err := scorer.Score(ctx, pool[i], pool[j])
			if err != nil {
				return SimilarityScore{}, fmt.Errorf("pair (%d,%d): %w", i, j, err)
			}
			sum.Precision += sc.Precision
			sum.Recall += sc.Recall
			sum.F1 += sc.F1
			pairs++
		}
	}
	n := float64(pairs)
	return SimilarityScore{Precision: sum.Precision / n, Recall: sum.Recall / n, F1: sum.F1 / n}, nil
}
