// Package sparse ranks chunk text against a query with TF-IDF cosine
// similarity. The index is built fresh from the candidate set on every
// call, so scores always reflect the current corpus slice.
package sparse

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

type Candidate struct {
	ChunkID    string
	DocumentID string
	Text       string
}

type Scored struct {
	Candidate
	Score float64
}

func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// Rank scores every candidate against the query and returns the top topK
// in descending score order. Ties keep candidate order. Scores are cosine
// similarities of L2-normalized tf-idf vectors, so they fall in [0, 1].
func Rank(query string, candidates []Candidate, topK int) []Scored {
	if topK <= 0 || len(candidates) == 0 {
		return []Scored{}
	}

	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return []Scored{}
	}

	docTokens := make([][]string, len(candidates))
	df := make(map[string]int)
	for i, c := range candidates {
		docTokens[i] = tokenize(c.Text)
		seen := make(map[string]struct{}, len(docTokens[i]))
		for _, tok := range docTokens[i] {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	// Smoothed idf keeps unseen query terms finite and every weight
	// positive: log((1+N)/(1+df)) + 1.
	n := float64(len(candidates))
	idf := func(term string) float64 {
		return math.Log((1+n)/(1+float64(df[term]))) + 1
	}

	queryVec := weigh(queryTokens, idf)

	scored := make([]Scored, 0, len(candidates))
	for i, c := range candidates {
		scored = append(scored, Scored{
			Candidate: c,
			Score:     dot(queryVec, weigh(docTokens[i], idf)),
		})
	}

	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].Score > scored[b].Score
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

func weigh(tokens []string, idf func(string) float64) map[string]float64 {
	if len(tokens) == 0 {
		return nil
	}
	counts := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		counts[tok]++
	}

	vec := make(map[string]float64, len(counts))
	var norm float64
	for term, count := range counts {
		w := float64(count) * idf(term)
		vec[term] = w
		norm += w * w
	}
	if norm == 0 {
		return nil
	}
	norm = math.Sqrt(norm)
	for term := range vec {
		vec[term] /= norm
	}
	return vec
}

func dot(a, b map[string]float64) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	var sum float64
	for term, w := range a {
		sum += w * b[term]
	}
	return sum
}
