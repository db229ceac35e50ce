// Package tfidf computes the Phase 2 textual similarity used to refine
// trigram candidates into a cluster match, and builds the compact search
// text that both phases operate on.
package tfidf

import (
	"math"
	"sort"
	"strings"

	"companionradar/internal/pkg/textutil"
)

// unknownTermIDF is the fallback weight for a term present in the query but
// absent from the candidate corpus, per the ln(10) default in the spec.
var unknownTermIDF = math.Log(10)

// termFreq returns the document's term counts.
func termFreq(tokens []string) map[string]int {
	counts := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		counts[tok]++
	}
	return counts
}

// tfVector normalizes term counts by the document's max count, producing
// values in [0,1].
func tfVector(counts map[string]int) map[string]float64 {
	max := 0
	for _, c := range counts {
		if c > max {
			max = c
		}
	}
	if max == 0 {
		return map[string]float64{}
	}
	tf := make(map[string]float64, len(counts))
	for term, c := range counts {
		tf[term] = float64(c) / float64(max)
	}
	return tf
}

// idf computes per-term inverse document frequency over the given corpus
// (the candidate plus the query document), recomputed fresh on every call.
func idf(corpus []map[string]int) map[string]float64 {
	n := float64(len(corpus))
	docFreq := make(map[string]int)
	for _, doc := range corpus {
		for term := range doc {
			docFreq[term]++
		}
	}
	weights := make(map[string]float64, len(docFreq))
	for term, df := range docFreq {
		weights[term] = math.Log(n/float64(df)) + 1
	}
	return weights
}

// vector builds the TF-IDF vector for one document against the supplied IDF
// weights, falling back to unknownTermIDF for terms the IDF table lacks.
func vector(counts map[string]int, idfWeights map[string]float64) map[string]float64 {
	tf := tfVector(counts)
	vec := make(map[string]float64, len(tf))
	for term, tfw := range tf {
		w, ok := idfWeights[term]
		if !ok {
			w = unknownTermIDF
		}
		vec[term] = tfw * w
	}
	return vec
}

// cosine returns the cosine similarity between two sparse vectors, 0 if
// either norm is zero.
func cosine(a, b map[string]float64) float64 {
	var dot, normA, normB float64
	for term, av := range a {
		normA += av * av
		if bv, ok := b[term]; ok {
			dot += av * bv
		}
	}
	for _, bv := range b {
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Similarity computes the cosine similarity between querySearchText and
// candidateSearchText, each tokenized independently, with IDF computed over
// just the two-document corpus.
func Similarity(querySearchText, candidateSearchText string) float64 {
	queryCounts := termFreq(textutil.Tokenize(querySearchText))
	candCounts := termFreq(textutil.Tokenize(candidateSearchText))

	weights := idf([]map[string]int{queryCounts, candCounts})

	return cosine(vector(queryCounts, weights), vector(candCounts, weights))
}

const (
	platformBonusPerShared = 0.2
	platformBonusMax       = 0.4
)

// PlatformOverlapBonus returns min(0.2 × |shared platforms|, 0.4).
func PlatformOverlapBonus(a, b []string) float64 {
	set := make(map[string]struct{}, len(a))
	for _, p := range a {
		set[p] = struct{}{}
	}
	shared := 0
	for _, p := range b {
		if _, ok := set[p]; ok {
			shared++
		}
	}
	bonus := platformBonusPerShared * float64(shared)
	if bonus > platformBonusMax {
		return platformBonusMax
	}
	return bonus
}

// AdjustedSimilarity is the Phase 2 match score: cosine similarity plus the
// platform-overlap bonus.
func AdjustedSimilarity(querySearchText, candidateSearchText string, queryPlatforms, candidatePlatforms []string) float64 {
	return Similarity(querySearchText, candidateSearchText) + PlatformOverlapBonus(queryPlatforms, candidatePlatforms)
}

// topTFTokensLimit bounds how many of the summary's highest-TF tokens feed
// into the compact search text.
const topTFTokensLimit = 10

// TopKeywords returns up to n of text's highest-term-frequency tokens, ties
// broken by first occurrence so the result is deterministic across calls.
// Used both for BuildSearchText's top-10 slice and for the clusterer's
// fingerprint top-5 slice.
func TopKeywords(text string, n int) []string {
	tokens := textutil.Tokenize(text)
	counts := termFreq(tokens)

	type termRank struct {
		term  string
		count int
		first int
	}
	firstSeen := make(map[string]int)
	for i, tok := range tokens {
		if _, ok := firstSeen[tok]; !ok {
			firstSeen[tok] = i
		}
	}
	ranks := make([]termRank, 0, len(counts))
	for term, c := range counts {
		ranks = append(ranks, termRank{term: term, count: c, first: firstSeen[term]})
	}
	sort.Slice(ranks, func(i, j int) bool {
		if ranks[i].count != ranks[j].count {
			return ranks[i].count > ranks[j].count
		}
		return ranks[i].first < ranks[j].first
	})

	if len(ranks) > n {
		ranks = ranks[:n]
	}
	keywords := make([]string, len(ranks))
	for i, r := range ranks {
		keywords[i] = r.term
	}
	return keywords
}

// BuildSearchText constructs the compact per-cluster/per-signal string used
// for both trigram indexing and Phase 2 cosine: the headline plus up to the
// top 10 TF tokens of the summary, joined by spaces.
func BuildSearchText(headline, summary string) string {
	parts := make([]string, 0, topTFTokensLimit+1)
	if headline != "" {
		parts = append(parts, headline)
	}
	parts = append(parts, TopKeywords(summary, topTFTokensLimit)...)
	return strings.Join(parts, " ")
}
