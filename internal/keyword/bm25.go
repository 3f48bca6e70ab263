package keyword

import (
	"math"
	"sort"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// BM25 parameters. k1 controls term-frequency saturation, b controls
// document-length normalization.
const (
	k1 = 1.5
	b  = 0.75
)

type posting struct {
	doc  int // position in the chunk slice
	freq int
}

// BM25Index is an in-memory inverted index scored with Okapi BM25.
// It is immutable after construction, so Search is safe for concurrent use.
type BM25Index struct {
	chunkIDs  []string
	postings  map[string][]posting
	docLens   []int
	avgDocLen float64
}

// NewBM25Index builds the inverted index over chunks in a single pass.
func NewBM25Index(chunks []*models.Chunk) *BM25Index {
	idx := &BM25Index{
		chunkIDs: make([]string, len(chunks)),
		postings: make(map[string][]posting),
		docLens:  make([]int, len(chunks)),
	}

	totalLen := 0
	for i, c := range chunks {
		idx.chunkIDs[i] = c.ID
		tokens := Tokenize(c.Content)
		idx.docLens[i] = len(tokens)
		totalLen += len(tokens)

		freqs := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			freqs[tok]++
		}
		for term, freq := range freqs {
			idx.postings[term] = append(idx.postings[term], posting{doc: i, freq: freq})
		}
	}
	if len(chunks) > 0 {
		idx.avgDocLen = float64(totalLen) / float64(len(chunks))
	}
	return idx
}

// Search scores every chunk containing at least one query term and returns
// the top limit hits. Results are ordered by descending score, with chunk ID
// as the tie-break so ranking is reproducible run to run.
func (idx *BM25Index) Search(query string, limit int) []Result {
	terms := Tokenize(query)
	if len(terms) == 0 || len(idx.chunkIDs) == 0 {
		return nil
	}

	n := float64(len(idx.chunkIDs))
	scores := make(map[int]float64)
	for _, term := range terms {
		plist, ok := idx.postings[term]
		if !ok {
			continue
		}
		// IDF with the +1 floor so common terms never score negative.
		df := float64(len(plist))
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		for _, p := range plist {
			tf := float64(p.freq)
			norm := 1 - b + b*float64(idx.docLens[p.doc])/idx.avgDocLen
			scores[p.doc] += idf * (tf * (k1 + 1)) / (tf + k1*norm)
		}
	}

	results := make([]Result, 0, len(scores))
	for doc, score := range scores {
		if score <= 0 {
			continue
		}
		results = append(results, Result{ChunkID: idx.chunkIDs[doc], Score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// DocCount returns the number of indexed chunks.
func (idx *BM25Index) DocCount() int {
	return len(idx.chunkIDs)
}

// Tokenize lowercases the text and splits it into purely alphabetic terms.
// Digits and punctuation act as separators and are never part of a term.
func Tokenize(text string) []string {
	var tokens []string
	var sb strings.Builder
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			sb.WriteRune(r)
			continue
		}
		if sb.Len() > 0 {
			tokens = append(tokens, sb.String())
			sb.Reset()
		}
	}
	if sb.Len() > 0 {
		tokens = append(tokens, sb.String())
	}
	return tokens
}
