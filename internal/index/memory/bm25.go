package memory

import (
	"container/heap"
	"math"
)

const (
	k1 = 1.2
	b  = 0.75
)

type scoredDoc struct {
	DocID string
	Score float64
}

// rankParams carries the collection statistics BM25 needs.
type rankParams struct {
	TotalDocs    int64
	AvgDocLength float64
}

// rank scores every document that appears in postingsPerTerm with BM25 and
// returns the best limit of them, highest score first, ties by DocID.
func rank(postingsPerTerm map[string]PostingList, params rankParams, docLength func(docID string) int, limit int) []scoredDoc {
	scores := make(map[string]float64)
	for _, postings := range postingsPerTerm {
		idf := computeIDF(params.TotalDocs, int64(len(postings)))
		for _, p := range postings {
			scores[p.DocID] += idf * computeTFNorm(
				float64(p.Frequency),
				float64(docLength(p.DocID)),
				params.AvgDocLength,
			)
		}
	}

	h := &scoredDocHeap{}
	for docID, score := range scores {
		heap.Push(h, scoredDoc{DocID: docID, Score: math.Round(score*10000) / 10000})
		if limit > 0 && h.Len() > limit {
			heap.Pop(h)
		}
	}
	result := make([]scoredDoc, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(scoredDoc)
	}
	return result
}

func computeIDF(totalDocs int64, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq)
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func computeTFNorm(termFreq float64, docLength float64, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	return (termFreq * (k1 + 1)) / (termFreq + k1*(1-b+b*lengthRatio))
}

// scoredDocHeap is a min-heap on (score, reversed DocID) so the weakest
// document is evicted first once the heap exceeds the limit.
type scoredDocHeap []scoredDoc

func (h scoredDocHeap) Len() int { return len(h) }

func (h scoredDocHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].DocID > h[j].DocID
}

func (h scoredDocHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredDocHeap) Push(x any) {
	*h = append(*h, x.(scoredDoc))
}

func (h *scoredDocHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
