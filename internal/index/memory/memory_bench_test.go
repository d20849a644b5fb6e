package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/index"
)

func benchIndex(b *testing.B, n int) *Index {
	b.Helper()
	m := New()
	docs := make([]index.Document, n)
	for i := range docs {
		docs[i] = doc(fmt.Sprintf("c%d", i), fmt.Sprintf("Vendor %d Systems", i), fmt.Sprintf("vendor%d.com", i))
	}
	if err := m.AddDocuments(context.Background(), docs); err != nil {
		b.Fatal(err)
	}
	return m
}

// BenchmarkAddDocuments measures per-document insert throughput.
func BenchmarkAddDocuments(b *testing.B) {
	m := New()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d := doc(fmt.Sprintf("c%d", i), "Benchmark Widgets Holdings", "benchmarkwidgets.com")
		if err := m.AddDocuments(context.Background(), []index.Document{d}); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSearch measures candidate lookup latency over 10 000 companies.
func BenchmarkSearch(b *testing.B) {
	m := benchIndex(b, 10_000)
	q := query("Vendor 4242 Systems Inc", 20)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.Search(context.Background(), q); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSearchParallel measures concurrent read throughput.
func BenchmarkSearchParallel(b *testing.B) {
	m := benchIndex(b, 10_000)
	q := query("vendor 17 systems", 20)
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := m.Search(context.Background(), q); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
