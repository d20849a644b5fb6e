package batch

import (
	"context"
	"fmt"
	"testing"
)

// BenchmarkRun measures end-to-end batch throughput over an instant index
// for different pool sizes.
func BenchmarkRun(b *testing.B) {
	m := pipeline(b, &echoSearcher{})
	queries := names(10_000)
	for _, workers := range []int{1, 8, 64} {
		b.Run(fmt.Sprintf("workers_%d", workers), func(b *testing.B) {
			o := New(m, testConfig())
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := o.Run(context.Background(), queries, workers); err != nil {
					b.Fatal(err)
				}
			}
			b.ReportMetric(float64(len(queries)*b.N)/b.Elapsed().Seconds(), "records/s")
		})
	}
}
