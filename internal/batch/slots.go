package batch

import (
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/company"
)

// slotTable holds one verdict per input position. Once sealed it rejects
// late writers, so a straggler finishing after the deadline cannot
// overwrite the timeout verdict the batch already reported.
type slotTable struct {
	mu        sync.Mutex
	verdicts  []company.MatchVerdict
	filled    []bool
	latencies []time.Duration
	pending   int
	sealed    bool
	done      chan struct{}
}

func newSlotTable(n int) *slotTable {
	s := &slotTable{
		verdicts:  make([]company.MatchVerdict, n),
		filled:    make([]bool, n),
		latencies: make([]time.Duration, 0, n),
		pending:   n,
		done:      make(chan struct{}),
	}
	if n == 0 {
		close(s.done)
	}
	return s
}

// put stores the verdict for position i. It returns false when the table
// is already sealed or the slot was written before.
func (s *slotTable) put(i int, v company.MatchVerdict, latency time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed || s.filled[i] {
		return false
	}
	s.verdicts[i] = v
	s.filled[i] = true
	s.latencies = append(s.latencies, latency)
	s.pending--
	if s.pending == 0 {
		close(s.done)
	}
	return true
}

func (s *slotTable) completed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.verdicts) - s.pending
}

// seal closes the table and fills every empty slot with fill(i). The
// returned slices are owned by the caller.
func (s *slotTable) seal(fill func(i int) company.MatchVerdict) ([]company.MatchVerdict, []time.Duration, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sealed = true
	filled := 0
	for i, ok := range s.filled {
		if !ok {
			s.verdicts[i] = fill(i)
			filled++
		}
	}
	return s.verdicts, s.latencies, filled
}
