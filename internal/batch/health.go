package batch

import (
	"sync"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/company"
	apperrors "github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/errors"
)

// indexHealth watches verdict reasons for index trouble. It raises an
// alert once the share of unavailable outcomes passes alertRate and
// declares an outage after outageWindow unavailable outcomes in a row.
type indexHealth struct {
	alertRate    float64
	minSamples   int
	outageWindow int

	mu          sync.Mutex
	processed   int
	unavailable int
	consecutive int
	alerted     bool
	outage      bool
}

type healthEvent int

const (
	healthOK healthEvent = iota
	healthAlert
	healthOutage
)

func newIndexHealth(alertRate float64, minSamples, outageWindow int) *indexHealth {
	return &indexHealth{
		alertRate:    alertRate,
		minSamples:   minSamples,
		outageWindow: outageWindow,
	}
}

// observe records v and reports the transition it caused, if any. Each
// transition is reported once.
func (h *indexHealth) observe(v company.MatchVerdict) healthEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.processed++
	switch v.Reason {
	case apperrors.ReasonIndexUnavailable:
		h.unavailable++
		h.consecutive++
	case apperrors.ReasonNone, apperrors.ReasonNoCandidates, apperrors.ReasonMissingRecordID:
		// The index answered.
		h.consecutive = 0
	}

	if !h.outage && h.outageWindow > 0 && h.consecutive >= h.outageWindow {
		h.outage = true
		return healthOutage
	}
	if !h.alerted && h.processed >= h.minSamples && h.rate() > h.alertRate {
		h.alerted = true
		return healthAlert
	}
	return healthOK
}

func (h *indexHealth) rate() float64 {
	if h.processed == 0 {
		return 0
	}
	return float64(h.unavailable) / float64(h.processed)
}

func (h *indexHealth) snapshot() (alerted, outage bool, rate float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.alerted, h.outage, h.rate()
}
