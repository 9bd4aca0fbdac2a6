package strategy

import (
	"time"

	"github.com/updownlabs/dipcatcher/internal/price"
)

// historyCapacity bounds each side's sample history. Oldest samples
// are evicted first, which caps both memory and the lookback scan cost
// regardless of the configured lookback duration.
const historyCapacity = 100

// Sample is one observed price at a point in time.
type Sample struct {
	Time  time.Time
	Price price.Price
}

// history is a bounded, time-ordered price series for one side.
type history struct {
	samples []Sample
}

func newHistory() *history {
	return &history{samples: make([]Sample, 0, historyCapacity)}
}

func (h *history) push(s Sample) {
	if len(h.samples) == historyCapacity {
		copy(h.samples, h.samples[1:])
		h.samples = h.samples[:historyCapacity-1]
	}
	h.samples = append(h.samples, s)
}

func (h *history) len() int {
	return len(h.samples)
}

func (h *history) reset() {
	h.samples = h.samples[:0]
}

// evaluate returns the current price (the newest sample) and the
// reference price: walking backward from the newest sample (excluding
// it), the last sample whose age at now is still within the lookback.
// ok is false when either is unavailable.
//
// The reference is deliberately the oldest in-window sample, not the
// newest. A gradual decline then registers its full in-window extent,
// and a persistent drop keeps registering until the pre-drop samples
// age out. Do not change this to the newest prior sample: that
// measures only the last inter-sample step.
func (h *history) evaluate(now time.Time, lookback time.Duration) (current, reference price.Price, ok bool) {
	n := len(h.samples)
	if n < 2 {
		return 0, 0, false
	}
	current = h.samples[n-1].Price

	found := false
	for i := n - 2; i >= 0; i-- {
		if now.Sub(h.samples[i].Time) > lookback {
			break
		}
		reference = h.samples[i].Price
		found = true
	}
	if !found {
		return 0, 0, false
	}
	return current, reference, true
}
