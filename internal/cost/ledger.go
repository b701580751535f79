package cost

import (
	"sync"

	"github.com/sells-group/outreach-cli/internal/resilience"
)

// Ledger tracks spend for one campaign run against a hard ceiling. Every paid
// call must Reserve its estimate first; once a reservation is refused the
// ledger stays stopped for the rest of the run.
type Ledger struct {
	mu       sync.Mutex
	capEUR   float64
	charged  float64
	actual   float64
	calls    int
	refusals int
	stopped  bool
}

// NewLedger creates a ledger with the given EUR ceiling.
func NewLedger(capEUR float64) *Ledger {
	return &Ledger{capEUR: capEUR}
}

// Reserve charges estimate against the cap. It returns
// resilience.ErrCostCapReached and stops the ledger if the charge would push
// spend past the cap. Charges are kept even if the call later fails.
func (l *Ledger) Reserve(estimate float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped || l.charged+estimate > l.capEUR {
		l.stopped = true
		l.refusals++
		return resilience.ErrCostCapReached
	}
	l.charged += estimate
	l.calls++
	return nil
}

// RecordActual adds the billed cost of a finished call for reporting.
func (l *Ledger) RecordActual(eur float64) {
	l.mu.Lock()
	l.actual += eur
	l.mu.Unlock()
}

// Stopped reports whether admission has been closed.
func (l *Ledger) Stopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}

// LedgerSnapshot is a point-in-time copy of the ledger.
type LedgerSnapshot struct {
	CapEUR     float64 `json:"cap_eur"`
	ChargedEUR float64 `json:"charged_eur"`
	ActualEUR  float64 `json:"actual_eur"`
	Calls      int     `json:"calls"`
	Refusals   int     `json:"refusals"`
	Stopped    bool    `json:"stopped"`
}

// Snapshot returns the current totals.
func (l *Ledger) Snapshot() LedgerSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LedgerSnapshot{
		CapEUR:     l.capEUR,
		ChargedEUR: l.charged,
		ActualEUR:  l.actual,
		Calls:      l.calls,
		Refusals:   l.refusals,
		Stopped:    l.stopped,
	}
}
