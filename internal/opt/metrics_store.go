package opt

import "sync"

type solveKey struct {
	Tenant   string
	Date     string
	Strategy string
}

var (
	solveMu    sync.Mutex
	solveStore = map[solveKey]SolveStats{}
)

// RecordSolve keeps the latest solver stats per tenant/date/strategy for the
// admin metrics view.
func RecordSolve(tenant, date, strategy string, s SolveStats) {
	solveMu.Lock()
	solveStore[solveKey{Tenant: tenant, Date: date, Strategy: strategy}] = s
	solveMu.Unlock()
}

// GetSolveStats returns recorded stats for a tenant and date keyed by strategy.
func GetSolveStats(tenant, date string) map[string]SolveStats {
	solveMu.Lock()
	defer solveMu.Unlock()
	out := map[string]SolveStats{}
	for k, v := range solveStore {
		if k.Tenant == tenant && k.Date == date {
			out[k.Strategy] = v
		}
	}
	return out
}
