package wasmvm

// Env carries per-run accounting shared between the engine and host
// functions. A zero CostLimit disables metering.
type Env struct {
	CostLimit uint64
	costSum   uint64
}

// AddCost accrues c and reports whether the limit still holds.
func (e *Env) AddCost(c uint64) bool {
	if e.CostLimit == 0 {
		return true
	}
	if remaining := e.CostLimit - e.costSum; c > remaining {
		e.costSum = e.CostLimit
		return false
	}
	e.costSum += c
	return true
}

// Cost returns the cost accrued so far.
func (e *Env) Cost() uint64 {
	return e.costSum
}

// ResetCost zeroes the accrued cost, keeping the limit.
func (e *Env) ResetCost() {
	e.costSum = 0
}
