package screening

// Thresholds are the monotonic, non-overlapping action bands and the match
// cutoff. Scores run 0-100.
type Thresholds struct {
	Critical float64 // >= Critical -> BLOCK_IMMEDIATE
	High     float64 // >= High     -> BLOCK_PENDING_REVIEW
	Review   float64 // >= Review   -> FLAG_FOR_REVIEW
	Monitor  float64 // >= Monitor  -> MONITOR
	Match    float64 // >= Match    -> matchFound
}

// DefaultThresholds mirrors the bands used for OFAC dispositions.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Critical: 95,
		High:     85,
		Review:   70,
		Monitor:  50,
		Match:    85,
	}
}

// ActionFor maps a consolidated score and risk context to a disposition.
// High-risk entities never come out below MONITOR even on a clean score.
func (t Thresholds) ActionFor(score float64, risk RiskLevel) Action {
	var a Action
	switch {
	case score >= t.Critical:
		a = ActionBlockImmediate
	case score >= t.High:
		a = ActionBlockPendingReview
	case score >= t.Review:
		a = ActionFlagForReview
	case score >= t.Monitor:
		a = ActionMonitor
	default:
		a = ActionClear
	}
	if risk == RiskHigh {
		a = a.AtLeast(ActionMonitor)
	}
	return a
}

// SourcePolicy selects which of the available sources apply to an entity.
type SourcePolicy func(e Entity, available []Source) []Source

// DefaultSourcePolicy screens low-risk domestic entities against the
// domestic-mandated lists only, and everything else (cross-border, medium
// or high risk, unknown risk) against the full source set.
func DefaultSourcePolicy(domesticSources ...string) SourcePolicy {
	domestic := make(map[string]bool, len(domesticSources))
	for _, s := range domesticSources {
		domestic[s] = true
	}
	return func(e Entity, available []Source) []Source {
		if e.CrossBorder || e.Risk != RiskLow || len(domestic) == 0 {
			return available
		}
		selected := make([]Source, 0, len(available))
		for _, src := range available {
			if domestic[src.Name()] {
				selected = append(selected, src)
			}
		}
		if len(selected) == 0 {
			return available
		}
		return selected
	}
}

// SecondaryPass is the optional false-positive-reduction model. It runs only
// after an initial match and may lower the raw score; any reduction must
// come back with a recorded justification or it is ignored.
type SecondaryPass func(e Entity, raw Result) (adjusted float64, justification string, ok bool)
