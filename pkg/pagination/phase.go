package pagination

// Phase is a step of a single engine run.
type Phase int

const (
	// PhaseInit loads the starting cursor.
	PhaseInit Phase = iota
	// PhaseFetching requests the page for the current cursor.
	PhaseFetching
	// PhaseMapping extracts, maps and emits the page's items.
	PhaseMapping
	// PhaseAdvancing persists forward progress or ends the run.
	PhaseAdvancing
	// PhaseDone ends the run; no further requests are issued.
	PhaseDone
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseFetching:
		return "fetching"
	case PhaseMapping:
		return "mapping"
	case PhaseAdvancing:
		return "advancing"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// validTransitions defines allowed phase transitions.
var validTransitions = map[Phase][]Phase{
	PhaseInit:      {PhaseFetching},
	PhaseFetching:  {PhaseMapping},
	PhaseMapping:   {PhaseAdvancing, PhaseDone},
	PhaseAdvancing: {PhaseFetching, PhaseDone},
}

// CanTransition reports whether the engine may move from one phase to another.
func CanTransition(from, to Phase) bool {
	for _, p := range validTransitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// StopReason explains why a run reached PhaseDone.
type StopReason string

const (
	// StopEmptyPage means the remote returned no items for the cursor.
	StopEmptyPage StopReason = "empty_page"
	// StopNoProgress means no item advanced the cursor.
	StopNoProgress StopReason = "no_progress"
)
