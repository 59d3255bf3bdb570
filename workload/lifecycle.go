package workload

// =============================================================================
// LIFECYCLE - Date-driven project status
// =============================================================================
//
//   planned --(today >= start)--> active --(today > end)--> finished
//   planned --(today > end)-----------------------------> finished
//
// No back-transitions. Editing dates never moves a project to a lower status.

// Lifecycle is the pair of fields derived from the dates.
type Lifecycle struct {
	Status        Status
	DaysRemaining int
}

// statusOn is the status a project with these dates has on today, ignoring history.
func statusOn(start, end, today Date) Status {
	switch {
	case today.Before(start):
		return StatusPlanned
	case today.BeforeOrEqual(end):
		return StatusActive
	default:
		return StatusFinished
	}
}

// Advance moves current forward to the status implied by the dates.
// Running it twice on the same day yields the same result.
func Advance(current Status, start, end, today Date) Lifecycle {
	if !current.valid() {
		current = StatusPlanned
	}
	next := statusOn(start, end, today)
	if next < current {
		next = current
	}
	return Lifecycle{Status: next, DaysRemaining: daysRemaining(next, start, end, today)}
}

// InitialLifecycle is the lifecycle of a project evaluated for the first time.
func InitialLifecycle(start, end, today Date) Lifecycle {
	return Advance(StatusPlanned, start, end, today)
}

func daysRemaining(s Status, start, end, today Date) int {
	var n int
	switch s {
	case StatusPlanned:
		n = DaysBetween(today, start)
	case StatusActive:
		n = DaysBetween(today, end)
	default:
		return 0
	}
	if n < 0 {
		return 0
	}
	return n
}

// Advance evaluates the project's stored status against today.
func (p Project) Advance(today Date) Lifecycle {
	return Advance(p.Status, p.Start, p.End, today)
}
