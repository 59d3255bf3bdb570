package workload

// Capacity sums the weekly availability of a manager's team.
// Zero means the charge is undefined and is reported as 0 by every policy
// that divides by it.
func Capacity(team []Resource) int {
	total := 0
	for _, r := range team {
		if r.WeeklyAvailability > 0 {
			total += r.WeeklyAvailability
		}
	}
	return total
}
