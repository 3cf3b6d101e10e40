package timebank

// unavailableStatuses are the interaction states that occupy a single-slot
// listing. A pending or declined interaction leaves the listing open.
var unavailableStatuses = map[Status]bool{
	StatusAccepted:     true,
	StatusDateProposed: true,
	StatusScheduled:    true,
	StatusCompleted:    true,
}

// Unavailable reports whether s occupies a single-slot listing.
func Unavailable(s Status) bool {
	return unavailableStatuses[s]
}

// Available is the single availability predicate; every read path that
// filters listings goes through it rather than re-deriving the rule.
//
// A request, or an offer with capacity 1, is available while visible and no
// interaction on it is in an occupying state. A group offer is available
// while visible, its accepted headcount is below capacity and nobody has
// completed yet — one completion closes the whole group to new entrants.
func Available(l *Listing, interactions []*Interaction) bool {
	if !l.Visible {
		return false
	}
	if l.Group() {
		accepted := 0
		for _, i := range interactions {
			switch i.Status {
			case StatusCompleted:
				return false
			case StatusAccepted:
				accepted++
			}
		}
		return accepted < l.Capacity
	}
	for _, i := range interactions {
		if Unavailable(i.Status) {
			return false
		}
	}
	return true
}
