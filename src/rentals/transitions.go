package rentals

import "ccr/src/types"

// allowedTransitions is the whole lifecycle. Returned and cancelled are
// terminal; a late rental can only come back as returned.
var allowedTransitions = map[types.RentalStatus][]types.RentalStatus{
	types.RENTAL_PENDING:   {types.RENTAL_CONFIRMED, types.RENTAL_CANCELED},
	types.RENTAL_CONFIRMED: {types.RENTAL_ACTIVE, types.RENTAL_CANCELED},
	types.RENTAL_ACTIVE:    {types.RENTAL_LATE, types.RENTAL_RETURNED},
	types.RENTAL_LATE:      {types.RENTAL_RETURNED},
}

// CanTransition reports whether the lifecycle allows moving a rental from
// one status to another.
func CanTransition(from, to types.RentalStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a rental can never change status again.
func IsTerminal(status types.RentalStatus) bool {
	return len(allowedTransitions[status]) == 0
}
