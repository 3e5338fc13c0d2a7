package orders

import "orderhub/internal/models"

// AllowedTransitions is the adjacency table used by updateOrderStatus.
// Delivered and cancelled have no outgoing edges.
var AllowedTransitions = map[models.Status][]models.Status{
	models.StatusPending:        {models.StatusConfirmed, models.StatusCancelled},
	models.StatusConfirmed:      {models.StatusPreparing, models.StatusCancelled},
	models.StatusPreparing:      {models.StatusReady},
	models.StatusReady:          {models.StatusOutForDelivery},
	models.StatusOutForDelivery: {models.StatusDelivered},
	models.StatusDelivered:      {},
	models.StatusCancelled:      {},
}

var allowedTransitionSet = buildTransitionSet(AllowedTransitions)

func buildTransitionSet(transitions map[models.Status][]models.Status) map[models.Status]map[models.Status]struct{} {
	set := make(map[models.Status]map[models.Status]struct{}, len(transitions))
	for from, tos := range transitions {
		next := make(map[models.Status]struct{}, len(tos))
		for _, to := range tos {
			next[to] = struct{}{}
		}
		set[from] = next
	}
	return set
}

// CanTransition reports whether the general admin path may move from one status to another
func CanTransition(from, to models.Status) bool {
	next, ok := allowedTransitionSet[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// CanCancel reports whether a customer may still cancel an order in status s
func CanCancel(s models.Status) bool {
	return s == models.StatusPending || s == models.StatusConfirmed
}

// CanDecide reports whether an admin may accept or reject an order in status s
func CanDecide(s models.Status) bool {
	return s == models.StatusPending
}

// IsTerminal reports whether s has no outgoing transitions
func IsTerminal(s models.Status) bool {
	return len(allowedTransitionSet[s]) == 0
}
