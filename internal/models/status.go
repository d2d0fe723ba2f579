package models

// CanTransition reports whether an order may move between two statuses.
// The policy is deliberately loose: admins may jump forward in the
// lifecycle (e.g. pending directly to delivered). The hard rules are
// that terminal states never change and that cancellation is only
// reachable while the order is pending or paid, because shipped goods
// cannot have their stock reservation silently restored.
func CanTransition(from, to string) bool {
	if from == OrderStatusDelivered || from == OrderStatusCancelled {
		return false
	}
	if to == OrderStatusCancelled {
		return from == OrderStatusPending || from == OrderStatusPaid
	}
	return true
}
