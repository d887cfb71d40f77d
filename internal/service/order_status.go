package service

import (
	"github.com/bharathbbg/parcel-hub/internal/apperr"
	"github.com/bharathbbg/parcel-hub/internal/model"
)

// transitions is the order status graph. PAID is reached only through
// settlement, never through a status update.
var transitions = map[model.OrderStatus][]model.OrderStatus{
	model.StatusInPreparation:  {model.StatusConfirmed, model.StatusCancelled},
	model.StatusConfirmed:      {model.StatusDelivered, model.StatusCancelled},
	model.StatusDispatched:     {model.StatusOutForDelivery, model.StatusCancelled},
	model.StatusOutForDelivery: {model.StatusDelivered, model.StatusReturned},
	model.StatusReturned:       {model.StatusInPreparation},
	model.StatusDelivered:      {},
	model.StatusCancelled:      {},
	model.StatusPaid:           {},
}

// roleStatuses lists the target statuses each role may set. Roles absent
// from the table may not change statuses; nil means any status.
var roleStatuses = map[model.Role][]model.OrderStatus{
	model.RoleAdmin:       nil,
	model.RoleDeliveryman: {model.StatusOutForDelivery, model.StatusDelivered, model.StatusReturned},
	model.RoleVendor:      {model.StatusCancelled},
}

func CanTransition(from, to model.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func RoleMaySet(role model.Role, to model.OrderStatus) bool {
	allowed, ok := roleStatuses[role]
	if !ok {
		return false
	}
	if allowed == nil {
		return true
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

func IsTerminal(s model.OrderStatus) bool {
	return len(transitions[s]) == 0
}

// checkStatusChange applies the role gate first, then the transition table.
func checkStatusChange(p model.Principal, order *model.Order, to model.OrderStatus) error {
	if !to.Valid() || to == model.StatusPaid {
		return apperr.BadRequest("invalid status %q", to)
	}
	if !RoleMaySet(p.Role, to) {
		return apperr.Forbidden("role %s may not set status %s", p.Role, to)
	}
	switch p.Role {
	case model.RoleVendor:
		if order.SenderID != p.UserID {
			return apperr.Forbidden("order %s does not belong to vendor %d", order.OrderCode, p.UserID)
		}
	case model.RoleDeliveryman:
		if order.DeliverymanID == nil || *order.DeliverymanID != p.UserID {
			return apperr.Forbidden("order %s is not assigned to deliveryman %d", order.OrderCode, p.UserID)
		}
	}
	if !CanTransition(order.Status, to) {
		return apperr.BadRequest("cannot change order %s from %s to %s", order.OrderCode, order.Status, to)
	}
	return nil
}

func actionFor(to model.OrderStatus, from model.OrderStatus) model.TrackingAction {
	switch to {
	case model.StatusConfirmed:
		return model.ActionConfirmed
	case model.StatusDispatched:
		return model.ActionDispatched
	case model.StatusOutForDelivery:
		return model.ActionOutForDelivery
	case model.StatusDelivered:
		return model.ActionDelivered
	case model.StatusReturned:
		return model.ActionReturned
	case model.StatusCancelled:
		return model.ActionCancelled
	case model.StatusPaid:
		return model.ActionPaid
	case model.StatusInPreparation:
		if from == model.StatusReturned {
			return model.ActionResent
		}
	}
	return model.ActionCreated
}

// locationFor places a status change: delivery happens at the customer in
// the destination city, everything else at the origin.
func locationFor(order *model.Order, to model.OrderStatus) (model.LocationType, *int64) {
	switch to {
	case model.StatusDelivered:
		return model.LocationCustomer, order.ToCityID
	case model.StatusOutForDelivery:
		return model.LocationDeliveryman, order.FromCityID
	case model.StatusDispatched:
		return model.LocationHub, order.FromCityID
	}
	return model.LocationVendor, order.FromCityID
}
