package domain

import "fmt"

// Operation enumerates every gated use case. The requiredRoles table below is
// the single authorization source of truth; handlers never compare role
// strings ad hoc.
type Operation int

const (
	OpHealthCheck Operation = iota
	OpBrowseCatalog
	OpBrowseReviews
	OpManageCatalog
	OpViewProfile
	OpUpdateProfile
	OpMutateCart
	OpViewCart
	OpPlaceOrder
	OpViewOwnOrders
	OpCancelOrder
	OpWriteReview
	OpRecordPayment
	OpIssueRefund
	OpManageShipments
	OpRequestReturn
	OpProcessReturns
	OpOpenTicket
	OpManageTickets
	OpViewAnalytics
)

func (op Operation) String() string {
	if name, ok := operationNames[op]; ok {
		return name
	}
	return fmt.Sprintf("operation(%d)", int(op))
}

var operationNames = map[Operation]string{
	OpHealthCheck:     "health_check",
	OpBrowseCatalog:   "browse_catalog",
	OpBrowseReviews:   "browse_reviews",
	OpManageCatalog:   "manage_catalog",
	OpViewProfile:     "view_profile",
	OpUpdateProfile:   "update_profile",
	OpMutateCart:      "mutate_cart",
	OpViewCart:        "view_cart",
	OpPlaceOrder:      "place_order",
	OpViewOwnOrders:   "view_own_orders",
	OpCancelOrder:     "cancel_order",
	OpWriteReview:     "write_review",
	OpRecordPayment:   "record_payment",
	OpIssueRefund:     "issue_refund",
	OpManageShipments: "manage_shipments",
	OpRequestReturn:   "request_return",
	OpProcessReturns:  "process_returns",
	OpOpenTicket:      "open_ticket",
	OpManageTickets:   "manage_tickets",
	OpViewAnalytics:   "view_analytics",
}

// requiredRoles maps each operation to the roles that may invoke it.
// An empty set marks the operation public (anonymous callers allowed).
var requiredRoles = map[Operation][]Role{
	OpHealthCheck:     {},
	OpBrowseCatalog:   {},
	OpBrowseReviews:   {},
	OpManageCatalog:   {RoleStaff, RoleAdmin},
	OpViewProfile:     {RoleCustomer, RoleStaff, RoleAdmin},
	OpUpdateProfile:   {RoleCustomer, RoleStaff, RoleAdmin},
	OpMutateCart:      {RoleCustomer},
	OpViewCart:        {RoleCustomer},
	OpPlaceOrder:      {RoleCustomer},
	OpViewOwnOrders:   {RoleCustomer, RoleStaff, RoleAdmin},
	OpCancelOrder:     {RoleCustomer, RoleAdmin},
	OpWriteReview:     {RoleCustomer},
	OpRecordPayment:   {RoleStaff, RoleAdmin},
	OpIssueRefund:     {RoleAdmin},
	OpManageShipments: {RoleStaff, RoleAdmin},
	OpRequestReturn:   {RoleCustomer},
	OpProcessReturns:  {RoleAdmin},
	OpOpenTicket:      {RoleCustomer, RoleStaff, RoleAdmin},
	OpManageTickets:   {RoleStaff, RoleAdmin},
	OpViewAnalytics:   {RoleStaff, RoleAdmin},
}

// Authorize is the pure authorization gate. It is the first stage of every
// use case; denial is terminal and guarantees no side effects occurred.
func Authorize(p *Principal, op Operation) error {
	allowed, ok := requiredRoles[op]
	if !ok {
		return fmt.Errorf("%w: unmapped operation %s", ErrForbidden, op)
	}
	if len(allowed) == 0 {
		return nil
	}
	if p == nil {
		return fmt.Errorf("%w: %s requires authentication", ErrUnauthenticated, op)
	}
	for _, role := range allowed {
		if p.HasRole(role) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrForbidden, op)
}

// PublicOperation reports whether the operation admits anonymous callers.
func PublicOperation(op Operation) bool {
	allowed, ok := requiredRoles[op]
	return ok && len(allowed) == 0
}
