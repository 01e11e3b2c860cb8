package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/shoplane/commerce-core/internal/domain"
)

// CreateShipment opens a shipment for a paid order and moves the order to
// shipped.
func (s *Service) CreateShipment(ctx context.Context, p *domain.Principal, req CreateShipmentRequest) (domain.Shipment, error) {
	u := s.begin(domain.OpManageShipments, req.RequestID)
	if err := u.authorize(p); err != nil {
		return domain.Shipment{}, err
	}
	if strings.TrimSpace(req.Carrier) == "" {
		return domain.Shipment{}, u.fail(fmt.Errorf("%w: carrier required", domain.ErrInvalidInput))
	}

	order, err := s.deps.Orders.Get(ctx, req.OrderID, "")
	if err != nil {
		return domain.Shipment{}, u.fail(fmt.Errorf("order: %w", err))
	}
	if order.Status != domain.OrderPaid {
		return domain.Shipment{}, u.fail(fmt.Errorf("%w: order %s is %s, not paid", domain.ErrInvalidInput, order.ID, order.Status))
	}

	now := s.nowFn()
	shipment, err := s.deps.Shipments.Create(writeContext(ctx), domain.Shipment{
		ID:        s.idFn(),
		OrderID:   order.ID,
		UserID:    order.UserID,
		Carrier:   strings.TrimSpace(req.Carrier),
		Tracking:  req.Tracking,
		Status:    domain.ShipmentPreparing,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return domain.Shipment{}, u.fail(err)
	}

	if _, err := s.deps.Orders.Update(writeContext(ctx), order.ID, order.UserID, order.Revision, func(o *domain.Order) error {
		o.Status = domain.OrderShipped
		o.UpdatedAt = s.nowFn()
		return nil
	}); err != nil {
		return domain.Shipment{}, u.fail(fmt.Errorf("mark order shipped: %w", err))
	}

	if err := u.emit(domain.TopicOrderEvents, domain.EventShipmentCreated, shipment.OrderID, shipment); err != nil {
		return domain.Shipment{}, u.fail(err)
	}
	return shipment, u.finish(ctx)
}

// UpdateShipment advances shipment status; delivery also closes out the order.
func (s *Service) UpdateShipment(ctx context.Context, p *domain.Principal, req UpdateShipmentRequest) (domain.Shipment, error) {
	u := s.begin(domain.OpManageShipments, req.RequestID)
	if err := u.authorize(p); err != nil {
		return domain.Shipment{}, err
	}
	switch req.Status {
	case domain.ShipmentPreparing, domain.ShipmentInTransit, domain.ShipmentDelivered:
	default:
		return domain.Shipment{}, u.fail(fmt.Errorf("%w: unknown shipment status %q", domain.ErrInvalidInput, req.Status))
	}

	updated, err := s.deps.Shipments.Update(writeContext(ctx), req.ShipmentID, req.Revision, func(sh *domain.Shipment) error {
		sh.Status = req.Status
		if req.Tracking != "" {
			sh.Tracking = req.Tracking
		}
		sh.UpdatedAt = s.nowFn()
		return nil
	})
	if err != nil {
		return domain.Shipment{}, u.fail(err)
	}

	if req.Status == domain.ShipmentDelivered {
		if order, err := s.deps.Orders.Get(ctx, updated.OrderID, updated.UserID); err == nil && order.Status == domain.OrderShipped {
			if _, err := s.deps.Orders.Update(writeContext(ctx), order.ID, order.UserID, order.Revision, func(o *domain.Order) error {
				o.Status = domain.OrderDelivered
				o.UpdatedAt = s.nowFn()
				return nil
			}); err != nil {
				u.log.Warn("order delivery update failed", "order_id", order.ID, "error", err.Error())
			}
		}
	}

	if err := u.emit(domain.TopicOrderEvents, domain.EventShipmentUpdated, updated.OrderID, updated); err != nil {
		return domain.Shipment{}, u.fail(err)
	}
	return updated, u.finish(ctx)
}

// RequestReturn lets a customer open a return against their delivered order.
func (s *Service) RequestReturn(ctx context.Context, p *domain.Principal, req RequestReturnRequest) (domain.Return, error) {
	u := s.begin(domain.OpRequestReturn, req.RequestID)
	if err := u.authorize(p); err != nil {
		return domain.Return{}, err
	}
	if strings.TrimSpace(req.Reason) == "" {
		return domain.Return{}, u.fail(fmt.Errorf("%w: return reason required", domain.ErrInvalidInput))
	}
	user, err := s.currentUser(ctx, p)
	if err != nil {
		return domain.Return{}, u.fail(err)
	}
	order, err := s.deps.Orders.Get(ctx, req.OrderID, user.ID)
	if err != nil {
		return domain.Return{}, u.fail(fmt.Errorf("order: %w", err))
	}
	if order.Status != domain.OrderDelivered {
		return domain.Return{}, u.fail(fmt.Errorf("%w: only delivered orders can be returned", domain.ErrInvalidInput))
	}

	now := s.nowFn()
	ret, err := s.deps.Returns.Create(writeContext(ctx), domain.Return{
		ID:        s.idFn(),
		OrderID:   order.ID,
		UserID:    user.ID,
		Reason:    strings.TrimSpace(req.Reason),
		Status:    domain.ReturnRequested,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return domain.Return{}, u.fail(err)
	}

	if err := u.emit(domain.TopicOrderEvents, domain.EventReturnRequested, ret.OrderID, ret); err != nil {
		return domain.Return{}, u.fail(err)
	}
	return ret, u.finish(ctx)
}

// ProcessReturn approves or rejects a requested return.
func (s *Service) ProcessReturn(ctx context.Context, p *domain.Principal, req ProcessReturnRequest) (domain.Return, error) {
	u := s.begin(domain.OpProcessReturns, req.RequestID)
	if err := u.authorize(p); err != nil {
		return domain.Return{}, err
	}

	updated, err := s.deps.Returns.Update(writeContext(ctx), req.ReturnID, req.Revision, func(ret *domain.Return) error {
		if ret.Status != domain.ReturnRequested {
			return fmt.Errorf("%w: return already processed", domain.ErrInvalidInput)
		}
		if req.Approve {
			ret.Status = domain.ReturnApproved
		} else {
			ret.Status = domain.ReturnRejected
		}
		ret.UpdatedAt = s.nowFn()
		return nil
	})
	if err != nil {
		return domain.Return{}, u.fail(err)
	}

	if err := u.emit(domain.TopicOrderEvents, domain.EventReturnProcessed, updated.OrderID, updated); err != nil {
		return domain.Return{}, u.fail(err)
	}
	return updated, u.finish(ctx)
}

// OpenTicket files a support ticket for the calling customer.
func (s *Service) OpenTicket(ctx context.Context, p *domain.Principal, req OpenTicketRequest) (domain.Ticket, error) {
	u := s.begin(domain.OpOpenTicket, req.RequestID)
	if err := u.authorize(p); err != nil {
		return domain.Ticket{}, err
	}
	if strings.TrimSpace(req.Subject) == "" {
		return domain.Ticket{}, u.fail(fmt.Errorf("%w: ticket subject required", domain.ErrInvalidInput))
	}
	user, err := s.currentUser(ctx, p)
	if err != nil {
		return domain.Ticket{}, u.fail(err)
	}

	now := s.nowFn()
	ticket, err := s.deps.Tickets.Create(writeContext(ctx), domain.Ticket{
		ID:        s.idFn(),
		UserID:    user.ID,
		OrderID:   req.OrderID,
		Subject:   strings.TrimSpace(req.Subject),
		Body:      req.Body,
		Status:    domain.TicketOpen,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return domain.Ticket{}, u.fail(err)
	}

	if err := u.emit(domain.TopicUserEvents, domain.EventTicketOpened, ticket.UserID, ticket); err != nil {
		return domain.Ticket{}, u.fail(err)
	}
	return ticket, u.finish(ctx)
}

// UpdateTicket lets support staff move a ticket through its lifecycle.
func (s *Service) UpdateTicket(ctx context.Context, p *domain.Principal, req UpdateTicketRequest) (domain.Ticket, error) {
	u := s.begin(domain.OpManageTickets, req.RequestID)
	if err := u.authorize(p); err != nil {
		return domain.Ticket{}, err
	}
	switch req.Status {
	case domain.TicketOpen, domain.TicketPending, domain.TicketResolved:
	default:
		return domain.Ticket{}, u.fail(fmt.Errorf("%w: unknown ticket status %q", domain.ErrInvalidInput, req.Status))
	}

	updated, err := s.deps.Tickets.Update(writeContext(ctx), req.TicketID, req.Revision, func(t *domain.Ticket) error {
		t.Status = req.Status
		t.UpdatedAt = s.nowFn()
		return nil
	})
	if err != nil {
		return domain.Ticket{}, u.fail(err)
	}

	if err := u.emit(domain.TopicUserEvents, domain.EventTicketUpdated, updated.UserID, updated); err != nil {
		return domain.Ticket{}, u.fail(err)
	}
	return updated, u.finish(ctx)
}

func (s *Service) ListReturns(ctx context.Context, p *domain.Principal, status domain.ReturnStatus, pageToken string, limit int) ([]domain.Return, string, error) {
	if err := domain.Authorize(p, domain.OpProcessReturns); err != nil {
		return nil, "", err
	}
	return s.deps.Returns.ListByStatus(ctx, status, pageToken, pageLimit(limit))
}

func (s *Service) ListTickets(ctx context.Context, p *domain.Principal, status domain.TicketStatus, pageToken string, limit int) ([]domain.Ticket, string, error) {
	if err := domain.Authorize(p, domain.OpManageTickets); err != nil {
		return nil, "", err
	}
	return s.deps.Tickets.ListByStatus(ctx, status, pageToken, pageLimit(limit))
}

// Analytics builds a point-in-time operational snapshot. It is read-only, so
// it bypasses the mutation lifecycle entirely.
func (s *Service) Analytics(ctx context.Context, p *domain.Principal) (AnalyticsSnapshot, error) {
	if err := domain.Authorize(p, domain.OpViewAnalytics); err != nil {
		return AnalyticsSnapshot{}, err
	}

	var snap AnalyticsSnapshot
	counts := []struct {
		dst   *int
		count func(context.Context) (int, error)
	}{
		{&snap.OrdersPending, func(ctx context.Context) (int, error) { return s.countOrders(ctx, domain.OrderPending) }},
		{&snap.OrdersPaid, func(ctx context.Context) (int, error) { return s.countOrders(ctx, domain.OrderPaid) }},
		{&snap.OrdersShipped, func(ctx context.Context) (int, error) { return s.countOrders(ctx, domain.OrderShipped) }},
		{&snap.ReturnsRequested, s.countRequestedReturns},
		{&snap.TicketsOpen, s.countOpenTickets},
	}
	for _, c := range counts {
		n, err := c.count(ctx)
		if err != nil {
			return AnalyticsSnapshot{}, err
		}
		*c.dst = n
	}
	return snap, nil
}

func (s *Service) countOrders(ctx context.Context, status domain.OrderStatus) (int, error) {
	total := 0
	token := ""
	for {
		items, next, err := s.deps.Orders.ListByStatus(ctx, status, token, 100)
		if err != nil {
			return 0, err
		}
		total += len(items)
		if next == "" {
			return total, nil
		}
		token = next
	}
}

func (s *Service) countRequestedReturns(ctx context.Context) (int, error) {
	total := 0
	token := ""
	for {
		items, next, err := s.deps.Returns.ListByStatus(ctx, domain.ReturnRequested, token, 100)
		if err != nil {
			return 0, err
		}
		total += len(items)
		if next == "" {
			return total, nil
		}
		token = next
	}
}

func (s *Service) countOpenTickets(ctx context.Context) (int, error) {
	total := 0
	token := ""
	for {
		items, next, err := s.deps.Tickets.ListByStatus(ctx, domain.TicketOpen, token, 100)
		if err != nil {
			return 0, err
		}
		total += len(items)
		if next == "" {
			return total, nil
		}
		token = next
	}
}
