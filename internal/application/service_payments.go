package application

import (
	"context"
	"fmt"

	"github.com/shoplane/commerce-core/internal/domain"
)

type paymentEventPayload struct {
	PaymentID   string               `json:"payment_id"`
	OrderID     string               `json:"order_id"`
	UserID      string               `json:"user_id"`
	Status      domain.PaymentStatus `json:"status"`
	AmountCents int64                `json:"amount_cents"`
	Reference   string               `json:"reference,omitempty"`
}

// RecordPayment persists a settlement result reported by the payment
// provider and, on success, moves the order to paid. Money movement already
// happened externally, so this state transition demands a synchronously
// confirmed event: a broker rejection fails the call rather than degrading to
// background delivery.
func (s *Service) RecordPayment(ctx context.Context, p *domain.Principal, req RecordPaymentRequest) (domain.Payment, error) {
	u := s.begin(domain.OpRecordPayment, req.RequestID)
	u.sync = true
	if err := u.authorize(p); err != nil {
		return domain.Payment{}, err
	}
	if req.AmountCents <= 0 {
		return domain.Payment{}, u.fail(fmt.Errorf("%w: amount must be positive", domain.ErrInvalidInput))
	}

	order, err := s.deps.Orders.Get(ctx, req.OrderID, req.UserID)
	if err != nil {
		return domain.Payment{}, u.fail(fmt.Errorf("order: %w", err))
	}
	if order.Status != domain.OrderPending {
		return domain.Payment{}, u.fail(fmt.Errorf("%w: order %s is %s, not pending", domain.ErrInvalidInput, order.ID, order.Status))
	}
	if req.Succeeded && req.AmountCents != order.TotalCents {
		return domain.Payment{}, u.fail(fmt.Errorf("%w: amount %d does not match order total %d",
			domain.ErrInvalidInput, req.AmountCents, order.TotalCents))
	}

	now := s.nowFn()
	status := domain.PaymentProcessed
	eventType := domain.EventPaymentProcessed
	if !req.Succeeded {
		status = domain.PaymentFailed
		eventType = domain.EventPaymentFailed
	}
	payment, err := s.deps.Payments.Create(writeContext(ctx), domain.Payment{
		ID:          s.idFn(),
		OrderID:     order.ID,
		UserID:      order.UserID,
		Status:      status,
		AmountCents: req.AmountCents,
		Reference:   req.Reference,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return domain.Payment{}, u.fail(err)
	}

	if req.Succeeded {
		if _, err := s.deps.Orders.Update(writeContext(ctx), order.ID, order.UserID, order.Revision, func(o *domain.Order) error {
			o.Status = domain.OrderPaid
			o.UpdatedAt = s.nowFn()
			return nil
		}); err != nil {
			return domain.Payment{}, u.fail(fmt.Errorf("mark order paid: %w", err))
		}
	}

	if err := u.emit(domain.TopicPaymentEvents, eventType, payment.OrderID, paymentEventPayload{
		PaymentID:   payment.ID,
		OrderID:     payment.OrderID,
		UserID:      payment.UserID,
		Status:      payment.Status,
		AmountCents: payment.AmountCents,
		Reference:   payment.Reference,
	}); err != nil {
		return domain.Payment{}, u.fail(err)
	}
	if req.Succeeded {
		if err := u.emit(domain.TopicOrderEvents, domain.EventOrderUpdated, order.ID, orderEventPayload{
			OrderID:    order.ID,
			UserID:     order.UserID,
			Status:     domain.OrderPaid,
			TotalCents: order.TotalCents,
		}); err != nil {
			return domain.Payment{}, u.fail(err)
		}
	}
	return payment, u.finish(ctx)
}

// IssueRefund flips a processed payment to refunded. Same synchronous
// confirmation rule as RecordPayment.
func (s *Service) IssueRefund(ctx context.Context, p *domain.Principal, req IssueRefundRequest) (domain.Payment, error) {
	u := s.begin(domain.OpIssueRefund, req.RequestID)
	u.sync = true
	if err := u.authorize(p); err != nil {
		return domain.Payment{}, err
	}

	refunded, err := s.deps.Payments.Update(writeContext(ctx), req.PaymentID, req.Revision, func(pay *domain.Payment) error {
		if pay.Status != domain.PaymentProcessed {
			return fmt.Errorf("%w: only processed payments can be refunded", domain.ErrInvalidInput)
		}
		pay.Status = domain.PaymentRefunded
		pay.UpdatedAt = s.nowFn()
		return nil
	})
	if err != nil {
		return domain.Payment{}, u.fail(err)
	}

	if err := u.emit(domain.TopicPaymentEvents, domain.EventRefundIssued, refunded.OrderID, paymentEventPayload{
		PaymentID:   refunded.ID,
		OrderID:     refunded.OrderID,
		UserID:      refunded.UserID,
		Status:      refunded.Status,
		AmountCents: refunded.AmountCents,
	}); err != nil {
		return domain.Payment{}, u.fail(err)
	}
	return refunded, u.finish(ctx)
}
