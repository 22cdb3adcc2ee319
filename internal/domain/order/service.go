package order

import (
	"context"
	"fmt"
)

// Service exposes the order read side and lifecycle moves.
type Service struct {
	orders Repository
}

// NewService creates an order Service.
func NewService(orders Repository) *Service {
	return &Service{orders: orders}
}

// Get returns the user's order by id.
func (s *Service) Get(ctx context.Context, userID, id string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// List returns the user's orders, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]Order, error) {
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// Transition moves order id from one status to the next. Backward and
// skipping moves fail with ErrInvalidTransition before storage is touched.
func (s *Service) Transition(ctx context.Context, id string, from, to Status) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%s -> %s: %w", from, to, ErrInvalidTransition)
	}
	if err := s.orders.UpdateStatus(ctx, id, from, to); err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}
