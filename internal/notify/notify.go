// Package notify delivers booking changes to people.
package notify

import (
	"context"
	"errors"

	"roombook/internal/models"
)

// Message is one booking change to deliver.
type Message struct {
	Event   string          `json:"event"`
	Booking *models.Booking `json:"booking"`
}

type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Multi fans a message out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
