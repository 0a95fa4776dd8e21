package pushsubscription

import "context"

type Repository interface {
	// Save inserts s, or replaces the subscription with the same endpoint
	// keeping its id.
	Save(ctx context.Context, s *Subscription) error
	List(ctx context.Context) ([]*Subscription, error)
	Delete(ctx context.Context, id string) error
	FindByEndpoint(ctx context.Context, endpoint string) (*Subscription, error)
}
