package port

import "context"

// EmailDispatcher delivers a confirmation link to an address. Delivery is
// fire-and-forget from the caller's perspective: a failure is surfaced as a
// warning on registration, never as a registration failure.
type EmailDispatcher interface {
	SendConfirmationLink(ctx context.Context, email, link string) error
}
