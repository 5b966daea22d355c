package port

import "context"

// DeliveryResult reports what the mail relay accepted.
type DeliveryResult struct {
	Recipient string
	Accepted  bool
}

// Notifier hands outbound notifications to the delivery collaborator.
type Notifier interface {
	Notify(ctx context.Context, recipient, subject, body string) (DeliveryResult, error)
}
