package billing

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v81"
)

const (
	EventCheckoutCompleted       = string(stripe.EventTypeCheckoutSessionCompleted)
	EventInvoicePaymentSucceeded = string(stripe.EventTypeInvoicePaymentSucceeded)
	EventInvoicePaymentFailed    = string(stripe.EventTypeInvoicePaymentFailed)
	EventSubscriptionDeleted     = string(stripe.EventTypeCustomerSubscriptionDeleted)
)

var ErrMalformedEvent = errors.New("malformed event")

// decodeObject unmarshals data.object of event into v. Expandable references such as
// subscription decode from either an id string or an embedded object.
func decodeObject(event *stripe.Event, v any) error {
	if err := json.Unmarshal(event.Data.Raw, v); err != nil {
		return ErrMalformedEvent
	}
	return nil
}

// checkoutEmail prefers the address the customer typed at checkout.
func checkoutEmail(s *stripe.CheckoutSession) string {
	if s.CustomerDetails != nil && strings.TrimSpace(s.CustomerDetails.Email) != "" {
		return s.CustomerDetails.Email
	}
	return s.CustomerEmail
}

func checkoutPlan(s *stripe.CheckoutSession) string {
	return s.Metadata["plan"]
}

func subscriptionID(sub *stripe.Subscription) string {
	if sub == nil {
		return ""
	}
	return sub.ID
}

// isFirstInvoice marks the first invoice of a subscription, which the checkout event already paid for.
func isFirstInvoice(inv *stripe.Invoice) bool {
	return inv.BillingReason == stripe.InvoiceBillingReasonSubscriptionCreate
}
