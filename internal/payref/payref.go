// Package payref builds and parses payment references: shareable links that
// identify a receipt, a participant and the amount that participant owes.
//
// A reference has the form
//
//	{origin}/pay/{receiptID}/{participantID}?amount={amount with 2 decimals}
//
// and is also the exact input of the visual code renderer, so building one
// must be deterministic.
package payref

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultOrigin is used when no public origin is configured.
const DefaultOrigin = "https://pay.local"

var ErrInvalidReference = errors.New("invalid payment reference")

// Builder builds references against a fixed origin.
type Builder struct {
	origin string
}

// New returns a Builder for origin, falling back to DefaultOrigin.
func New(origin string) Builder {
	origin = strings.TrimRight(strings.TrimSpace(origin), "/")
	if origin == "" {
		origin = DefaultOrigin
	}
	return Builder{origin: origin}
}

// Origin returns the base the builder prefixes references with.
func (b Builder) Origin() string {
	if b.origin == "" {
		return DefaultOrigin
	}
	return b.origin
}

// Build returns the payment reference for a participant's amount.
func (b Builder) Build(receiptID, participantID string, amount decimal.Decimal) string {
	return fmt.Sprintf("%s/pay/%s/%s?amount=%s",
		b.Origin(),
		url.PathEscape(receiptID),
		url.PathEscape(participantID),
		amount.StringFixed(2),
	)
}

// Reference is a parsed payment reference.
type Reference struct {
	Origin        string
	ReceiptID     string
	ParticipantID string
	Amount        decimal.Decimal
}

// Parse splits a reference built by Build back into its parts.
func Parse(ref string) (Reference, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return Reference{}, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}

	idx := strings.LastIndex(u.EscapedPath(), "/pay/")
	if idx < 0 {
		return Reference{}, fmt.Errorf("%w: missing /pay/ segment", ErrInvalidReference)
	}
	parts := strings.Split(u.EscapedPath()[idx+len("/pay/"):], "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Reference{}, fmt.Errorf("%w: expected receipt and participant ids", ErrInvalidReference)
	}
	receiptID, err := url.PathUnescape(parts[0])
	if err != nil {
		return Reference{}, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	participantID, err := url.PathUnescape(parts[1])
	if err != nil {
		return Reference{}, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}

	amount, err := decimal.NewFromString(u.Query().Get("amount"))
	if err != nil {
		return Reference{}, fmt.Errorf("%w: bad amount: %v", ErrInvalidReference, err)
	}

	origin := ""
	if u.Scheme != "" {
		origin = u.Scheme + "://" + u.Host
	}
	origin += u.EscapedPath()[:idx]

	return Reference{
		Origin:        origin,
		ReceiptID:     receiptID,
		ParticipantID: participantID,
		Amount:        amount,
	}, nil
}
