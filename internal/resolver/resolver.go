package resolver

import (
	"context"
	"errors"

	"github.com/mmynk/receiptsplit/internal/ingest"
	"github.com/mmynk/receiptsplit/internal/models"
)

// Result is the outcome of resolving a link.
type Result struct {
	// Receipt is set when the response described a receipt.
	Receipt *models.Receipt

	// Acknowledged is set when the endpoint accepted the link but returned no
	// receipt; the UI shows a plain "link processed" message instead.
	Acknowledged bool

	// Reason explains an acknowledgement (which required field was missing).
	Reason string

	// Raw is the response body as received.
	Raw []byte
}

// Resolver fetches and ingests receipts.
type Resolver struct {
	fetcher Fetcher
}

// New returns a Resolver backed by fetcher.
func New(fetcher Fetcher) *Resolver {
	return &Resolver{fetcher: fetcher}
}

// Resolve fetches the link and ingests the response. A response without the
// receipt fields is not an error: it yields an acknowledged Result.
func (r *Resolver) Resolve(ctx context.Context, link string) (*Result, error) {
	body, err := r.fetcher.Fetch(ctx, link)
	if err != nil {
		return nil, err
	}

	receipt, err := ingest.Ingest(body)
	if err != nil {
		var mErr *ingest.MalformedReceiptError
		if errors.As(err, &mErr) {
			return &Result{Acknowledged: true, Reason: mErr.Error(), Raw: body}, nil
		}
		return nil, &Error{Category: CategoryUnknown, Err: err}
	}
	return &Result{Receipt: receipt, Raw: body}, nil
}
