package resolver

import (
	"errors"
	"fmt"
)

// Category groups resolution failures for the message shown to the user.
type Category string

const (
	CategoryNetwork Category = "network"
	// CategoryCORS is only produced by browser clients; it is listed so
	// they can share the message table.
	CategoryCORS    Category = "cors"
	CategoryServer  Category = "server"
	CategoryUnknown Category = "unknown"
)

var ErrNotConfigured = errors.New("receipt resolver endpoint not configured")

// Error is a failed resolution call. Calls are never retried automatically;
// the user re-scans instead.
type Error struct {
	Category Category
	// Status is the HTTP status for server errors.
	Status int
	// Body is the (truncated) response body for server errors.
	Body string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("resolve receipt: %s error: status %d: %s", e.Category, e.Status, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("resolve receipt: %s error: %v", e.Category, e.Err)
	default:
		return fmt.Sprintf("resolve receipt: %s error", e.Category)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// UserMessage returns the message for the user, by category.
func (e *Error) UserMessage() string {
	return UserMessage(e.Category, e.detail())
}

func (e *Error) detail() string {
	if e.Status != 0 {
		return fmt.Sprintf("status %d", e.Status)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// UserMessage renders the user-facing text for a failure category.
func UserMessage(category Category, detail string) string {
	switch category {
	case CategoryNetwork:
		return "Network error: could not reach the receipt server. Check your connection and try scanning again."
	case CategoryCORS:
		return "CORS error: the receipt server does not accept requests from this site. Contact the server administrator."
	case CategoryServer:
		return "Server error: " + detail
	default:
		if detail == "" {
			return "Something went wrong while sending the scanned link."
		}
		return "Error: " + detail
	}
}

// CategoryOf extracts the failure category of err, CategoryUnknown if it is
// not a resolution error.
func CategoryOf(err error) Category {
	var rErr *Error
	if errors.As(err, &rErr) {
		return rErr.Category
	}
	return CategoryUnknown
}
