package ports

import (
	"errors"
	"fmt"
)

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// Transport Errors: the session is force-closed before these propagate.
	ErrCommunication    = errors.New("communication with the venue failed")
	ErrTimeout          = errors.New("operation timed out")
	ErrConnectionFailed = errors.New("failed to connect to the venue")
	ErrTLSValidation    = errors.New("venue certificate validation failed")
	ErrNotConnected     = errors.New("not connected to the venue")

	// Protocol Errors: the venue answered, but with a failure or an unexpected shape.
	ErrProtocol = errors.New("venue protocol error")

	// Domain Errors: raised before any network interaction.
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrUnsupportedSide    = errors.New("unsupported order side")
	ErrPositionInProgress = errors.New("a position is already pending or open")
	ErrNoMarketData       = errors.New("no market data available")
	ErrNotFound           = errors.New("resource not found")

	// Lifecycle Errors
	ErrLoginFailed   = errors.New("login to the venue failed")
	ErrGatewayClosed = errors.New("gateway is closed")

	// Database Specific Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
)

// APIError carries the failure reported by the venue in a response envelope.
type APIError struct {
	Code        string
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("venue error %s: %s", e.Code, e.Description)
}

// Is makes every APIError match ErrProtocol.
func (e *APIError) Is(target error) bool {
	return target == ErrProtocol
}
