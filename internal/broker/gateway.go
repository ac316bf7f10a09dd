// Package broker owns the authenticated connection to the brokerage:
// a capability interface over the REST API plus a session manager that
// derives, probes, and re-derives the enctoken session.
package broker

import (
	"errors"

	"breakout-trader/pkg/kiteconnect"
)

// ErrSessionUnavailable is returned when no broker session exists and one
// cannot be derived. Handlers map it to a uniform "broker setup issue"
// response.
var ErrSessionUnavailable = errors.New("broker session unavailable")

// Gateway is the brokerage capability the engine consumes: account
// identity, funds, books, and order placement.
type Gateway interface {
	Profile() (kiteconnect.Profile, error)
	Margins() (kiteconnect.Margins, error)
	Orders() ([]kiteconnect.Order, error)
	Positions() (kiteconnect.Positions, error)
	Holdings() ([]kiteconnect.Holding, error)
	PlaceOrder(p kiteconnect.OrderParams) (string, error)
}

// Credentials are the broker-side secrets for one account, loaded from the
// user credentials file.
type Credentials struct {
	UserID     string `json:"user_id"`
	Password   string `json:"broker_password"`
	TOTPSecret string `json:"totp_secret"`
}
