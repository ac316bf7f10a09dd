// Package auth owns dashboard authentication: the on-disk credentials
// file, signed session tokens, and the middleware guarding the API.
//
// Broker credentials never leave the server. The dashboard logs in with
// an app username and password; the matching account row carries the
// broker user id, password and TOTP secret the session is derived from.
package auth

import (
	"encoding/json"
	"fmt"
	"os"

	"breakout-trader/internal/broker"
)

// Account is one row of the credentials file: the dashboard password
// plus the broker login bound to it.
type Account struct {
	Password       string `json:"password"`
	UserID         string `json:"user_id"`
	BrokerPassword string `json:"broker_password"`
	TOTPSecret     string `json:"totp_secret"`
}

// Users maps dashboard usernames to accounts.
type Users map[string]Account

// LoadUsers reads the JSON credentials file.
func LoadUsers(path string) (Users, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	var users Users
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("parse credentials file: %w", err)
	}
	return users, nil
}

// Verify checks a dashboard login and returns the matching account.
// Blank passwords never match, even if the file holds one.
func (u Users) Verify(username, password string) (Account, bool) {
	acct, ok := u[username]
	if !ok || password == "" || acct.Password != password {
		return Account{}, false
	}
	return acct, true
}

// BrokerCredentials returns the broker login bound to the account.
func (a Account) BrokerCredentials() broker.Credentials {
	return broker.Credentials{
		UserID:     a.UserID,
		Password:   a.BrokerPassword,
		TOTPSecret: a.TOTPSecret,
	}
}
