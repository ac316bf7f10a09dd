package broker

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"

	"breakout-trader/pkg/kiteconnect"
)

// Manager holds the single broker session for the process. The session is
// created at login, reused until a probe fails, and re-derived from the
// stored credentials when it does.
type Manager struct {
	base kiteconnect.Config

	mu     sync.Mutex
	client *kiteconnect.Client
	creds  Credentials
}

// NewManager builds a Manager. base carries endpoint overrides for tests;
// the zero value targets production.
func NewManager(base kiteconnect.Config) *Manager {
	return &Manager{base: base}
}

// Login derives a fresh broker session for the given credentials and makes
// it the process session.
func (m *Manager) Login(creds Credentials) (kiteconnect.Profile, error) {
	client, profile, err := m.derive(creds)
	if err != nil {
		return kiteconnect.Profile{}, err
	}

	m.mu.Lock()
	m.client = client
	m.creds = creds
	m.mu.Unlock()

	log.Printf("[broker] session established for %s (%s)", profile.UserID, profile.UserName)
	return profile, nil
}

// Ensure returns a working gateway, probing the current session and
// re-deriving it from stored credentials when the probe fails.
func (m *Manager) Ensure() (Gateway, error) {
	m.mu.Lock()
	client := m.client
	creds := m.creds
	m.mu.Unlock()

	if client == nil {
		return nil, fmt.Errorf("%w: not logged in", ErrSessionUnavailable)
	}
	if _, err := client.Profile(); err == nil {
		return client, nil
	}

	log.Printf("[broker] session probe failed, re-deriving for %s", creds.UserID)
	fresh, _, err := m.derive(creds)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.client = fresh
	m.mu.Unlock()
	return fresh, nil
}

// Current returns the session gateway without probing it.
func (m *Manager) Current() (Gateway, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil, false
	}
	return m.client, true
}

// FeedCredentials returns what the market-data feed needs to connect.
func (m *Manager) FeedCredentials() (userID, enctoken string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil || m.client.Enctoken() == "" {
		return "", "", false
	}
	return m.client.UserID(), m.client.Enctoken(), true
}

// Logout drops the session.
func (m *Manager) Logout() {
	m.mu.Lock()
	m.client = nil
	m.creds = Credentials{}
	m.mu.Unlock()
	log.Printf("[broker] session cleared")
}

func (m *Manager) derive(creds Credentials) (*kiteconnect.Client, kiteconnect.Profile, error) {
	if creds.UserID == "" || creds.Password == "" || creds.TOTPSecret == "" {
		return nil, kiteconnect.Profile{}, fmt.Errorf("%w: incomplete credentials", ErrSessionUnavailable)
	}

	code, err := totp.GenerateCode(strings.TrimSpace(creds.TOTPSecret), time.Now())
	if err != nil {
		return nil, kiteconnect.Profile{}, fmt.Errorf("%w: totp: %v", ErrSessionUnavailable, err)
	}

	cfg := m.base
	cfg.UserID = creds.UserID
	client := kiteconnect.New(cfg)
	profile, err := client.GenerateSession(creds.UserID, creds.Password, code)
	if err != nil {
		return nil, kiteconnect.Profile{}, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	return client, profile, nil
}
