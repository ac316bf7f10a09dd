package model

import "context"

// ── Storage Port Interfaces ──
// These interfaces decouple the trading engine from concrete storage
// backends (Redis, SQLite, local disk). A nil port means the backend is
// not configured and the caller skips it.

// EligibilitySink receives the latest classifier snapshot for out-of-process
// consumers (dashboards, reporting). Implementations enforce their own
// deadlines and must not block the classifier on a slow backend.
type EligibilitySink interface {
	SetEligibility(ctx context.Context, res *EligibilityResult) error
}

// ConfigJSONStore reads and writes the mutable trading config as raw JSON.
// Using []byte avoids a model→state→model import cycle.
type ConfigJSONStore interface {
	// SaveConfigJSON persists a JSON-encoded trading config.
	SaveConfigJSON(ctx context.Context, data []byte) error

	// LoadConfigJSON loads the persisted config as raw JSON.
	// Returns nil, nil if no config has been saved.
	LoadConfigJSON(ctx context.Context) ([]byte, error)
}
