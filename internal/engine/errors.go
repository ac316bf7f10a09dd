package engine

import "errors"

// Run-control failures surfaced to the API layer. Feed classification
// failures come from the eligibility package, session failures from broker.
var (
	ErrEngineAlreadyRunning  = errors.New("trading already running")
	ErrNoEligibleStocks      = errors.New("no eligible stocks found")
	ErrNoOpenPosition        = errors.New("no positions found")
	ErrOrderSubmissionFailed = errors.New("order submission failed")
	ErrMaxMarginNotSet       = errors.New("max margin not configured")
	ErrFeedUnavailable       = errors.New("websocket connection failed")
)
