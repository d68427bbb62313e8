package simulate

import "errors"

// Sentinel errors.
var (
	ErrUnhealthy        = errors.New("service is not healthy")
	ErrUnknownScenario  = errors.New("unknown scenario")
	ErrVerification     = errors.New("roster verification failed")
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")
)
