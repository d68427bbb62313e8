package perception

import "errors"

// ErrProviderFailure marks a frame the metrics provider could not analyze.
// The pipeline fails closed on it: no face count is assumed and nothing is stored.
var ErrProviderFailure = errors.New("metrics provider failure")
