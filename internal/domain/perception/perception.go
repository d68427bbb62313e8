// Package perception defines the metrics provider contract consumed by the
// frame pipeline, plus a provider for observations computed at the edge.
package perception

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/okian/smartsession/internal/domain/model"
	"github.com/okian/smartsession/pkg/metrics"
)

// Provider turns one raw frame payload into an observation.
type Provider interface {
	// Analyze honors ctx for cancellation. Any returned error is treated as a
	// provider failure for that frame.
	Analyze(ctx context.Context, frame []byte) (model.Observation, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, frame []byte) (model.Observation, error)

// Analyze calls f.
func (f ProviderFunc) Analyze(ctx context.Context, frame []byte) (model.Observation, error) {
	return f(ctx, frame)
}

// JSONProvider accepts observations already computed by a client-side
// detector: {"face_count": 1, "metrics": {"gaze": "CENTER", "brow": 0.1, "smile": 0.0}}.
//
// face_count is mandatory; a missing or negative count is a provider failure.
// A missing or malformed metrics bundle is replaced field by field with
// CENTER / 0.0 / 0.0.
type JSONProvider struct{}

// NewJSONProvider creates a JSONProvider.
func NewJSONProvider() *JSONProvider { return &JSONProvider{} }

type rawObservation struct {
	FaceCount *json.Number     `json:"face_count"`
	Metrics   *json.RawMessage `json:"metrics"`
}

// Analyze decodes an observation payload.
func (p *JSONProvider) Analyze(ctx context.Context, frame []byte) (model.Observation, error) {
	if err := ctx.Err(); err != nil {
		return model.Observation{}, fmt.Errorf("%w: %w", ErrProviderFailure, err)
	}

	dec := json.NewDecoder(bytes.NewReader(frame))
	dec.UseNumber()
	var raw rawObservation
	if err := dec.Decode(&raw); err != nil {
		return model.Observation{}, fmt.Errorf("%w: decode observation: %w", ErrProviderFailure, err)
	}
	if raw.FaceCount == nil {
		return model.Observation{}, fmt.Errorf("%w: face_count missing", ErrProviderFailure)
	}
	count, err := raw.FaceCount.Int64()
	if err != nil || count < 0 {
		return model.Observation{}, fmt.Errorf("%w: face_count %q is not a non-negative integer", ErrProviderFailure, raw.FaceCount.String())
	}

	m, malformed := DecodeMetrics(raw.Metrics)
	if malformed {
		metrics.RecordMalformedMetrics()
	}
	return model.Observation{FaceCount: int(count), Metrics: m}, nil
}

// DecodeMetrics parses a metrics bundle, substituting defaults for a missing
// bundle or any field that is absent or of the wrong type. The second return
// reports whether any present value had to be discarded.
func DecodeMetrics(raw *json.RawMessage) (model.Metrics, bool) {
	m := model.DefaultMetrics()
	if raw == nil || bytes.Equal(bytes.TrimSpace(*raw), []byte("null")) {
		return m, false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(*raw, &fields); err != nil {
		return m, true
	}

	malformed := false
	if v, ok := fields["gaze"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			malformed = true
		} else if g, known := model.ParseGaze(s); known {
			m.Gaze = g
		} else {
			malformed = true
		}
	}
	if v, ok := fields["brow"]; ok {
		if f, good := decodeFloat(v); good {
			m.Brow = f
		} else {
			malformed = true
		}
	}
	if v, ok := fields["smile"]; ok {
		if f, good := decodeFloat(v); good {
			m.Smile = f
		} else {
			malformed = true
		}
	}
	return m, malformed
}

func decodeFloat(v json.RawMessage) (float64, bool) {
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		return 0, false
	}
	return f, true
}
