package dedupe

// Option applies a configuration option to the in-memory deduper.
type Option func(*ring)

// WithMaxSize sets how many ids are remembered.
// If maxSize > 0: bounded mode with FIFO eviction.
// If maxSize <= 0: unbounded mode.
func WithMaxSize(maxSize int) Option {
	return func(d *ring) {
		d.maxSize = maxSize
	}
}
