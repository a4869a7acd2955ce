package dedupe

type options struct {
	capacity int
	preload  []string
}

// Option applies a configuration option to the hash index.
type Option func(*options)

// WithCapacityHint pre-sizes the index for about n hashes.
func WithCapacityHint(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// WithHashes seeds the index with hashes already in the catalog.
func WithHashes(ids ...string) Option {
	return func(o *options) {
		o.preload = append(o.preload, ids...)
		if len(o.preload) > o.capacity {
			o.capacity = len(o.preload)
		}
	}
}
