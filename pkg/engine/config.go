package engine

// Config controls how Engine.Sync drains the pending operation queue. There
// are no ambient globals: a Config is supplied at construction.
type Config struct {
	// EnableReduction groups pending operations by entity and folds each
	// group with the reducer before dispatch. Disabling it dispatches each
	// entity's pending operations one at a time, in timestamp order.
	EnableReduction bool

	// StopOnError aborts the drain on the first non-recovered failure,
	// emitting an Error status event. When false, Sync keeps draining
	// the rest of the queue and returns nil even if some operations
	// ended Failed.
	StopOnError bool

	// MaxRetries is the retry_count ceiling past which a retryable
	// Failure becomes terminal.
	MaxRetries int

	// Concurrency bounds how many distinct entities are dispatched to
	// their adapters at once. Operations for the same entity are always
	// dispatched to completion in timestamp order on a single goroutine;
	// Concurrency only bounds how many different entities run at once.
	Concurrency int
}

// DefaultConfig returns the Config new Engines should start from.
func DefaultConfig() Config {
	return Config{
		EnableReduction: true,
		StopOnError:     false,
		MaxRetries:      3,
		Concurrency:     4,
	}
}
