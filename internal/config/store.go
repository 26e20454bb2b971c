package config

// Store persists one settings value.
type Store[T any] interface {
	// Load returns the stored value, or the defaults when nothing is stored.
	Load() (*T, error)

	// Save persists v. Implementations may debounce rapid saves.
	Save(v *T) error

	// Path returns the backing file, or ":memory:".
	Path() string

	// Flush writes any pending value immediately.
	Flush() error
}
