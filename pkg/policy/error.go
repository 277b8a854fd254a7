package policy

import "errors"

var (
	// ErrInvalidConfig is returned when a manifest or governance file fails
	// validation at load time.
	ErrInvalidConfig = errors.New("invalid policy config")

	// ErrNoSource is returned by ReloadFromFiles when the engine was built
	// from an in-memory config with no backing files.
	ErrNoSource = errors.New("policy engine has no config files to reload from")
)
