package config

import (
	"errors"

	"github.com/dshills/strata/internal/config/accessor"
	"github.com/dshills/strata/internal/config/layer"
	"github.com/dshills/strata/internal/config/loader"
)

// Errors returned by configuration operations. Errors from the sub-packages
// are re-exported so callers only need this package for errors.Is.
var (
	// ErrNotFound indicates the path doesn't exist in the configuration.
	ErrNotFound = accessor.ErrNotFound

	// ErrTypeMismatch indicates the value type doesn't match the getter.
	ErrTypeMismatch = accessor.ErrTypeMismatch

	// ErrLayerNotFound indicates the specified layer doesn't exist.
	ErrLayerNotFound = layer.ErrLayerNotFound

	// ErrReadOnly indicates modification was attempted on a read-only layer.
	ErrReadOnly = layer.ErrReadOnly

	// ErrInvalidOverride indicates a malformed path=value assignment.
	ErrInvalidOverride = loader.ErrInvalidOverride

	// ErrClosed indicates the configuration was closed.
	ErrClosed = errors.New("configuration closed")

	// ErrWatcherClosed indicates Watch was called after Close.
	ErrWatcherClosed = errors.New("watcher closed")
)

// ParseError describes a configuration file that failed to parse.
type ParseError = loader.ParseError

// TypeError describes a typed getter applied to a value of another kind.
type TypeError = accessor.TypeError
