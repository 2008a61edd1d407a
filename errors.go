package bulkclean

import (
	"errors"

	"github.com/codeGROOVE-dev/bulkclean/pkg/pattern"
	"github.com/codeGROOVE-dev/bulkclean/pkg/store"
)

var (
	// ErrConfiguration is returned by New when the store or options cannot
	// support a correct run, e.g. a store that does not decode key names.
	ErrConfiguration = errors.New("configuration error")

	// ErrInvalidPattern is returned by New for an empty pattern set or a
	// pattern that does not compile.
	ErrInvalidPattern = pattern.ErrInvalid

	// ErrStoreUnavailable marks transport failures surfaced from the store.
	ErrStoreUnavailable = store.ErrUnavailable
)
