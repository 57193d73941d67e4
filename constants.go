package dtpack

import "github.com/dtpack/dtpack/internal/constants"

// Re-export tunables for the public API so callers don't need to reach
// into internal/constants directly.
const (
	DefaultNestingLevel        = constants.DefaultNestingLevel
	DefaultSlabSize            = constants.DefaultSlabSize
	DefaultPredefinedTableSize = constants.DefaultPredefinedTableSize
)
