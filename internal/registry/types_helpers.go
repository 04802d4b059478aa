package registry

import (
	"time"

	"github.com/worldline-go/types"
)

// newTimeNull wraps a concrete time.Time as a populated types.Null[types.Time],
// the nullable-scalar convention the teacher uses for optional timestamps
// (internal/server/api_tokens.go's ExpiresAt handling).
func newTimeNull(t time.Time) types.Null[types.Time] {
	return types.NewTimeNull(t)
}
