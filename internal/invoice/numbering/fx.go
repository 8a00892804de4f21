package numbering

import (
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.numbering",
	fx.Provide(NewAllocator),
	fx.Provide(newScopeLocker),
)

type lockerParams struct {
	fx.In

	Client redis.UniversalClient `optional:"true"`
}

// newScopeLocker returns nil without Redis, leaving number scopes to row locks.
func newScopeLocker(p lockerParams) ScopeLocker {
	if p.Client == nil {
		return nil
	}
	return NewRedisLocker(p.Client)
}
