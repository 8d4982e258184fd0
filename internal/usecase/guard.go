package usecase

import (
	"context"
	"sync"

	"github.com/iho/govault/internal/domain"
)

type guardKey struct{}

// operationGuard serializes vault operations and rejects re-entry.
//
// Re-entry is detected through the operation context, so custody adapters
// must call back into the vault with the context they were handed.
type operationGuard struct {
	mu sync.Mutex
}

// enter blocks until no other operation is in flight. The returned release
// func must be called exactly once.
func (g *operationGuard) enter(ctx context.Context) (context.Context, func(), error) {
	if owner, ok := ctx.Value(guardKey{}).(*operationGuard); ok && owner == g {
		return ctx, nil, domain.ErrReentrantCall
	}

	g.mu.Lock()

	return context.WithValue(ctx, guardKey{}, g), g.mu.Unlock, nil
}
