// Package lock не даёт двум сагам одновременно работать с одним заказом.
package lock

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

// LocalLocker: блокировка в пределах одного процесса.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]uint64
	gen  uint64
}

// NewLocalLocker создаёт процессную блокировку.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]uint64)}
}

// Acquire занимает ключ или возвращает ErrSagaInProgress.
func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[key]; busy {
		return nil, domain.ErrSagaInProgress
	}
	l.gen++
	token := l.gen
	l.held[key] = token

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		// повторный release не снимает чужую блокировку
		if l.held[key] == token {
			delete(l.held, key)
		}
		return nil
	}, nil
}

var _ domain.SagaLocker = (*LocalLocker)(nil)
