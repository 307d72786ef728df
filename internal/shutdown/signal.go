// Package shutdown coordinates graceful shutdown across sources: each
// source registers once, is told to begin shutting down, and must release
// its token to report that it has finished.
package shutdown

import (
	"context"
	"sync"
)

// Token is returned once a ShutdownSignal resolves. Its Release reports
// that the holding source has finished shutting down; it is the Go
// equivalent of dropping the Rust ShutdownSignalToken.
type Token struct {
	once    sync.Once
	release func()
}

// Release signals that this source's shutdown is complete. Safe to call
// more than once; only the first call has effect.
func (t *Token) Release() {
	t.once.Do(t.release)
}

// ShutdownSignal is handed to a source so it can learn when global shutdown
// has begun and report back when its own shutdown is complete.
type ShutdownSignal struct {
	begin <-chan struct{}
	token *Token
}

// Begin returns a channel closed once shutdown has begun for this source.
// Sources that must select alongside other I/O can select on this
// directly; once it is closed, Wait returns the token at once, and the
// source calls Token.Release on it when its shutdown is complete.
func (s ShutdownSignal) Begin() <-chan struct{} { return s.begin }

// Wait blocks until shutdown begins or ctx is cancelled, returning the
// token the source must Release once its own shutdown has completed. ok is
// false only if ctx was cancelled before shutdown began.
func (s ShutdownSignal) Wait(ctx context.Context) (token *Token, ok bool) {
	select {
	case <-s.begin:
		return s.token, true
	case <-ctx.Done():
		return nil, false
	}
}
