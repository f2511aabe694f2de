package task

import (
	"sync/atomic"
)

// Token reports whether the requester lost interest in a task's result.
// store.SelectionGuard satisfies it.
type Token interface {
	Canceled() bool
}

// CancelToken is a Token raised explicitly by its owner.
type CancelToken struct {
	canceled atomic.Bool
}

// NewCancelToken returns a live token.
func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

// Cancel raises the token. It is safe to call more than once.
func (t *CancelToken) Cancel() {
	t.canceled.Store(true)
}

// Canceled reports whether Cancel was called.
func (t *CancelToken) Canceled() bool {
	return t.canceled.Load()
}

type liveToken struct{}

func (liveToken) Canceled() bool { return false }

// Never is a Token that is never raised.
var Never Token = liveToken{}

func orNever(tok Token) Token {
	if tok == nil {
		return Never
	}
	return tok
}
