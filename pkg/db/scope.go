package db

import (
	"context"
	"sync"

	"gorm.io/gorm"
)

// Hook is a compensation or follow-up action attached to a transaction scope.
type Hook func(ctx context.Context)

// Scope is an open transaction together with the actions that depend on its outcome.
type Scope struct {
	tx          *gorm.DB
	onRollback  []Hook
	afterCommit []Hook
}

// Tx returns the transaction handle for repositories.
func (s *Scope) Tx() *gorm.DB {
	return s.tx
}

// OnRollback registers a compensation for side effects made outside the
// database, such as an uploaded file.
func (s *Scope) OnRollback(fn Hook) {
	if fn == nil {
		return
	}
	s.onRollback = append(s.onRollback, fn)
}

// AfterCommit registers work that must run in its own transaction once this
// scope has committed. A failing hook cannot undo the committed scope.
func (s *Scope) AfterCommit(fn Hook) {
	if fn == nil {
		return
	}
	s.afterCommit = append(s.afterCommit, fn)
}

func (s *Scope) rollback(ctx context.Context) {
	for i := len(s.onRollback) - 1; i >= 0; i-- {
		s.onRollback[i](ctx)
	}
	s.onRollback = nil
	s.afterCommit = nil
}

func (s *Scope) commit(ctx context.Context) {
	hooks := s.afterCommit
	s.onRollback = nil
	s.afterCommit = nil
	for _, hook := range hooks {
		hook(ctx)
	}
}

// Once wraps fn so it runs at most once. Callers use it for a compensation
// that is both registered with OnRollback and invoked directly when the
// transaction never started.
func Once(fn Hook) Hook {
	if fn == nil {
		return nil
	}
	var once sync.Once
	return func(ctx context.Context) {
		once.Do(func() { fn(ctx) })
	}
}
