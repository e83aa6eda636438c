package store

import (
	"context"
	"errors"

	"prism-todo/domain"
)

// DefaultKey is the slot key the collection is stored under.
const DefaultKey = "todo_crud_tasks"

// ErrPersist wraps slot write failures. The in-memory collection is left
// unchanged when a mutation returns it.
var ErrPersist = errors.New("persist tasks")

// Slot is a keyed value in a local key-value store.
type Slot interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Confirmer decides whether a destructive action may proceed.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool { return f(ctx, prompt) }

var (
	// AlwaysConfirm approves every prompt.
	AlwaysConfirm Confirmer = ConfirmFunc(func(context.Context, string) bool { return true })
	// NeverConfirm declines every prompt.
	NeverConfirm Confirmer = ConfirmFunc(func(context.Context, string) bool { return false })
)

// Publisher receives an event after each committed mutation.
type Publisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}
