// Package mock provides a test double for the inject.Injector interface.
package mock

import (
	"context"
	"sync"

	"github.com/voicekey/voicekey/pkg/inject"
)

// Injector is a mock implementation of inject.Injector.
// The zero value accepts every injection; set Err to inject failures.
type Injector struct {
	mu sync.Mutex

	// NameValue is returned by Name. Defaults to "mock" when empty.
	NameValue string

	// Err, if non-nil, is returned by Inject.
	Err error

	// Injected records every text passed to Inject in order.
	Injected []string
}

// Name returns NameValue, or "mock" when unset.
func (i *Injector) Name() string {
	if i.NameValue == "" {
		return "mock"
	}
	return i.NameValue
}

// Inject records text and returns Err.
func (i *Injector) Inject(_ context.Context, text string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if text == "" {
		return nil
	}
	i.Injected = append(i.Injected, text)
	return i.Err
}

// Ensure Injector implements inject.Injector at compile time.
var _ inject.Injector = (*Injector)(nil)
