package bridge

import (
	"context"
	"sync"
)

var (
	defaultBridge *Bridge
	defaultMu     sync.Mutex
)

// Default returns the package-level bridge, creating it with default
// options on first use.
func Default(ctx context.Context) (*Bridge, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultBridge == nil {
		b, err := New(ctx)
		if err != nil {
			return nil, err
		}
		defaultBridge = b
	}
	return defaultBridge, nil
}

// SetDefault replaces the package-level bridge and returns the previous
// one. Passing nil makes the next call create a fresh bridge.
func SetDefault(b *Bridge) *Bridge {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultBridge
	defaultBridge = b
	return prev
}

// Init instantiates the package-level bridge from src. A nil src loads
// DefaultPath.
func Init(ctx context.Context, src *Source) (*Exports, error) {
	b, err := Default(ctx)
	if err != nil {
		return nil, err
	}
	return b.Instantiate(ctx, src)
}

// InitSync instantiates the package-level bridge without streaming.
func InitSync(ctx context.Context, src *Source) (*Exports, error) {
	b, err := Default(ctx)
	if err != nil {
		return nil, err
	}
	return b.InitSync(ctx, src)
}

// Main runs main on the package-level bridge. Init must have succeeded.
func Main(ctx context.Context) error {
	b, err := Default(ctx)
	if err != nil {
		return err
	}
	return b.Main(ctx)
}
