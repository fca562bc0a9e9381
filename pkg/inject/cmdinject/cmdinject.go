// Package cmdinject implements inject.Injector by piping text to an external
// typing tool.
//
// The default command is "wtype -" (Wayland); "xdotool type --clearmodifiers
// --file -" covers X11. Any tool that reads the text from stdin works.
package cmdinject

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ProviderName is the identifier reported by [Injector.Name].
const ProviderName = "command"

const defaultTimeout = 10 * time.Second

var defaultCommand = []string{"wtype", "-"}

// Option is a functional option for [Injector].
type Option func(*Injector)

// WithCommand overrides the injection command. The text is written to the
// command's stdin. Default: ["wtype", "-"].
func WithCommand(argv ...string) Option {
	return func(i *Injector) { i.argv = argv }
}

// WithTimeout bounds a single injection run. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(i *Injector) { i.timeout = d }
}

// Injector runs an external command per injection. Safe for concurrent use.
type Injector struct {
	argv    []string
	timeout time.Duration
}

// New constructs a command-based injector.
func New(opts ...Option) (*Injector, error) {
	i := &Injector{
		argv:    defaultCommand,
		timeout: defaultTimeout,
	}
	for _, o := range opts {
		o(i)
	}
	if len(i.argv) == 0 {
		return nil, fmt.Errorf("cmdinject: command must not be empty")
	}
	return i, nil
}

// Name implements inject.Injector.
func (i *Injector) Name() string { return ProviderName }

// Inject implements inject.Injector.
func (i *Injector) Inject(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, i.argv[0], i.argv[1:]...)
	cmd.Stdin = strings.NewReader(text)

	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("cmdinject: %s: %w: %s", i.argv[0], err,
			strings.TrimSpace(string(out)))
	}
	return nil
}
