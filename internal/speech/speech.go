// Package speech delivers the agent's replies to the user.
package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// Provider turns reply text into output the user can hear or read.
type Provider interface {
	Speak(ctx context.Context, text string) error
}

// Console prints replies, one per line.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole returns a provider writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Speak implements Provider.
func (c *Console) Speak(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.w, text)
	return err
}

// Command pipes replies to an external text-to-speech program on stdin,
// for example `espeak --stdin` or `say -f -`.
type Command struct {
	name string
	args []string
}

// NewCommand returns a provider running argv for every reply.
func NewCommand(argv []string) (*Command, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, fmt.Errorf("speech command is empty")
	}
	return &Command{name: argv[0], args: argv[1:]}, nil
}

// Speak implements Provider. It blocks until the program exits.
func (c *Command) Speak(ctx context.Context, text string) error {
	cmd := exec.CommandContext(ctx, c.name, c.args...)
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("speech command %s: %w: %s", c.name, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
