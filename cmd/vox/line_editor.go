package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chzyer/readline"
)

var (
	errInputInterrupt = errors.New("input interrupted")
	errInputEOF       = errors.New("input eof")
)

// lineEditor reads prompt lines. ReadLine returns errInputEOF once ctx is
// done, even while it is waiting for input.
type lineEditor interface {
	ReadLine(ctx context.Context, prompt string) (string, error)
	Output() io.Writer
	Close() error
}

// newLineEditor returns a readline editor on a terminal and a plain
// reader otherwise.
func newLineEditor(historyFile string, commands []string) (lineEditor, error) {
	if isTTY(os.Stdin) && isTTY(os.Stdout) {
		rl, err := newReadlineEditor(historyFile, commands)
		if err == nil {
			return rl, nil
		}
	}
	return newStdioEditor(os.Stdin, os.Stdout), nil
}

func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

type readlineEditor struct {
	rl        *readline.Instance
	closeOnce sync.Once
	closeErr  error
}

func newReadlineEditor(historyFile string, commands []string) (*readlineEditor, error) {
	if historyFile != "" {
		if err := os.MkdirAll(filepath.Dir(historyFile), 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	items := make([]readline.PrefixCompleterInterface, 0, len(commands))
	for _, cmd := range commands {
		items = append(items, readline.PcItem("/"+cmd))
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "> ",
		HistoryFile:       historyFile,
		AutoComplete:      readline.NewPrefixCompleter(items...),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return nil, err
	}
	return &readlineEditor{rl: rl}, nil
}

func (r *readlineEditor) ReadLine(ctx context.Context, prompt string) (string, error) {
	if ctx.Err() != nil {
		return "", errInputEOF
	}
	// Closing the instance unblocks Readline with io.EOF.
	stop := context.AfterFunc(ctx, func() { _ = r.Close() })
	defer stop()

	r.rl.SetPrompt(prompt)
	line, err := r.rl.Readline()
	if ctx.Err() != nil {
		return "", errInputEOF
	}
	switch {
	case err == nil:
		return strings.TrimSpace(line), nil
	case errors.Is(err, readline.ErrInterrupt):
		return "", errInputInterrupt
	case errors.Is(err, io.EOF):
		return "", errInputEOF
	default:
		return "", err
	}
}

func (r *readlineEditor) Output() io.Writer { return r.rl.Stdout() }

func (r *readlineEditor) Close() error {
	r.closeOnce.Do(func() { r.closeErr = r.rl.Close() })
	return r.closeErr
}

type readResult struct {
	line string
	err  error
}

// stdioEditor reads lines on a background goroutine so a pending read
// can be abandoned when the context ends.
type stdioEditor struct {
	reader *bufio.Reader
	out    io.Writer

	once  sync.Once
	lines chan readResult
	next  chan struct{}
}

func newStdioEditor(in io.Reader, out io.Writer) *stdioEditor {
	return &stdioEditor{
		reader: bufio.NewReader(in),
		out:    out,
		lines:  make(chan readResult, 1),
		next:   make(chan struct{}, 1),
	}
}

func (s *stdioEditor) readLoop() {
	var sticky error
	for range s.next {
		if sticky != nil {
			s.lines <- readResult{err: sticky}
			continue
		}
		line, err := s.reader.ReadString('\n')
		s.lines <- readResult{line: line, err: err}
		sticky = err
	}
}

func (s *stdioEditor) ReadLine(ctx context.Context, prompt string) (string, error) {
	if ctx.Err() != nil {
		return "", errInputEOF
	}
	s.once.Do(func() { go s.readLoop() })
	fmt.Fprint(s.out, prompt)

	select {
	case s.next <- struct{}{}:
	default:
	}

	var res readResult
	select {
	case res = <-s.lines:
	case <-ctx.Done():
		return "", errInputEOF
	}

	if res.err != nil {
		if errors.Is(res.err, io.EOF) {
			if line := strings.TrimSpace(res.line); line != "" {
				return line, nil
			}
			return "", errInputEOF
		}
		return "", res.err
	}
	return strings.TrimSpace(res.line), nil
}

func (s *stdioEditor) Output() io.Writer { return s.out }

func (s *stdioEditor) Close() error { return nil }
