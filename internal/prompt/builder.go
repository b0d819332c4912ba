// Package prompt builds the system directive that opens a conversation.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/flynn-ai/vox/internal/convo"
)

type Mode string

const (
	ModeFull    Mode = "full"
	ModeMinimal Mode = "minimal"
)

type Builder struct {
	Mode          Mode
	MaxFileChars  int
	MaxTotalChars int
	Timezone      string

	now func() time.Time
}

// SystemContext carries the variable parts of the directive.
type SystemContext struct {
	Persona string
	Speech  string
	Runtime string
	Context []ContextFile
}

// ContextFile is a user-supplied file quoted into the directive.
type ContextFile struct {
	Name    string
	Content string
	Trunc   bool
	Missing bool
}

func NewBuilder(mode Mode) *Builder {
	return &Builder{
		Mode:          mode,
		MaxFileChars:  2000,
		MaxTotalChars: 8000,
		now:           time.Now,
	}
}

// Directive returns the built prompt as a context entry.
func (b *Builder) Directive(ctx SystemContext) *convo.SystemDirective {
	return convo.NewSystemDirective(b.BuildSystemPrompt(ctx))
}

func (b *Builder) BuildSystemPrompt(ctx SystemContext) string {
	var sections []string
	sections = append(sections, "Identity:\n"+nonEmpty(ctx.Persona, "You are Vox, a voice assistant. Keep replies short enough to be spoken aloud."))
	sections = append(sections, "Speech:\n"+nonEmpty(ctx.Speech, "Your final reply is read out to the user. Avoid markdown, lists and code blocks."))
	sections = append(sections, "Actions:\nUse the provided functions when they help. Some run on connected devices and answer later; wait for their results instead of repeating the call.")

	if b.Mode == ModeFull {
		sections = append(sections, "Runtime:\n"+nonEmpty(ctx.Runtime, b.runtimeLine()))
		sections = append(sections, "Current Date & Time:\n"+b.timeLine())
		if extra := b.contextSection(ctx.Context); extra != "" {
			sections = append(sections, extra)
		}
	}

	return strings.Join(sections, "\n\n")
}

func (b *Builder) runtimeLine() string {
	return fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)
}

func (b *Builder) timeLine() string {
	now := b.now()
	if b.Timezone != "" {
		if loc, err := time.LoadLocation(b.Timezone); err == nil {
			now = now.In(loc)
		}
	}
	return now.Format("Monday, 02 January 2006 15:04 MST")
}

func (b *Builder) contextSection(files []ContextFile) string {
	if len(files) == 0 {
		return ""
	}
	var bld strings.Builder
	bld.WriteString("User Context:\n")
	for _, f := range files {
		if f.Missing {
			bld.WriteString(fmt.Sprintf("- %s: (missing)\n", f.Name))
			continue
		}
		bld.WriteString(fmt.Sprintf("- %s:\n", f.Name))
		bld.WriteString(f.Content)
		if !strings.HasSuffix(f.Content, "\n") {
			bld.WriteString("\n")
		}
		if f.Trunc {
			bld.WriteString("[truncated]\n")
		}
	}
	return strings.TrimSpace(bld.String())
}

// LoadContextFiles reads paths, truncating each file to MaxFileChars and
// the whole set to MaxTotalChars.
func (b *Builder) LoadContextFiles(paths []string) []ContextFile {
	var out []ContextFile
	total := 0
	for _, p := range paths {
		name := filepath.Base(p)
		data, err := os.ReadFile(p)
		if err != nil {
			out = append(out, ContextFile{Name: name, Missing: true})
			continue
		}
		content := string(data)
		trunc := false
		if b.MaxFileChars > 0 && len(content) > b.MaxFileChars {
			content = content[:b.MaxFileChars]
			trunc = true
		}
		if b.MaxTotalChars > 0 && total+len(content) > b.MaxTotalChars {
			content = content[:max(b.MaxTotalChars-total, 0)]
			trunc = true
		}
		total += len(content)
		out = append(out, ContextFile{Name: name, Content: content, Trunc: trunc})
		if b.MaxTotalChars > 0 && total >= b.MaxTotalChars {
			break
		}
	}
	return out
}

func nonEmpty(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
