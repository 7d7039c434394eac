// Package render turns items into text for hosts that display a feed.
package render

import (
	"fmt"
	"strings"

	"feedscroll/internal/model"
)

// Renderer renders one item at its position in the accumulated list.
type Renderer interface {
	Render(item model.Item, index int) string
}

// Func adapts a function to Renderer.
type Func func(item model.Item, index int) string

// Render calls f.
func (f Func) Render(item model.Item, index int) string { return f(item, index) }

// Plain renders items as plain text: a numbered title line followed by the
// kind-specific body.
type Plain struct {
	// MaxDescription truncates descriptions to this many runes; zero keeps
	// them whole.
	MaxDescription int
}

// Render implements Renderer.
func (p Plain) Render(it model.Item, index int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d. %s", index+1, it.Title)
	if len(it.Tags) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(it.Tags, ", "))
	}

	switch it.Kind {
	case model.KindText:
		if d := p.description(it); d != "" {
			b.WriteString("\n")
			b.WriteString(d)
		}
	case model.KindImage:
		fmt.Fprintf(&b, "\n[image] %s", it.ImageURL)
		if d := p.description(it); d != "" {
			b.WriteString("\n")
			b.WriteString(d)
		}
	case model.KindCard:
		if d := p.description(it); d != "" {
			b.WriteString("\n> ")
			b.WriteString(d)
		}
		if it.Link != "" {
			fmt.Fprintf(&b, "\n%s", it.Link)
		}
	default:
		panic(fmt.Sprintf("render: unhandled item kind %v", it.Kind))
	}
	return b.String()
}

func (p Plain) description(it model.Item) string {
	return Truncate(strings.TrimSpace(it.Description), p.MaxDescription)
}

// Truncate shortens s to at most n runes, marking the cut with an ellipsis.
// A non-positive n returns s unchanged.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
