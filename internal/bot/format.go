package bot

import (
	"fmt"
	"strings"

	"feedscroll/internal/model"
	"feedscroll/internal/render"
	"feedscroll/internal/scroll"
)

const (
	// maxMessageLen is Telegram's limit on message text.
	maxMessageLen  = 4096
	maxDescription = 280
	// footerReserve leaves room for the page footer in the last chunk.
	footerReserve = 64
)

// formatPage renders items[from:] and packs them into as few messages as
// the length limit allows. Items are never split across messages.
func formatPage(r render.Renderer, items []model.Item, from int) []string {
	var (
		chunks []string
		b      strings.Builder
	)
	for i := from; i < len(items); i++ {
		text := render.Truncate(r.Render(items[i], i), maxMessageLen-footerReserve)
		if b.Len() > 0 && b.Len()+2+len(text) > maxMessageLen-footerReserve {
			chunks = append(chunks, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}
	if b.Len() > 0 {
		chunks = append(chunks, b.String())
	}
	return chunks
}

func footer(state scroll.State) string {
	if state.HasMore {
		return fmt.Sprintf("\n\nShowing %d items.", len(state.Items))
	}
	return "\n\n" + endText(len(state.Items))
}

func endText(n int) string {
	if n == 0 {
		return "The feed is empty."
	}
	return fmt.Sprintf("End of feed (%d items).", n)
}

func emptyText(q model.Query) string {
	if !q.Active() {
		return "The feed is empty."
	}
	var b strings.Builder
	b.WriteString("No items match")
	if q.Search != "" {
		fmt.Fprintf(&b, " %q", q.Search)
	}
	if len(q.Tags) > 0 {
		fmt.Fprintf(&b, " with tags %s", strings.Join(q.Tags, ", "))
	}
	b.WriteString(". Use /clear to drop the filters.")
	return b.String()
}
