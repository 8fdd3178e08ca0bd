package publisher

import (
	"fmt"
	"strings"

	"digest_bot/internal/model"
)

// maxRenderedReasons bounds how many scoring reasons a message shows.
const maxRenderedReasons = 5

// RenderItem formats a queued item as a Telegram message for its topic.
func RenderItem(topic *model.Topic, item *model.QueueItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n\n", topic.Name)
	b.WriteString(item.Title)
	if item.Snippet != "" {
		b.WriteString("\n\n")
		b.WriteString(item.Snippet)
	}
	fmt.Fprintf(&b, "\n\nScore: %d", item.Score)
	if len(item.Reasons) > 0 {
		reasons := item.Reasons
		if len(reasons) > maxRenderedReasons {
			reasons = reasons[:maxRenderedReasons]
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(reasons, ", "))
	}
	fmt.Fprintf(&b, "\nSource: %s", item.Source)
	if item.Link != "" {
		b.WriteString("\n")
		b.WriteString(item.Link)
	}
	return b.String()
}
