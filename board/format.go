// goban/board/format.go
package board

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

var (
	quoteLinkPattern = regexp.MustCompile(`&gt;&gt;(\d+)`)
	greentextPattern = regexp.MustCompile(`(?m)^(&gt;[^\n]*)$`)
)

// FormatMessage converts raw message text to the stored HTML fragment:
// escape everything, then layer post links, greentext and line breaks on
// top. Formatting happens once at admission so renders stay cheap.
func FormatMessage(boardID, raw string) string {
	msg := html.EscapeString(strings.TrimSpace(raw))
	msg = strings.ReplaceAll(msg, "\r\n", "\n")

	msg = quoteLinkPattern.ReplaceAllStringFunc(msg, func(m string) string {
		id := quoteLinkPattern.FindStringSubmatch(m)[1]
		return fmt.Sprintf(`<a href="/%s/res/%s.html#%s" class="quotelink">&gt;&gt;%s</a>`, boardID, id, id, id)
	})
	msg = greentextPattern.ReplaceAllString(msg, `<span class="greentext">$1</span>`)
	msg = strings.ReplaceAll(msg, "\n", "<br>")
	return msg
}
