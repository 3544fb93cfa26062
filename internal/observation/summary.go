package observation

import (
	"fmt"

	"fieldnotes.ai/internal/markup"
)

// ShortTextLen is the number of visible characters kept in listings.
const ShortTextLen = 20

const ellipsis = "&7 . . ."

// ShortText resolves text and cuts it to ShortTextLen visible characters plus an ellipsis.
func ShortText(text string) string {
	s := markup.Translate("&f&l" + text)
	if markup.Visible(s) > ShortTextLen {
		s = markup.Substring(s, ShortTextLen) + markup.Translate(ellipsis)
	}
	return s
}

// Summary is the one-line listing form of o.
func Summary(o *Observation) string {
	b := o.display.Block()
	return markup.Translate(fmt.Sprintf("&9&l%d.&r &8\"%s&8\" &9> &7&o%s &7(%s, %d, %d, %d&7)",
		o.id, ShortText(o.text), o.author, o.display.World, b[0], b[1], b[2]))
}
