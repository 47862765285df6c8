package intake

import (
	"fmt"

	"github.com/zapdesk/wabridge/internal/wa"
)

// extractor pulls a display body out of a message's content fields.
type extractor func(c wa.Content) string

// extractors is the fixed type-to-extractor table, evaluated in order.
// The first matching type wins.
var extractors = []struct {
	kind    string
	matches func(c wa.Content) bool
	extract extractor
}{
	{
		kind:    "conversation",
		matches: func(c wa.Content) bool { return c.Conversation != "" },
		extract: func(c wa.Content) string { return c.Conversation },
	},
	{
		kind:    "extended_text",
		matches: func(c wa.Content) bool { return c.ExtendedText != "" },
		extract: func(c wa.Content) string { return c.ExtendedText },
	},
	{
		kind:    "image",
		matches: func(c wa.Content) bool { return c.ImageCaption != "" },
		extract: func(c wa.Content) string { return c.ImageCaption },
	},
	{
		kind:    "video",
		matches: func(c wa.Content) bool { return c.VideoCaption != "" },
		extract: func(c wa.Content) string { return c.VideoCaption },
	},
	{
		kind:    "audio",
		matches: func(c wa.Content) bool { return c.HasAudio },
		extract: func(c wa.Content) string {
			if c.AudioSeconds > 0 {
				return fmt.Sprintf("[audio %ds]", c.AudioSeconds)
			}
			return "[audio]"
		},
	},
	{
		kind:    "document",
		matches: func(c wa.Content) bool { return c.DocumentTitle != "" },
		extract: func(c wa.Content) string { return c.DocumentTitle },
	},
	{
		kind:    "sticker",
		matches: func(c wa.Content) bool { return c.HasSticker },
		extract: func(c wa.Content) string { return "[sticker]" },
	},
	{
		kind:    "location",
		matches: func(c wa.Content) bool { return c.HasLocation },
		extract: func(c wa.Content) string {
			return fmt.Sprintf("[location %.6f,%.6f]", c.Latitude, c.Longitude)
		},
	},
	{
		kind:    "contact",
		matches: func(c wa.Content) bool { return c.ContactVCard != "" },
		extract: func(c wa.Content) string { return c.ContactVCard },
	},
	{
		kind:    "reaction",
		matches: func(c wa.Content) bool { return c.Reaction != "" },
		extract: func(c wa.Content) string { return c.Reaction },
	},
}

// ExtractBody classifies the content type and returns it with the
// extracted text body. Unknown content falls through as "unsupported".
func ExtractBody(c wa.Content) (kind, body string) {
	for _, e := range extractors {
		if e.matches(c) {
			return e.kind, e.extract(c)
		}
	}
	return "unsupported", ""
}
