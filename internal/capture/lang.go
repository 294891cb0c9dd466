package capture

import (
	"strings"

	"golang.org/x/text/language"
)

var langMatcher = language.NewMatcher([]language.Tag{
	language.Chinese,
	language.English,
})

// messages picks between the Chinese and English text of a line.
type messages struct {
	english bool
}

func newMessages(hint string) messages {
	tag, err := language.Parse(strings.TrimSpace(hint))
	if err != nil {
		return messages{}
	}
	_, index, _ := langMatcher.Match(tag)
	return messages{english: index == 1}
}

func (m messages) text(zh, en string) string {
	if m.english {
		return en
	}
	return zh
}
