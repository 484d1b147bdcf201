package pacer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// chunker cuts pending text into emission chunks. With boundary respect on,
// a cut never lands mid-word and never lands inside an open fenced code block;
// fence state carries across cuts so a block spanning several emissions is
// still kept whole.
type chunker struct {
	min     int
	respect bool

	// fenceOpen tracks whether the text emitted so far ends inside an open
	// ``` fence.
	fenceOpen bool
}

// next returns the next chunk and the remaining text.
//
// ok is false when the text should be held back: it is shorter than the
// minimum chunk size, or every acceptable cut point lies inside an open
// fence. force waives holding and, when no acceptable cut exists, returns
// the whole remainder as the final chunk.
func (c *chunker) next(s string, force bool) (chunk, rest string, ok bool) {
	if s == "" {
		return "", "", false
	}

	if !c.respect {
		if len(s) < c.min && !force {
			return "", s, false
		}
		cut := c.min
		if cut >= len(s) {
			return s, "", true
		}
		for cut < len(s) && !utf8.RuneStart(s[cut]) {
			cut++
		}
		return s[:cut], s[cut:], true
	}

	open := c.fenceOpen
	prevIsSpace := true
	lineHasContent := false

	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		isSpace := unicode.IsSpace(r)

		if prevIsSpace && !isSpace {
			// Word start: an acceptable cut point when the minimum is met
			// and we are not inside a fence. Checked before the fence
			// toggle so a chunk may end right before an opening marker.
			if i >= c.min && i > 0 && !open {
				c.fenceOpen = open
				return s[:i], s[i:], true
			}
			if !lineHasContent && strings.HasPrefix(s[i:], "```") {
				open = !open
			}
			lineHasContent = true
		}

		if r == '\n' {
			lineHasContent = false
		}
		prevIsSpace = isSpace
		i += size
	}

	if force {
		c.fenceOpen = open
		return s, "", true
	}
	return "", s, false
}

// countTokens reports the number of whitespace-delimited tokens in a chunk,
// at least one. Used to scale the delay until the next emission.
func countTokens(s string) int {
	n := len(strings.Fields(s))
	if n == 0 {
		n = 1
	}
	return n
}
