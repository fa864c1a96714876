// Package splitter cuts a script into the statements a driver can execute
// one at a time.
package splitter

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// SeparatorGroup is the capture group name that marks a split point. Every
// other part of a pattern match is kept in the surrounding statement, which
// is how string literals and comments shield their contents from splitting.
const SeparatorGroup = "separator"

// BlockGroup is the optional capture group name that opens a BEGIN ... END
// block. Splitting resumes after the END that closes it, counting nested
// BEGIN and CASE blocks.
const BlockGroup = "block"

// Shared alternatives that must never be split.
const (
	singleQuoted = `'(?:[^']|'')*'`
	doubleQuoted = `"(?:[^"]|"")*"`
	lineComment  = `--[^\n]*`
	blockComment = `/\*[\s\S]*?\*/`
)

// BatchSeparatorPattern splits on GO alone on its own line.
const BatchSeparatorPattern = singleQuoted + `|` + lineComment + `|` + blockComment +
	`|(?im:^[ \t]*(?P<separator>GO)[ \t]*\r?$)`

// SemicolonPattern splits on semicolons outside literals, comments and
// trigger bodies.
const SemicolonPattern = singleQuoted + `|` + doubleQuoted + `|` + lineComment + `|` + blockComment +
	`|(?is:\bCREATE\s+(?:TEMP(?:ORARY)?\s+)?TRIGGER\b.*?(?P<block>\bBEGIN\b))` +
	`|(?P<separator>;)`

// Named patterns selectable through configuration.
const (
	NameGo        = "go"
	NameSemicolon = "semicolon"
)

var compiled sync.Map //nolint:gochecknoglobals // pattern cache, compiled once per pattern

// PatternFor resolves a configured separator name. Anything that is not a
// known name is treated as a raw pattern.
func PatternFor(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NameGo:
		return BatchSeparatorPattern
	case NameSemicolon:
		return SemicolonPattern
	default:
		return name
	}
}

// Split returns the trimmed, non-empty statements of text delimited by the
// separator group of pattern.
func Split(text, pattern string) ([]string, error) {
	re, err := compile(pattern)
	if err != nil {
		return nil, err
	}

	sep := re.SubexpIndex(SeparatorGroup)
	block := re.SubexpIndex(BlockGroup)

	var (
		stmts []string
		start int
		pos   int
	)

	// Matching restarts only after a block, so anchors and word boundaries
	// see the original text everywhere else.
scan:
	for pos < len(text) {
		for _, m := range re.FindAllStringSubmatchIndex(text[pos:], -1) {
			if block >= 0 && m[2*block] >= 0 {
				pos = blockEnd(text, pos+m[2*block+1])

				continue scan
			}

			if m[2*sep] >= 0 {
				stmts = appendStatement(stmts, text[start:pos+m[2*sep]])
				start = pos + m[2*sep+1]
			}
		}

		break
	}

	return appendStatement(stmts, text[start:]), nil
}

// blockEnd returns the offset just past the END closing a block whose BEGIN
// ends at from, or len(text) when the block is never closed. Literals and
// comments are skipped.
func blockEnd(text string, from int) int {
	depth := 1

	for i := from; i < len(text); {
		c := text[i]

		switch {
		case c == '\'' || c == '"':
			i = skipQuoted(text, i, c)
		case strings.HasPrefix(text[i:], "--"):
			if nl := strings.IndexByte(text[i:], '\n'); nl >= 0 {
				i += nl + 1
			} else {
				i = len(text)
			}
		case strings.HasPrefix(text[i:], "/*"):
			if end := strings.Index(text[i+2:], "*/"); end >= 0 {
				i += end + 4
			} else {
				i = len(text)
			}
		case isWordByte(c):
			j := i
			for j < len(text) && isWordByte(text[j]) {
				j++
			}

			switch strings.ToUpper(text[i:j]) {
			case "BEGIN", "CASE":
				depth++
			case "END":
				depth--
				if depth == 0 {
					return j
				}
			}

			i = j
		default:
			i++
		}
	}

	return len(text)
}

// skipQuoted returns the offset past the literal opened by quote at i. A
// doubled quote is part of the literal.
func skipQuoted(text string, i int, quote byte) int {
	for j := i + 1; j < len(text); j++ {
		if text[j] != quote {
			continue
		}

		if j+1 < len(text) && text[j+1] == quote {
			j++

			continue
		}

		return j + 1
	}

	return len(text)
}

func isWordByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func appendStatement(stmts []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		stmts = append(stmts, s)
	}

	return stmts
}

func compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := compiled.Load(pattern); ok {
		return re.(*regexp.Regexp), nil //nolint:forcetypeassert // cache only holds *regexp.Regexp
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling separator pattern: %w", err)
	}

	if re.SubexpIndex(SeparatorGroup) < 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoSeparatorGroup, pattern)
	}

	compiled.Store(pattern, re)

	return re, nil
}
