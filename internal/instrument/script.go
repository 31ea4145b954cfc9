package instrument

import (
	"fmt"
	"strings"
)

// blockKeywords precede a brace that opens a basic block worth
// instrumenting (a control-flow block), as opposed to an object
// literal or destructuring pattern.
var blockKeywords = map[string]bool{
	"if": true, "else": true, "for": true, "while": true, "do": true,
	"try": true, "catch": true, "finally": true, "switch": true,
	"function": true,
}

// Script rewrites every basic-block entry in src to increment a
// counter in the process-wide edge map, keyed by
// (sourceID ^ blockID) & (edgeMapSize-1), per the static AFL-style
// edge encoding. edgeMapSize must be a power of two.
//
// Block boundaries are found with a bracket-depth scanner that skips
// string, template, and comment content (regular-expression literals
// are not recognised and are scanned as ordinary tokens) rather than a full
// parser: it is a deliberately conservative approximation of "every
// basic block", erring toward under- rather than over-instrumenting
// ambiguous braces (object literals misidentified as blocks would
// corrupt the expression they sit in).
func Script(src string, sourceID uint64, edgeMapSize int) (string, error) {
	if edgeMapSize <= 0 || edgeMapSize&(edgeMapSize-1) != 0 {
		return "", fmt.Errorf("instrument: edge map size %d is not a positive power of two", edgeMapSize)
	}

	sites, err := findBlockEntries(src)
	if err != nil {
		return "", fmt.Errorf("instrument: %w", err)
	}

	var out strings.Builder
	out.WriteString(bootstrapScript(edgeMapSize))
	out.WriteByte('\n')

	blockID := uint32(0)
	out.WriteString(edgeIncrement(sourceID, blockID, edgeMapSize))
	blockID++

	last := 0
	for _, site := range sites {
		out.WriteString(src[last:site])
		out.WriteString(edgeIncrement(sourceID, blockID, edgeMapSize))
		blockID++
		last = site
	}
	out.WriteString(src[last:])

	return out.String(), nil
}

func edgeIncrement(sourceID uint64, blockID uint32, edgeMapSize int) string {
	idx := (sourceID ^ uint64(blockID)) & uint64(edgeMapSize-1)
	return "window." + Namespace + ".current[" + itoa(int(idx)) + "]++;"
}

// findBlockEntries returns, in ascending order, the byte offsets
// immediately after each '{' that opens a control-flow block.
func findBlockEntries(src string) ([]int, error) {
	var sites []int
	depth := 0
	lastSignificant := ""

	i := 0
	n := len(src)
	for i < n {
		c := src[i]
		switch {
		case c == '/' && i+1 < n && src[i+1] == '/':
			j := strings.IndexByte(src[i:], '\n')
			if j < 0 {
				i = n
			} else {
				i += j
			}
			continue
		case c == '/' && i+1 < n && src[i+1] == '*':
			j := strings.Index(src[i+2:], "*/")
			if j < 0 {
				return nil, fmt.Errorf("unterminated block comment")
			}
			i = i + 2 + j + 2
			continue
		case c == '"' || c == '\'':
			j, err := skipQuoted(src, i, c)
			if err != nil {
				return nil, err
			}
			i = j
			lastSignificant = "\"\""
			continue
		case c == '`':
			j, err := skipTemplate(src, i)
			if err != nil {
				return nil, err
			}
			i = j
			lastSignificant = "``"
			continue
		case c == '{':
			if blockKeywords[lastSignificant] || lastSignificant == "{" || lastSignificant == "}" || lastSignificant == ")" || lastSignificant == "=>" || lastSignificant == ";" || lastSignificant == "" {
				depth++
				sites = append(sites, i+1)
			} else {
				depth++
			}
			i++
			lastSignificant = "{"
			continue
		case c == '}':
			depth--
			i++
			lastSignificant = "}"
			continue
		case isIdentByte(c):
			j := i
			for j < n && isIdentByte(src[j]) {
				j++
			}
			lastSignificant = src[i:j]
			i = j
			continue
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
			continue
		default:
			// Operators/punctuation: track multi-char tokens we care
			// about ("=>"), otherwise record the single byte.
			if c == '=' && i+1 < n && src[i+1] == '>' {
				lastSignificant = "=>"
				i += 2
				continue
			}
			lastSignificant = string(c)
			i++
			continue
		}
	}
	return sites, nil
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func skipQuoted(src string, start int, quote byte) (int, error) {
	i := start + 1
	n := len(src)
	for i < n {
		switch src[i] {
		case '\\':
			i += 2
			continue
		case quote:
			return i + 1, nil
		case '\n':
			return 0, fmt.Errorf("unterminated string literal")
		}
		i++
	}
	return 0, fmt.Errorf("unterminated string literal")
}

func skipTemplate(src string, start int) (int, error) {
	i := start + 1
	n := len(src)
	depth := 0
	for i < n {
		switch {
		case src[i] == '\\':
			i += 2
			continue
		case src[i] == '`' && depth == 0:
			return i + 1, nil
		case strings.HasPrefix(src[i:], "${"):
			depth++
			i += 2
			continue
		case src[i] == '}' && depth > 0:
			depth--
			i++
			continue
		default:
			i++
		}
	}
	return 0, fmt.Errorf("unterminated template literal")
}
