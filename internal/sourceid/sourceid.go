// Package sourceid computes the content identity assigned to an
// intercepted response and the header-rewrite policy that keeps a
// browser willing to load an instrumented body in place of the
// original.
package sourceid

import (
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/bombadil/exerciser/pkg/types"
)

// headers stripped unconditionally from an instrumented response.
// The body size, encoding, and digest all changed under rewriting;
// CDP always hands us decoded bytes regardless of the original
// transfer-encoding.
var strippedHeaders = map[string]bool{
	"etag":              true,
	"content-length":    true,
	"content-encoding":  true,
	"transfer-encoding": true,
	"digest":            true,
}

// SourceID derives a stable 64-bit identity for a response: the ETag
// if present (case-insensitive lookup), otherwise a hash of the body.
func SourceID(headers map[string]string, body []byte) uint64 {
	if etag, ok := lookupHeader(headers, "etag"); ok && etag != "" {
		return xxhash.Sum64String(etag)
	}
	return xxhash.Sum64(body)
}

func lookupHeader(headers map[string]string, name string) (string, bool) {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// BuildResponseHeaders applies the §4.1 header policy: strip the
// unconditional set, sanitise or drop Content-Security-Policy
// depending on resource kind, and append a synthetic etag carrying
// sourceID. content-type is preserved verbatim.
func BuildResponseHeaders(headers map[string]string, kind types.ResourceKind, sourceID uint64) map[string]string {
	out := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		lower := strings.ToLower(k)
		if strippedHeaders[lower] {
			continue
		}
		if lower == "content-security-policy" || lower == "content-security-policy-report-only" {
			if kind == types.ResourceScript {
				continue
			}
			sanitised, ok := SanitizeCSP(v)
			if !ok {
				continue
			}
			out[k] = sanitised
			continue
		}
		out[k] = v
	}
	out["etag"] = uint64ToString(sourceID)
	return out
}

func uint64ToString(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// strippedSourceExpressionPrefixes lists the CSP source-expression prefixes
// removed from script-src/script-src-elem/default-src. Hash- and
// nonce-pinned sources no longer match our rewritten body; strict-dynamic
// would otherwise grant it blanket trust anyway.
var strippedSourceExpressionPrefixes = []string{
	"'sha256-", "'sha384-", "'sha512-", "'nonce-",
}

const strippedStrictDynamic = "'strict-dynamic'"

// directivesDroppedEntirely lists CSP directive names removed outright
// regardless of content, since report endpoints would otherwise see a
// stream of reports about our own rewriting.
var directivesDroppedEntirely = map[string]bool{
	"report-uri": true,
	"report-to":  true,
}

// SanitizeCSP rewrites a Content-Security-Policy header value for a
// Document response. It returns (sanitised, false) when the result
// would be empty, signalling the caller to omit the header entirely.
func SanitizeCSP(csp string) (string, bool) {
	directives := splitDirectives(csp)

	hasScriptSrc := false
	for _, d := range directives {
		if d.name == "script-src" || d.name == "script-src-elem" {
			hasScriptSrc = true
			break
		}
	}

	kept := make([]string, 0, len(directives))
	for _, d := range directives {
		if directivesDroppedEntirely[d.name] {
			continue
		}

		targets := d.name == "script-src" || d.name == "script-src-elem"
		if d.name == "default-src" && !hasScriptSrc {
			targets = true
		}

		values := d.values
		if targets {
			values = stripSourceExpressions(values)
		}

		if len(values) == 0 {
			// An emptied directive is omitted rather than emitted bare:
			// an empty script-src blocks all scripts, which is worse
			// than not constraining them at all.
			continue
		}
		kept = append(kept, d.name+" "+strings.Join(values, " "))
	}

	if len(kept) == 0 {
		return "", false
	}
	return strings.Join(kept, "; "), true
}

type directive struct {
	name   string
	values []string
}

func splitDirectives(csp string) []directive {
	var out []directive
	for _, part := range strings.Split(csp, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		out = append(out, directive{
			name:   strings.ToLower(fields[0]),
			values: fields[1:],
		})
	}
	return out
}

func stripSourceExpressions(values []string) []string {
	kept := make([]string, 0, len(values))
	for _, v := range values {
		if v == strippedStrictDynamic {
			continue
		}
		stripped := false
		for _, prefix := range strippedSourceExpressionPrefixes {
			if strings.HasPrefix(v, prefix) {
				stripped = true
				break
			}
		}
		if stripped {
			continue
		}
		kept = append(kept, v)
	}
	return kept
}
