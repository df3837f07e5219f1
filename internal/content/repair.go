package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnparseable is returned when every repair strategy fails.
var ErrUnparseable = errors.New("model output unparseable")

// repairAndParse recovers a GeneratedPost from near-JSON model output.
// Models frequently emit raw newlines and control characters inside
// string values, which encoding/json rejects. Three strategies run in
// order, first success wins:
//
//  1. direct parse of the extracted JSON object
//  2. re-escape of control characters found inside string literals,
//     then re-parse
//  3. regex extraction of the known fields from the raw text
func repairAndParse(raw string) (*GeneratedPost, error) {
	candidate := extractJSONObject(raw)

	var post GeneratedPost
	if err := json.Unmarshal([]byte(candidate), &post); err == nil {
		return &post, nil
	}

	repaired := reescapeControlChars(candidate)
	if err := json.Unmarshal([]byte(repaired), &post); err == nil {
		return &post, nil
	}

	if extracted := extractFields(raw); extracted != nil {
		return extracted, nil
	}

	return nil, ErrUnparseable
}

// extractJSONObject trims everything outside the outermost braces, which
// drops markdown fences and prose the model wraps around the JSON.
func extractJSONObject(raw string) string {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start == -1 || end == -1 || end <= start {
		return raw
	}
	return raw[start : end+1]
}

// reescapeControlChars walks the text character by character and escapes
// raw control characters that appear inside string literals. An escape
// flag tracks in-progress escape sequences so already-escaped characters
// pass through untouched.
func reescapeControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)

	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if escaped {
			b.WriteByte(c)
			escaped = false
			continue
		}

		switch {
		case c == '\\' && inString:
			b.WriteByte(c)
			escaped = true
		case c == '"':
			inString = !inString
			b.WriteByte(c)
		case inString && c < 0x20:
			switch c {
			case '\n':
				b.WriteString(`\n`)
			case '\r':
				b.WriteString(`\r`)
			case '\t':
				b.WriteString(`\t`)
			default:
				fmt.Fprintf(&b, `\u%04x`, c)
			}
		default:
			b.WriteByte(c)
		}
	}

	return b.String()
}

// Field extraction patterns for the last-resort strategy. (?s) lets a
// value run across raw newlines the model failed to escape.
var (
	titleRe       = regexp.MustCompile(`(?s)"title"\s*:\s*"(.*?)"\s*[,}]`)
	descriptionRe = regexp.MustCompile(`(?s)"description"\s*:\s*"(.*?)"\s*[,}]`)
	fullPostRe    = regexp.MustCompile(`(?s)"fullPost"\s*:\s*"(.*?)"\s*[,}]`)
	hashtagsRe    = regexp.MustCompile(`(?s)"hashtags"\s*:\s*\[(.*?)\]`)
	emojisRe      = regexp.MustCompile(`(?s)"emojis"\s*:\s*\[(.*?)\]`)
	arrayItemRe   = regexp.MustCompile(`"([^"]*)"`)
)

// extractFields pulls the known fields directly out of the raw text.
// Returns nil when nothing usable was found.
func extractFields(raw string) *GeneratedPost {
	post := &GeneratedPost{}
	found := false

	if m := titleRe.FindStringSubmatch(raw); m != nil {
		post.Title = unescapeBasic(m[1])
		found = true
	}
	if m := descriptionRe.FindStringSubmatch(raw); m != nil {
		post.Description = unescapeBasic(m[1])
		found = true
	}
	if m := fullPostRe.FindStringSubmatch(raw); m != nil {
		post.FullPost = unescapeBasic(m[1])
		found = true
	}
	if m := hashtagsRe.FindStringSubmatch(raw); m != nil {
		post.Hashtags = extractArrayItems(m[1])
	}
	if m := emojisRe.FindStringSubmatch(raw); m != nil {
		post.Emojis = extractArrayItems(m[1])
	}

	if !found {
		return nil
	}
	return post
}

func extractArrayItems(inner string) []string {
	matches := arrayItemRe.FindAllStringSubmatch(inner, -1)
	items := make([]string, 0, len(matches))
	for _, m := range matches {
		if item := strings.TrimSpace(m[1]); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// unescapeBasic resolves the common escapes regex extraction leaves
// behind.
func unescapeBasic(s string) string {
	r := strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\"`, `"`, `\\`, `\`)
	return r.Replace(s)
}
