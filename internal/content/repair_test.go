package content

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairAndParse_ValidJSON(t *testing.T) {
	raw := `{"title":"Great Deal","description":"A phone","hashtags":["#deal"],"emojis":["🔥"],"fullPost":"Great Deal\n#deal"}`

	post, err := repairAndParse(raw)
	require.NoError(t, err)
	assert.Equal(t, "Great Deal", post.Title)
	assert.Equal(t, []string{"#deal"}, post.Hashtags)
}

func TestRepairAndParse_MarkdownFence(t *testing.T) {
	raw := "Here is your post:\n```json\n" +
		`{"title":"Fenced","description":"d","fullPost":"body"}` +
		"\n```\nHope that helps!"

	post, err := repairAndParse(raw)
	require.NoError(t, err)
	assert.Equal(t, "Fenced", post.Title)
}

func TestRepairAndParse_RawControlChars(t *testing.T) {
	// Raw newlines inside a string literal are invalid JSON and must be
	// recovered by the re-escape pass.
	raw := "{\"title\":\"Line one\nLine two\",\"description\":\"tab\there\",\"fullPost\":\"ok\"}"

	post, err := repairAndParse(raw)
	require.NoError(t, err)
	assert.Equal(t, "Line one\nLine two", post.Title)
	assert.Equal(t, "tab\there", post.Description)
}

func TestRepairAndParse_AlreadyEscapedSequencesUntouched(t *testing.T) {
	raw := `{"title":"has \"quotes\" and \\ backslash","fullPost":"a\nb"}`

	post, err := repairAndParse(raw)
	require.NoError(t, err)
	assert.Equal(t, `has "quotes" and \ backslash`, post.Title)
	assert.Equal(t, "a\nb", post.FullPost)
}

func TestRepairAndParse_RegexExtraction(t *testing.T) {
	// Structurally broken JSON (unbalanced brace inside, trailing junk)
	// that still carries recognizable fields.
	raw := `{"title": "Rescued", "description": "still here", "hashtags": ["#a", "#b"], "fullPost": "the body", INVALID`

	post, err := repairAndParse(raw)
	require.NoError(t, err)
	assert.Equal(t, "Rescued", post.Title)
	assert.Equal(t, "still here", post.Description)
	assert.Equal(t, "the body", post.FullPost)
	assert.Equal(t, []string{"#a", "#b"}, post.Hashtags)
}

func TestRepairAndParse_Hopeless(t *testing.T) {
	_, err := repairAndParse("sorry, I cannot help with that")
	assert.ErrorIs(t, err, ErrUnparseable)
}

func TestReescapeControlChars_OutsideStringsUntouched(t *testing.T) {
	// Newlines between fields are valid JSON whitespace and must not be
	// escaped.
	raw := "{\n\"title\": \"a\"\n}"
	assert.Equal(t, raw, reescapeControlChars(raw))
}

func TestExtractJSONObject(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"prose around", `text before {"a":1} text after`, `{"a":1}`},
		{"no braces", "just text", "just text"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, extractJSONObject(tc.in))
		})
	}
}

func TestScrub(t *testing.T) {
	assert.Equal(t, "clean text", scrub("clean\x00 text\x07"))
	assert.Equal(t, "keeps\nnewline\tand tab", scrub("keeps\nnewline\tand tab"))
}

func TestTruncate_WordBoundary(t *testing.T) {
	s := strings.Repeat("word ", 100)
	got := truncate(s, 50)
	assert.LessOrEqual(t, len([]rune(got)), 50)
	assert.False(t, strings.HasSuffix(got, " "))
}
