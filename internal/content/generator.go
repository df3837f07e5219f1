// Package content turns offers into publishable post text. A language
// model provider produces the primary copy; malformed output goes through
// a repair ladder and, as the last resort, a deterministic template. The
// caller always receives a usable post.
package content

import (
	"context"
	"strings"
	"time"

	"github.com/offercast/offercast/internal/logger"
	"github.com/offercast/offercast/internal/models"
)

// Tone selects the voice of the generated copy.
type Tone string

const (
	ToneCasual     Tone = "casual"
	ToneUrgent     Tone = "urgent"
	ToneEnthusiast Tone = "enthusiast"
)

// Options controls generation style and shape.
type Options struct {
	Tone            Tone
	MaxLength       int // 0 means unbounded
	IncludeEmojis   bool
	IncludeHashtags bool
}

// DefaultOptions returns the generation defaults.
func DefaultOptions() Options {
	return Options{
		Tone:            ToneCasual,
		IncludeEmojis:   true,
		IncludeHashtags: true,
	}
}

// GeneratedPost is the structured result of content generation.
type GeneratedPost struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Hashtags    []string `json:"hashtags"`
	Emojis      []string `json:"emojis"`
	FullPost    string   `json:"fullPost"`
}

// Provider is a language-model backend. Which provider runs is pure
// configuration; any implementation must return the raw completion text
// for the given prompt.
type Provider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Generator produces post content for offers.
type Generator struct {
	provider Provider
	timeout  time.Duration
	logger   logger.Logger
}

// NewGenerator creates a generator. A nil provider is valid: every call
// then uses the template fallback.
func NewGenerator(provider Provider, timeout time.Duration, log logger.Logger) *Generator {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Generator{
		provider: provider,
		timeout:  timeout,
		logger:   log,
	}
}

// Generate builds a post for the offer. Provider errors, timeouts, and
// unrepairable output all fall back to the deterministic template, so
// Generate never fails.
func (g *Generator) Generate(ctx context.Context, offer *models.Offer, opts Options) *GeneratedPost {
	// A pre-generated post on the offer wins over a fresh model call; the
	// collection pipeline already paid for that copy.
	if offer.PregeneratedPost != "" {
		post := &GeneratedPost{Title: offer.Title, FullPost: scrub(offer.PregeneratedPost)}
		if opts.MaxLength > 0 {
			post.FullPost = truncateKeepingLink(post.FullPost, offer.AffiliateURL, opts.MaxLength)
		}
		return post
	}

	if g.provider == nil {
		g.logger.Debug("no content provider configured, using template",
			logger.String("offer_id", offer.ID))
		return fallbackPost(offer, opts)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	raw, err := g.provider.Complete(callCtx, buildPrompt(offer, opts))
	if err != nil {
		g.logger.Warn("content provider failed, using template",
			logger.String("offer_id", offer.ID),
			logger.Error(err),
		)
		return fallbackPost(offer, opts)
	}

	post, err := repairAndParse(raw)
	if err != nil {
		g.logger.Warn("provider output unrepairable, using template",
			logger.String("offer_id", offer.ID),
			logger.Error(err),
		)
		return fallbackPost(offer, opts)
	}

	scrubPost(post)
	if post.FullPost == "" {
		post.FullPost = assembleFullPost(post, offer, opts)
	}
	if opts.MaxLength > 0 {
		post.FullPost = truncate(post.FullPost, opts.MaxLength)
	}

	return post
}

// scrubPost removes control characters from every string field.
func scrubPost(p *GeneratedPost) {
	p.Title = scrub(p.Title)
	p.Description = scrub(p.Description)
	p.FullPost = scrub(p.FullPost)
	for i := range p.Hashtags {
		p.Hashtags[i] = scrub(p.Hashtags[i])
	}
	for i := range p.Emojis {
		p.Emojis[i] = scrub(p.Emojis[i])
	}
}

// scrub drops ASCII control characters except newline and tab.
func scrub(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 && r != '\n' && r != '\t' {
			continue
		}
		if r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// truncate cuts s to at most maxLen runes, backing up to a word boundary
// when one is close.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	cut := string(runes[:maxLen])
	if idx := strings.LastIndexByte(cut, ' '); idx > maxLen*3/4 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut)
}

// assembleFullPost joins the structured fields into one message body.
func assembleFullPost(p *GeneratedPost, offer *models.Offer, opts Options) string {
	var parts []string
	if p.Title != "" {
		parts = append(parts, p.Title)
	}
	if p.Description != "" {
		parts = append(parts, p.Description)
	}
	parts = append(parts, "👉 "+offer.AffiliateURL)
	if opts.IncludeHashtags && len(p.Hashtags) > 0 {
		parts = append(parts, strings.Join(p.Hashtags, " "))
	}
	return strings.Join(parts, "\n\n")
}
