package content

import (
	"fmt"
	"strings"

	"github.com/offercast/offercast/internal/models"
)

// fallbackPost synthesizes a post from the offer facts alone. This is the
// deterministic last resort and must never fail: every field is derived
// from the offer, no external calls.
func fallbackPost(offer *models.Offer, opts Options) *GeneratedPost {
	price := models.FormatPrice(offer.CurrentPrice)
	original := models.FormatPrice(offer.OriginalPrice)

	var title, description string
	switch opts.Tone {
	case ToneUrgent:
		title = fmt.Sprintf("⚡ %d%% OFF: %s", offer.DiscountPercentage, offer.Title)
		description = fmt.Sprintf("Was %s, now only %s. Price can change at any moment!", original, price)
	case ToneEnthusiast:
		title = fmt.Sprintf("🔥 Amazing find: %s", offer.Title)
		description = fmt.Sprintf("Down from %s to %s, a full %d%% off. One of the best deals we have seen in %s.",
			original, price, offer.DiscountPercentage, categoryOrDefault(offer))
	default: // ToneCasual
		title = fmt.Sprintf("💰 %s with %d%% off", offer.Title, offer.DiscountPercentage)
		description = fmt.Sprintf("From %s for %s. Worth a look if you were waiting for a price drop.", original, price)
	}

	if !opts.IncludeEmojis {
		title = stripLeadingEmoji(title)
	}

	post := &GeneratedPost{
		Title:       title,
		Description: description,
		Hashtags:    fallbackHashtags(offer),
		Emojis:      []string{"🔥", "💰"},
	}
	if !opts.IncludeHashtags {
		post.Hashtags = nil
	}
	if opts.IncludeEmojis {
		coupon := ""
		if offer.HasCoupon() {
			coupon = fmt.Sprintf("\n🎟️ Coupon: %s", offer.FirstCoupon())
		}
		post.FullPost = fmt.Sprintf("%s\n\n%s%s\n\n👉 %s", title, description, coupon, offer.AffiliateURL)
	} else {
		coupon := ""
		if offer.HasCoupon() {
			coupon = fmt.Sprintf("\nCoupon: %s", offer.FirstCoupon())
		}
		post.FullPost = fmt.Sprintf("%s\n\n%s%s\n\n%s", title, description, coupon, offer.AffiliateURL)
	}
	if len(post.Hashtags) > 0 {
		post.FullPost += "\n\n" + strings.Join(post.Hashtags, " ")
	}
	if opts.MaxLength > 0 {
		post.FullPost = truncateKeepingLink(post.FullPost, offer.AffiliateURL, opts.MaxLength)
	}

	return post
}

func categoryOrDefault(offer *models.Offer) string {
	if offer.Category != "" {
		return offer.Category
	}
	return "this category"
}

func fallbackHashtags(offer *models.Offer) []string {
	tags := []string{"#deal", "#discount"}
	if offer.Category != "" {
		tag := "#" + strings.ToLower(strings.ReplaceAll(offer.Category, " ", ""))
		tags = append(tags, tag)
	}
	return tags
}

func stripLeadingEmoji(s string) string {
	for i, r := range s {
		if r < 0x2000 { // first non-symbol rune ends the emoji prefix
			return strings.TrimSpace(s[i:])
		}
	}
	return s
}

// truncateKeepingLink shortens the post to maxLen while always keeping
// the affiliate link in the result. The descriptive text gives way, the
// link never does.
func truncateKeepingLink(post, link string, maxLen int) string {
	if len([]rune(post)) <= maxLen {
		return post
	}

	suffix := "\n👉 " + link
	budget := maxLen - len([]rune(suffix))
	if budget <= 0 {
		return link
	}

	body := post
	if idx := strings.Index(body, link); idx >= 0 {
		body = strings.TrimRight(strings.Replace(body, link, "", 1), "👉 \n")
	}

	runes := []rune(body)
	if len(runes) > budget {
		runes = runes[:budget]
	}
	return strings.TrimSpace(string(runes)) + suffix
}
