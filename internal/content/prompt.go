package content

import (
	"fmt"
	"strings"

	"github.com/offercast/offercast/internal/models"
)

// toneInstructions maps each tone to its style rule for the model.
var toneInstructions = map[Tone]string{
	ToneCasual:     "Write in a relaxed, friendly voice, like recommending a deal to a friend.",
	ToneUrgent:     "Write with urgency: limited stock, price may change any moment, act now.",
	ToneEnthusiast: "Write with genuine excitement about the product and the discount.",
}

// buildPrompt embeds the offer facts and style rules into a structured
// natural-language prompt. The response contract is strict JSON; the
// repair ladder handles the model ignoring it.
func buildPrompt(offer *models.Offer, opts Options) string {
	var b strings.Builder

	b.WriteString("You write short social media posts for discounted products.\n\n")
	b.WriteString("Product facts:\n")
	fmt.Fprintf(&b, "- Title: %s\n", offer.Title)
	fmt.Fprintf(&b, "- Original price: %s\n", models.FormatPrice(offer.OriginalPrice))
	fmt.Fprintf(&b, "- Current price: %s\n", models.FormatPrice(offer.CurrentPrice))
	fmt.Fprintf(&b, "- Discount: %d%%\n", offer.DiscountPercentage)
	if offer.Category != "" {
		fmt.Fprintf(&b, "- Category: %s\n", offer.Category)
	}
	if offer.HasCoupon() {
		fmt.Fprintf(&b, "- Coupon code: %s\n", offer.FirstCoupon())
	}

	b.WriteString("\nStyle rules:\n")
	instruction, ok := toneInstructions[opts.Tone]
	if !ok {
		instruction = toneInstructions[ToneCasual]
	}
	fmt.Fprintf(&b, "- %s\n", instruction)
	if opts.IncludeEmojis {
		b.WriteString("- Use a few fitting emojis.\n")
	} else {
		b.WriteString("- Do not use emojis.\n")
	}
	if opts.IncludeHashtags {
		b.WriteString("- Include 3 to 5 relevant hashtags.\n")
	} else {
		b.WriteString("- Do not include hashtags.\n")
	}
	if opts.MaxLength > 0 {
		fmt.Fprintf(&b, "- The fullPost must not exceed %d characters.\n", opts.MaxLength)
	}
	b.WriteString("- Always mention the current price.\n")
	b.WriteString("- Do not invent facts not listed above.\n")

	b.WriteString("\nRespond ONLY with valid JSON, no text outside the JSON. Format:\n")
	b.WriteString(`{"title":"...","description":"...","hashtags":["#a"],"emojis":["🔥"],"fullPost":"..."}`)
	b.WriteString("\n")

	return b.String()
}
