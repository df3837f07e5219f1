// Package models defines the shared domain types for the publishing engine.
package models

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Offer is a collected discounted-product record to be published.
// Offers are produced by the collection pipeline and are read-only here.
type Offer struct {
	ID                 string         `db:"id"                  json:"id"`
	Title              string         `db:"title"               json:"title"`
	OriginalPrice      float64        `db:"original_price"      json:"original_price"`
	CurrentPrice       float64        `db:"current_price"       json:"current_price"`
	DiscountPercentage int            `db:"discount_percentage" json:"discount_percentage"`
	Category           string         `db:"category"            json:"category"`
	AffiliateURL       string         `db:"affiliate_url"       json:"affiliate_url"`
	CouponCodes        pq.StringArray `db:"coupon_codes"        json:"coupon_codes,omitempty"`
	ImageURL           string         `db:"image_url"           json:"image_url,omitempty"`
	PregeneratedPost   string         `db:"pregenerated_post"   json:"pregenerated_post,omitempty"`
}

// FormatPrice renders a price with a comma decimal separator, the format
// used in all published text (e.g. 120.00 -> "120,00").
func FormatPrice(v float64) string {
	return strings.ReplaceAll(fmt.Sprintf("%.2f", v), ".", ",")
}

// HasCoupon reports whether the offer carries at least one coupon code.
func (o *Offer) HasCoupon() bool {
	return len(o.CouponCodes) > 0
}

// FirstCoupon returns the first coupon code, or an empty string.
func (o *Offer) FirstCoupon() string {
	if len(o.CouponCodes) == 0 {
		return ""
	}
	return o.CouponCodes[0]
}
