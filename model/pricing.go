package model

import (
	"strconv"
	"strings"
)

type Promotion struct {
	Code           string `json:"code"`
	DiscountAmount int64  `json:"discountAmount"`
}

type PointsUsage struct {
	Points int64 `json:"points"`
	Value  int64 `json:"value"`
}

type PromotionResult struct {
	Success        bool   `json:"success"`
	DiscountAmount int64  `json:"discountAmount"`
	Message        string `json:"message,omitempty"`
}

type PointsRequest struct {
	Points int64 `json:"points" validate:"gt=0"`
}

type PointsBalance struct {
	Balance int64 `json:"balance"`
}

// Ack is the generic {success, message} response body.
type Ack struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// FormatAmount renders an amount in minor units with thousands separators.
func FormatAmount(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String()
}
