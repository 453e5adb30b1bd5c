package booking

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"cinema-checkout-cli/model"
)

// Pricing composes the subtotal with an optional promotion and loyalty points.
// total is always max(0, subtotal - promotion discount - points value).
//
// Pricing is not safe for concurrent use; the Manager serializes access.
type Pricing struct {
	promotions PromotionAPI
	points     PointsAPI
	pointValue int64
	logger     *zap.Logger

	subtotal      int64
	promotion     *model.Promotion
	usage         *model.PointsUsage
	balance       int64
	balanceLoaded bool
}

func NewPricing(promotions PromotionAPI, points PointsAPI, pointValue int64, logger *zap.Logger) *Pricing {
	if pointValue <= 0 {
		pointValue = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pricing{
		promotions: promotions,
		points:     points,
		pointValue: pointValue,
		logger:     logger.Named("pricing"),
	}
}

func (p *Pricing) SetSubtotal(subtotal int64) {
	if subtotal < 0 {
		subtotal = 0
	}
	p.subtotal = subtotal
}

func (p *Pricing) Subtotal() int64 { return p.subtotal }

func (p *Pricing) Total() int64 {
	total := p.subtotal - p.promotionDiscount() - p.pointsValue()
	if total < 0 {
		return 0
	}
	return total
}

func (p *Pricing) Promotion() *model.Promotion {
	if p.promotion == nil {
		return nil
	}
	promo := *p.promotion
	return &promo
}

func (p *Pricing) Points() *model.PointsUsage {
	if p.usage == nil {
		return nil
	}
	usage := *p.usage
	return &usage
}

// Balance returns the known loyalty balance and whether it was loaded.
func (p *Pricing) Balance() (int64, bool) { return p.balance, p.balanceLoaded }

// Restore puts back discounts recovered from a persisted session without calling the API.
func (p *Pricing) Restore(promotion *model.Promotion, usage *model.PointsUsage) {
	p.promotion = nil
	p.usage = nil
	if promotion != nil {
		promo := *promotion
		p.promotion = &promo
	}
	if usage != nil {
		u := *usage
		p.usage = &u
	}
}

// Reset drops every discount and the cached balance.
func (p *Pricing) Reset() {
	p.subtotal = 0
	p.promotion = nil
	p.usage = nil
	p.balance = 0
	p.balanceLoaded = false
}

// ApplyPromotion applies code to the booking and returns the discount. Re-applying
// the active code is a no-op that returns the same discount.
func (p *Pricing) ApplyPromotion(ctx context.Context, bookingID string, code string) (int64, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return 0, invalid("code", ErrEmptyCode)
	}
	if p.promotion != nil && p.promotion.Code == code {
		return p.promotion.DiscountAmount, nil
	}

	result, err := p.promotions.ApplyPromotion(ctx, bookingID, code)
	if err != nil {
		return 0, classify("apply promotion", err)
	}
	if !result.Success {
		return 0, &RejectedError{Op: "promotion " + code, Message: result.Message}
	}
	discount := result.DiscountAmount
	if discount < 0 {
		discount = 0
	}
	p.promotion = &model.Promotion{Code: code, DiscountAmount: discount}
	p.logger.Info("promotion applied", zap.String("booking_id", bookingID), zap.String("code", code), zap.Int64("discount", discount))
	return discount, nil
}

// RemovePromotion clears the promotion. The total returns to exactly what it was
// before the promotion was applied.
func (p *Pricing) RemovePromotion(ctx context.Context, bookingID string) error {
	if p.promotion == nil {
		return nil
	}
	ack, err := p.promotions.RemovePromotion(ctx, bookingID)
	if err != nil {
		return classify("remove promotion", err)
	}
	if !ack.Success {
		return &RejectedError{Op: "remove promotion", Message: ack.Message}
	}
	p.logger.Info("promotion removed", zap.String("booking_id", bookingID), zap.String("code", p.promotion.Code))
	p.promotion = nil
	return nil
}

// LoadBalance refreshes the loyalty balance from the points ledger.
func (p *Pricing) LoadBalance(ctx context.Context) (int64, error) {
	balance, err := p.points.GetPointsBalance(ctx)
	if err != nil {
		return 0, classify("load points balance", err)
	}
	p.balance = balance.Balance
	p.balanceLoaded = true
	return p.balance, nil
}

// ValidatePoints checks points against the balance and the amount left to pay
// without touching any state.
func (p *Pricing) ValidatePoints(points int64) error {
	if points <= 0 {
		return invalid("points", ErrNotPositive)
	}
	available := p.balance
	if p.usage != nil {
		available += p.usage.Points
	}
	if points > available {
		return invalid("points", ErrInsufficientBalance)
	}
	if points*p.pointValue > p.subtotal-p.promotionDiscount() {
		return invalid("points", ErrExceedsCap)
	}
	return nil
}

// ApplyPoints redeems points against the booking, replacing any earlier redemption.
// A rejected amount leaves pricing untouched.
func (p *Pricing) ApplyPoints(ctx context.Context, bookingID string, points int64) error {
	if points <= 0 {
		return invalid("points", ErrNotPositive)
	}
	if !p.balanceLoaded {
		if _, err := p.LoadBalance(ctx); err != nil {
			return err
		}
	}
	if err := p.ValidatePoints(points); err != nil {
		return err
	}

	ack, err := p.points.ApplyPoints(ctx, bookingID, points)
	if err != nil {
		return classify("apply points", err)
	}
	if !ack.Success {
		return &RejectedError{Op: "apply points", Message: ack.Message}
	}
	if p.usage != nil {
		p.balance += p.usage.Points
	}
	p.balance -= points
	p.usage = &model.PointsUsage{Points: points, Value: points * p.pointValue}
	p.logger.Info("points applied", zap.String("booking_id", bookingID), zap.Int64("points", points))
	return nil
}

// RemovePoints refunds redeemed points to the balance.
func (p *Pricing) RemovePoints(ctx context.Context, bookingID string) error {
	if p.usage == nil {
		return nil
	}
	ack, err := p.points.RemovePoints(ctx, bookingID)
	if err != nil {
		return classify("remove points", err)
	}
	if !ack.Success {
		return &RejectedError{Op: "remove points", Message: ack.Message}
	}
	p.balance += p.usage.Points
	p.usage = nil
	return nil
}

// ParsePoints turns user input into a points amount.
func ParsePoints(raw string) (int64, error) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	points, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, invalid("points", ErrNotInteger)
	}
	if points <= 0 {
		return 0, invalid("points", ErrNotPositive)
	}
	return points, nil
}

func (p *Pricing) promotionDiscount() int64 {
	if p.promotion == nil {
		return 0
	}
	return p.promotion.DiscountAmount
}

func (p *Pricing) pointsValue() int64 {
	if p.usage == nil {
		return 0
	}
	return p.usage.Value
}
