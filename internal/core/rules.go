package core

import (
	"fmt"

	"exchange-core/internal/precise"
)

var (
	ErrBelowMinAmount  = fmt.Errorf("%w: amount below min", ErrInvalidOrder)
	ErrAboveMaxAmount  = fmt.Errorf("%w: amount above max", ErrInvalidOrder)
	ErrBelowMinCost    = fmt.Errorf("%w: cost below min", ErrInvalidOrder)
	ErrPriceOutOfRange = fmt.Errorf("%w: price outside limits", ErrInvalidOrder)
)

// NormalizeOrder snaps the request onto the market grid: amount down to the
// amount tick, price and trigger price down to the price tick. It then checks
// the market limits.
func NormalizeOrder(req OrderRequest, m Market) (OrderRequest, error) {
	if req.Side != Buy && req.Side != Sell {
		return req, fmt.Errorf("%w: side %q", ErrInvalidOrder, req.Side)
	}
	if !req.Amount.IsPositive() {
		return req, fmt.Errorf("%w: amount must be positive", ErrInvalidOrder)
	}
	req.Amount = req.Amount.Quantize(m.Precision.Amount, precise.RoundDown)
	if !req.Amount.IsPositive() {
		return req, fmt.Errorf("%w: amount below amount tick %s", ErrInvalidOrder, m.Precision.Amount)
	}
	if lim := m.Limits.Amount; lim.Min.IsPositive() && req.Amount.Cmp(lim.Min) < 0 {
		return req, ErrBelowMinAmount
	}
	if lim := m.Limits.Amount; lim.Max.IsPositive() && req.Amount.Cmp(lim.Max) > 0 {
		return req, ErrAboveMaxAmount
	}

	switch req.Type {
	case OrderStopLimit, OrderStopMarket:
		if !req.TriggerPrice.IsPositive() {
			return req, fmt.Errorf("%w: %s order requires a trigger price", ErrInvalidOrder, req.Type)
		}
		req.TriggerPrice = req.TriggerPrice.Quantize(m.Precision.Price, precise.RoundDown)
	}

	switch req.Type {
	case OrderMarket, OrderStopMarket:
		if !req.Price.IsPositive() {
			return req, nil
		}
		return req, checkCost(req, m)
	case OrderLimit, OrderStopLimit:
	default:
		return req, fmt.Errorf("%w: order type %q", ErrInvalidOrder, req.Type)
	}

	if !req.Price.IsPositive() {
		return req, fmt.Errorf("%w: %s order requires a price", ErrInvalidOrder, req.Type)
	}
	req.Price = req.Price.Quantize(m.Precision.Price, precise.RoundDown)
	if !req.Price.IsPositive() {
		return req, fmt.Errorf("%w: price below price tick %s", ErrInvalidOrder, m.Precision.Price)
	}
	if lim := m.Limits.Price; (lim.Min.IsPositive() && req.Price.Cmp(lim.Min) < 0) ||
		(lim.Max.IsPositive() && req.Price.Cmp(lim.Max) > 0) {
		return req, ErrPriceOutOfRange
	}
	return req, checkCost(req, m)
}

func checkCost(req OrderRequest, m Market) error {
	if floor := m.Limits.Cost.Min; floor.IsPositive() && req.Price.Mul(req.Amount).Cmp(floor) < 0 {
		return ErrBelowMinCost
	}
	return nil
}

// FeeRate picks the maker or taker rate for the given traded volume. Tiered
// schedules use the highest tier whose threshold the volume reaches.
func FeeRate(m Market, liquidity Liquidity, volume precise.Decimal) precise.Decimal {
	rate, tiers := m.Fees.Taker, m.Fees.TakerTiers
	if liquidity == Maker {
		rate, tiers = m.Fees.Maker, m.Fees.MakerTiers
	}
	if len(tiers) == 0 || !volume.Known() {
		return rate
	}
	picked := tiers[0].Rate
	for _, tier := range tiers {
		if volume.Cmp(tier.Threshold) < 0 {
			break
		}
		picked = tier.Rate
	}
	return picked
}

// CalculateFee estimates the fee of a fill in the quote currency. Percentage
// schedules charge amount × price × rate, flat schedules charge rate. The cost
// is rounded up to the price tick.
func CalculateFee(m Market, amount, price precise.Decimal, liquidity Liquidity, volume precise.Decimal) Fee {
	rate := FeeRate(m, liquidity, volume)
	cost := rate
	if m.Fees.Percentage {
		cost = amount.Mul(price).Mul(rate)
	}
	if cost.Known() && m.Precision.Price.IsPositive() {
		cost = cost.Quantize(m.Precision.Price, precise.RoundUp)
	}
	return Fee{Currency: m.Quote, Cost: cost, Rate: rate}
}
