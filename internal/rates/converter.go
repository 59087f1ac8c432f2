package rates

import (
	"context"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
)

// Quoter resolves rates; *Provider implements it.
type Quoter interface {
	Quote(ctx context.Context, source, target core.Currency, asOf core.Date) (Quote, error)
}

// Conversion is the outcome of converting one amount.
type Conversion struct {
	Amount    decimal.Decimal
	From      core.Currency
	Converted decimal.Decimal
	To        core.Currency
	Rate      decimal.Decimal
	RateAsOf  core.Date
}

type Converter struct {
	quoter Quoter
}

func NewConverter(q Quoter) *Converter {
	return &Converter{quoter: q}
}

// Convert returns amount expressed in to, rounded half away from zero to the
// minor units of to. Converting to the same currency returns amount unchanged.
func (c *Converter) Convert(ctx context.Context, amount decimal.Decimal, from, to core.Currency, asOf core.Date) (decimal.Decimal, error) {
	conv, err := c.Conversion(ctx, amount, from, to, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	return conv.Converted, nil
}

// Conversion is Convert plus the rate that was applied.
func (c *Converter) Conversion(ctx context.Context, amount decimal.Decimal, from, to core.Currency, asOf core.Date) (Conversion, error) {
	q, err := c.quoter.Quote(ctx, from, to, asOf)
	if err != nil {
		return Conversion{}, err
	}
	out := Conversion{
		Amount:   amount,
		From:     from,
		To:       to,
		Rate:     q.Rate,
		RateAsOf: q.AsOf,
	}
	if from == to {
		out.Converted = amount
		return out, nil
	}
	out.Converted = to.Round(amount.Mul(q.Rate))
	return out, nil
}
