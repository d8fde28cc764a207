package aggregate

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	"dolarprovider/internal/quote"
)

// ErrNoBase is returned when the reference quote is missing or has no sell price.
var ErrNoBase = errors.New("base quote unavailable")

// Gap compares a quote with the reference (usually the official rate).
type Gap struct {
	Dollar string  `json:"dollar"`
	Code   string  `json:"code"`
	Sell   float64 `json:"sell"`
	// Percent is the premium over the base sell price ("brecha").
	Percent float64 `json:"percent"`
	// Spread is sell minus buy; nil when the buy price is unknown.
	Spread *float64 `json:"spread"`
}

var hundred = decimal.NewFromInt(100)

// Gaps computes, for every successful quote with a sell price, the premium
// over base's sell price and the buy/sell spread. Values are rounded to two
// decimals. The base itself is included with a zero premium.
func Gaps(quotes []quote.Quote, base quote.Kind) ([]Gap, error) {
	latest := Latest(quotes)

	var baseSell decimal.Decimal
	found := false
	for _, q := range latest {
		if q.Code == base.Code && q.OK() && q.Sell != nil && *q.Sell > 0 {
			baseSell = decimal.NewFromFloat(*q.Sell)
			found = true
			break
		}
	}
	if !found {
		return nil, ErrNoBase
	}

	out := make([]Gap, 0, len(latest))
	for _, q := range latest {
		if !q.OK() || q.Sell == nil {
			continue
		}
		sell := decimal.NewFromFloat(*q.Sell)
		pct := sell.Div(baseSell).Sub(decimal.NewFromInt(1)).Mul(hundred).Round(2)
		g := Gap{
			Dollar:  q.Dollar,
			Code:    q.Code,
			Sell:    *q.Sell,
			Percent: pct.InexactFloat64(),
		}
		if q.Buy != nil {
			s := sell.Sub(decimal.NewFromFloat(*q.Buy)).Round(2).InexactFloat64()
			g.Spread = &s
		}
		out = append(out, g)
	}
	return out, nil
}

// Latest collapses records to one per kind, keeping the newest. Successful
// records win over error records regardless of age; for equal timestamps,
// later input wins. Output is in canonical kind order, unknown codes last.
func Latest(quotes []quote.Quote) []quote.Quote {
	byCode := make(map[string]quote.Quote, len(quotes))
	for _, q := range quotes {
		cur, ok := byCode[q.Code]
		if !ok || newer(q, cur) {
			byCode[q.Code] = q
		}
	}

	out := make([]quote.Quote, 0, len(byCode))
	for _, q := range byCode {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := rank(out[i].Code), rank(out[j].Code)
		if ri != rj {
			return ri < rj
		}
		return out[i].Code < out[j].Code
	})
	return out
}

func newer(q, cur quote.Quote) bool {
	if q.OK() != cur.OK() {
		return q.OK()
	}
	return !q.Timestamp.Before(cur.Timestamp)
}

func rank(code string) int {
	for i, k := range quote.AllKinds() {
		if k.Code == code {
			return i
		}
	}
	return len(quote.AllKinds())
}
