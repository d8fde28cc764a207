package quote

import (
	"context"
	"time"
)

// Quote is the normalized record returned by all providers.
// Prices are nil when the page did not publish them or they could not be parsed.
type Quote struct {
	Dollar        string    `json:"dollar"`
	Code          string    `json:"code"`
	Buy           *float64  `json:"buy"`
	Sell          *float64  `json:"sell"`
	Variation     *float64  `json:"variation"`
	VariationText string    `json:"variation_text,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Source        string    `json:"source"`
	Error         string    `json:"error,omitempty"`
}

// OK reports whether the record carries data rather than an error.
func (q Quote) OK() bool { return q.Error == "" }

// Kind returns the quote type of the record, matched by code.
func (q Quote) Kind() (Kind, bool) { return KindByCode(q.Code) }

type Provider interface {
	Name() string
	// Fetch returns one record per requested kind, in request order.
	// Per-kind failures are reported as records with Error set; the returned
	// error is reserved for failures of the whole call.
	Fetch(ctx context.Context, kinds []Kind) ([]Quote, error)
}

// Failed builds the null-price record used when a kind could not be retrieved.
func Failed(k Kind, source string, err error, ts time.Time) Quote {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Quote{
		Dollar:    k.Label,
		Code:      k.Code,
		Timestamp: ts,
		Source:    source,
		Error:     msg,
	}
}

// Float returns a pointer to v, for building records.
func Float(v float64) *float64 { return &v }
