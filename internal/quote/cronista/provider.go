package cronista

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"dolarprovider/internal/quote"
)

// ErrNoQuote is reported when a page carries no parseable buy or sell price.
var ErrNoQuote = errors.New("no quote found on page")

type Config struct {
	Name      string
	Selectors Selectors
	// MaxConcurrency bounds parallel page downloads. Defaults to 1, which
	// fetches the pages one after another.
	MaxConcurrency int
	// FetchTimeout bounds a shared page download. Callers stop waiting when
	// their own context ends, but the download itself only ends on this
	// timeout. Defaults to 30s.
	FetchTimeout time.Duration
	// Now overrides the clock used for record timestamps.
	Now func() time.Time
}

// Provider scrapes quote cards from Mercados Online pages.
type Provider struct {
	cfg    Config
	client *Client
	logger *zap.Logger

	// coalesce concurrent downloads of the same page
	sf singleflight.Group
}

func New(cfg Config, client *Client, logger *zap.Logger) *Provider {
	if cfg.Name == "" {
		cfg.Name = "Cronista"
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.Selectors = cfg.Selectors.withDefaults()
	if client == nil {
		client = NewClient()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{cfg: cfg, client: client, logger: logger.Named("cronista")}
}

func (p *Provider) Name() string { return p.cfg.Name }

// Fetch scrapes each requested kind. An empty list means all kinds.
func (p *Provider) Fetch(ctx context.Context, kinds []quote.Kind) ([]quote.Quote, error) {
	if len(kinds) == 0 {
		kinds = quote.AllKinds()
	}
	out := make([]quote.Quote, len(kinds))

	var g errgroup.Group
	g.SetLimit(p.cfg.MaxConcurrency)
	for i, k := range kinds {
		g.Go(func() error {
			out[i] = p.Scrape(ctx, k)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Scrape retrieves a single kind. It never fails: problems are reported in
// the record's Error field.
func (p *Provider) Scrape(ctx context.Context, k quote.Kind) quote.Quote {
	ts := p.cfg.Now().UTC()
	source := fmt.Sprintf("%s:%s", p.cfg.Name, k.Code)

	body, err := p.fetchPage(ctx, k.Code)
	if err != nil {
		p.logger.Warn("page fetch failed", zap.String("dollar", k.Label), zap.Error(err))
		return quote.Failed(k, source, err, ts)
	}

	frags, err := Extract(bytes.NewReader(body), p.cfg.Selectors)
	if err != nil {
		p.logger.Warn("page parse failed", zap.String("dollar", k.Label), zap.Error(err))
		return quote.Failed(k, source, err, ts)
	}

	q, err := p.build(k, source, ts, frags)
	if err != nil {
		p.logger.Warn("quote extraction failed",
			zap.String("dollar", k.Label),
			zap.String("buy", frags.Buy),
			zap.String("sell", frags.Sell),
			zap.Error(err))
		return quote.Failed(k, source, err, ts)
	}
	return q
}

// fetchPage downloads code once for all concurrent callers. The shared
// download is detached from any single caller's cancellation.
func (p *Provider) fetchPage(ctx context.Context, code string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := p.sf.DoChan(code, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.FetchTimeout)
		defer cancel()
		return p.client.FetchPage(fctx, code)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// build turns page fragments into a record. Fields that fail to parse stay
// nil; an error is returned only when neither price could be read.
func (p *Provider) build(k quote.Kind, source string, ts time.Time, f Fragments) (quote.Quote, error) {
	q := quote.Quote{
		Dollar:        k.Label,
		Code:          k.Code,
		VariationText: f.Variation,
		Timestamp:     ts,
		Source:        source,
	}
	var errs []error
	if f.Buy != "" {
		if d, err := ParseNumber(f.Buy); err == nil {
			q.Buy = quote.Float(d.InexactFloat64())
		} else {
			errs = append(errs, fmt.Errorf("buy: %w", err))
		}
	}
	if f.Sell != "" {
		if d, err := ParseNumber(f.Sell); err == nil {
			q.Sell = quote.Float(d.InexactFloat64())
		} else {
			errs = append(errs, fmt.Errorf("sell: %w", err))
		}
	}
	if f.Variation != "" {
		if d, err := ParsePercent(f.Variation); err == nil {
			q.Variation = quote.Float(d.InexactFloat64())
		} else {
			p.logger.Warn("variation unparseable",
				zap.String("dollar", k.Label),
				zap.String("raw", f.Variation),
				zap.Error(err))
		}
	}
	if q.Buy == nil && q.Sell == nil {
		if len(errs) == 0 {
			return quote.Quote{}, ErrNoQuote
		}
		return quote.Quote{}, fmt.Errorf("%w: %w", ErrNoQuote, errors.Join(errs...))
	}
	return q, nil
}
