package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"dolarprovider/internal/aggregate"
	"dolarprovider/internal/history"
	"dolarprovider/internal/quote"
)

// maxDollars bounds the list accepted by /api/quotes.
const maxDollars = 16

type server struct {
	provider quote.Provider
	// history, when set, backs failed live quotes with the last recorded one.
	history history.DB
	logger  *zap.Logger
	timeout time.Duration
}

type quotesResponse struct {
	Quotes []quote.Quote `json:"quotes"`
}

type gapsResponse struct {
	Base string          `json:"base"`
	Gaps []aggregate.Gap `json:"gaps"`
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /api/quotes", s.handleGetQuotes)
	mux.HandleFunc("POST /api/quotes", s.handlePostQuotes)
	mux.HandleFunc("GET /api/quotes/{dollar}", s.handleGetQuote)
	mux.HandleFunc("GET /api/gaps", s.handleGaps)
	return mux
}

func (s *server) handler() http.Handler {
	return withRequestLog(s.logger, withJSONHeaders(withGzip(recoverPanic(s.logger, limitBody(s.routes())))))
}

func (s *server) handleGetQuotes(w http.ResponseWriter, r *http.Request) {
	names := quote.SplitCSV(r.URL.Query().Get("dollars"))
	s.writeQuotes(w, r, names)
}

type postBody struct {
	Dollars []string `json:"dollars"`
}

func (s *server) handlePostQuotes(w http.ResponseWriter, r *http.Request) {
	var b postBody
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&b); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if len(b.Dollars) == 0 {
		http.Error(w, "dollars cannot be empty", http.StatusBadRequest)
		return
	}
	s.writeQuotes(w, r, b.Dollars)
}

func (s *server) writeQuotes(w http.ResponseWriter, r *http.Request, names []string) {
	if len(names) > maxDollars {
		http.Error(w, fmt.Sprintf("too many dollars (max %d)", maxDollars), http.StatusBadRequest)
		return
	}
	kinds, err := quote.ParseKinds(names)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	qs, err := s.fetch(r.Context(), kinds)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, quotesResponse{Quotes: qs})
}

func (s *server) handleGetQuote(w http.ResponseWriter, r *http.Request) {
	k, err := quote.ParseKind(r.PathValue("dollar"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	qs, err := s.fetch(r.Context(), []quote.Kind{k})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	if len(qs) == 0 {
		http.Error(w, "no quote returned", http.StatusBadGateway)
		return
	}
	status := http.StatusOK
	if !qs[0].OK() {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, qs[0])
}

func (s *server) handleGaps(w http.ResponseWriter, r *http.Request) {
	baseName := r.URL.Query().Get("base")
	if strings.TrimSpace(baseName) == "" {
		baseName = quote.Oficial.Label
	}
	base, err := quote.ParseKind(baseName)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	qs, err := s.fetch(r.Context(), quote.AllKinds())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	gaps, err := aggregate.Gaps(qs, base)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, gapsResponse{Base: base.Label, Gaps: gaps})
}

func (s *server) fetch(rctx context.Context, kinds []quote.Kind) ([]quote.Quote, error) {
	ctx, cancel := context.WithTimeout(rctx, s.timeout)
	defer cancel()
	qs, err := s.provider.Fetch(ctx, kinds)
	if err != nil {
		return nil, err
	}
	return s.backfill(ctx, qs), nil
}

// backfill replaces failed records with the last recorded quote of the same
// kind, keeping the request order.
func (s *server) backfill(ctx context.Context, qs []quote.Quote) []quote.Quote {
	if s.history == nil {
		return qs
	}
	out := qs
	copied := false
	for i, q := range qs {
		if q.OK() {
			continue
		}
		k, ok := q.Kind()
		if !ok {
			continue
		}
		prev, err := history.Latest(ctx, s.history, k)
		if err != nil {
			if !errors.Is(err, history.ErrNotFound) {
				s.logger.Warn("history lookup failed", zap.String("dollar", k.Label), zap.Error(err))
			}
			continue
		}
		if !copied {
			out = append([]quote.Quote(nil), qs...)
			copied = true
		}
		out[i] = aggregate.Latest([]quote.Quote{q, prev})[0]
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
