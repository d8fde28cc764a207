package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"dolarprovider/internal/quote"
)

func card(class, value string) string {
	return `<div class="` + class + `"><div>label</div><div>` + value + `</div></div>`
}

var pages = map[string]string{
	"ARS":    card("markets-online__card--buy", "$1.050,00") + card("markets-online__card--sell", "$1.100,00"),
	"ARSB":   card("markets-online__card--buy", "$1.180,00") + card("markets-online__card--sell", "$1.210,00") + card("markets-online__card--percentage", "+0,52%"),
	"ARSMEP": card("markets-online__card--buy", "$1.150,00") + card("markets-online__card--sell", "$1.155,00"),
}

func site(t *testing.T) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := strings.Trim(strings.TrimPrefix(r.URL.Path, "/MercadosOnline/moneda/"), "/")
		body, ok := pages[code]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("<html><body>" + body + "</body></html>"))
	}))
	t.Cleanup(srv.Close)
	t.Setenv("DOTENV_FILE", filepath.Join(t.TempDir(), "none.env"))
	t.Setenv("CRONISTA_BASE_URL", srv.URL)
	t.Setenv("CRONISTA_MAX_RPM", "0")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("POSTGRES_ENABLED", "false")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestQuotes_Table(t *testing.T) {
	site(t)
	out, err := run(t, "quotes", "blue", "ccl")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[0], "DOLLAR"))
	require.Contains(t, lines[1], "Blue")
	require.Contains(t, lines[1], "1210.00")
	require.Contains(t, lines[1], "0.52%")
	require.Contains(t, lines[2], "CCL")
	require.Contains(t, lines[2], "error:")
}

func TestQuotes_JSON(t *testing.T) {
	site(t)
	out, err := run(t, "quotes", "--json", "oficial", "bolsa")
	require.NoError(t, err)

	var resp struct {
		Quotes []quote.Quote `json:"quotes"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Len(t, resp.Quotes, 2)
	require.Equal(t, "Oficial", resp.Quotes[0].Dollar)
	require.Equal(t, "MEP", resp.Quotes[1].Dollar)
	require.InDelta(t, 1155.0, *resp.Quotes[1].Sell, 1e-9)
}

func TestQuotes_AllFailed(t *testing.T) {
	site(t)
	_, err := run(t, "quotes", "ccl")
	require.EqualError(t, err, "no quotes received")
}

func TestQuotes_UnknownDollar(t *testing.T) {
	site(t)
	_, err := run(t, "quotes", "euro")
	require.ErrorIs(t, err, quote.ErrUnknownKind)
}

func TestGaps_Table(t *testing.T) {
	site(t)
	out, err := run(t, "gaps")
	require.NoError(t, err)
	require.Contains(t, out, "GAP vs Oficial")
	require.Contains(t, out, "10.00%")
	require.NotContains(t, out, "CCL")
}

func TestGaps_MissingBase(t *testing.T) {
	site(t)
	_, err := run(t, "gaps", "--base", "ccl")
	require.Error(t, err)
}
