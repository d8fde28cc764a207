package quote

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownKind is returned when an alias does not name a supported quote type.
var ErrUnknownKind = errors.New("unknown dollar kind")

// Kind identifies a quote type: its display label and the page code used by
// the source.
type Kind struct {
	Label string `json:"label"`
	Code  string `json:"code"`
}

func (k Kind) String() string { return k.Label }

var (
	Oficial = Kind{Label: "Oficial", Code: "ARS"}
	Blue    = Kind{Label: "Blue", Code: "ARSB"}
	MEP     = Kind{Label: "MEP", Code: "ARSMEP"}
	CCL     = Kind{Label: "CCL", Code: "ARSCONT"}
)

var all = []Kind{Oficial, Blue, MEP, CCL}

// aliasMap normalizes the various spellings accepted on input.
// Keys are lower-cased with spaces, dots, dashes and underscores removed.
var aliasMap = map[string]Kind{
	"oficial":               Oficial,
	"official":              Oficial,
	"ars":                   Oficial,
	"bna":                   Oficial,
	"blue":                  Blue,
	"informal":              Blue,
	"ilegal":                Blue,
	"arsb":                  Blue,
	"mep":                   MEP,
	"bolsa":                 MEP,
	"arsmep":                MEP,
	"ccl":                   CCL,
	"contado":               CCL,
	"contadoconliqui":       CCL,
	"contadoconliquidacion": CCL,
	"cable":                 CCL,
	"arscont":               CCL,
}

// AllKinds returns every supported kind in canonical order.
func AllKinds() []Kind {
	out := make([]Kind, len(all))
	copy(out, all)
	return out
}

// ParseKind resolves a label, code or alias to a Kind, ignoring case.
func ParseKind(s string) (Kind, error) {
	key := normalizeAlias(s)
	if k, ok := aliasMap[key]; ok {
		return k, nil
	}
	return Kind{}, fmt.Errorf("%w: %q", ErrUnknownKind, strings.TrimSpace(s))
}

// ParseKinds resolves a list of aliases. Duplicates collapse, first occurrence
// order is kept. An empty list yields all kinds.
func ParseKinds(names []string) ([]Kind, error) {
	out := make([]Kind, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		k, err := ParseKind(n)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[k.Code]; dup {
			continue
		}
		seen[k.Code] = struct{}{}
		out = append(out, k)
	}
	if len(out) == 0 {
		return AllKinds(), nil
	}
	return out, nil
}

// KindByCode looks a kind up by its page code.
func KindByCode(code string) (Kind, bool) {
	for _, k := range all {
		if strings.EqualFold(k.Code, code) {
			return k, true
		}
	}
	return Kind{}, false
}

func normalizeAlias(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", ".", "", "-", "", "_", "").Replace(s)
}

// SplitCSV splits a comma separated list, dropping blanks.
func SplitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
