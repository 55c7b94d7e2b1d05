package chatwoot

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

var leadingDigits = regexp.MustCompile(`^\d+`)

// ToE164 turns a phone or WhatsApp JID ("5511999990000@s.whatsapp.net") into
// "+5511999990000". Input without leading digits yields "".
func ToE164(jidOrPhone string) string {
	s := strings.TrimPrefix(strings.TrimSpace(jidOrPhone), "+")
	if m := leadingDigits.FindString(s); m != "" {
		return "+" + m
	}
	return ""
}

// NormalizeHandle reduces "@user", "https://instagram.com/user/?hl=pt" and
// similar to "user".
func NormalizeHandle(v string) string {
	h := strings.TrimLeft(strings.TrimSpace(v), "@")
	if h == "" {
		return ""
	}
	lower := strings.ToLower(h)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		if u, err := url.Parse(h); err == nil {
			var parts []string
			for _, p := range strings.Split(u.Path, "/") {
				if p != "" {
					parts = append(parts, p)
				}
			}
			if len(parts) > 0 {
				h = parts[len(parts)-1]
			}
		}
	}
	if i := strings.IndexAny(h, "/?#"); i >= 0 {
		h = h[:i]
	}
	return h
}

// Region codes that must not be inferred from a bare calling code.
var ambiguousCallingCodes = map[int32]bool{1: true, 7: true}

// InferRegion returns the ISO 3166 alpha-2 region of an E.164 number, or "".
// Non-geographic types (toll free, premium, VoIP...) report "".
func InferRegion(e164 string) string {
	raw := strings.TrimSpace(e164)
	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(raw, "+") {
		raw = "+" + raw
	}
	num, err := phonenumbers.Parse(raw, "")
	if err != nil {
		return ""
	}
	if phonenumbers.IsValidNumber(num) {
		switch phonenumbers.GetNumberType(num) {
		case phonenumbers.TOLL_FREE, phonenumbers.PREMIUM_RATE, phonenumbers.SHARED_COST,
			phonenumbers.VOIP, phonenumbers.PERSONAL_NUMBER, phonenumbers.UAN, phonenumbers.PAGER:
			return ""
		}
		if r := phonenumbers.GetRegionCodeForNumber(num); r != "" && r != "ZZ" && r != "001" {
			return r
		}
	}
	cc := num.GetCountryCode()
	if ambiguousCallingCodes[cc] {
		return ""
	}
	if r := phonenumbers.GetRegionCodeForCountryCode(int(cc)); r != "ZZ" && r != "001" {
		return r
	}
	return ""
}

// RegionName returns the English name of an ISO region ("BR" -> "Brazil").
func RegionName(iso2 string) string {
	if iso2 == "" {
		return ""
	}
	r, err := language.ParseRegion(iso2)
	if err != nil {
		return iso2
	}
	if n := display.English.Regions().Name(r); n != "" {
		return n
	}
	return iso2
}

// Clean drops empty strings, nils and empty maps/slices, recursively. An
// input that ends up empty returns nil.
func Clean(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if t == "" {
			return nil
		}
		return t
	case map[string]any:
		out := map[string]any{}
		for k, vv := range t {
			if c := Clean(vv); c != nil {
				out[k] = c
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case map[string]string:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = vv
		}
		return Clean(m)
	case []any:
		var out []any
		for _, vv := range t {
			if c := Clean(vv); c != nil {
				out = append(out, c)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}
	return v
}

func cleanMap(m map[string]any) map[string]any {
	if c, ok := Clean(m).(map[string]any); ok {
		return c
	}
	return map[string]any{}
}
