package lead

import (
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s and strips diacritics ("Società" -> "societa").
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// Slugify folds s and keeps [a-z0-9-], turning whitespace and separators
// into single dashes. An empty result becomes "item".
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range Fold(strings.TrimSpace(s)) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			dash = false
		case r == '-' || r == ' ' || r == '_' || r == '.' || r == '/' || r == '@' || r == '+':
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if out == "" {
		return "item"
	}
	return out
}

// CompanyKey derives the dedup key of a row: the cleaned company name, then
// the website host, then the raw company name.
func CompanyKey(r Row) string {
	if v := r.Get(ColCleanCompany); v != "" {
		return Slugify(v)
	}
	if host := Host(r.Get(ColWebsite)); host != "" {
		return Slugify(host)
	}
	if v := r.Get(ColCompany); v != "" {
		return Slugify(v)
	}
	return "azienda"
}

// RowKey derives the key of a row in row mode. An explicit Lead Key column
// wins; otherwise the company key is suffixed with the contact's email.
func RowKey(r Row) string {
	if v := r.Get(ColLeadKey); v != "" {
		return Slugify(v)
	}
	contact := r.Get(ColEmail)
	if contact == "" {
		contact = r.Get(ColFullName)
	}
	if contact == "" {
		return CompanyKey(r)
	}
	return CompanyKey(r) + "--" + Slugify(contact)
}

// UniqueKey returns base, or the first free "base-N" for N >= 2 when base is
// already taken. The returned key is added to taken.
func UniqueKey(base string, taken map[string]bool) string {
	k := base
	for n := 2; taken[k]; n++ {
		k = base + "-" + strconv.Itoa(n)
	}
	taken[k] = true
	return k
}

// Host returns the lowercased host of an http(s) URL without "www.".
// Bare domains are accepted.
func Host(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// CleanURL returns raw when it is a usable http(s) URL, otherwise "".
func CleanURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if Host(raw) == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		return "https://" + raw
	}
	return raw
}
