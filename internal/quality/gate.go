// Package quality checks generated email candidates against claim-guard,
// anti-spam and structural rules.
package quality

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
)

// Rule identifiers.
const (
	RuleNoGo           = "claim_guard.no_go"
	RuleGuaranteed     = "claim_guard.guaranteed"
	RuleAbsolute       = "claim_guard.absolute"
	RuleZeroRisk       = "claim_guard.zero_risk"
	RuleUnique         = "claim_guard.unique"
	RuleImmediate      = "claim_guard.immediate"
	RuleCapsRatio      = "anti_spam.caps_ratio"
	RuleExclamations   = "anti_spam.exclamations"
	RuleSpamToken      = "anti_spam.spam_token"
	RuleBodyLength     = "anti_spam.body_length"
	RuleSubjectEmpty   = "structure.subject_empty"
	RuleSubjectTooLong = "structure.subject_length"
	RuleCTAMissing     = "structure.cta_missing"
)

const (
	minLettersForCaps   = 20
	defaultSubjectLimit = 90
)

// claimPatterns flag absolute or guaranteed-outcome claims regardless of
// the profile's own no-go list.
var claimPatterns = []struct {
	rule string
	re   *regexp.Regexp
	msg  string
}{
	{RuleGuaranteed, regexp.MustCompile(`(?i)\b(garantit[oaie]|garanzia totale|guaranteed)\b`), "guaranteed outcome claim"},
	{RuleAbsolute, regexp.MustCompile(`(?i)(\b100\s?%|\b(sempre|mai|always|never)\b)`), "absolute claim"},
	{RuleZeroRisk, regexp.MustCompile(`(?i)\b(senza rischi|rischio zero|risk[- ]free)\b`), "zero-risk claim"},
	{RuleUnique, regexp.MustCompile(`(?i)\b(unic[oaie] sul mercato|the only)\b`), "uniqueness claim"},
	{RuleImmediate, regexp.MustCompile(`(?i)\b(risultati immediati|subito|instant results)\b`), "immediate-results claim"},
}

// ctaMarkers are accepted as a call to action when a CTA policy is set.
var ctaMarkers = []string{"call", "chiamata", "incontro", "calendario", "prenota", "disponibil", "meeting", "sentirci", "confronto"}

// Rules is the configured rule set for one parent profile.
type Rules struct {
	NoGoClaims      []string
	CTAPolicy       string
	BookingURL      string
	SubjectMaxLen   int
	BodyMinLen      int
	BodyMaxLen      int
	MaxExclamations int
	MaxCapsRatio    float64
	SpamTokens      []string
}

// RulesFor derives the rule set from quality config and the parent profile.
func RulesFor(cfg config.QualityConfig, p model.ParentProfile) Rules {
	return Rules{
		NoGoClaims:      p.NoGoClaims,
		CTAPolicy:       p.CTAPolicy,
		BookingURL:      p.SenderBookingURL,
		SubjectMaxLen:   cfg.SubjectMaxLen,
		BodyMinLen:      cfg.BodyMinLen,
		BodyMaxLen:      cfg.BodyMaxLen,
		MaxExclamations: cfg.MaxExclamations,
		MaxCapsRatio:    cfg.MaxCapsRatio,
		SpamTokens:      cfg.SpamTokens,
	}
}

// Gate evaluates candidates. It is stateless and safe for concurrent use.
type Gate struct {
	rules      Rules
	ctaMarkers []string
}

// NewGate creates a Gate with the given rules.
func NewGate(rules Rules) *Gate {
	if rules.SubjectMaxLen <= 0 {
		rules.SubjectMaxLen = defaultSubjectLimit
	}
	return &Gate{rules: rules, ctaMarkers: markersFor(rules.CTAPolicy)}
}

// Result is the outcome of checking one candidate.
type Result struct {
	Label      string
	Violations []model.QualityViolation
}

// Passed reports whether no blocking violation was found.
func (r Result) Passed() bool {
	for _, v := range r.Violations {
		if v.Severity == model.SeverityBlock {
			return false
		}
	}
	return true
}

// Flags returns the risk flags for the result's violations.
func (r Result) Flags() []string {
	flags := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		flags = append(flags, v.Flag())
	}
	return flags
}

// Check runs every rule family against one candidate.
func (g *Gate) Check(v model.Variant) Result {
	res := Result{Label: v.Label}
	add := func(rule, detail, msg string) {
		res.Violations = append(res.Violations, model.QualityViolation{
			RuleID:   rule,
			Severity: model.SeverityBlock,
			Label:    v.Label,
			Detail:   detail,
			Message:  msg,
		})
	}

	text := v.Subject + "\n" + v.Body
	lower := strings.ToLower(text)

	// Claim guard.
	for _, phrase := range g.rules.NoGoClaims {
		p := strings.ToLower(strings.TrimSpace(phrase))
		if p != "" && strings.Contains(lower, p) {
			add(RuleNoGo, p, fmt.Sprintf("contains no-go claim %q", phrase))
		}
	}
	for _, cp := range claimPatterns {
		if m := cp.re.FindString(text); m != "" {
			add(cp.rule, strings.ToLower(m), fmt.Sprintf("%s: %q", cp.msg, m))
		}
	}

	// Anti-spam.
	if ratio, letters := capsRatio(text); letters >= minLettersForCaps && g.rules.MaxCapsRatio > 0 && ratio > g.rules.MaxCapsRatio {
		add(RuleCapsRatio, "", fmt.Sprintf("uppercase ratio %.2f exceeds %.2f", ratio, g.rules.MaxCapsRatio))
	}
	if n := strings.Count(text, "!"); n > g.rules.MaxExclamations {
		add(RuleExclamations, "", fmt.Sprintf("%d exclamation marks (max %d)", n, g.rules.MaxExclamations))
	}
	for _, tok := range g.rules.SpamTokens {
		t := strings.ToLower(strings.TrimSpace(tok))
		if t != "" && strings.Contains(lower, t) {
			add(RuleSpamToken, t, fmt.Sprintf("contains spam trigger %q", tok))
		}
	}
	bodyLen := utf8.RuneCountInString(strings.TrimSpace(v.Body))
	if (g.rules.BodyMinLen > 0 && bodyLen < g.rules.BodyMinLen) || (g.rules.BodyMaxLen > 0 && bodyLen > g.rules.BodyMaxLen) {
		add(RuleBodyLength, "", fmt.Sprintf("body length %d outside [%d, %d]", bodyLen, g.rules.BodyMinLen, g.rules.BodyMaxLen))
	}

	// Structure.
	subject := strings.TrimSpace(v.Subject)
	switch {
	case subject == "":
		add(RuleSubjectEmpty, "", "subject is empty")
	case utf8.RuneCountInString(subject) > g.rules.SubjectMaxLen:
		add(RuleSubjectTooLong, "", fmt.Sprintf("subject longer than %d characters", g.rules.SubjectMaxLen))
	}
	if g.rules.CTAPolicy != "" && !g.hasCTA(strings.ToLower(v.Body)) {
		add(RuleCTAMissing, "", fmt.Sprintf("body has no call to action (policy %q)", g.rules.CTAPolicy))
	}

	return res
}

// CheckAll checks each candidate in order.
func (g *Gate) CheckAll(variants []model.Variant) []Result {
	out := make([]Result, 0, len(variants))
	for _, v := range variants {
		out = append(out, g.Check(v))
	}
	return out
}

func (g *Gate) hasCTA(body string) bool {
	if g.rules.BookingURL != "" && strings.Contains(body, strings.ToLower(g.rules.BookingURL)) {
		return true
	}
	for _, m := range g.ctaMarkers {
		if strings.Contains(body, m) {
			return true
		}
	}
	return false
}

// markersFor extends the default markers with the significant words of the
// CTA policy itself.
func markersFor(policy string) []string {
	markers := append([]string(nil), ctaMarkers...)
	for _, w := range strings.FieldsFunc(strings.ToLower(policy), func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		if utf8.RuneCountInString(w) >= 4 {
			markers = append(markers, w)
		}
	}
	return markers
}

func capsRatio(s string) (float64, int) {
	var letters, upper int
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters == 0 {
		return 0, 0
	}
	return float64(upper) / float64(letters), letters
}
