package quality

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
)

const cleanBody = "Buongiorno Anna, ho visto che Acme sta ampliando la rete commerciale in Lombardia. " +
	"Aiutiamo aziende simili a ridurre il tempo di preventivazione con processi più semplici. " +
	"Le andrebbe una call conoscitiva di 20 minuti la prossima settimana?"

func testRules() Rules {
	return Rules{
		NoGoClaims:      []string{"garantito", "100%"},
		CTAPolicy:       model.DefaultCTAPolicy,
		SubjectMaxLen:   60,
		BodyMinLen:      80,
		BodyMaxLen:      1200,
		MaxExclamations: 1,
		MaxCapsRatio:    0.3,
		SpamTokens:      []string{"gratis", "clicca qui"},
	}
}

func ruleIDs(res Result) []string {
	var ids []string
	for _, v := range res.Violations {
		ids = append(ids, v.RuleID)
	}
	return ids
}

func TestCheck_CleanCandidatePasses(t *testing.T) {
	g := NewGate(testRules())
	res := g.Check(model.Variant{Label: "A", Subject: "Preventivi più rapidi per Acme", Body: cleanBody})
	assert.True(t, res.Passed(), "violations: %v", res.Violations)
	assert.Empty(t, res.Flags())
}

func TestCheck_NoGoClaimExample(t *testing.T) {
	g := NewGate(testRules())
	res := g.Check(model.Variant{Label: "A", Subject: "Proposta", Body: "Risultati garantiti al 100%. " + cleanBody})

	require.False(t, res.Passed())
	ids := ruleIDs(res)
	assert.Contains(t, ids, RuleNoGo)
	assert.Contains(t, ids, RuleGuaranteed)
	assert.Contains(t, res.Flags(), "claim_guard.no_go:100%")
}

func TestCheck_NoGoIsCaseInsensitive(t *testing.T) {
	rules := testRules()
	rules.NoGoClaims = []string{"Leader Di Mercato"}
	g := NewGate(rules)

	res := g.Check(model.Variant{Label: "B", Subject: "Ciao", Body: "Siamo LEADER di mercato. " + cleanBody})
	require.Len(t, res.Violations, 1)
	v := res.Violations[0]
	assert.Equal(t, RuleNoGo, v.RuleID)
	assert.Equal(t, "leader di mercato", v.Detail)
	assert.Equal(t, "B", v.Label)
	assert.Equal(t, model.SeverityBlock, v.Severity)
}

func TestCheck_ClaimPatterns(t *testing.T) {
	rules := testRules()
	rules.NoGoClaims = nil
	g := NewGate(rules)

	tests := []struct {
		phrase string
		rule   string
		detail string
	}{
		{"Garanzia totale sul progetto.", RuleGuaranteed, "garanzia totale"},
		{"Funziona sempre.", RuleAbsolute, "sempre"},
		{"Un investimento senza rischi.", RuleZeroRisk, "senza rischi"},
		{"Siamo unici sul mercato.", RuleUnique, "unici sul mercato"},
		{"Risultati immediati per voi.", RuleImmediate, "risultati immediati"},
		{"Possono partire Subito.", RuleImmediate, "subito"},
	}
	for _, tt := range tests {
		t.Run(tt.rule+"/"+tt.detail, func(t *testing.T) {
			res := g.Check(model.Variant{Label: "A", Subject: "Ciao", Body: tt.phrase + " " + cleanBody})
			assert.Contains(t, ruleIDs(res), tt.rule)
			// The matched phrase is kept so a rewrite can remove it.
			assert.Contains(t, res.Flags(), tt.rule+":"+tt.detail)
		})
	}
}

func TestCheck_AntiSpam(t *testing.T) {
	g := NewGate(testRules())

	shouting := model.Variant{Label: "A", Subject: "OFFERTA SPECIALE PER VOI", Body: strings.ToUpper(cleanBody)}
	assert.Contains(t, ruleIDs(g.Check(shouting)), RuleCapsRatio)

	excited := model.Variant{Label: "A", Subject: "Ciao!", Body: cleanBody + "!!"}
	assert.Contains(t, ruleIDs(g.Check(excited)), RuleExclamations)

	spammy := model.Variant{Label: "A", Subject: "Ciao", Body: "Prova gratis, clicca qui. " + cleanBody}
	res := g.Check(spammy)
	assert.Contains(t, res.Flags(), "anti_spam.spam_token:gratis")
	assert.Contains(t, res.Flags(), "anti_spam.spam_token:clicca qui")

	short := model.Variant{Label: "A", Subject: "Ciao", Body: "Una call?"}
	assert.Contains(t, ruleIDs(g.Check(short)), RuleBodyLength)

	long := model.Variant{Label: "A", Subject: "Ciao", Body: strings.Repeat("parola ", 300) + "call"}
	assert.Contains(t, ruleIDs(g.Check(long)), RuleBodyLength)
}

func TestCheck_Structure(t *testing.T) {
	g := NewGate(testRules())

	assert.Contains(t, ruleIDs(g.Check(model.Variant{Label: "A", Subject: "  ", Body: cleanBody})), RuleSubjectEmpty)
	assert.Contains(t, ruleIDs(g.Check(model.Variant{Label: "A", Subject: strings.Repeat("x", 61), Body: cleanBody})), RuleSubjectTooLong)

	noCTA := strings.Replace(cleanBody, "Le andrebbe una call conoscitiva di 20 minuti la prossima settimana?", "Cordiali saluti.", 1)
	assert.Contains(t, ruleIDs(g.Check(model.Variant{Label: "A", Subject: "Ciao", Body: noCTA})), RuleCTAMissing)
}

func TestCheck_BookingURLSatisfiesCTA(t *testing.T) {
	rules := testRules()
	rules.CTAPolicy = "link di prenotazione"
	rules.BookingURL = "https://cal.example.com/acme"
	g := NewGate(rules)

	body := "Buongiorno Anna, ho visto che Acme sta ampliando la rete commerciale in Lombardia. " +
		"Trova qui il mio link: https://cal.example.com/acme"
	res := g.Check(model.Variant{Label: "A", Subject: "Ciao", Body: body})
	assert.NotContains(t, ruleIDs(res), RuleCTAMissing)
}

func TestCheck_NoCTAPolicySkipsRule(t *testing.T) {
	rules := testRules()
	rules.CTAPolicy = ""
	g := NewGate(rules)

	body := strings.Repeat("Testo descrittivo senza richiesta. ", 5)
	assert.NotContains(t, ruleIDs(g.Check(model.Variant{Label: "A", Subject: "Ciao", Body: body})), RuleCTAMissing)
}

func TestCheckAll_PreservesOrder(t *testing.T) {
	g := NewGate(testRules())
	results := g.CheckAll([]model.Variant{
		{Label: "A", Subject: "Ciao", Body: cleanBody},
		{Label: "B", Subject: "", Body: cleanBody},
	})
	require.Len(t, results, 2)
	assert.Equal(t, "A", results[0].Label)
	assert.True(t, results[0].Passed())
	assert.Equal(t, "B", results[1].Label)
	assert.False(t, results[1].Passed())
}

func TestResult_WarnDoesNotBlock(t *testing.T) {
	res := Result{Violations: []model.QualityViolation{{RuleID: "x", Severity: model.SeverityWarn}}}
	assert.True(t, res.Passed())
}

func TestRulesFor(t *testing.T) {
	cfg := config.QualityConfig{SubjectMaxLen: 70, BodyMinLen: 10, BodyMaxLen: 100, MaxExclamations: 2, MaxCapsRatio: 0.4, SpamTokens: []string{"free"}}
	p := model.ParentProfile{NoGoClaims: []string{"x"}, CTAPolicy: "call", SenderBookingURL: "https://b.example"}

	r := RulesFor(cfg, p)
	assert.Equal(t, []string{"x"}, r.NoGoClaims)
	assert.Equal(t, "call", r.CTAPolicy)
	assert.Equal(t, "https://b.example", r.BookingURL)
	assert.Equal(t, 70, r.SubjectMaxLen)
	assert.Equal(t, []string{"free"}, r.SpamTokens)
}

func TestNewGate_DefaultSubjectLimit(t *testing.T) {
	g := NewGate(Rules{})
	res := g.Check(model.Variant{Label: "A", Subject: strings.Repeat("s", 91), Body: "b"})
	assert.Contains(t, ruleIDs(res), RuleSubjectTooLong)
}
