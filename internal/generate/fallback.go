package generate

import (
	"context"
	"regexp"
	"strings"

	"github.com/osteele/liquid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
)

// FallbackWarning marks candidates written by the template fallback.
const FallbackWarning = "deterministic_fallback"

type seedTemplate struct {
	subject string
	body    string
}

var builtinTemplates = map[string]seedTemplate{
	model.LabelA: {
		subject: "Confronto operativo per {{ company_name }}",
		body: "Gentile {{ contact_name }},\n\n" +
			"seguiamo aziende {{ industry }} come {{ company_name }} e notiamo spesso che {{ pain }}. " +
			"Con il team {{ parent_company }} stiamo supportando aziende simili su {{ opportunity }}.\n\n" +
			"Se utile, possiamo fissare una {{ cta }} per valutare priorità, vincoli e possibili primi passi.{{ booking_line }}\n\n" +
			"Cordiali saluti\n{{ signature }}",
	},
	model.LabelB: {
		subject: "Idea concreta per {{ company_name }}",
		body: "Buongiorno {{ contact_name }},\n\n" +
			"dalle informazioni pubbliche su {{ company_name }} emerge un contesto interessante su {{ opportunity }}. " +
			"{{ parent_company }} lavora su iniziative pratiche con un approccio graduale e misurabile.\n\n" +
			"Possiamo condividere in una {{ cta }} un framework operativo adattato al vostro contesto.{{ booking_line }}\n\n" +
			"Resto a disposizione\n{{ signature }}",
	},
	model.LabelC: {
		subject: "Proposta di allineamento: {{ company_name }}",
		body: "Gentile {{ contact_name }},\n\n" +
			"scrivo per proporre un breve confronto: su aziende comparabili a {{ company_name }} vediamo valore nel lavorare su {{ pain }}. " +
			"Il team {{ parent_company }} può supportarvi con un perimetro iniziale molto concreto.\n\n" +
			"Se ha senso, organizziamo una {{ cta }}.{{ booking_line }}\n\n" +
			"Grazie del tempo\n{{ signature }}",
	},
}

// FallbackGenerator renders seed templates locally. It never calls a paid
// backend and never touches the budget; output is byte-identical for
// identical input.
type FallbackGenerator struct {
	engine *liquid.Engine
}

// NewFallback creates a FallbackGenerator.
func NewFallback() *FallbackGenerator {
	return &FallbackGenerator{engine: liquid.NewEngine()}
}

// Generate renders one candidate per requested label. On repair requests the
// flagged phrases are removed and a missing call to action is appended.
func (g *FallbackGenerator) Generate(_ context.Context, req Request, _ Budget) (Result, error) {
	bindings := fallbackBindings(req.Profile, req.Lead)
	opening := g.seedOpening(req.Profile, bindings)

	res := Result{Recommended: model.LabelA, Fallback: true}
	for _, label := range req.Labels {
		tpl, ok := builtinTemplates[label]
		if !ok {
			return Result{}, eris.Errorf("generate: no fallback template for variant %q", label)
		}
		subject, err := g.render(tpl.subject, bindings)
		if err != nil {
			return Result{}, err
		}
		body, err := g.render(tpl.body, bindings)
		if err != nil {
			return Result{}, err
		}
		if opening != "" {
			body = opening + "\n\n" + body
		}
		v := model.Variant{
			Label:             label,
			Subject:           strings.TrimSpace(subject),
			Body:              strings.TrimSpace(body),
			GenerationWarning: FallbackWarning,
		}
		if req.IsRepair() {
			v = scrub(v, req.Feedback, bindings["cta"].(string))
		}
		res.Variants = append(res.Variants, v)
	}
	res.Recommended = normalizeRecommended(res.Recommended, res.Variants)
	return res, nil
}

func (g *FallbackGenerator) render(tpl string, b liquid.Bindings) (string, error) {
	out, err := g.engine.ParseAndRenderString(tpl, b)
	if err != nil {
		return "", eris.Wrap(err, "generate: render fallback template")
	}
	return out, nil
}

// seedOpening renders the profile's outreach seed template, if any. A broken
// seed template is logged and skipped.
func (g *FallbackGenerator) seedOpening(p model.ParentProfile, b liquid.Bindings) string {
	if strings.TrimSpace(p.OutreachSeedTemplate) == "" {
		return ""
	}
	out, err := g.render(p.OutreachSeedTemplate, b)
	if err == nil && (strings.Contains(out, "{{") || strings.Contains(out, "{%")) {
		err = eris.New("generate: seed template left unrendered markup")
	}
	if err != nil {
		zap.L().Warn("generate: seed template unusable, using built-in opening",
			zap.String("parent", p.Slug), zap.Error(err))
		return ""
	}
	return strings.TrimSpace(out)
}

func fallbackBindings(p model.ParentProfile, l model.Lead) liquid.Bindings {
	contact := l.ContactName
	if contact == "" {
		contact = "Team"
	}
	first := l.Greeting()
	if first == "" {
		first = contact
	}
	industry := l.Industry
	if industry == "" {
		industry = "del vostro settore"
	}
	pain := "ottimizzazione operativa e priorità commerciali"
	if len(l.Evidence.Pains) > 0 {
		pain = l.Evidence.Pains[0]
	}
	opp := "migliorare performance e prevedibilità"
	if len(l.Evidence.Opportunities) > 0 {
		opp = l.Evidence.Opportunities[0]
	}
	cta := p.CTAPolicy
	if cta == "" {
		cta = model.DefaultCTAPolicy
	}
	booking := ""
	if p.SenderBookingURL != "" {
		booking = "\nPuò scegliere un orario qui: " + p.SenderBookingURL
	}
	offer := ""
	if len(p.OfferCatalog) > 0 {
		offer = p.OfferCatalog[0]
	}
	return liquid.Bindings{
		"company_name":   l.CompanyName,
		"contact_name":   contact,
		"first_name":     first,
		"contact_title":  l.ContactTitle,
		"industry":       industry,
		"city":           l.City,
		"pain":           pain,
		"opportunity":    opp,
		"offer":          offer,
		"parent_company": p.CompanyName,
		"sender_name":    p.SenderName,
		"sender_company": p.SenderCompany,
		"signature":      p.Signature(),
		"cta":            cta,
		"booking_line":   booking,
	}
}

var sentenceSplit = regexp.MustCompile(`[^.!?\n]+[.!?]?`)

// scrub removes sentences that contain flagged phrases, collapses repeated
// exclamation marks and appends a call to action when one was missing.
func scrub(v model.Variant, feedback []model.QualityViolation, cta string) model.Variant {
	var phrases []string
	needCTA := false
	for _, f := range feedback {
		if f.Label != "" && f.Label != v.Label {
			continue
		}
		if f.Detail != "" {
			phrases = append(phrases, strings.ToLower(f.Detail))
		}
		if strings.HasPrefix(f.RuleID, "structure.cta") {
			needCTA = true
		}
	}

	clean := func(s string) string {
		var kept []string
		for _, line := range strings.Split(s, "\n") {
			var parts []string
			for _, sent := range sentenceSplit.FindAllString(line, -1) {
				lower := strings.ToLower(sent)
				drop := false
				for _, p := range phrases {
					if strings.Contains(lower, p) {
						drop = true
						break
					}
				}
				if !drop {
					parts = append(parts, sent)
				}
			}
			kept = append(kept, strings.TrimSpace(strings.Join(parts, "")))
		}
		return strings.ReplaceAll(strings.Join(kept, "\n"), "!", ".")
	}

	v.Subject = strings.TrimSpace(clean(v.Subject))
	v.Body = strings.TrimSpace(clean(v.Body))
	if needCTA {
		v.Body += "\n\nSarebbe disponibile per una " + cta + "?"
	}
	return v
}
