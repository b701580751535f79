// Package enrich gathers public evidence about a lead before generation.
package enrich

import (
	"context"
	"fmt"
	"strings"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Enrichment modes.
const (
	ModeAuto    = "auto"
	ModeMinimal = "minimal"
	ModeWeb     = "web"
	// ModeHybrid is accepted as an alias for web.
	ModeHybrid = "hybrid"
)

// FlagLimitedSources marks a lead whose evidence has no public source.
const FlagLimitedSources = "limited_sources"

// Enricher builds the evidence for one lead.
type Enricher interface {
	Enrich(ctx context.Context, l model.Lead) (model.Evidence, error)
}

// ResolveMode maps auto onto a concrete mode: minimal for row mode, web for
// company mode. hybrid resolves to web.
func ResolveMode(mode, recipientMode string) string {
	switch mode {
	case ModeHybrid:
		return ModeWeb
	case ModeAuto, "":
	default:
		return mode
	}
	if recipientMode == "row" {
		return ModeMinimal
	}
	return ModeWeb
}

// Minimal builds evidence from the spreadsheet fields alone.
type Minimal struct{}

// Enrich implements Enricher.
func (Minimal) Enrich(_ context.Context, l model.Lead) (model.Evidence, error) {
	ev := model.Evidence{
		ProfileURL:    l.LinkedInURL,
		Pains:         inferPains(l),
		Opportunities: inferOpportunities(l),
	}
	if l.Industry != "" {
		ev.Items = append(ev.Items, "Settore: "+l.Industry)
	}
	if l.City != "" {
		ev.Items = append(ev.Items, "Sede: "+l.City)
	}
	if l.Description != "" {
		ev.Items = append(ev.Items, truncate(l.Description, 300))
	}
	if len(l.Keywords) > 0 {
		ev.Items = append(ev.Items, "Keyword: "+strings.Join(l.Keywords, ", "))
	}
	return ev, nil
}

func keywordText(l model.Lead) string {
	return strings.ToLower(strings.Join(l.Keywords, " ") + " " + l.Description)
}

func inferPains(l model.Lead) []string {
	kw := keywordText(l)
	industry := strings.ToLower(l.Industry)
	var out []string
	if containsAny(kw, "manufacturing", "manifattur", "produzione") || containsAny(industry, "machinery", "manifattur") {
		out = append(out, "pressione su efficienza operativa e continuità produttiva")
	}
	if containsAny(kw, "quality", "qualità", "iso") {
		out = append(out, "presidio di standard qualità e compliance")
	}
	if containsAny(kw, "automation", "automazione", "iot") {
		out = append(out, "integrazione tra sistemi digitali e processi esistenti")
	}
	if containsAny(kw, "food", "alimentare", "pharma") {
		out = append(out, "tracciabilità e requisiti normativi stringenti")
	}
	if len(out) == 0 {
		out = append(out, "allineamento tra priorità commerciali ed esecuzione operativa")
	}
	return out
}

func inferOpportunities(l model.Lead) []string {
	kw := keywordText(l)
	var out []string
	if containsAny(kw, "sustainability", "sostenibilità", "esg") {
		out = append(out, "valorizzare le iniziative ESG con risultati misurabili")
	}
	if containsAny(kw, "innovation", "innovazione", "high-tech") {
		out = append(out, "accelerare il time-to-market delle offerte a più alto valore")
	}
	if containsAny(kw, "b2b") {
		out = append(out, "migliorare la conversione della pipeline commerciale")
	}
	return append(out, "individuare interventi rapidi con impatto tracciabile")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	r := []rune(strings.Join(strings.Fields(s), " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n])
}

func compact(items []string, limit int) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" || seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
		if len(out) == limit {
			break
		}
	}
	return out
}

func newsQuery(l model.Lead) string {
	if l.City != "" {
		return fmt.Sprintf("%s %s", l.CompanyName, l.City)
	}
	return l.CompanyName
}
