package generate

import (
	"fmt"
	"strings"

	"github.com/sells-group/outreach-cli/internal/model"
)

// SystemPrompt renders the campaign-wide instructions: the parent profile,
// the writing rules and the output contract. It is identical for every lead
// of a campaign so it can be cached.
func SystemPrompt(p model.ParentProfile) string {
	var b strings.Builder
	b.WriteString("Sei un copywriter B2B senior. Scrivi email outbound in italiano, in stile formale-consulenziale.\n")
	b.WriteString("Niente promesse assolute, claim non verificabili o riferimenti all'automazione della scrittura.\n\n")

	b.WriteString("## Azienda mittente\n")
	fmt.Fprintf(&b, "Nome: %s\n", p.CompanyName)
	fmt.Fprintf(&b, "Tono: %s\n", p.Tone)
	writeList(&b, "Offerta", p.OfferCatalog)
	writeList(&b, "Cliente ideale", p.ICP)
	writeList(&b, "Prove e risultati", p.ProofPoints)
	writeList(&b, "Obiezioni frequenti", p.Objections)
	fmt.Fprintf(&b, "Call to action: %s\n", p.CTAPolicy)
	if p.SenderBookingURL != "" {
		fmt.Fprintf(&b, "Link prenotazione: %s\n", p.SenderBookingURL)
	}
	writeList(&b, "Claim vietati (mai usarli)", p.NoGoClaims)
	writeList(&b, "Note di compliance", p.ComplianceNotes)
	fmt.Fprintf(&b, "Firma: %s\n\n", p.Signature())

	b.WriteString("## Formato di risposta\n")
	b.WriteString("Rispondi SOLO con un oggetto JSON valido, senza testo prima o dopo:\n")
	b.WriteString(`{"variants":[{"label":"A","subject":"...","body":"..."}],"recommended_variant":"A"}`)
	b.WriteString("\nOgni variante deve avere oggetto e corpo non vuoti e chiudere con la call to action.\n")
	return b.String()
}

// UserPrompt renders the lead-specific part of the request, including
// violation feedback on repair attempts.
func UserPrompt(req Request) string {
	var b strings.Builder
	l := req.Lead

	b.WriteString("## Destinatario\n")
	fmt.Fprintf(&b, "Azienda: %s\n", l.CompanyName)
	writeField(&b, "Sito", l.Website)
	writeField(&b, "Settore", l.Industry)
	writeField(&b, "Città", l.City)
	writeField(&b, "Contatto", l.ContactName)
	writeField(&b, "Ruolo", l.ContactTitle)
	writeList(&b, "Parole chiave", l.Keywords)

	ev := l.Evidence
	if ev.SiteExcerpt != "" || len(ev.News) > 0 || len(ev.Items) > 0 {
		b.WriteString("\n## Evidenze pubbliche\n")
		writeField(&b, "Estratto sito", ev.SiteExcerpt)
		for _, n := range ev.News {
			fmt.Fprintf(&b, "- Notizia: %s (%s)\n", n.Title, n.Link)
		}
		writeList(&b, "Ipotesi di bisogno", ev.Pains)
		writeList(&b, "Opportunità", ev.Opportunities)
		writeList(&b, "Fatti", ev.Items)
	}

	if len(req.Snippets) > 0 {
		b.WriteString("\n## Conoscenza marketing pertinente\n")
		for _, s := range req.Snippets {
			fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(s))
		}
	}

	fmt.Fprintf(&b, "\n## Richiesta\nScrivi le varianti: %s.\n", strings.Join(req.Labels, ", "))

	if req.IsRepair() {
		b.WriteString("\n## Correzioni richieste\nLa versione precedente non ha superato i controlli di qualità:\n")
		for _, v := range req.Feedback {
			fmt.Fprintf(&b, "- [%s] variante %s: %s\n", v.RuleID, v.Label, v.Message)
		}
		for _, prev := range req.Previous {
			fmt.Fprintf(&b, "\nVersione precedente %s\nOggetto: %s\n%s\n", prev.Label, prev.Subject, prev.Body)
		}
		b.WriteString("\nRiscrivi eliminando ogni violazione e mantenendo il messaggio.\n")
	}
	return b.String()
}

func writeField(b *strings.Builder, name, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", name, value)
}

func writeList(b *strings.Builder, name string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", name, strings.Join(items, "; "))
}
