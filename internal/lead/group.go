package lead

import (
	"strings"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Recipient modes.
const (
	ModeCompany = "company"
	ModeRow     = "row"
)

var seniorityRank = map[string]float64{
	"c_suite":   50,
	"founder":   45,
	"owner":     42,
	"executive": 38,
	"director":  34,
	"manager":   28,
	"mid":       16,
	"entry":     10,
}

var titleBoosts = []struct {
	token string
	boost float64
}{
	{"chief executive officer", 20},
	{"amministratore delegato", 20},
	{"ceo", 20},
	{"founder", 18},
	{"general manager", 16},
	{"cfo", 14},
	{"owner", 13},
}

// ContactScore ranks how suitable a row's contact is as the primary recipient.
func ContactScore(r Row) float64 {
	var score float64
	if s := strings.ToLower(r.Get(ColSeniority)); s != "" {
		if rank, ok := seniorityRank[s]; ok {
			score += rank
		} else {
			score += 12
		}
	}
	title := strings.ToLower(r.Get(ColTitle))
	for _, tb := range titleBoosts {
		if strings.Contains(title, tb.token) {
			score += tb.boost
		}
	}
	switch strings.ToLower(r.Get(ColVerification)) {
	case "good", "ok", "valid":
		score += 10
	case "risky":
		score -= 5
	}
	for _, col := range []string{ColEmail, ColLinkedIn, ColTitle, ColSeniority} {
		if r.Get(col) != "" {
			score += 1.5
		}
	}
	return score
}

// Build turns valid rows into leads. In company mode rows sharing a company
// key collapse into one lead addressed to the best-scoring contact; in row
// mode every row is its own lead. Output order follows first appearance.
func Build(rows []Row, mode string) []model.Lead {
	if mode == ModeRow {
		return buildRows(rows)
	}

	var order []string
	groups := make(map[string][]Row)
	for _, r := range rows {
		k := CompanyKey(r)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
	}

	leads := make([]model.Lead, 0, len(order))
	for _, k := range order {
		group := groups[k]
		primary := group[0]
		best := ContactScore(primary)
		for _, r := range group[1:] {
			if s := ContactScore(r); s > best {
				primary, best = r, s
			}
		}
		l := fromRow(k, group[0], primary)
		for _, r := range group {
			l.SourceRows = append(l.SourceRows, r.Index)
		}
		leads = append(leads, l)
	}
	return leads
}

func buildRows(rows []Row) []model.Lead {
	taken := make(map[string]bool, len(rows))
	leads := make([]model.Lead, 0, len(rows))
	for _, r := range rows {
		k := UniqueKey(RowKey(r), taken)
		l := fromRow(k, r, r)
		l.SourceRows = []int{r.Index}
		leads = append(leads, l)
	}
	return leads
}

// FromRow builds a lead from a single row, used for skipped rows that still
// need an export identity.
func FromRow(r Row, mode string) model.Lead {
	k := CompanyKey(r)
	if mode == ModeRow {
		k = RowKey(r)
	}
	l := fromRow(k, r, r)
	l.SourceRows = []int{r.Index}
	return l
}

func fromRow(key string, company, contact Row) model.Lead {
	name := company.Get(ColCompany)
	if name == "" {
		name = "Azienda"
	}
	return model.Lead{
		Key:          key,
		CompanyName:  name,
		Website:      CleanURL(company.Get(ColWebsite)),
		Industry:     company.Get(ColIndustry),
		City:         company.Get(ColCity),
		Keywords:     splitList(company.Get(ColKeywords)),
		Description:  company.Get(ColDescription),
		ContactName:  contact.Get(ColFullName),
		FirstName:    contact.Get(ColFirstName),
		ContactTitle: contact.Get(ColTitle),
		ContactEmail: contact.Get(ColEmail),
		LinkedInURL:  CleanURL(contact.Get(ColLinkedIn)),
	}
}

func splitList(s string) []string {
	sep := ","
	if strings.Contains(s, ";") {
		sep = ";"
	}
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
