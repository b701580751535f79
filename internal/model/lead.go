package model

import "strings"

// Lead is one outreach target: a company plus the contact the email is
// addressed to. Leads are read-only once they enter generation.
type Lead struct {
	Key          string   `json:"key"`
	CompanyName  string   `json:"company_name"`
	Website      string   `json:"website,omitempty"`
	Industry     string   `json:"industry,omitempty"`
	City         string   `json:"city,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
	Description  string   `json:"description,omitempty"`
	ContactName  string   `json:"contact_name,omitempty"`
	FirstName    string   `json:"first_name,omitempty"`
	ContactTitle string   `json:"contact_title,omitempty"`
	ContactEmail string   `json:"contact_email,omitempty"`
	LinkedInURL  string   `json:"linkedin_url,omitempty"`
	SourceRows   []int    `json:"source_rows,omitempty"`
	Evidence     Evidence `json:"evidence"`
}

// Evidence is the public-source material gathered for a lead during enrichment.
type Evidence struct {
	SiteExcerpt   string     `json:"site_excerpt,omitempty"`
	News          []NewsItem `json:"news,omitempty"`
	ProfileURL    string     `json:"profile_url,omitempty"`
	Items         []string   `json:"items,omitempty"`
	Pains         []string   `json:"pains,omitempty"`
	Opportunities []string   `json:"opportunities,omitempty"`
	Sources       []string   `json:"sources,omitempty"`
}

// NewsItem is a single recent news headline about the lead's company.
type NewsItem struct {
	Title     string `json:"title"`
	Link      string `json:"link"`
	Published string `json:"published,omitempty"`
}

// Greeting returns the name used to address the contact.
func (l Lead) Greeting() string {
	if l.FirstName != "" {
		return l.FirstName
	}
	if f := strings.Fields(l.ContactName); len(f) > 0 {
		return f[0]
	}
	return ""
}

// Summary joins the first n evidence items with "; ".
func (e Evidence) Summary(n int) string {
	items := e.Items
	if len(items) > n {
		items = items[:n]
	}
	return strings.Join(items, "; ")
}

// HasSources reports whether any public source backs the evidence.
func (e Evidence) HasSources() bool {
	return len(e.Sources) > 0
}
