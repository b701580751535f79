// Package lead reads lead spreadsheets and turns rows into deduplicated leads.
package lead

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// Canonical column names. Input headers are matched against their aliases
// ignoring case and punctuation.
const (
	ColEmail        = "Email"
	ColFirstName    = "First Name"
	ColLastName     = "Last Name"
	ColFullName     = "Full Name"
	ColTitle        = "Title"
	ColSeniority    = "Seniority"
	ColCompany      = "Company Name"
	ColCleanCompany = "Cleaned Company Name"
	ColWebsite      = "Website"
	ColIndustry     = "Industry"
	ColCity         = "City"
	ColLinkedIn     = "LinkedIn"
	ColKeywords     = "Keywords"
	ColDescription  = "Description"
	ColVerification = "Verification Status"
	ColLeadKey      = "Lead Key"
)

var aliases = map[string][]string{
	ColEmail:        {"Email", "email", "Email Address", "emailAddress"},
	ColFirstName:    {"First Name", "firstName", "first_name"},
	ColLastName:     {"Last Name", "lastName", "last_name"},
	ColFullName:     {"Full Name", "fullName", "full_name"},
	ColTitle:        {"Title", "jobTitle", "job_title", "role"},
	ColSeniority:    {"Seniority"},
	ColCompany:      {"Company Name", "companyName", "company"},
	ColCleanCompany: {"Cleaned Company Name", "cleanedCompanyName"},
	ColWebsite:      {"Website", "Company Website Full", "companyWebsite", "domain"},
	ColIndustry:     {"Industry"},
	ColCity:         {"City", "Lead City", "Company City", "location"},
	ColLinkedIn:     {"LinkedIn", "LinkedIn Link", "linkedin_url"},
	ColKeywords:     {"Keywords", "Company Keywords"},
	ColDescription:  {"Description", "Company Short Description", "Company Description"},
	ColVerification: {"Verification Status", "MillionVerifier Status"},
	ColLeadKey:      {"Lead Key", "lead_key"},
}

// RequiredColumns must be non-empty for a row to become a lead.
var RequiredColumns = []string{ColEmail, ColFirstName, ColCompany, ColWebsite}

// Row is one canonicalized spreadsheet row. Index is 1-based, header excluded.
type Row struct {
	Index   int
	Fields  map[string]string
	Missing []string
}

// Get returns the trimmed value of a canonical column.
func (r Row) Get(col string) string {
	return r.Fields[col]
}

// Valid reports whether every required column is present.
func (r Row) Valid() bool {
	return len(r.Missing) == 0
}

// Sheet is the result of reading a lead file.
type Sheet struct {
	Columns []string
	Mapping map[string]string
	Rows    []Row
}

// Valid returns the rows that passed validation.
func (s *Sheet) Valid() []Row {
	var out []Row
	for _, r := range s.Rows {
		if r.Valid() {
			out = append(out, r)
		}
	}
	return out
}

// Skipped returns the rows that failed validation.
func (s *Sheet) Skipped() []Row {
	var out []Row
	for _, r := range s.Rows {
		if !r.Valid() {
			out = append(out, r)
		}
	}
	return out
}

// ReadFile reads a lead CSV from disk.
func ReadFile(path string) (*Sheet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "lead: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return Read(f)
}

// Read parses a lead CSV, mapping its headers onto the canonical columns.
func Read(r io.Reader) (*Sheet, error) {
	br := bufio.NewReader(r)
	if bom, err := br.Peek(3); err == nil && string(bom) == "\xef\xbb\xbf" {
		_, _ = br.Discard(3)
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, eris.New("lead: empty file")
	}
	if err != nil {
		return nil, eris.Wrap(err, "lead: read header")
	}

	sheet := &Sheet{Columns: header, Mapping: mapHeaders(header)}
	index := make(map[string]int, len(sheet.Mapping))
	for i, h := range header {
		for canonical, src := range sheet.Mapping {
			if src == h {
				index[canonical] = i
			}
		}
	}

	for n := 1; ; n++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "lead: read row %d", n)
		}
		fields := make(map[string]string, len(aliases))
		for col, i := range index {
			if i < len(record) {
				fields[col] = strings.TrimSpace(record[i])
			}
		}
		canonicalize(fields)
		sheet.Rows = append(sheet.Rows, Row{Index: n, Fields: fields, Missing: missing(fields)})
	}
	return sheet, nil
}

func mapHeaders(header []string) map[string]string {
	byNorm := make(map[string]string, len(header))
	for _, h := range header {
		if h == "" {
			continue
		}
		if _, ok := byNorm[normHeader(h)]; !ok {
			byNorm[normHeader(h)] = h
		}
	}
	mapping := make(map[string]string)
	for canonical, names := range aliases {
		for _, name := range names {
			if src, ok := byNorm[normHeader(name)]; ok {
				mapping[canonical] = src
				break
			}
		}
	}
	return mapping
}

func canonicalize(f map[string]string) {
	if f[ColCompany] == "" {
		f[ColCompany] = f[ColCleanCompany]
	}
	if f[ColFullName] == "" {
		f[ColFullName] = strings.TrimSpace(f[ColFirstName] + " " + f[ColLastName])
	}
	if f[ColFirstName] == "" {
		if parts := strings.Fields(f[ColFullName]); len(parts) > 0 {
			f[ColFirstName] = parts[0]
		}
	}
	switch strings.ToLower(f[ColCity]) {
	case "0", "-", "n/a":
		f[ColCity] = ""
	}
}

func missing(f map[string]string) []string {
	var out []string
	for _, col := range RequiredColumns {
		if f[col] == "" {
			out = append(out, col)
		}
	}
	return out
}

func normHeader(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
