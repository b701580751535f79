// Package export maps campaign records onto the approval-queue column
// contract and reads and writes snapshots as CSV or XLSX.
package export

import (
	"strings"
	"time"

	"github.com/sells-group/outreach-cli/internal/lead"
	"github.com/sells-group/outreach-cli/internal/model"
)

// Output schemas.
const (
	SchemaAuto = "auto"
	SchemaAB   = "ab"
	SchemaABC  = "abc"
)

// Column names.
const (
	ColCampaignID         = "campaign_id"
	ColParentSlug         = "parent_slug"
	ColCompanyName        = "company_name"
	ColContactName        = "contact_name"
	ColContactTitle       = "contact_title"
	ColContactEmail       = "contact_email"
	ColVariantASubject    = "variant_a_subject"
	ColVariantABody       = "variant_a_body"
	ColVariantBSubject    = "variant_b_subject"
	ColVariantBBody       = "variant_b_body"
	ColVariantCSubject    = "variant_c_subject"
	ColVariantCBody       = "variant_c_body"
	ColRecommendedVariant = "recommended_variant"
	ColFinalSubject       = "final_subject"
	ColFinalBody          = "final_body"
	ColSelectedVariant    = "selected_variant"
	ColGenerationStatus   = "generation_status"
	ColGenerationWarning  = "generation_warning"
	ColErrorCode          = "error_code"
	ColEvidenceSummary    = "evidence_summary"
	ColRiskFlags          = "risk_flags"
	ColStatus             = "status"
	ColReviewerNotes      = "reviewer_notes"
	ColApprovedVariant    = "approved_variant"
	ColUpdatedAt          = "updated_at"
	// ColLeadKey trails the contract so snapshots can be joined back exactly.
	ColLeadKey = "lead_key"
)

// flagSep joins risk flags in a single cell.
const flagSep = "; "

// Columns returns the ordered column set of a schema. Unknown schemas get ab.
func Columns(schema string) []string {
	cols := []string{
		ColCampaignID, ColParentSlug, ColCompanyName, ColContactName, ColContactTitle, ColContactEmail,
		ColVariantASubject, ColVariantABody, ColVariantBSubject, ColVariantBBody,
	}
	if schema == SchemaABC {
		cols = append(cols, ColVariantCSubject, ColVariantCBody)
	}
	return append(cols,
		ColRecommendedVariant, ColFinalSubject, ColFinalBody, ColSelectedVariant,
		ColGenerationStatus, ColGenerationWarning, ColErrorCode, ColEvidenceSummary, ColRiskFlags,
		ColStatus, ColReviewerNotes, ColApprovedVariant, ColUpdatedAt, ColLeadKey,
	)
}

// ResolveSchema turns auto into ab or abc depending on whether any row
// carries a third variant.
func ResolveSchema(schema string, rows []model.ApprovalRow) string {
	if schema == SchemaAB || schema == SchemaABC {
		return schema
	}
	for _, r := range rows {
		if r.VariantCSubject != "" || r.VariantCBody != "" {
			return SchemaABC
		}
	}
	return SchemaAB
}

// FromRecord maps a record onto an approval row.
func FromRecord(rec model.CampaignRecord) model.ApprovalRow {
	row := model.ApprovalRow{
		CampaignID:         rec.CampaignID,
		LeadKey:            rec.LeadKey,
		ParentSlug:         rec.ParentSlug,
		CompanyName:        rec.Lead.CompanyName,
		ContactName:        rec.Lead.ContactName,
		ContactTitle:       rec.Lead.ContactTitle,
		ContactEmail:       rec.Lead.ContactEmail,
		RecommendedVariant: rec.RecommendedVariant,
		FinalSubject:       rec.FinalSubject,
		FinalBody:          rec.FinalBody,
		SelectedVariant:    rec.SelectedVariant,
		GenerationStatus:   string(rec.GenerationStatus),
		GenerationWarning:  rec.GenerationWarning,
		ErrorCode:          rec.ErrorCode,
		EvidenceSummary:    rec.EvidenceSummary,
		RiskFlags:          strings.Join(rec.RiskFlags, flagSep),
		Status:             string(rec.Status),
		ReviewerNotes:      rec.ReviewerNotes,
		ApprovedVariant:    rec.ApprovedVariant,
	}
	if !rec.UpdatedAt.IsZero() {
		row.UpdatedAt = rec.UpdatedAt.UTC().Format(time.RFC3339)
	}
	for _, v := range rec.Variants {
		switch v.Label {
		case model.LabelA:
			row.VariantASubject, row.VariantABody = v.Subject, v.Body
		case model.LabelB:
			row.VariantBSubject, row.VariantBBody = v.Subject, v.Body
		case model.LabelC:
			row.VariantCSubject, row.VariantCBody = v.Subject, v.Body
		}
	}
	return row
}

// FromRecords maps every record.
func FromRecords(recs []model.CampaignRecord) []model.ApprovalRow {
	rows := make([]model.ApprovalRow, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, FromRecord(r))
	}
	return rows
}

// ApplyReview copies the reviewer fields of row onto rec. A human decision
// in row replaces the record's status.
func ApplyReview(rec *model.CampaignRecord, row model.ApprovalRow) {
	rec.ReviewerNotes = row.ReviewerNotes
	rec.ApprovedVariant = row.ApprovedVariant
	if s := model.RecordStatus(row.Status); s.IsHumanDecision() {
		rec.Status = s
	}
}

// Value returns one cell of row by column name.
func Value(row model.ApprovalRow, col string) string {
	if p := field(&row, col); p != nil {
		return *p
	}
	return ""
}

// Values renders row in column order.
func Values(row model.ApprovalRow, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = Value(row, c)
	}
	return out
}

// FromValues parses a snapshot row. Header names are matched case
// insensitively; unknown columns are ignored. A missing lead_key is derived
// from the company name, plus the contact email in row mode.
func FromValues(header, values []string, recipientMode string) model.ApprovalRow {
	var row model.ApprovalRow
	for i, h := range header {
		if i >= len(values) {
			break
		}
		if p := field(&row, strings.ToLower(strings.TrimSpace(h))); p != nil {
			*p = strings.TrimSpace(values[i])
		}
	}
	if row.LeadKey == "" {
		row.LeadKey = DeriveKey(row, recipientMode)
	}
	return row
}

// DeriveKey builds a lead key for a snapshot row that lacks one.
func DeriveKey(row model.ApprovalRow, recipientMode string) string {
	key := lead.Slugify(row.CompanyName)
	if recipientMode == lead.ModeRow && row.ContactEmail != "" {
		key += "--" + lead.Slugify(row.ContactEmail)
	}
	return key
}

func field(r *model.ApprovalRow, col string) *string {
	switch col {
	case ColCampaignID:
		return &r.CampaignID
	case ColParentSlug:
		return &r.ParentSlug
	case ColCompanyName:
		return &r.CompanyName
	case ColContactName:
		return &r.ContactName
	case ColContactTitle:
		return &r.ContactTitle
	case ColContactEmail:
		return &r.ContactEmail
	case ColVariantASubject:
		return &r.VariantASubject
	case ColVariantABody:
		return &r.VariantABody
	case ColVariantBSubject:
		return &r.VariantBSubject
	case ColVariantBBody:
		return &r.VariantBBody
	case ColVariantCSubject:
		return &r.VariantCSubject
	case ColVariantCBody:
		return &r.VariantCBody
	case ColRecommendedVariant:
		return &r.RecommendedVariant
	case ColFinalSubject:
		return &r.FinalSubject
	case ColFinalBody:
		return &r.FinalBody
	case ColSelectedVariant:
		return &r.SelectedVariant
	case ColGenerationStatus:
		return &r.GenerationStatus
	case ColGenerationWarning:
		return &r.GenerationWarning
	case ColErrorCode:
		return &r.ErrorCode
	case ColEvidenceSummary:
		return &r.EvidenceSummary
	case ColRiskFlags:
		return &r.RiskFlags
	case ColStatus:
		return &r.Status
	case ColReviewerNotes:
		return &r.ReviewerNotes
	case ColApprovedVariant:
		return &r.ApprovedVariant
	case ColUpdatedAt:
		return &r.UpdatedAt
	case ColLeadKey:
		return &r.LeadKey
	}
	return nil
}
