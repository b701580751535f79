package model

import (
	"sort"
	"time"
)

// RecordStatus is the lifecycle state of a single campaign record.
type RecordStatus string

const (
	RecordPending          RecordStatus = "pending"
	RecordGenerated        RecordStatus = "generated"
	RecordNeedsRepair      RecordStatus = "needs_repair"
	RecordFailed           RecordStatus = "failed"
	RecordReadyForApproval RecordStatus = "ready_for_approval"
	RecordApproved         RecordStatus = "approved"
	RecordRejected         RecordStatus = "rejected"
)

// IsHumanDecision reports whether the status was set by a reviewer.
func (s RecordStatus) IsHumanDecision() bool {
	return s == RecordApproved || s == RecordRejected
}

// RunStatus is the overall outcome of a campaign run.
type RunStatus string

const (
	RunRunning        RunStatus = "running"
	RunCompleted      RunStatus = "completed"
	RunCostCapReached RunStatus = "cost_cap_reached"
	RunFailed         RunStatus = "failed"
)

// GenerationStatus is the export-facing summary of how generation went.
type GenerationStatus string

const (
	GenerationOK                GenerationStatus = "ok"
	GenerationFailedCopyGuard   GenerationStatus = "failed_copy_guard"
	GenerationError             GenerationStatus = "error"
	GenerationSkippedValidation GenerationStatus = "skipped_validation"
)

// Error codes written to CampaignRecord.ErrorCode.
const (
	ErrCodeRetryExhausted  = "llm_retry_exhausted"
	ErrCodeRejected        = "llm_rejected"
	ErrCodeTimeout         = "llm_timeout"
	ErrCodeQualityBudget   = "quality_budget_exhausted"
	ErrCodeCostCap         = "cost_cap_reached"
	ErrCodeSkipped         = "skipped_validation"
	ErrCodeInvalidResponse = "llm_invalid_response"
	ErrCodeCancelled       = "run_cancelled"
)

// Variant labels.
const (
	LabelA = "A"
	LabelB = "B"
	LabelC = "C"
)

// Variant is one candidate email.
type Variant struct {
	Label             string `json:"label"`
	Subject           string `json:"subject"`
	Body              string `json:"body"`
	GenerationWarning string `json:"generation_warning,omitempty"`
}

// Campaign is one generation run for a parent profile.
type Campaign struct {
	ID            string         `json:"id"`
	ParentSlug    string         `json:"parent_slug"`
	Name          string         `json:"name"`
	RecipientMode string         `json:"recipient_mode"`
	VariantMode   string         `json:"variant_mode"`
	OutputSchema  string         `json:"output_schema"`
	Status        RunStatus      `json:"status"`
	Summary       map[string]any `json:"summary,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// CampaignRecord is the generation outcome for one lead within a campaign.
type CampaignRecord struct {
	CampaignID         string           `json:"campaign_id"`
	LeadKey            string           `json:"lead_key"`
	ParentSlug         string           `json:"parent_slug"`
	Lead               Lead             `json:"lead"`
	Status             RecordStatus     `json:"status"`
	Variants           []Variant        `json:"variants"`
	RecommendedVariant string           `json:"recommended_variant,omitempty"`
	FinalSubject       string           `json:"final_subject,omitempty"`
	FinalBody          string           `json:"final_body,omitempty"`
	SelectedVariant    string           `json:"selected_variant,omitempty"`
	GenerationStatus   GenerationStatus `json:"generation_status,omitempty"`
	GenerationWarning  string           `json:"generation_warning,omitempty"`
	ErrorCode          string           `json:"error_code,omitempty"`
	ErrorReason        string           `json:"error_reason,omitempty"`
	RiskFlags          []string         `json:"risk_flags,omitempty"`
	EvidenceSummary    string           `json:"evidence_summary,omitempty"`
	ReviewerNotes      string           `json:"reviewer_notes,omitempty"`
	ApprovedVariant    string           `json:"approved_variant,omitempty"`
	CostEUR            float64          `json:"cost_eur"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// Variant returns the candidate with the given label.
func (r *CampaignRecord) Variant(label string) (Variant, bool) {
	for _, v := range r.Variants {
		if v.Label == label {
			return v, true
		}
	}
	return Variant{}, false
}

// PutVariant replaces the candidate with the same label or appends it.
func (r *CampaignRecord) PutVariant(v Variant) {
	for i := range r.Variants {
		if r.Variants[i].Label == v.Label {
			r.Variants[i] = v
			return
		}
	}
	r.Variants = append(r.Variants, v)
}

// AddRiskFlags merges flags into the record's risk flag set, kept sorted.
func (r *CampaignRecord) AddRiskFlags(flags ...string) {
	seen := make(map[string]bool, len(r.RiskFlags)+len(flags))
	for _, f := range r.RiskFlags {
		seen[f] = true
	}
	for _, f := range flags {
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		r.RiskFlags = append(r.RiskFlags, f)
	}
	sort.Strings(r.RiskFlags)
}

// Fail moves the record to failed with the given code and reason.
func (r *CampaignRecord) Fail(code, reason string) {
	r.Status = RecordFailed
	r.ErrorCode = code
	r.ErrorReason = reason
	if r.GenerationStatus == "" || r.GenerationStatus == GenerationOK {
		r.GenerationStatus = GenerationError
	}
}

// SelectRecommended fills the final fields from the recommended variant,
// falling back to the first candidate.
func (r *CampaignRecord) SelectRecommended() {
	v, ok := r.Variant(r.RecommendedVariant)
	if !ok {
		if len(r.Variants) == 0 {
			return
		}
		v = r.Variants[0]
		r.RecommendedVariant = v.Label
	}
	r.FinalSubject = v.Subject
	r.FinalBody = v.Body
	r.SelectedVariant = v.Label
}

// QualityViolation is one failed quality rule on one candidate.
type QualityViolation struct {
	RuleID   string `json:"rule_id"`
	Severity string `json:"severity"`
	Label    string `json:"label,omitempty"`
	Detail   string `json:"detail,omitempty"`
	Message  string `json:"message"`
}

// Violation severities.
const (
	SeverityBlock = "block"
	SeverityWarn  = "warn"
)

// Flag renders the violation as a risk flag.
func (v QualityViolation) Flag() string {
	if v.Detail != "" {
		return v.RuleID + ":" + v.Detail
	}
	return v.RuleID
}

// ApprovalRow is one row of the human approval queue, using the column
// contract of the export file.
type ApprovalRow struct {
	CampaignID         string
	LeadKey            string
	ParentSlug         string
	CompanyName        string
	ContactName        string
	ContactTitle       string
	ContactEmail       string
	VariantASubject    string
	VariantABody       string
	VariantBSubject    string
	VariantBBody       string
	VariantCSubject    string
	VariantCBody       string
	RecommendedVariant string
	FinalSubject       string
	FinalBody          string
	SelectedVariant    string
	GenerationStatus   string
	GenerationWarning  string
	ErrorCode          string
	EvidenceSummary    string
	RiskFlags          string
	Status             string
	ReviewerNotes      string
	ApprovedVariant    string
	UpdatedAt          string
}

// RowKey identifies an approval row.
type RowKey struct {
	CampaignID string
	LeadKey    string
}

// Key returns the row's identity.
func (r ApprovalRow) Key() RowKey {
	return RowKey{CampaignID: r.CampaignID, LeadKey: r.LeadKey}
}
