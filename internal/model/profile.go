package model

// DefaultCTAPolicy is applied when a profile omits cta_policy.
const DefaultCTAPolicy = "call conoscitiva 20-30 min"

// ParentProfile is the typed brand/offer profile of the sending company:
// its voice, its offer and the claims it must never make.
type ParentProfile struct {
	Slug                 string   `yaml:"slug,omitempty" json:"slug" validate:"omitempty,max=80"`
	CompanyName          string   `yaml:"company_name" json:"company_name" validate:"required"`
	Tone                 string   `yaml:"tone" json:"tone" validate:"required"`
	OfferCatalog         []string `yaml:"offer_catalog" json:"offer_catalog" validate:"required,min=1,dive,required"`
	ICP                  []string `yaml:"icp" json:"icp" validate:"required,min=1,dive,required"`
	ProofPoints          []string `yaml:"proof_points" json:"proof_points"`
	Objections           []string `yaml:"objections" json:"objections"`
	CTAPolicy            string   `yaml:"cta_policy" json:"cta_policy" validate:"required"`
	NoGoClaims           []string `yaml:"no_go_claims" json:"no_go_claims"`
	ComplianceNotes      []string `yaml:"compliance_notes" json:"compliance_notes"`
	SenderName           string   `yaml:"sender_name,omitempty" json:"sender_name,omitempty"`
	SenderCompany        string   `yaml:"sender_company,omitempty" json:"sender_company,omitempty"`
	SenderBookingURL     string   `yaml:"sender_booking_url,omitempty" json:"sender_booking_url,omitempty" validate:"omitempty,url"`
	OutreachSeedTemplate string   `yaml:"outreach_seed_template,omitempty" json:"outreach_seed_template,omitempty"`
}

// Signature returns the sign-off name, preferring the sender over the company.
func (p ParentProfile) Signature() string {
	switch {
	case p.SenderName != "" && p.SenderCompany != "":
		return p.SenderName + " - " + p.SenderCompany
	case p.SenderName != "":
		return p.SenderName
	case p.SenderCompany != "":
		return p.SenderCompany
	default:
		return p.CompanyName
	}
}
