// Package profile loads and validates parent brand profiles.
package profile

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/outreach-cli/internal/lead"
	"github.com/sells-group/outreach-cli/internal/model"
)

// RequiredKeys must appear in every profile file, even when empty.
var RequiredKeys = []string{
	"company_name",
	"tone",
	"offer_catalog",
	"icp",
	"proof_points",
	"objections",
	"cta_policy",
	"no_go_claims",
	"compliance_notes",
}

var validate = validator.New()

// LoadFile reads a profile from a YAML file. slugOverride, when set, replaces
// the slug from the file.
func LoadFile(path, slugOverride string) (model.ParentProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.ParentProfile{}, eris.Wrapf(err, "profile: read %s", path)
	}
	return Parse(data, slugOverride)
}

// Parse decodes and validates a YAML profile. List fields accept either a
// YAML sequence or a string separated by ";" or ",".
func Parse(data []byte, slugOverride string) (model.ParentProfile, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return model.ParentProfile{}, eris.Wrap(err, "profile: parse yaml")
	}
	if raw == nil {
		return model.ParentProfile{}, eris.New("profile: must be a YAML mapping")
	}

	var missing []string
	for _, k := range RequiredKeys {
		if _, ok := raw[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return model.ParentProfile{}, eris.Errorf("profile: missing required keys: %s", strings.Join(missing, ", "))
	}

	p := model.ParentProfile{
		CompanyName:          str(raw["company_name"]),
		Tone:                 str(raw["tone"]),
		OfferCatalog:         list(raw["offer_catalog"]),
		ICP:                  list(raw["icp"]),
		ProofPoints:          list(raw["proof_points"]),
		Objections:           list(raw["objections"]),
		CTAPolicy:            str(raw["cta_policy"]),
		NoGoClaims:           list(raw["no_go_claims"]),
		ComplianceNotes:      list(raw["compliance_notes"]),
		SenderName:           str(raw["sender_name"]),
		SenderCompany:        str(raw["sender_company"]),
		SenderBookingURL:     str(raw["sender_booking_url"]),
		OutreachSeedTemplate: str(raw["outreach_seed_template"]),
	}
	if p.CTAPolicy == "" {
		p.CTAPolicy = model.DefaultCTAPolicy
	}

	slug := strings.TrimSpace(slugOverride)
	if slug == "" {
		slug = str(raw["slug"])
	}
	if slug == "" {
		slug = p.CompanyName
	}
	p.Slug = lead.Slugify(slug)

	if err := Validate(p); err != nil {
		return model.ParentProfile{}, err
	}
	return p, nil
}

// Validate checks a profile's struct constraints.
func Validate(p model.ParentProfile) error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return eris.Wrap(err, "profile: validate")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return eris.Errorf("profile: invalid: %s", strings.Join(msgs, "; "))
}

// Marshal renders a profile back to YAML.
func Marshal(p model.ParentProfile) ([]byte, error) {
	out, err := yaml.Marshal(p)
	if err != nil {
		return nil, eris.Wrap(err, "profile: marshal yaml")
	}
	return out, nil
}

func str(v any) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func list(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		var out []string
		for _, item := range t {
			if s := str(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		sep := ""
		switch {
		case strings.Contains(t, ";"):
			sep = ";"
		case strings.Contains(t, ","):
			sep = ","
		}
		if sep == "" {
			if s := strings.TrimSpace(t); s != "" {
				return []string{s}
			}
			return nil
		}
		var out []string
		for _, part := range strings.Split(t, sep) {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{str(t)}
	}
}
