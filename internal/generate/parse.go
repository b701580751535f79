package generate

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xeipuuv/gojsonschema"

	"github.com/sells-group/outreach-cli/internal/model"
)

const completionSchema = `{
  "type": "object",
  "required": ["variants"],
  "properties": {
    "variants": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["label", "subject", "body"],
        "properties": {
          "label":   {"type": "string", "enum": ["A", "B", "C", "a", "b", "c"]},
          "subject": {"type": "string", "minLength": 1},
          "body":    {"type": "string", "minLength": 1}
        }
      }
    },
    "recommended_variant": {"type": "string"}
  }
}`

var schema = mustSchema(completionSchema)

func mustSchema(s string) *gojsonschema.Schema {
	sc, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(err)
	}
	return sc
}

type completion struct {
	Variants []struct {
		Label   string `json:"label"`
		Subject string `json:"subject"`
		Body    string `json:"body"`
	} `json:"variants"`
	Recommended string `json:"recommended_variant"`
}

// ParseCompletion extracts and validates the JSON object in a model reply and
// keeps only the requested labels, in request order.
func ParseCompletion(text string, labels []string) ([]model.Variant, string, error) {
	doc := extractJSON(text)
	if doc == "" {
		return nil, "", eris.New("generate: no JSON object in completion")
	}

	res, err := schema.Validate(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return nil, "", eris.Wrap(err, "generate: decode completion")
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, "", eris.Errorf("generate: completion violates schema: %s", strings.Join(msgs, "; "))
	}

	var c completion
	if err := json.Unmarshal([]byte(doc), &c); err != nil {
		return nil, "", eris.Wrap(err, "generate: unmarshal completion")
	}

	byLabel := make(map[string]model.Variant, len(c.Variants))
	for _, v := range c.Variants {
		label := strings.ToUpper(v.Label)
		if _, dup := byLabel[label]; dup {
			continue
		}
		byLabel[label] = model.Variant{
			Label:   label,
			Subject: strings.TrimSpace(v.Subject),
			Body:    strings.TrimSpace(v.Body),
		}
	}

	out := make([]model.Variant, 0, len(labels))
	for _, l := range labels {
		if v, ok := byLabel[l]; ok {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil, "", eris.Errorf("generate: completion has none of the requested variants %v", labels)
	}
	return out, c.Recommended, nil
}

// extractJSON returns the outermost {...} span, tolerating code fences and
// surrounding prose.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}
