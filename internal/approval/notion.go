// Package approval publishes reconciled approval rows to a review surface.
package approval

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/notion"
)

// Property names of the Notion approval database.
const (
	PropCompany          = "Company"
	PropRowKey           = "Row Key"
	PropCampaign         = "Campaign"
	PropParent           = "Parent"
	PropContact          = "Contact"
	PropEmail            = "Email"
	PropRecommended      = "Recommended"
	PropSubject          = "Final Subject"
	PropBody             = "Final Body"
	PropGenerationStatus = "Generation Status"
	PropErrorCode        = "Error Code"
	PropRiskFlags        = "Risk Flags"
	PropEvidence         = "Evidence"
	PropStatus           = "Status"
	PropReviewerNotes    = "Reviewer Notes"
	PropApprovedVariant  = "Approved Variant"
	PropUpdatedAt        = "Updated At"
)

// Publisher pushes approval rows somewhere a reviewer can act on them.
type Publisher interface {
	Publish(ctx context.Context, rows []model.ApprovalRow) (Stats, error)
}

// Stats counts what a publish did.
type Stats struct {
	Created int
	Updated int
}

// NotionPublisher upserts one page per row into a Notion database, matching
// existing pages by the "Row Key" property.
type NotionPublisher struct {
	client notion.Client
	dbID   string
}

// NewNotionPublisher creates a publisher for the given database.
func NewNotionPublisher(client notion.Client, dbID string) *NotionPublisher {
	return &NotionPublisher{client: client, dbID: dbID}
}

// RowKey renders the Notion-side identity of a row.
func RowKey(r model.ApprovalRow) string {
	return r.CampaignID + "/" + r.LeadKey
}

// Publish creates pages for new rows and refreshes the machine fields of
// existing ones. Reviewer fields are only written on creation so edits made
// in Notion are never clobbered.
func (p *NotionPublisher) Publish(ctx context.Context, rows []model.ApprovalRow) (Stats, error) {
	var st Stats
	for _, r := range rows {
		key := RowKey(r)
		existing, err := notion.FindByText(ctx, p.client, p.dbID, PropRowKey, key)
		if err != nil {
			return st, eris.Wrapf(err, "approval: lookup %s", key)
		}

		if existing == nil {
			props := machineProperties(r)
			props[PropStatus] = notion.Select(r.Status)
			props[PropReviewerNotes] = notion.Text(r.ReviewerNotes)
			props[PropApprovedVariant] = notion.Text(r.ApprovedVariant)
			_, err = p.client.CreatePage(ctx, &notionapi.PageCreateRequest{
				Parent: notionapi.Parent{
					Type:       notionapi.ParentTypeDatabaseID,
					DatabaseID: notionapi.DatabaseID(p.dbID),
				},
				Properties: props,
			})
			if err != nil {
				return st, eris.Wrapf(err, "approval: create %s", key)
			}
			st.Created++
			continue
		}

		_, err = p.client.UpdatePage(ctx, string(existing.ID), &notionapi.PageUpdateRequest{
			Properties: machineProperties(r),
		})
		if err != nil {
			return st, eris.Wrapf(err, "approval: update %s", key)
		}
		st.Updated++
	}

	zap.L().Info("approval: published rows",
		zap.String("database", p.dbID),
		zap.Int("created", st.Created),
		zap.Int("updated", st.Updated),
	)
	return st, nil
}

func machineProperties(r model.ApprovalRow) notionapi.Properties {
	contact := r.ContactName
	if r.ContactTitle != "" {
		contact += " (" + r.ContactTitle + ")"
	}
	return notionapi.Properties{
		PropCompany:          notion.Title(r.CompanyName),
		PropRowKey:           notion.Text(RowKey(r)),
		PropCampaign:         notion.Text(r.CampaignID),
		PropParent:           notion.Text(r.ParentSlug),
		PropContact:          notion.Text(contact),
		PropEmail:            notion.Text(r.ContactEmail),
		PropRecommended:      notion.Text(r.RecommendedVariant),
		PropSubject:          notion.Text(r.FinalSubject),
		PropBody:             notion.Text(r.FinalBody),
		PropGenerationStatus: notion.Select(r.GenerationStatus),
		PropErrorCode:        notion.Text(r.ErrorCode),
		PropRiskFlags:        notion.Text(r.RiskFlags),
		PropEvidence:         notion.Text(r.EvidenceSummary),
		PropUpdatedAt:        notion.Text(r.UpdatedAt),
	}
}
