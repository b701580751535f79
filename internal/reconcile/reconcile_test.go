package reconcile

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/sells-group/outreach-cli/internal/model"
)

var now = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

const (
	stamp = "2026-10-14T09:00:00Z"
	old   = "2026-09-01T08:00:00Z"
)

func row(lead, status, subject string) model.ApprovalRow {
	return model.ApprovalRow{
		CampaignID:   "c1",
		LeadKey:      lead,
		CompanyName:  lead + " Srl",
		FinalSubject: subject,
		Status:       status,
		UpdatedAt:    old,
	}
}

func TestMerge_ApprovedPriorWinsExactly(t *testing.T) {
	prior := row("acme", "approved", "Old subject")
	prior.ReviewerNotes = "ok to send"
	prior.ApprovedVariant = "B"
	fresh := row("acme", "ready_for_approval", "New subject")
	fresh.UpdatedAt = stamp

	got, st := Merge([]model.ApprovalRow{fresh}, []model.ApprovalRow{prior}, Options{Now: now})
	if diff := cmp.Diff([]model.ApprovalRow{prior}, got); diff != "" {
		t.Errorf("Merge() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, st.Approved)
}

func TestMerge_HumanFieldsFromPrior(t *testing.T) {
	prior := row("acme", "rejected", "Old subject")
	prior.ReviewerNotes = "troppo lungo"
	fresh := row("acme", "ready_for_approval", "New subject")

	got, st := Merge([]model.ApprovalRow{fresh}, []model.ApprovalRow{prior}, Options{Now: now})
	want := fresh
	want.Status = "rejected"
	want.ReviewerNotes = "troppo lungo"
	want.UpdatedAt = stamp
	if diff := cmp.Diff([]model.ApprovalRow{want}, got); diff != "" {
		t.Errorf("Merge() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, st.Merged)
}

func TestMerge_MachineStatusWhenPriorUndecided(t *testing.T) {
	prior := row("acme", "ready_for_approval", "Old subject")
	fresh := row("acme", "failed", "")

	got, _ := Merge([]model.ApprovalRow{fresh}, []model.ApprovalRow{prior}, Options{Now: now})
	assert.Equal(t, "failed", got[0].Status)
}

func TestMerge_UnchangedKeepsTimestamp(t *testing.T) {
	prior := row("acme", "ready_for_approval", "Same")
	fresh := prior
	fresh.UpdatedAt = stamp

	got, _ := Merge([]model.ApprovalRow{fresh}, []model.ApprovalRow{prior}, Options{Now: now})
	assert.Equal(t, old, got[0].UpdatedAt)
}

func TestMerge_OuterJoin(t *testing.T) {
	fresh := []model.ApprovalRow{row("b", "ready_for_approval", "B"), row("a", "ready_for_approval", "A")}
	fresh[1].UpdatedAt = ""
	prior := []model.ApprovalRow{row("manual", "approved", "M"), row("a", "ready_for_approval", "A")}

	got, st := Merge(fresh, prior, Options{Now: now})
	keys := make([]string, 0, len(got))
	for _, r := range got {
		keys = append(keys, r.LeadKey)
	}
	assert.Equal(t, []string{"b", "a", "manual"}, keys)
	assert.Equal(t, Stats{New: 1, Merged: 1, PriorOnly: 1}, st)
	assert.Equal(t, old, got[1].UpdatedAt)
}

func TestMerge_RegenerateDropsPriorOnly(t *testing.T) {
	prior := []model.ApprovalRow{row("manual", "approved", "M")}
	got, st := Merge(nil, prior, Options{Now: now, Regenerate: true})
	assert.Empty(t, got)
	assert.Equal(t, 1, st.Dropped)
}

func TestMerge_ForceOverridesApproval(t *testing.T) {
	prior := row("acme", "approved", "Old")
	prior.ReviewerNotes = "sent"
	fresh := row("acme", "ready_for_approval", "New")

	got, st := Merge([]model.ApprovalRow{fresh}, []model.ApprovalRow{prior},
		Options{Now: now, Force: map[string]bool{"acme": true}})
	want := fresh
	want.UpdatedAt = stamp
	if diff := cmp.Diff([]model.ApprovalRow{want}, got); diff != "" {
		t.Errorf("Merge() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, st.Forced)
}

func TestMerge_NewRowStamped(t *testing.T) {
	fresh := row("new", "failed", "")
	fresh.UpdatedAt = ""
	got, _ := Merge([]model.ApprovalRow{fresh}, nil, Options{Now: now})
	assert.Equal(t, stamp, got[0].UpdatedAt)
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	fresh := []model.ApprovalRow{row("acme", "ready_for_approval", "New")}
	prior := []model.ApprovalRow{row("acme", "rejected", "Old")}
	before := append([]model.ApprovalRow(nil), fresh...)

	_, _ = Merge(fresh, prior, Options{Now: now})
	assert.Equal(t, before, fresh)
}

func TestMerge_DifferentCampaignsDoNotMatch(t *testing.T) {
	prior := row("acme", "approved", "Old")
	prior.CampaignID = "c0"
	got, st := Merge([]model.ApprovalRow{row("acme", "ready_for_approval", "New")}, []model.ApprovalRow{prior}, Options{Now: now})
	assert.Len(t, got, 2)
	assert.Equal(t, 1, st.New)
	assert.Equal(t, 1, st.PriorOnly)
}

// Merging the same fresh rows into the previous output changes nothing.
func TestMerge_Idempotent(t *testing.T) {
	approved := row("approved", "approved", "Old approved")
	approved.ReviewerNotes = "ok"
	rejected := row("rejected", "rejected", "Old rejected")
	rejected.ReviewerNotes = "tono sbagliato"
	forced := row("forced", "approved", "Old forced")
	undecided := row("undecided", "ready_for_approval", "Old undecided")
	priorOnly := row("prior-only", "approved", "Kept")
	prior := []model.ApprovalRow{approved, rejected, forced, undecided, priorOnly}

	fresh := []model.ApprovalRow{
		row("approved", "ready_for_approval", "New approved"),
		row("rejected", "ready_for_approval", "New rejected"),
		row("forced", "ready_for_approval", "New forced"),
		row("undecided", "ready_for_approval", "New undecided"),
		row("new", "ready_for_approval", "Brand new"),
	}
	fresh[4].UpdatedAt = ""

	tests := []struct {
		name string
		opts Options
	}{
		{"default", Options{Now: now, Force: map[string]bool{"forced": true}}},
		{"regenerate", Options{Now: now, Regenerate: true, Force: map[string]bool{"forced": true}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			once, _ := Merge(fresh, prior, tt.opts)
			twice, st := Merge(fresh, once, tt.opts)
			if diff := cmp.Diff(once, twice); diff != "" {
				t.Errorf("second Merge() changed rows (-once +twice):\n%s", diff)
			}
			assert.Zero(t, st.New)
			assert.Zero(t, st.Dropped)
		})
	}
}
