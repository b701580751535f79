// Package reconcile merges freshly generated approval rows with the prior
// approval-queue snapshot.
package reconcile

import (
	"time"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Options controls the merge.
type Options struct {
	// Regenerate drops prior rows that have no fresh counterpart.
	Regenerate bool
	// Force lists lead keys regenerated over a prior approval. A forced key
	// takes the fresh row wholesale.
	Force map[string]bool
	// Now stamps rows whose content changed.
	Now time.Time
}

// Stats counts the join cases.
type Stats struct {
	New       int `json:"new"`
	Merged    int `json:"merged"`
	Approved  int `json:"approved_kept"`
	Forced    int `json:"forced"`
	PriorOnly int `json:"prior_only"`
	Dropped   int `json:"dropped"`
}

// Merge outer-joins fresh and prior on (campaign_id, lead_key). Fresh rows
// come first in their original order, followed by surviving prior-only rows.
//
//   - fresh only: the fresh row
//   - prior only: the prior row, unless Regenerate is set
//   - both, prior approved and not forced: the prior row exactly
//   - both, forced: the fresh row
//   - both otherwise: machine fields from fresh; reviewer_notes and
//     approved_variant from prior; status from prior when it is a human
//     decision
//
// updated_at is refreshed only when the merged row differs from prior.
// Merge does not modify its inputs.
func Merge(fresh, prior []model.ApprovalRow, opts Options) ([]model.ApprovalRow, Stats) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	stamp := now.UTC().Format(time.RFC3339)

	byKey := make(map[model.RowKey]model.ApprovalRow, len(prior))
	for _, p := range prior {
		byKey[p.Key()] = p
	}

	var st Stats
	out := make([]model.ApprovalRow, 0, len(fresh)+len(prior))
	seen := make(map[model.RowKey]bool, len(fresh))
	for _, f := range fresh {
		k := f.Key()
		if seen[k] {
			continue
		}
		seen[k] = true

		p, ok := byKey[k]
		if !ok {
			st.New++
			if f.UpdatedAt == "" {
				f.UpdatedAt = stamp
			}
			out = append(out, f)
			continue
		}

		switch {
		case opts.Force[k.LeadKey]:
			st.Forced++
			out = append(out, touch(f, p, stamp))
		case p.Status == string(model.RecordApproved):
			st.Approved++
			out = append(out, p)
		default:
			st.Merged++
			m := f
			m.ReviewerNotes = p.ReviewerNotes
			m.ApprovedVariant = p.ApprovedVariant
			if model.RecordStatus(p.Status).IsHumanDecision() {
				m.Status = p.Status
			}
			out = append(out, touch(m, p, stamp))
		}
	}

	for _, p := range prior {
		if seen[p.Key()] {
			continue
		}
		seen[p.Key()] = true
		if opts.Regenerate {
			st.Dropped++
			continue
		}
		st.PriorOnly++
		out = append(out, p)
	}
	return out, st
}

// touch keeps prior's updated_at when merged carries the same content.
func touch(merged, prior model.ApprovalRow, stamp string) model.ApprovalRow {
	a, b := merged, prior
	a.UpdatedAt, b.UpdatedAt = "", ""
	if a == b {
		merged.UpdatedAt = prior.UpdatedAt
		return merged
	}
	merged.UpdatedAt = stamp
	return merged
}
