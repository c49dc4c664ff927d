package thinning

import (
	"fmt"

	"sidewalkd/model"
)

type Mode string

const (
	// ModeCumulative stores a row for every zoom level at which a label is
	// visible, from its minimum up to the finest level.
	ModeCumulative Mode = "cumulative"
	// ModeMinimum stores only the minimum zoom level of each label.
	ModeMinimum Mode = "minimum"
)

// IsValid returns true if Mode is known
func (m Mode) IsValid() bool {
	switch m {
	case ModeCumulative, ModeMinimum:
		return true
	}
	return false
}

// Assignment is the coarsest zoom level at which a label becomes visible.
type Assignment struct {
	LabelID   int
	LabelType model.LabelType
	Rank      int
	MinZoom   int
}

// Assign ranks every label of every type by its position in ranked (which
// must already be sorted by descending severity) and resolves its minimum
// zoom level against b. Labels whose rank exceeds the finest budget are
// returned in uncovered rather than assigned.
func Assign(b *Budget, ranked map[model.LabelType][]model.RankedLabel) (assigned []Assignment, uncovered []model.RankedLabel, err error) {
	for t := range ranked {
		if !t.IsValid() {
			return nil, nil, fmt.Errorf("%w: %d", model.ErrInvalidLabelType, int(t))
		}
	}
	for _, t := range model.LabelTypes {
		for rank, label := range ranked[t] {
			zoom, ok, err := b.MinZoom(t, rank)
			if err != nil {
				return nil, nil, fmt.Errorf("label %d: %w", label.LabelID, err)
			}
			if !ok {
				uncovered = append(uncovered, label)
				continue
			}
			assigned = append(assigned, Assignment{
				LabelID:   label.LabelID,
				LabelType: t,
				Rank:      rank,
				MinZoom:   zoom,
			})
		}
	}
	return assigned, uncovered, nil
}

// Rows expands assignments into label_presampled rows. finest is the most
// zoomed-in level of the budget the assignments came from.
func Rows(assignments []Assignment, finest int, mode Mode) ([]model.LabelPresampled, error) {
	if !mode.IsValid() {
		return nil, fmt.Errorf("unknown presample mode %q", mode)
	}
	rows := make([]model.LabelPresampled, 0, len(assignments))
	for _, a := range assignments {
		if mode == ModeMinimum {
			rows = append(rows, model.LabelPresampled{LabelID: a.LabelID, ZoomLevel: a.MinZoom})
			continue
		}
		for z := a.MinZoom; z <= finest; z++ {
			rows = append(rows, model.LabelPresampled{LabelID: a.LabelID, ZoomLevel: z})
		}
	}
	return rows, nil
}
