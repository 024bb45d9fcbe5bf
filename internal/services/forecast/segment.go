package forecast

import (
	"fmt"
	"sort"

	"SalesCast/internal/domain/models"
	"SalesCast/internal/services/features"
)

// SegmentKey names a training scope: SegmentAll or a calendar month "01".."12".
type SegmentKey string

// SegmentAll is the single segment of the GLOBAL granularity.
const SegmentAll SegmentKey = "ALL"

// MonthSegment returns the key of the calendar-month segment m.
func MonthSegment(m int) SegmentKey { return SegmentKey(fmt.Sprintf("%02d", m)) }

// Segment is a set of frame rows trained together and the columns they use.
type Segment struct {
	Key     SegmentKey
	Rows    []int
	Columns []string
}

// Plan partitions the rows of f. Every row lands in exactly one segment;
// segments are ordered by key.
func Plan(g Granularity, f *features.Frame) []Segment {
	if f.Len() == 0 {
		return nil
	}
	if g != PerCalendarMonth {
		rows := make([]int, f.Len())
		for i := range rows {
			rows[i] = i
		}
		return []Segment{{Key: SegmentAll, Rows: rows, Columns: f.Columns()}}
	}

	byMonth := make(map[int][]int)
	for i, p := range f.Periods() {
		byMonth[p.Month] = append(byMonth[p.Month], i)
	}
	months := make([]int, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Ints(months)

	out := make([]Segment, 0, len(months))
	for _, m := range months {
		out = append(out, Segment{
			Key:     MonthSegment(m),
			Rows:    byMonth[m],
			Columns: []string{features.ColYear},
		})
	}
	return out
}

// SegmentFor maps a period to the key of the segment that predicts it.
func SegmentFor(g Granularity, p models.Period) SegmentKey {
	if g == PerCalendarMonth {
		return MonthSegment(p.Month)
	}
	return SegmentAll
}
