package chunkstore

import "fmt"

// LatestAtQuery asks for the single most recent value at or before At on
// Timeline. Rows tied on time are disambiguated by the greatest RowID.
type LatestAtQuery struct {
	Timeline Timeline
	At       Time
}

// NewLatestAtQuery returns a latest-at query pinned to at.
func NewLatestAtQuery(tl Timeline, at Time) LatestAtQuery {
	return LatestAtQuery{Timeline: tl, At: at}
}

// NewLatestQuery returns a latest-at query for the most recent value
// overall.
func NewLatestQuery(tl Timeline) LatestAtQuery {
	return LatestAtQuery{Timeline: tl, At: TimeMax}
}

// String renders the query for logging.
func (q LatestAtQuery) String() string {
	return fmt.Sprintf("latest-at(%s, %s)", q.Timeline.Name(), q.At.Format(q.Timeline.Type()))
}

// RangeQuery asks for every value whose time on Timeline lies in Range,
// bounds included, ordered by (time, RowID) ascending.
type RangeQuery struct {
	Timeline Timeline
	Range    TimeRange
}

// NewRangeQuery returns a range query over r.
func NewRangeQuery(tl Timeline, r TimeRange) RangeQuery {
	return RangeQuery{Timeline: tl, Range: r}
}

// NewEverythingQuery returns a range query covering all of tl.
func NewEverythingQuery(tl Timeline) RangeQuery {
	return RangeQuery{Timeline: tl, Range: EverythingTimeRange()}
}

// String renders the query for logging.
func (q RangeQuery) String() string {
	return fmt.Sprintf("range(%s, %s)", q.Timeline.Name(), q.Range)
}
