package chunkstore

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// TimeType says how the values of a timeline are to be interpreted.
type TimeType int

const (
	// TimeTypeSequence is a monotonically increasing counter, e.g. a frame
	// number.
	TimeTypeSequence TimeType = iota + 1

	// TimeTypeTimestamp is nanoseconds since the unix epoch.
	TimeTypeTimestamp
)

// String returns a human-readable representation of the time type.
func (t TimeType) String() string {
	switch t {
	case TimeTypeSequence:
		return "sequence"
	case TimeTypeTimestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("TimeType(%d)", int(t))
	}
}

// Time is one value on a timeline: a sequence number or a unix nanosecond,
// depending on the timeline's TimeType.
type Time int64

const (
	// TimeMin sorts before every representable time.
	TimeMin Time = math.MinInt64

	// TimeMax sorts after every representable time.
	TimeMax Time = math.MaxInt64
)

// TimeFromUnixNano converts a unix nanosecond timestamp.
func TimeFromUnixNano(ns int64) Time { return Time(ns) }

// TimeFromTime converts a wall-clock time.
func TimeFromTime(t time.Time) Time { return Time(t.UnixNano()) }

// Int64 returns the raw value.
func (t Time) Int64() int64 { return int64(t) }

// Format renders t according to the given time type.
func (t Time) Format(typ TimeType) string {
	if typ == TimeTypeTimestamp {
		return time.Unix(0, int64(t)).UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("#%d", int64(t))
}

// Timeline is a named axis of time. Two timelines are the same axis only if
// both the name and the type match; the store rejects redefinition of a name
// under a different type.
type Timeline struct {
	name string
	typ  TimeType
}

// NewTimeline returns the timeline with the given name and type.
func NewTimeline(name string, typ TimeType) Timeline {
	return Timeline{name: name, typ: typ}
}

// SequenceTimeline returns a sequence-typed timeline.
func SequenceTimeline(name string) Timeline {
	return NewTimeline(name, TimeTypeSequence)
}

// TimestampTimeline returns a timestamp-typed timeline.
func TimestampTimeline(name string) Timeline {
	return NewTimeline(name, TimeTypeTimestamp)
}

// Name returns the timeline's name.
func (tl Timeline) Name() string { return tl.name }

// Type returns the timeline's time type.
func (tl Timeline) Type() TimeType { return tl.typ }

// String returns the timeline name.
func (tl Timeline) String() string { return tl.name }

// TimeRange is an inclusive interval [Min, Max] on one timeline. A range
// with Min > Max is empty.
type TimeRange struct {
	Min Time
	Max Time
}

// NewTimeRange returns the inclusive range [min, max].
func NewTimeRange(min, max Time) TimeRange {
	return TimeRange{Min: min, Max: max}
}

// EverythingTimeRange covers all representable times.
func EverythingTimeRange() TimeRange {
	return TimeRange{Min: TimeMin, Max: TimeMax}
}

// IsEmpty reports whether the range contains no time at all.
func (r TimeRange) IsEmpty() bool { return r.Min > r.Max }

// Contains reports whether t lies within the range, bounds included.
func (r TimeRange) Contains(t Time) bool { return r.Min <= t && t <= r.Max }

// Overlaps reports whether the two ranges share at least one time value.
func (r TimeRange) Overlaps(o TimeRange) bool {
	return r.Min <= o.Max && o.Min <= r.Max
}

// Union returns the smallest range covering both r and o.
func (r TimeRange) Union(o TimeRange) TimeRange {
	if r.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return r
	}
	u := r
	if o.Min < u.Min {
		u.Min = o.Min
	}
	if o.Max > u.Max {
		u.Max = o.Max
	}
	return u
}

// String renders the range as [min, max].
func (r TimeRange) String() string {
	return fmt.Sprintf("[%d, %d]", int64(r.Min), int64(r.Max))
}

// TimePoint maps each timeline a row was logged on to its time value on that
// timeline. An empty TimePoint marks the row static: valid at all times, on
// all timelines, last-write-wins.
type TimePoint map[Timeline]Time

// IsStatic reports whether the point carries no timeline at all.
func (tp TimePoint) IsStatic() bool { return len(tp) == 0 }

// With returns a copy of tp extended with (tl, t).
func (tp TimePoint) With(tl Timeline, t Time) TimePoint {
	out := make(TimePoint, len(tp)+1)
	for k, v := range tp {
		out[k] = v
	}
	out[tl] = t
	return out
}

// Timelines returns the timelines of the point, ordered by name for
// deterministic iteration.
func (tp TimePoint) Timelines() []Timeline {
	out := make([]Timeline, 0, len(tp))
	for tl := range tp {
		out = append(out, tl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}
