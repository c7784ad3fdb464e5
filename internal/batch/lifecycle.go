// Package batch derives the lifecycle of a plant batch from its identifier.
//
// A batch identifier encodes the moment the batch was started as
// BATCH_YYYYMMDD_HHMMSS. Everything else (age, expected harvest date,
// readiness, growth phase) is computed from that timestamp and the number of
// days the crop needs to reach harvest. Nothing here performs I/O or keeps
// state between calls; malformed identifiers degrade to zero values instead
// of errors.
package batch

import (
	"fmt"
	"time"
)

// Prefix starts every batch identifier.
const Prefix = "BATCH_"

const (
	separator  = '_'
	dateLayout = "20060102"
	timeLayout = "150405"
	day        = 24 * time.Hour
)

// MaxDaysToHarvest is the longest harvest timeline callers should store.
const MaxDaysToHarvest = 3650

// maxTimelineDays bounds timelines inside calculations. It exceeds any age
// a time.Duration can express, so clamping to it never changes a result.
const maxTimelineDays = 1 << 30

// DefaultDateLayout is the short date used in display labels.
const DefaultDateLayout = "1/2/2006"

// ID is a timestamp-encoded batch identifier.
type ID string

// String returns the identifier text.
func (id ID) String() string { return string(id) }

// Lifecycle computes batch identifiers and derived status in a fixed
// calendar location against a wall-clock source.
// The zero value is not usable; construct one with New.
type Lifecycle struct {
	loc        *time.Location
	now        func() time.Time
	dateLayout string
}

// Option configures a Lifecycle.
type Option func(*Lifecycle)

// WithLocation sets the calendar location used to encode and decode identifiers.
func WithLocation(loc *time.Location) Option {
	return func(l *Lifecycle) {
		if loc != nil {
			l.loc = loc
		}
	}
}

// WithClock overrides the source of the current time.
func WithClock(now func() time.Time) Option {
	return func(l *Lifecycle) {
		if now != nil {
			l.now = now
		}
	}
}

// WithDateLayout sets the time layout of the date shown by DisplayLabel.
func WithDateLayout(layout string) Option {
	return func(l *Lifecycle) {
		if layout != "" {
			l.dateLayout = layout
		}
	}
}

// New returns a Lifecycle using the local time zone and time.Now unless
// overridden.
func New(opts ...Option) *Lifecycle {
	l := &Lifecycle{
		loc:        time.Local,
		now:        time.Now,
		dateLayout: DefaultDateLayout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Location returns the calendar location identifiers are interpreted in.
func (l *Lifecycle) Location() *time.Location { return l.loc }

// Now returns the current time in the lifecycle location.
func (l *Lifecycle) Now() time.Time { return l.now().In(l.loc) }

// NewID returns the identifier for a batch started now.
func (l *Lifecycle) NewID() ID {
	return l.GenerateID(l.now())
}

// GenerateID encodes at, to the second, in the lifecycle location.
func (l *Lifecycle) GenerateID(at time.Time) ID {
	at = at.In(l.loc)
	return ID(fmt.Sprintf("%s%04d%02d%02d%c%02d%02d%02d",
		Prefix,
		at.Year(), int(at.Month()), at.Day(),
		separator,
		at.Hour(), at.Minute(), at.Second(),
	))
}

// ParseID decodes the creation time of a batch identifier.
// ok is false when text is not a well-formed identifier.
func (l *Lifecycle) ParseID(text string) (created time.Time, ok bool) {
	if len(text) < len(Prefix) || text[:len(Prefix)] != Prefix {
		return time.Time{}, false
	}

	datePart, timePart, ok := splitSegments(text[len(Prefix):])
	if !ok {
		return time.Time{}, false
	}
	if len(datePart) != len(dateLayout) || len(timePart) != len(timeLayout) {
		return time.Time{}, false
	}
	if !allDigits(datePart) || !allDigits(timePart) {
		return time.Time{}, false
	}

	// time.Date normalises out of range fields (month 13, second 60) the
	// same way a calendar constructor would, so no range checks here.
	return time.Date(
		atoi(datePart[0:4]), time.Month(atoi(datePart[4:6])), atoi(datePart[6:8]),
		atoi(timePart[0:2]), atoi(timePart[2:4]), atoi(timePart[4:6]),
		0, l.loc,
	), true
}

// splitSegments splits the text after the prefix into exactly two
// separator-delimited segments.
func splitSegments(rest string) (string, string, bool) {
	idx := -1
	for i := 0; i < len(rest); i++ {
		if rest[i] != separator {
			continue
		}
		if idx >= 0 {
			return "", "", false
		}
		idx = i
	}
	if idx < 0 {
		return "", "", false
	}
	return rest[:idx], rest[idx+1:], true
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// atoi converts a string already checked by allDigits.
func atoi(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		n = n*10 + int(s[i]-'0')
	}
	return n
}

// AgeInDays returns the batch age in whole days as of now.
func (l *Lifecycle) AgeInDays(id string) int {
	return l.AgeInDaysAt(id, l.now())
}

// AgeInDaysAt returns the number of days between the batch start and now,
// counting any partial day as a full one. Unparseable identifiers are 0 days old.
func (l *Lifecycle) AgeInDaysAt(id string, now time.Time) int {
	created, ok := l.ParseID(id)
	if !ok {
		return 0
	}
	elapsed := now.Sub(created)
	if elapsed < 0 {
		elapsed = -elapsed
	}
	days := int(elapsed / day)
	if elapsed%day != 0 {
		days++
	}
	return days
}

// ExpectedHarvestDate returns the start of the batch advanced by
// daysToHarvest calendar days. ok is false when the identifier does not parse,
// no positive harvest timeline is given, or the date is out of range.
func (l *Lifecycle) ExpectedHarvestDate(id string, daysToHarvest int) (time.Time, bool) {
	created, ok := l.ParseID(id)
	if !ok || daysToHarvest <= 0 || daysToHarvest > maxTimelineDays {
		return time.Time{}, false
	}
	expected := created.AddDate(0, 0, daysToHarvest)
	if !expected.After(created) {
		return time.Time{}, false
	}
	return expected, true
}

// IsReadyForHarvest reports whether the expected harvest date has been reached.
func (l *Lifecycle) IsReadyForHarvest(id string, daysToHarvest int) bool {
	return l.IsReadyForHarvestAt(id, daysToHarvest, l.now())
}

// IsReadyForHarvestAt reports whether now is on or after the expected
// harvest date.
func (l *Lifecycle) IsReadyForHarvestAt(id string, daysToHarvest int, now time.Time) bool {
	expected, ok := l.ExpectedHarvestDate(id, daysToHarvest)
	if !ok {
		return false
	}
	return !now.Before(expected)
}

// DisplayLabel formats the identifier with its start date and age.
func (l *Lifecycle) DisplayLabel(id string) string {
	return l.DisplayLabelAt(id, l.now())
}

// DisplayLabelAt formats the identifier as "<id> (<date>, <age> days old)".
// Unparseable identifiers are returned unchanged.
func (l *Lifecycle) DisplayLabelAt(id string, now time.Time) string {
	created, ok := l.ParseID(id)
	if !ok {
		return id
	}
	return fmt.Sprintf("%s (%s, %d days old)", id, created.Format(l.dateLayout), l.AgeInDaysAt(id, now))
}
