// Package transit plans journeys over a fixed rail network and aggregates
// the pollution exposure along them.
package transit

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"
)

// Line is an ordered, immutable list of stations.
type Line struct {
	Name     string
	stations []string
	pos      map[string]int
}

// NewLine builds a line. Station names are normalized.
func NewLine(name string, stations ...string) Line {
	l := Line{
		Name:     name,
		stations: make([]string, len(stations)),
		pos:      make(map[string]int, len(stations)),
	}
	for i, s := range stations {
		n := Normalize(s)
		l.stations[i] = n
		if _, dup := l.pos[n]; !dup {
			l.pos[n] = i
		}
	}
	return l
}

// Stations returns a copy of the station list.
func (l Line) Stations() []string {
	return slices.Clone(l.stations)
}

// Len returns the number of stations.
func (l Line) Len() int {
	return len(l.stations)
}

// Index returns the position of station on the line, or -1.
func (l Line) Index(station string) int {
	if i, ok := l.pos[Normalize(station)]; ok {
		return i
	}
	return -1
}

// Contains reports whether the line serves station.
func (l Line) Contains(station string) bool {
	return l.Index(station) >= 0
}

// Segment returns the stations from -> to inclusive, oriented from the
// first argument to the second.
func (l Line) Segment(from, to string) ([]string, bool) {
	i, j := l.Index(from), l.Index(to)
	if i < 0 || j < 0 {
		return nil, false
	}
	if i <= j {
		return slices.Clone(l.stations[i : j+1]), true
	}
	seg := slices.Clone(l.stations[j : i+1])
	slices.Reverse(seg)
	return seg, true
}

// FindHub returns the first station of a, in a's order, that b also serves.
func FindHub(a, b Line) (string, bool) {
	for _, s := range a.stations {
		if b.Contains(s) {
			return s, true
		}
	}
	return "", false
}

// Normalize canonicalizes a station name: trimmed, inner whitespace
// collapsed, case folded.
func Normalize(name string) string {
	return cases.Fold().String(strings.Join(strings.Fields(name), " "))
}
