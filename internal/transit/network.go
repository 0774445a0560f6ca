package transit

import (
	_ "embed"
	"io"
	"os"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownStation is returned when a journey endpoint is not on any line.
	ErrUnknownStation = eris.New("transit: unknown station")
	// ErrNoRoute is returned when no single- or two-line route connects the endpoints.
	ErrNoRoute = eris.New("transit: no route found")
)

//go:embed lines.yaml
var defaultLinesYAML []byte

// LineDef is the YAML shape of one line.
type LineDef struct {
	Name     string   `yaml:"name"`
	Stations []string `yaml:"stations"`
}

type linesFile struct {
	Lines []LineDef `yaml:"lines"`
}

// LoadLines decodes line definitions from YAML.
func LoadLines(r io.Reader) ([]Line, error) {
	var f linesFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, eris.Wrap(err, "transit: decode lines")
	}
	lines := make([]Line, 0, len(f.Lines))
	for _, d := range f.Lines {
		lines = append(lines, NewLine(d.Name, d.Stations...))
	}
	return lines, nil
}

// LoadLinesFile reads line definitions from a YAML file.
func LoadLinesFile(path string) ([]Line, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "transit: open lines file %s", path)
	}
	defer f.Close() //nolint:errcheck
	return LoadLines(f)
}

// DefaultLines returns the embedded London Zone 1 lines.
func DefaultLines() []Line {
	var f linesFile
	if err := yaml.Unmarshal(defaultLinesYAML, &f); err != nil {
		panic("transit: embedded lines.yaml: " + err.Error())
	}
	lines := make([]Line, 0, len(f.Lines))
	for _, d := range f.Lines {
		lines = append(lines, NewLine(d.Name, d.Stations...))
	}
	return lines
}

// Network is an immutable set of lines. It is safe for concurrent use.
type Network struct {
	lines     []Line
	byStation map[string][]int
}

// NewNetwork validates and indexes lines. Line order is preserved and
// decides ties between equally good routes.
func NewNetwork(lines []Line) (*Network, error) {
	if len(lines) == 0 {
		return nil, eris.New("transit: network has no lines")
	}
	n := &Network{
		lines:     slices.Clone(lines),
		byStation: make(map[string][]int),
	}
	names := make(map[string]bool, len(lines))
	for i, l := range n.lines {
		if l.Name == "" {
			return nil, eris.Errorf("transit: line %d has no name", i)
		}
		if names[l.Name] {
			return nil, eris.Errorf("transit: duplicate line %q", l.Name)
		}
		names[l.Name] = true
		if l.Len() == 0 {
			return nil, eris.Errorf("transit: line %q has no stations", l.Name)
		}
		if len(l.pos) != l.Len() {
			return nil, eris.Errorf("transit: line %q lists a station twice", l.Name)
		}
		for _, s := range l.stations {
			n.byStation[s] = append(n.byStation[s], i)
		}
	}
	return n, nil
}

// DefaultNetwork builds the embedded network, or the one in linesFile when set.
func DefaultNetwork(linesFile string) (*Network, error) {
	if linesFile == "" {
		return NewNetwork(DefaultLines())
	}
	lines, err := LoadLinesFile(linesFile)
	if err != nil {
		return nil, err
	}
	return NewNetwork(lines)
}

// Lines returns the lines in network order.
func (n *Network) Lines() []Line {
	return slices.Clone(n.lines)
}

// Line returns a line by name.
func (n *Network) Line(name string) (Line, bool) {
	for _, l := range n.lines {
		if l.Name == name {
			return l, true
		}
	}
	return Line{}, false
}

// Has reports whether any line serves station.
func (n *Network) Has(station string) bool {
	_, ok := n.byStation[Normalize(station)]
	return ok
}

// LinesFor returns the lines serving station, in network order.
func (n *Network) LinesFor(station string) []Line {
	idx := n.byStation[Normalize(station)]
	out := make([]Line, 0, len(idx))
	for _, i := range idx {
		out = append(out, n.lines[i])
	}
	return out
}

// Stations returns every station, sorted.
func (n *Network) Stations() []string {
	out := make([]string, 0, len(n.byStation))
	for s := range n.byStation {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// Route is a planned journey.
type Route struct {
	Stations []string `json:"stations"`
	Lines    []string `json:"lines"`
	Hub      string   `json:"hub,omitempty"`
}

// Journey returns the stations from start to end inclusive.
func (n *Network) Journey(start, end string) ([]string, error) {
	r, err := n.Route(start, end)
	if err != nil {
		return nil, err
	}
	return r.Stations, nil
}

// Route plans a journey using at most one change. A direct line is
// preferred; otherwise the shortest two-line route through the first
// shared station wins, with the first candidate found kept on ties.
func (n *Network) Route(start, end string) (*Route, error) {
	s, e := Normalize(start), Normalize(end)
	if !n.Has(s) {
		return nil, eris.Wrapf(ErrUnknownStation, "transit: %q", start)
	}
	if !n.Has(e) {
		return nil, eris.Wrapf(ErrUnknownStation, "transit: %q", end)
	}

	if s == e {
		return &Route{Stations: []string{s}, Lines: []string{n.LinesFor(s)[0].Name}}, nil
	}

	for _, l := range n.lines {
		if seg, ok := l.Segment(s, e); ok {
			return &Route{Stations: seg, Lines: []string{l.Name}}, nil
		}
	}

	var best *Route
	for _, a := range n.LinesFor(s) {
		for _, b := range n.LinesFor(e) {
			hub, ok := FindHub(a, b)
			if !ok {
				continue
			}
			first, _ := a.Segment(s, hub)
			second, _ := b.Segment(hub, e)
			path := append(first, second[1:]...)
			if best == nil || len(path) < len(best.Stations) {
				best = &Route{Stations: path, Lines: []string{a.Name, b.Name}, Hub: hub}
			}
		}
	}
	if best == nil {
		zap.L().Debug("no route", zap.String("component", "transit.network"),
			zap.String("from", s), zap.String("to", e))
		return nil, eris.Wrapf(ErrNoRoute, "transit: %q to %q", start, end)
	}
	return best, nil
}
