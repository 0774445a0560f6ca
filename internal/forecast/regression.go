// Package forecast extrapolates pollution grids into future years by
// fitting a least-squares line through each cell's history.
package forecast

import (
	"github.com/rotisserie/eris"
)

var (
	// ErrDegenerateRegression is returned when every point shares one year.
	ErrDegenerateRegression = eris.New("forecast: degenerate regression")
	// ErrInsufficientPoints is returned when fewer than two points are available.
	ErrInsufficientPoints = eris.New("forecast: fewer than two points")
)

// Point is one observation: a year and the value measured in it.
type Point struct {
	Year  float64
	Value float64
}

// Line is value = Slope*year + Intercept.
type Line struct {
	Slope     float64
	Intercept float64
}

// At evaluates the line at year.
func (l Line) At(year float64) float64 {
	return l.Slope*year + l.Intercept
}

// Fit computes the ordinary least-squares line through points.
func Fit(points []Point) (Line, error) {
	if len(points) < 2 {
		return Line{}, ErrInsufficientPoints
	}

	n := float64(len(points))
	var mx, my float64
	for _, p := range points {
		mx += p.Year
		my += p.Value
	}
	mx /= n
	my /= n

	// Centered sums keep precision with four-digit years.
	var sxx, sxy float64
	for _, p := range points {
		dx := p.Year - mx
		sxx += dx * dx
		sxy += dx * (p.Value - my)
	}
	if sxx == 0 {
		return Line{}, ErrDegenerateRegression
	}

	slope := sxy / sxx
	return Line{Slope: slope, Intercept: my - slope*mx}, nil
}
