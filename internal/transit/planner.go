package transit

import (
	"go.uber.org/zap"
)

// ExposureSource supplies the current transit exposure dataset, if any.
type ExposureSource interface {
	Transit() (*ExposureDataset, bool)
}

// Plan is a route annotated with exposure. Exposure is nil when no
// transit dataset is loaded.
type Plan struct {
	Route
	Exposure *Exposure `json:"exposure,omitempty"`
}

// Planner combines the network with exposure readings.
type Planner struct {
	network *Network
	source  ExposureSource
}

// NewPlanner creates a planner. source may be nil.
func NewPlanner(network *Network, source ExposureSource) *Planner {
	return &Planner{network: network, source: source}
}

// Network returns the planner's network.
func (p *Planner) Network() *Network {
	return p.network
}

// Plan routes start to end and aggregates exposure along the way.
func (p *Planner) Plan(start, end string) (*Plan, error) {
	log := zap.L().With(zap.String("component", "transit.planner"))

	route, err := p.network.Route(start, end)
	if err != nil {
		return nil, err
	}
	plan := &Plan{Route: *route}

	if p.source == nil {
		return plan, nil
	}
	ds, ok := p.source.Transit()
	if !ok {
		log.Debug("no transit dataset loaded")
		return plan, nil
	}
	exp, err := Aggregate(route.Stations, ds)
	if err != nil {
		return nil, err
	}
	plan.Exposure = exp

	log.Debug("journey planned",
		zap.String("from", start),
		zap.String("to", end),
		zap.Int("stations", len(route.Stations)),
		zap.Int("missing", len(exp.Missing)),
	)
	return plan, nil
}
