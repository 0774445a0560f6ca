package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/airgrid/internal/forecast"
	"github.com/sells-group/airgrid/internal/grid"
	"github.com/sells-group/airgrid/internal/transit"
)

// maxRecords caps one records response.
const maxRecords = 50000

func (s *Server) dataset(w http.ResponseWriter, r *http.Request) (*grid.Dataset, bool) {
	entity, year, pollutant := chi.URLParam(r, "entity"), chi.URLParam(r, "year"), chi.URLParam(r, "pollutant")
	ds, ok := s.deps.Index.Get(entity, year, pollutant)
	if !ok {
		writeError(w, http.StatusNotFound, "no dataset for "+entity+"/"+year+"/"+pollutant)
		return nil, false
	}
	return ds, true
}

type datasetKey struct {
	Entity    string `json:"entity"`
	Year      string `json:"year"`
	Pollutant string `json:"pollutant"`
	Records   int    `json:"records"`
	Derived   bool   `json:"derived"`
}

func (s *Server) handleListDatasets(w http.ResponseWriter, _ *http.Request) {
	keys := s.deps.Index.Keys()
	out := make([]datasetKey, 0, len(keys))
	for _, k := range keys {
		ds, ok := s.deps.Index.Get(k.Entity, k.Year, k.Pollutant)
		if !ok {
			continue
		}
		out = append(out, datasetKey{Entity: k.Entity, Year: k.Year, Pollutant: k.Pollutant, Records: ds.Len(), Derived: ds.Derived})
	}
	writeJSON(w, http.StatusOK, map[string]any{"datasets": out})
}

func (s *Server) handleStoredDatasets(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusNotFound, "no store configured")
		return
	}
	infos, err := s.deps.Store.ListDatasets(r.Context())
	if err != nil {
		s.log.Error("list stored datasets", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list stored datasets")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"datasets": infos})
}

func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.dataset(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ds.Summarize())
}

type nearestResponse struct {
	grid.Record
	Normalized *float64 `json:"normalized,omitempty"`
}

func (s *Server) handleNearest(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.dataset(w, r)
	if !ok {
		return
	}
	x, errX := strconv.Atoi(r.URL.Query().Get("x"))
	y, errY := strconv.Atoi(r.URL.Query().Get("y"))
	if errX != nil || errY != nil {
		writeError(w, http.StatusBadRequest, "x and y must be integers")
		return
	}

	rec, err := ds.FindNearest(x, y)
	if eris.Is(err, grid.ErrEmptyDataset) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := nearestResponse{Record: rec}
	if v, ok := rec.Value.Get(); ok {
		if n, ok := ds.Normalize(v); ok {
			resp.Normalized = &n
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type recordJSON struct {
	GridID     int        `json:"grid_id"`
	X          int        `json:"x"`
	Y          int        `json:"y"`
	Value      grid.Value `json:"value"`
	Normalized *float64   `json:"normalized"`
}

// handleRecords serves the records a map renderer needs, optionally
// clipped to min_x,min_y,max_x,max_y.
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.dataset(w, r)
	if !ok {
		return
	}
	if raw := r.URL.Query().Get("bbox"); raw != "" {
		b, err := parseBBox(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		ds = ds.FilterByBounds(b)
	}
	if ds.Len() > maxRecords {
		writeError(w, http.StatusRequestEntityTooLarge, "too many records; narrow the bbox")
		return
	}

	out := make([]recordJSON, 0, ds.Len())
	ds.Each(func(rec grid.Record) bool {
		rj := recordJSON{GridID: rec.GridID, X: rec.X, Y: rec.Y, Value: rec.Value}
		if v, ok := rec.Value.Get(); ok {
			if n, ok := ds.Normalize(v); ok {
				rj.Normalized = &n
			}
		}
		out = append(out, rj)
		return true
	})
	writeJSON(w, http.StatusOK, map[string]any{"meta": ds.Meta, "records": out})
}

func parseBBox(raw string) (grid.BBox, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return grid.BBox{}, eris.New("bbox must be min_x,min_y,max_x,max_y")
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return grid.BBox{}, eris.Errorf("bbox: %q is not an integer", p)
		}
		v[i] = n
	}
	b := grid.BBox{MinX: v[0], MinY: v[1], MaxX: v[2], MaxY: v[3]}
	return b, b.Validate()
}

func (s *Server) handleJourney(w http.ResponseWriter, r *http.Request) {
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}

	plan, err := s.deps.Planner.Plan(from, to)
	switch {
	case err == nil:
		s.deps.Metrics.RecordJourney("ok")
		writeJSON(w, http.StatusOK, plan)
	case eris.Is(err, transit.ErrUnknownStation):
		s.deps.Metrics.RecordJourney("unknown_station")
		writeError(w, http.StatusNotFound, err.Error())
	case eris.Is(err, transit.ErrNoRoute):
		s.deps.Metrics.RecordJourney("no_route")
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.deps.Metrics.RecordJourney("error")
		s.log.Error("plan journey", zap.String("from", from), zap.String("to", to), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleLines(w http.ResponseWriter, _ *http.Request) {
	type lineJSON struct {
		Name     string   `json:"name"`
		Stations []string `json:"stations"`
	}
	lines := s.deps.Planner.Network().Lines()
	out := make([]lineJSON, 0, len(lines))
	for _, l := range lines {
		out = append(out, lineJSON{Name: l.Name, Stations: l.Stations()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": out})
}

func (s *Server) handleStations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"stations": s.deps.Planner.Network().Stations()})
}

type forecastRequest struct {
	TargetYear int      `json:"target_year"`
	Pollutants []string `json:"pollutants"`
}

func (s *Server) handleStartForecast(w http.ResponseWriter, r *http.Request) {
	if s.deps.Engine == nil {
		writeError(w, http.StatusNotImplemented, "forecasting is not enabled")
		return
	}
	var req forecastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TargetYear <= 0 {
		writeError(w, http.StatusBadRequest, "target_year is required")
		return
	}
	pollutants := req.Pollutants
	if len(pollutants) == 0 {
		pollutants = s.deps.Pollutants
	}
	if len(pollutants) == 0 {
		writeError(w, http.StatusBadRequest, "pollutants are required")
		return
	}

	log := s.log.With(zap.Int("target_year", req.TargetYear), zap.Strings("pollutants", pollutants))
	fut := s.deps.Engine.Start(s.deps.BaseContext, req.TargetYear, pollutants, func(res *forecast.Result, err error) {
		if err != nil {
			log.Warn("forecast job failed", zap.Error(err))
			return
		}
		log.Info("forecast job complete", zap.Int("failures", len(res.Failures)), zap.Duration("elapsed", res.Elapsed))
	})
	s.deps.Jobs.Add(fut)

	w.Header().Set("Location", "/api/v1/forecasts/"+fut.ID())
	writeJSON(w, http.StatusAccepted, map[string]string{"id": fut.ID(), "status": string(fut.Status())})
}

func (s *Server) handleListForecasts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": s.deps.Jobs.List()})
}

func (s *Server) handleGetForecast(w http.ResponseWriter, r *http.Request) {
	info, ok := s.deps.Jobs.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "no such forecast job")
		return
	}
	writeJSON(w, http.StatusOK, info)
}
