package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/goalplanner/internal/modules/assets"
	"github.com/aristath/goalplanner/internal/modules/montecarlo"
	"github.com/aristath/goalplanner/internal/modules/planning/domain"
	"github.com/aristath/goalplanner/internal/modules/planning/planner"
)

// planRequest is the JSON body of a planning call.
type planRequest struct {
	Goals        []domain.Goal            `json:"goals"`
	Holdings     domain.Holdings          `json:"holdings"`
	Contribution domain.ContributionInput `json:"contribution"`
	Seed         uint64                   `json:"seed,omitempty"`
}

// handleCreatePlan runs one planning method and returns the plan.
// POST /api/plans/{method}
func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	method := chi.URLParam(r, "method")
	switch method {
	case planner.MethodCurrentHoldings, planner.MethodOptimalRebalance, planner.MethodOptimalFresh:
	default:
		s.writeError(w, http.StatusNotFound, fmt.Errorf("unknown planning method %q", method))
		return
	}

	var body planRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	grid, err := s.assets.LoadGrid()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to load asset statistics: %w", err))
		return
	}

	result, err := s.planner.Plan(planner.Request{
		Goals:           body.Goals,
		Holdings:        body.Holdings,
		Stats:           grid,
		Contribution:    body.Contribution,
		MaxIterations:   s.cfg.MaxPlanIterations,
		MonteCarloPaths: s.cfg.MonteCarloPaths,
		Seed:            body.Seed,
	}, method)
	if err != nil {
		var missing *assets.MissingStatisticError
		if errors.As(err, &missing) {
			s.writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// envelopeValidationRequest is the JSON body of an envelope validation
// call.
type envelopeValidationRequest struct {
	Corpus              map[string]float64 `json:"corpus"`
	MonthlyContribution float64            `json:"monthly_contribution"`
	Allocation          map[string]int     `json:"allocation"`
	HorizonYears        float64            `json:"horizon_years"`
	StepUpPct           float64            `json:"step_up_pct"`
	Seed                uint64             `json:"seed,omitempty"`
}

// handleValidateEnvelope cross-checks a deterministic envelope with a
// lightweight simulation pass.
// POST /api/plans/validate-envelope
func (s *Server) handleValidateEnvelope(w http.ResponseWriter, r *http.Request) {
	var body envelopeValidationRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if body.HorizonYears <= 0 {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("horizon_years must be positive"))
		return
	}

	grid, err := s.assets.LoadGrid()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to load asset statistics: %w", err))
		return
	}
	stats := grid.For(assets.BucketForHorizon(body.HorizonYears))

	corpusTotal := 0.0
	for _, amount := range body.Corpus {
		corpusTotal += amount
	}
	bounds, err := s.envelope.BoundsForAllocation(
		corpusTotal, body.MonthlyContribution, body.Allocation, stats, body.HorizonYears, body.StepUpPct)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	mc := montecarlo.NewEngine(s.log, body.Seed)
	validation, err := mc.ValidateEnvelope(montecarlo.SimulationConfig{
		Corpus:              body.Corpus,
		MonthlyContribution: body.MonthlyContribution,
		Allocation:          body.Allocation,
		Stats:               stats,
		HorizonYears:        body.HorizonYears,
		StepUpPct:           body.StepUpPct,
		Paths:               montecarlo.LitePaths,
		Model:               montecarlo.ModelLognormal,
	}, bounds)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"envelope":   bounds,
		"validation": validation,
	})
}
