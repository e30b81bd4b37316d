package api

import (
	"github.com/samcharles93/posterior/internal/summary"
)

// RunRequest is the body of POST /v1/runs. Zero values select the sampler
// defaults.
type RunRequest struct {
	Model            string   `json:"model"`
	NumSamples       int      `json:"num_samples"`
	NumWarmup        *int     `json:"num_warmup,omitempty"`
	NumChains        int      `json:"num_chains,omitempty"`
	NumLeapfrogSteps int      `json:"num_leapfrog_steps,omitempty"`
	InitialStepSize  float64  `json:"initial_step_size,omitempty"`
	TargetAcceptRate float64  `json:"target_accept_rate,omitempty"`
	AdaptMassMatrix  *bool    `json:"adapt_mass_matrix,omitempty"`
	Parallel         bool     `json:"parallel,omitempty"`
	Seed             *uint64  `json:"seed,omitempty"`
	Metadata         Metadata `json:"metadata,omitempty"`
}

type Metadata map[string]string

type RunStats struct {
	AcceptRate          float64                `json:"accept_rate"`
	AcceptRatePerChain  []float64              `json:"accept_rate_per_chain"`
	StepSize            float64                `json:"step_size"`
	StepSizePerChain    []float64              `json:"step_size_per_chain"`
	Divergences         int                    `json:"divergences"`
	DivergencesPerChain []int                  `json:"divergences_per_chain"`
	MassMatrices        []map[string][]float64 `json:"mass_matrices"`
	ChainIDs            []string               `json:"chain_ids"`
	NumChains           int                    `json:"num_chains"`
	NumSamples          int                    `json:"num_samples"`
	NumWarmup           int                    `json:"num_warmup"`
}

type RunResponse struct {
	ID          string         `json:"id"`
	Object      string         `json:"object"`
	CreatedAt   int64          `json:"created_at"`
	CompletedAt int64          `json:"completed_at,omitempty"`
	Model       string         `json:"model"`
	Status      string         `json:"status"`
	Seed        uint64         `json:"seed"`
	Metadata    Metadata       `json:"metadata,omitempty"`
	Stats       *RunStats      `json:"stats,omitempty"`
	Summary     []summary.Stat `json:"summary,omitempty"`
}

// Draws holds one param's constrained draws, row-major in Shape
// [chains, samples, ...].
type Draws struct {
	Shape  []int          `json:"shape"`
	Values summary.Floats `json:"values"`
}

type DrawsResponse struct {
	ID     string           `json:"id"`
	Object string           `json:"object"`
	Params []string         `json:"params"`
	Draws  map[string]Draws `json:"draws"`
}

type ModelInfo struct {
	ID          string   `json:"id"`
	Object      string   `json:"object"`
	Description string   `json:"description"`
	Params      []string `json:"params"`
	Data        []string `json:"data"`
	Observed    []string `json:"observed"`
}

type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

type DeleteResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
}
