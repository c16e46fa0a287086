package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// RunRecord describes one inversion job.
type RunRecord struct {
	VersionedRecord
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	Request   RunRequest     `json:"request"`
	Chains    []ChainSummary `json:"chains,omitempty"`
}

// RunRequest is the subset of the job configuration worth keeping with
// the results.
type RunRequest struct {
	Input          string   `json:"input"`
	Systems        []string `json:"systems"`
	DegreeLateral  int      `json:"degree_lateral"`
	DegreeDepth    int      `json:"degree_depth"`
	Depth          float64  `json:"depth"`
	Total          int      `json:"total"`
	Seed           int      `json:"seed"`
	Kmax           int      `json:"kmax"`
	Processes      int      `json:"processes"`
	Chains         int      `json:"chains"`
	Temperatures   int      `json:"temperatures"`
	MaxTemperature float64  `json:"max_temperature"`
	PosteriorK     bool     `json:"posterior_k,omitempty"`
}

type MoveSummary struct {
	Name     string  `json:"name"`
	Proposed int     `json:"proposed"`
	Accepted int     `json:"accepted"`
	Rate     float64 `json:"rate"`
}

type ChainSummary struct {
	Chain        int           `json:"chain"`
	Temperature  float64       `json:"temperature"`
	Likelihood   float64       `json:"likelihood"`
	LogNorm      float64       `json:"log_norm"`
	Coefficients int           `json:"coefficients"`
	Lambda       float64       `json:"lambda"`
	PriorScale   float64       `json:"prior_scale"`
	MeanK        float64       `json:"mean_k"`
	Moves        []MoveSummary `json:"moves"`
}

// ModelRecord is the final model of one chain in wavetree binary form.
type ModelRecord struct {
	VersionedRecord
	RunID string `json:"run_id"`
	Chain int    `json:"chain"`
	Tree  []byte `json:"tree"`
}

// HistoryBlockRecord is one flushed chain-history block.
type HistoryBlockRecord struct {
	VersionedRecord
	RunID    string `json:"run_id"`
	Chain    int    `json:"chain"`
	Sequence int    `json:"sequence"`
	Data     []byte `json:"data"`
}
