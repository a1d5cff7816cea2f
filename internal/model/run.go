package model

import "time"

type RunTrigger string

const (
	RunTriggerScheduled RunTrigger = "scheduled"
	RunTriggerManual    RunTrigger = "manual"
	RunTriggerBulk      RunTrigger = "bulk"
)

// RunSummary is one row per fetch-and-process cycle. It records the fetch
// window, the exact query sent upstream, and the per-outcome tallies.
// Written once at cycle completion and never mutated.
type RunSummary struct {
	ID          string     `json:"id" db:"id"`
	Trigger     RunTrigger `json:"trigger" db:"trigger_source"`
	WindowStart time.Time  `json:"window_start" db:"window_start"`
	WindowEnd   time.Time  `json:"window_end" db:"window_end"`
	Query       string     `json:"query" db:"query"`
	StartedAt   time.Time  `json:"started_at" db:"started_at"`
	FinishedAt  time.Time  `json:"finished_at" db:"finished_at"`
	Fetched     int        `json:"fetched" db:"fetched"`
	Enrolled    int        `json:"enrolled" db:"enrolled"`
	Suspended   int        `json:"suspended" db:"suspended"`
	Errored     int        `json:"errored" db:"errored"`
	Skipped     int        `json:"skipped" db:"skipped"`
}
