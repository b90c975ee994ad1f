// ============================================================================
// kflogs - Kubefill Job Log Viewer
// ============================================================================
//
// Package:     api
// Description: Wire types of the Kubefill job and log REST endpoints
// Author:      Mike Stoffels
// Created:     2026-10-14
// License:     MIT
// ============================================================================

package api

import (
	"time"
)

// Phase is the lifecycle state of a job as reported by the backend
type Phase string

// Known job phases. Pods that were never scheduled report an empty phase.
const (
	PhaseNotRun    Phase = ""
	PhasePending   Phase = "Pending"
	PhaseRunning   Phase = "Running"
	PhaseSucceeded Phase = "Succeeded"
	PhaseFailed    Phase = "Failed"
)

// Running reports whether live logs can be subscribed for this phase
func (p Phase) Running() bool {
	return p == PhaseRunning
}

// Terminal reports whether the job has finished
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}

// String returns a display name, "NotRun" for the empty phase
func (p Phase) String() string {
	if p == PhaseNotRun {
		return "NotRun"
	}
	return string(p)
}

// JobMeta holds the kubernetes resource metadata of a job
type JobMeta struct {
	Namespace string `json:"namespace" yaml:"namespace"`
}

// Job identifies one execution run of an application
type Job struct {
	ID            int       `json:"id" yaml:"id"`
	ApplicationID int       `json:"application_id,omitempty" yaml:"application_id"`
	Name          string    `json:"name" yaml:"name"`
	Phase         Phase     `json:"phase" yaml:"phase"`
	Meta          JobMeta   `json:"meta" yaml:"meta"`
	CreatedAt     time.Time `json:"created_at,omitempty" yaml:"created_at"`
	UpdatedAt     time.Time `json:"updated_at,omitempty" yaml:"updated_at"`
}

// FileData is the content of one collected log file
type FileData struct {
	DateCreated time.Time `json:"date_created"`
	Path        string    `json:"path"`
	Logs        []string  `json:"logs"`
}

// LogChunk is one element of the historical log response
type LogChunk struct {
	File     string   `json:"file"`
	FileData FileData `json:"file_data"`
}

// FlattenChunks concatenates the lines of all chunks in response order
func FlattenChunks(chunks []LogChunk) []string {
	n := 0
	for _, c := range chunks {
		n += len(c.FileData.Logs)
	}

	lines := make([]string, 0, n)
	for _, c := range chunks {
		lines = append(lines, c.FileData.Logs...)
	}
	return lines
}

// ErrorResponse is the JSON body returned by the backend on failure
type ErrorResponse struct {
	Message string `json:"message"`
}
