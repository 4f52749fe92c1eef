// Package model contains domain models passed between layers.
package model

import (
	"sort"
	"time"
)

// PilotID identifies a pilot in the score store.
type PilotID int64

// CompetencyCode is one of the ICAO-style competency identifiers.
type CompetencyCode string

// Competency codes tracked by default.
const (
	APK CompetencyCode = "APK" // application of procedures
	COM CompetencyCode = "COM" // communication
	FPA CompetencyCode = "FPA" // flight path management, automation
	FPM CompetencyCode = "FPM" // flight path management, manual
	LTW CompetencyCode = "LTW" // leadership and teamwork
	PSD CompetencyCode = "PSD" // problem solving and decision making
	SAW CompetencyCode = "SAW" // situational awareness
	WLM CompetencyCode = "WLM" // workload management
	KNO CompetencyCode = "KNO" // application of knowledge
)

// DefaultCompetencies lists every competency code known to the system.
func DefaultCompetencies() []CompetencyCode {
	return []CompetencyCode{APK, COM, FPA, FPM, KNO, LTW, PSD, SAW, WLM}
}

// SourceType names where a raw score came from.
type SourceType string

// Score sources.
const (
	SourceEval          SourceType = "EVAL"          // instructor evaluation
	SourceQualification SourceType = "QUALIFICATION" // qualification check
	SourceAviationEvent SourceType = "ASR"           // air safety report
	SourceFlightData    SourceType = "FDA"           // flight data analysis
)

// CompetencyWeight is one cell of the weight table.
type CompetencyWeight struct {
	Competency CompetencyCode
	Source     SourceType
	Weight     float64 // in [0,1]
}

// Raw score scale.
const (
	MinRawScore = 2
	MaxRawScore = 5
)

// RawScore is an immutable assessment fact.
type RawScore struct {
	PilotID    PilotID
	Competency CompetencyCode
	Source     SourceType
	Score      int // 2..5
	Date       time.Time
	Comment    string
}

// Exercise is a catalog entry that develops a fixed set of competencies.
type Exercise struct {
	ID           int64
	Name         string
	Competencies []CompetencyCode
}

// Develops reports whether the exercise trains the given competency.
func (e Exercise) Develops(code CompetencyCode) bool {
	for _, c := range e.Competencies {
		if c == code {
			return true
		}
	}
	return false
}

// SortExercises orders a catalog by ascending id in place.
func SortExercises(catalog []Exercise) {
	sort.SliceStable(catalog, func(i, j int) bool { return catalog[i].ID < catalog[j].ID })
}

// SortCodes orders competency codes lexicographically in place.
func SortCodes(codes []CompetencyCode) {
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
}
