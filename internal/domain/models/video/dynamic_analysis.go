package video

import "encoding/json"

// SectionKind is the declared shape of one dynamic-analysis section, per
// spec.md §9's tagged-variant representation of the source's loose JSON.
type SectionKind string

const (
	SectionKindString      SectionKind = "string"
	SectionKindStringArray SectionKind = "string[]"
	SectionKindObject      SectionKind = "object"
)

// SchemaField declares one section the LLM is asked to fill, beyond the
// three always-required sections.
type SchemaField struct {
	Key         string      `json:"key"`
	Description string      `json:"description"`
	Type        SectionKind `json:"type"`
}

// Section is one filled entry of the analysis, tagged by kind so the wire
// boundary can carry an open record of section keys (spec.md §9).
type Section struct {
	Key   string          `json:"key"`
	Kind  SectionKind     `json:"kind"`
	Value json.RawMessage `json:"value"`
}

// DynamicAnalysisResult is the full LLM output persisted as a
// versioned_run's result_json: a reasoning trace, the declared schema, and
// the filled sections (three required plus schema-defined extras).
type DynamicAnalysisResult struct {
	Reasoning              string        `json:"reasoning"`
	Schema                 []SchemaField `json:"schema"`
	TLDR                   string        `json:"tldr"`
	DetailedSummary        string        `json:"detailed_summary"`
	TranscriptCorrections  string        `json:"transcript_corrections"`
	Sections               []Section     `json:"sections"`
}
