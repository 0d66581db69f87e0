package workflow

import (
	"encoding/json"
	"strconv"

	"github.com/tidwall/sjson"
)

// The wire shapes below follow spec.md §6 exactly: each is emitted as
// `data: {"type": "...", ...}\n\n`. Steps build these with the
// constructors here and hand them to Runner.Emit.

func payload(typ string, fields map[string]interface{}) json.RawMessage {
	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["type"] = typ
	raw, _ := json.Marshal(fields)
	return raw
}

// setType injects a "type" discriminator into an already-marshaled JSON
// document without round-tripping it through a map, for payloads whose
// shape is a struct rather than ad hoc fields.
func setType(raw []byte, typ string) json.RawMessage {
	out, err := sjson.SetBytes(raw, "type", typ)
	if err != nil {
		return raw
	}
	return out
}

// ProgressPayload reports a coarse-grained milestone.
func ProgressPayload(phase, message string, progress *int) json.RawMessage {
	fields := map[string]interface{}{}
	if phase != "" {
		fields["phase"] = phase
	}
	if message != "" {
		fields["message"] = message
	}
	if progress != nil {
		fields["progress"] = *progress
	}
	return payload("progress", fields)
}

// PartialPayload carries an incremental LLM object/text fragment.
func PartialPayload(data interface{}) json.RawMessage {
	return payload("partial", map[string]interface{}{"data": data})
}

// ResultPayload carries the completed LLM object/text.
func ResultPayload(data interface{}) json.RawMessage {
	return payload("result", map[string]interface{}{"data": data})
}

// SlidePayload reports one extracted slide.
func SlidePayload(slide interface{}) json.RawMessage {
	raw, _ := json.Marshal(slide)
	return setType(raw, "slide")
}

// SlideMarkdownPayload carries one completed per-slide analysis.
func SlideMarkdownPayload(slideNumber int, framePosition, markdown string) json.RawMessage {
	return payload("slide_markdown", map[string]interface{}{
		"slide_number":   slideNumber,
		"frame_position": framePosition,
		"markdown":       markdown,
	})
}

// SlideAnalysisProgressPayload reports aggregate fan-out progress across
// per-slide analysis targets (spec.md §4.6.5).
func SlideAnalysisProgressPayload(slides interface{}, completedCount, totalCount int) json.RawMessage {
	return payload("slide_analysis_progress", map[string]interface{}{
		"slides":         slides,
		"completedCount": completedCount,
		"totalCount":     totalCount,
	})
}

// CompletePayload marks successful completion of a workflow stream.
func CompletePayload(data interface{}) json.RawMessage {
	if data == nil {
		return payload("complete", nil)
	}
	raw, _ := json.Marshal(data)
	return setType(raw, "complete")
}

// ErrorPayload marks a failed workflow stream.
func ErrorPayload(message string) json.RawMessage {
	return payload("error", map[string]interface{}{"message": message})
}

// MetaPayload reports out-of-band routing info, e.g. the slides sub-run id
// for the combined-process workflow (spec.md §4.6.6).
func MetaPayload(data map[string]interface{}) json.RawMessage {
	return payload("meta", data)
}

// Namespace builds the "{slideNumber}-{first|last}" sub-channel label used
// by the per-slide-analysis workflow (spec.md §4.6.4).
func Namespace(slideNumber int, framePosition string) string {
	return strconv.Itoa(slideNumber) + "-" + framePosition
}
