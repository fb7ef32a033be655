// Package reply parses the structured output of the text-generation call into
// the content items and state updates a turn dispatches and persists. The
// delimiter grammar lives entirely here so it can be swapped for a stricter
// schema without touching the pipeline.
package reply

import (
	"encoding/json"
	"log/slog"
	"strings"
)

// ContentKind classifies a reply content item.
type ContentKind string

const (
	KindText  ContentKind = "text"
	KindImage ContentKind = "image"
	KindVideo ContentKind = "video"
	KindAudio ContentKind = "audio"
)

// ContentItem is one outbound message: text, or a media URL with an optional
// caption. Items are dispatched strictly in order.
type ContentItem struct {
	Kind    ContentKind `json:"kind"`
	Payload string      `json:"payload"`
	Caption string      `json:"caption,omitempty"`
}

// ParsedResponse is the validated result of one model output.
type ParsedResponse struct {
	Stage          string
	CapturedDetail string
	Items          []ContentItem
	// Degraded marks the fallback path: the raw output could not be decoded
	// and was wrapped verbatim into a single text item.
	Degraded bool
}

type rawResponse struct {
	Stage  string        `json:"stage"`
	Detail string        `json:"detail"`
	Items  []ContentItem `json:"items"`
}

// Parse decodes raw model output. The primary path expects the JSON contract
// the compiler instructed; any output that cannot be decoded, or that decodes
// to zero content items, degrades to a single verbatim text item so the user
// always receives something. A stage outside declaredStages is logged and
// dropped, which keeps persisted stages inside the declared list.
func Parse(log *slog.Logger, raw string, declaredStages []string) ParsedResponse {
	if log == nil {
		log = slog.Default()
	}

	var decoded rawResponse
	body := extractJSON(raw)
	if body == "" || json.Unmarshal([]byte(body), &decoded) != nil || len(decoded.Items) == 0 {
		return degraded(raw)
	}

	items := make([]ContentItem, 0, len(decoded.Items))
	for _, item := range decoded.Items {
		payload := strings.TrimSpace(item.Payload)
		if payload == "" {
			continue
		}
		switch item.Kind {
		case KindText, KindImage, KindVideo, KindAudio:
		default:
			log.Warn("unknown content kind, treating as text", slog.String("kind", string(item.Kind)))
			item.Kind = KindText
		}
		item.Payload = payload
		items = append(items, item)
	}
	if len(items) == 0 {
		return degraded(raw)
	}

	stage := strings.TrimSpace(decoded.Stage)
	if stage != "" && !contains(declaredStages, stage) {
		log.Warn("model selected undeclared stage", slog.String("stage", stage))
		stage = ""
	}

	return ParsedResponse{
		Stage:          stage,
		CapturedDetail: strings.TrimSpace(decoded.Detail),
		Items:          items,
	}
}

func degraded(raw string) ParsedResponse {
	return ParsedResponse{
		Items:    []ContentItem{{Kind: KindText, Payload: raw}},
		Degraded: true,
	}
}

// extractJSON tolerates code fences and prose around the JSON object: it
// returns the substring from the first '{' to the last '}', or empty.
func extractJSON(raw string) string {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
