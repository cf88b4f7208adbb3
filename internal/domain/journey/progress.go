package journey

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
)

// Progress is the typed view of JourneyAttempt.ProgressData.
// A non-nil Variables map, even an empty one, is the snapshot taken at attempt start.
type Progress struct {
	Variables        map[string]string `json:"variables"`
	Preview          bool              `json:"preview,omitempty"`
	InteractionCount int               `json:"interaction_count"`
	LastInteraction  string            `json:"last_interaction,omitempty"`
	StartedAt        string            `json:"started_at,omitempty"`
	CompletedAt      string            `json:"completed_at,omitempty"`
	Report           string            `json:"report,omitempty"`

	// keys written by other producers, carried through Encode unchanged
	extra map[string]json.RawMessage
}

func DecodeProgress(raw datatypes.JSON) (Progress, error) {
	var p Progress
	if len(raw) == 0 || string(raw) == "null" {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return Progress{}, fmt.Errorf("decode progress_data: %w", err)
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(raw, &all); err != nil {
		return Progress{}, fmt.Errorf("decode progress_data: %w", err)
	}
	for _, k := range progressKeys {
		delete(all, k)
	}
	if len(all) > 0 {
		p.extra = all
	}
	return p, nil
}

var progressKeys = []string{
	"variables", "preview", "interaction_count", "last_interaction", "started_at", "completed_at", "report",
}

func (p Progress) Encode() (datatypes.JSON, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode progress_data: %w", err)
	}
	if p.Variables != nil && len(p.extra) == 0 {
		return datatypes.JSON(b), nil
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("encode progress_data: %w", err)
	}
	if p.Variables == nil {
		delete(out, "variables")
	}
	for k, v := range p.extra {
		if _, known := out[k]; !known {
			out[k] = v
		}
	}
	b, err = json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode progress_data: %w", err)
	}
	return datatypes.JSON(b), nil
}
