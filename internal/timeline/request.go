package timeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"reelforge/internal/services"
)

// Request is the declarative edit request submitted by a caller. It mirrors
// the JSON payload accepted by the job submission API.
type Request struct {
	Clips     []ClipRequest    `json:"clips" validate:"required,min=1,dive"`
	Captions  []CaptionRequest `json:"captions" validate:"omitempty,dive"`
	Music     *MusicRequest    `json:"music" validate:"omitempty"`
	Trim      *TrimRequest     `json:"trim" validate:"omitempty"`
	TextStyle TextStyle        `json:"text_style"`
	MuteClips bool             `json:"mute_clips"`
}

// ClipRequest places one uploaded video on the timeline. Order fixes the
// concatenation sequence; the trim window selects the source segment.
type ClipRequest struct {
	File         string  `json:"file" validate:"required"`
	Order        int     `json:"order" validate:"gte=0"`
	TrimStart    float64 `json:"trim_start" validate:"gte=0"`
	TrimEnd      float64 `json:"trim_end" validate:"gte=0"`
	DurationHint float64 `json:"duration_hint" validate:"gte=0"`
	Mute         bool    `json:"mute"`
}

// CaptionRequest overlays timed text on the composition.
type CaptionRequest struct {
	Text      string  `json:"text" validate:"required"`
	StartTime float64 `json:"start_time" validate:"gte=0"`
	EndTime   float64 `json:"end_time"`
	Layer     int     `json:"layer" validate:"gte=0"`
	Position  string  `json:"position" validate:"omitempty,oneof=top center bottom"`
	Color     string  `json:"color"`
}

// MusicRequest mixes a background audio track under the composition.
type MusicRequest struct {
	File        string  `json:"file" validate:"required"`
	FadeSeconds float64 `json:"fade_seconds" validate:"gte=0"`
}

// TrimRequest cuts the assembled composition down to a window.
type TrimRequest struct {
	Start float64 `json:"start" validate:"gte=0"`
	End   float64 `json:"end" validate:"gtfield=Start"`
}

// TextStyle carries caption defaults applied when a caption omits them.
type TextStyle struct {
	Font     string `json:"font"`
	FontSize int    `json:"font_size" validate:"omitempty,gt=0"`
	Position string `json:"position" validate:"omitempty,oneof=top center bottom"`
	Color    string `json:"color"`
}

const (
	// DefaultFontSize matches the original caption sizing.
	DefaultFontSize = 70
	// DefaultPosition anchors captions at the bottom of the frame.
	DefaultPosition = "bottom"
	// DefaultColor is the caption fill color when none is requested.
	DefaultColor = "white"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParseRequest decodes and structurally validates a JSON edit request.
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	decoder := json.NewDecoder(strings.NewReader(string(data)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		return nil, services.Wrap(services.ErrValidation, "timeline", "parse request", "malformed JSON", err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// Validate applies the declarative request constraints.
func (r *Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		var fieldErrs validator.ValidationErrors
		if ok := asValidationErrors(err, &fieldErrs); ok && len(fieldErrs) > 0 {
			first := fieldErrs[0]
			reason := fmt.Sprintf("field %s fails %q constraint", first.Namespace(), first.Tag())
			return services.Wrap(services.ErrValidation, "timeline", "validate request", reason, nil)
		}
		return services.Wrap(services.ErrValidation, "timeline", "validate request", "invalid request", err)
	}
	return nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	ve, ok := err.(validator.ValidationErrors)
	if ok {
		*target = ve
	}
	return ok
}
