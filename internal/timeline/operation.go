package timeline

import (
	"fmt"

	"reelforge/internal/assets"
)

// OpKind discriminates the closed set of operation variants. Adding a kind
// requires updating every switch over OpKind; the render executor treats an
// unknown kind as a hard error.
type OpKind string

const (
	OpPlaceClip   OpKind = "place_clip"
	OpOverlayText OpKind = "overlay_text"
	OpMixAudio    OpKind = "mix_audio"
	OpTrim        OpKind = "trim"
)

// Operation is one timed edit action. Exactly one of the variant payloads is
// populated, matching Kind.
type Operation struct {
	Kind      OpKind
	Layer     int
	StartTime float64
	EndTime   float64

	Clip  *PlaceClip
	Text  *OverlayText
	Audio *MixAudio
	Trim  *Trim
}

// PlaceClip puts a trimmed source segment on the base video layer.
type PlaceClip struct {
	Asset       assets.Resolved
	SourceStart float64
	SourceEnd   float64
	Mute        bool
}

// OverlayText rasterizes timed caption text above the video layers.
type OverlayText struct {
	Text        string
	Font        assets.Resolved
	FontSize    int
	Position    string
	Color       string
	StrokeColor string
}

// MixAudio lays a background audio track under the composition, looping or
// trimming it to cover the full duration.
type MixAudio struct {
	Asset       assets.Resolved
	FadeSeconds float64
	Volume      float64
}

// Trim cuts the assembled composition to the operation's time window.
type Trim struct{}

// Duration returns the operation's time extent.
func (o Operation) Duration() float64 {
	return o.EndTime - o.StartTime
}

// Describe returns a short human-readable label for logs and diagnostics.
func (o Operation) Describe() string {
	switch o.Kind {
	case OpPlaceClip:
		return fmt.Sprintf("place clip %s", o.Clip.Asset.Locator)
	case OpOverlayText:
		return fmt.Sprintf("overlay text %q", o.Text.Text)
	case OpMixAudio:
		return fmt.Sprintf("mix audio %s", o.Audio.Asset.Locator)
	case OpTrim:
		return "trim composition"
	default:
		return string(o.Kind)
	}
}

// Plan is a validated, ordered composition. Operations are sorted by
// (layer, start time) so compositing order is independent of request order.
// TotalDuration is derived, never authored.
type Plan struct {
	CanvasHeight  int
	FrameRate     int
	TotalDuration float64
	MuteClips     bool
	Operations    []Operation
}

// OutputDuration is the expected duration of the rendered artifact, which is
// the trim window when the plan carries a trim operation.
func (p *Plan) OutputDuration() float64 {
	for _, op := range p.Operations {
		if op.Kind == OpTrim {
			return op.Duration()
		}
	}
	return p.TotalDuration
}
