package timeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"reelforge/internal/assets"
	"reelforge/internal/config"
	"reelforge/internal/logging"
	"reelforge/internal/services"
)

// minClipSeconds rejects trim windows too short to produce usable footage.
const minClipSeconds = 0.5

// defaultCaptionSeconds is the caption duration when no end time is given.
const defaultCaptionSeconds = 3.0

// DurationProber reports the playable duration of a media file in seconds.
type DurationProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// Builder converts edit requests into validated composition plans.
type Builder struct {
	cfg    *config.Config
	store  *assets.Store
	prober DurationProber
	logger *slog.Logger
}

// NewBuilder constructs a timeline builder.
func NewBuilder(cfg *config.Config, store *assets.Store, prober DurationProber, logger *slog.Logger) *Builder {
	return &Builder{
		cfg:    cfg,
		store:  store,
		prober: prober,
		logger: logging.NewComponentLogger(logger, "timeline"),
	}
}

// Build validates the request and produces an ordered composition plan.
// Validation failures name the first offending clip or caption; no partial
// plan is ever returned.
func (b *Builder) Build(ctx context.Context, req *Request) (*Plan, error) {
	if req == nil {
		return nil, services.Wrap(services.ErrValidation, "timeline", "build", "request is nil", nil)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ops := make([]Operation, 0, len(req.Clips)+len(req.Captions)+2)

	clipOps, total, err := b.buildClips(ctx, req)
	if err != nil {
		return nil, err
	}
	ops = append(ops, clipOps...)

	captionOps, err := b.buildCaptions(req, total)
	if err != nil {
		return nil, err
	}
	ops = append(ops, captionOps...)

	if req.Music != nil {
		op, err := b.buildMusic(req.Music, total)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}

	if req.Trim != nil {
		op, err := buildTrim(req.Trim, total)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}

	// Compositing order is a function of (layer, start time) alone, never of
	// the order operations appeared in the request.
	sort.SliceStable(ops, func(i, j int) bool {
		if ops[i].Layer != ops[j].Layer {
			return ops[i].Layer < ops[j].Layer
		}
		return ops[i].StartTime < ops[j].StartTime
	})

	plan := &Plan{
		CanvasHeight:  b.cfg.Render.CanvasHeight,
		FrameRate:     b.cfg.Render.FrameRate,
		TotalDuration: maxEndTime(ops),
		MuteClips:     req.MuteClips,
		Operations:    ops,
	}

	b.logger.Debug("composition plan built",
		logging.Int("operations", len(plan.Operations)),
		logging.Float64("total_duration", plan.TotalDuration),
	)
	return plan, nil
}

func (b *Builder) buildClips(ctx context.Context, req *Request) ([]Operation, float64, error) {
	ordered := make([]ClipRequest, len(req.Clips))
	copy(ordered, req.Clips)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	ops := make([]Operation, 0, len(ordered))
	var offset float64
	for i, clip := range ordered {
		resolved, err := b.store.Resolve(assets.Ref{Kind: assets.KindVideo, Locator: clip.File, DurationHint: clip.DurationHint})
		if err != nil {
			return nil, 0, fmt.Errorf("clip %d: %w", i, err)
		}

		sourceDuration := clip.DurationHint
		if sourceDuration <= 0 && b.prober != nil {
			probed, err := b.prober.Duration(ctx, resolved.Path)
			if err != nil {
				return nil, 0, services.Wrap(services.ErrValidation, "timeline",
					fmt.Sprintf("clip %d", i), fmt.Sprintf("cannot determine duration of %q", clip.File), err)
			}
			sourceDuration = probed
		}
		if sourceDuration <= 0 {
			return nil, 0, services.Wrap(services.ErrValidation, "timeline",
				fmt.Sprintf("clip %d", i), fmt.Sprintf("clip %q has no playable duration", clip.File), nil)
		}

		start := clamp(clip.TrimStart, 0, sourceDuration)
		end := clip.TrimEnd
		if end <= 0 || end > sourceDuration {
			end = sourceDuration
		}
		if end-start < minClipSeconds {
			return nil, 0, services.Wrap(services.ErrValidation, "timeline",
				fmt.Sprintf("clip %d", i),
				fmt.Sprintf("trim window %.2fs-%.2fs is shorter than %.1fs", start, end, minClipSeconds), nil)
		}

		duration := end - start
		ops = append(ops, Operation{
			Kind:      OpPlaceClip,
			Layer:     0,
			StartTime: offset,
			EndTime:   offset + duration,
			Clip: &PlaceClip{
				Asset:       resolved,
				SourceStart: start,
				SourceEnd:   end,
				Mute:        clip.Mute || req.MuteClips,
			},
		})
		offset += duration
	}
	return ops, offset, nil
}

func (b *Builder) buildCaptions(req *Request, total float64) ([]Operation, error) {
	if len(req.Captions) == 0 {
		return nil, nil
	}

	style := req.TextStyle
	var font assets.Resolved
	if strings.TrimSpace(style.Font) != "" {
		resolved, err := b.store.FindFont(style.Font)
		if err != nil {
			return nil, fmt.Errorf("text style: %w", err)
		}
		font = resolved
	}
	fontSize := style.FontSize
	if fontSize <= 0 {
		fontSize = DefaultFontSize
	}

	ops := make([]Operation, 0, len(req.Captions))
	for i, caption := range req.Captions {
		text := strings.TrimSpace(caption.Text)
		if text == "" {
			return nil, services.Wrap(services.ErrValidation, "timeline",
				fmt.Sprintf("caption %d", i), "caption text is empty", nil)
		}

		start := clamp(caption.StartTime, 0, total)
		end := caption.EndTime
		if end <= 0 {
			end = start + defaultCaptionSeconds
		}
		end = clamp(end, 0, total)
		if end <= start {
			end = min(start+0.1, total)
		}
		if end <= start {
			return nil, services.Wrap(services.ErrValidation, "timeline",
				fmt.Sprintf("caption %d", i),
				fmt.Sprintf("time window %.2fs-%.2fs is outside the composition", caption.StartTime, caption.EndTime), nil)
		}

		position := caption.Position
		if position == "" {
			position = style.Position
		}
		if position == "" {
			position = DefaultPosition
		}
		color := caption.Color
		if color == "" {
			color = style.Color
		}
		if color == "" {
			color = DefaultColor
		}

		layer := caption.Layer
		if layer == 0 {
			layer = 1
		}

		ops = append(ops, Operation{
			Kind:      OpOverlayText,
			Layer:     layer,
			StartTime: start,
			EndTime:   end,
			Text: &OverlayText{
				Text:        text,
				Font:        font,
				FontSize:    fontSize,
				Position:    position,
				Color:       color,
				StrokeColor: strokeColorFor(color),
			},
		})
	}
	return ops, nil
}

func (b *Builder) buildMusic(music *MusicRequest, total float64) (Operation, error) {
	resolved, err := b.store.Resolve(assets.Ref{Kind: assets.KindAudio, Locator: music.File})
	if err != nil {
		return Operation{}, fmt.Errorf("music: %w", err)
	}
	return Operation{
		Kind:      OpMixAudio,
		Layer:     0,
		StartTime: 0,
		EndTime:   total,
		Audio: &MixAudio{
			Asset:       resolved,
			FadeSeconds: music.FadeSeconds,
			Volume:      b.cfg.Render.MusicVolume,
		},
	}, nil
}

func buildTrim(trim *TrimRequest, total float64) (Operation, error) {
	if trim.Start >= total {
		return Operation{}, services.Wrap(services.ErrValidation, "timeline", "trim",
			fmt.Sprintf("trim start %.2fs is beyond the composition end %.2fs", trim.Start, total), nil)
	}
	end := clamp(trim.End, 0, total)
	if end <= trim.Start {
		return Operation{}, services.Wrap(services.ErrValidation, "timeline", "trim",
			fmt.Sprintf("trim window %.2fs-%.2fs is empty", trim.Start, trim.End), nil)
	}
	return Operation{
		Kind:      OpTrim,
		Layer:     0,
		StartTime: trim.Start,
		EndTime:   end,
		Trim:      &Trim{},
	}, nil
}

// strokeColorFor picks a contrasting outline so captions stay legible on any
// footage: light fills get a black stroke, everything else gets white.
func strokeColorFor(color string) string {
	switch strings.ToLower(strings.TrimSpace(color)) {
	case "white", "yellow":
		return "black"
	default:
		return "white"
	}
}

func maxEndTime(ops []Operation) float64 {
	var total float64
	for _, op := range ops {
		if op.EndTime > total {
			total = op.EndTime
		}
	}
	return total
}

func clamp(value, low, high float64) float64 {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
