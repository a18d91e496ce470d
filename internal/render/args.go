package render

import (
	"fmt"
	"strconv"
	"strings"

	"reelforge/internal/config"
	"reelforge/internal/timeline"
)

// canvasWidth derives the portrait canvas width from the configured height,
// rounded down to an even pixel count for the encoder.
func canvasWidth(height int) int {
	width := height * 9 / 16
	if width%2 != 0 {
		width--
	}
	return width
}

// formatSeconds renders a float seconds value for ffmpeg arguments.
func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 3, 64)
}

// normalizeClipArgs builds the ffmpeg invocation that turns one source clip
// into a uniform portrait segment: trimmed, scaled to the canvas height,
// center cropped to 9:16 and resampled to the target frame rate. Silent
// segments (muted clips and sources without an audio stream) get a synthetic
// stereo track so every segment carries identical streams for concatenation
// and the final audio mix.
func normalizeClipArgs(cfg *config.Config, clip *timeline.PlaceClip, silent bool, outPath string) []string {
	height := cfg.Render.CanvasHeight
	width := canvasWidth(height)

	args := []string{
		"-ss", formatSeconds(clip.SourceStart),
		"-to", formatSeconds(clip.SourceEnd),
		"-i", clip.Asset.Path,
	}
	if silent {
		args = append(args,
			"-f", "lavfi",
			"-t", formatSeconds(clip.SourceEnd-clip.SourceStart),
			"-i", "anullsrc=channel_layout=stereo:sample_rate=44100",
		)
	}

	filter := fmt.Sprintf("scale=-2:%d,crop=%d:%d,fps=%d", height, width, height, cfg.Render.FrameRate)
	args = append(args, "-vf", filter)

	if silent {
		args = append(args, "-map", "0:v", "-map", "1:a", "-shortest")
	} else {
		args = append(args, "-map", "0:v", "-map", "0:a")
	}

	args = append(args, encoderArgs(cfg)...)
	args = append(args, outPath)
	return args
}

// concatListContent renders the concat demuxer file listing the normalized
// segments in timeline order.
func concatListContent(segments []string) string {
	var b strings.Builder
	for _, segment := range segments {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(segment, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}

// concatArgs stitches normalized segments without re-encoding.
func concatArgs(listPath, outPath string) []string {
	return []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outPath,
	}
}

// escapeDrawtext escapes a caption for use inside a drawtext filter value.
func escapeDrawtext(text string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
		`%`, `\%`,
	)
	return replacer.Replace(text)
}

// drawtextFilter renders one caption overlay as a drawtext filter expression.
// The enable window confines the caption to its timeline slot.
func drawtextFilter(op timeline.Operation) string {
	text := op.Text

	var y string
	switch text.Position {
	case "top":
		y = "h*0.1"
	case "center":
		y = "(h-text_h)/2"
	default: // bottom
		y = "h*0.85-text_h"
	}

	parts := []string{
		fmt.Sprintf("text='%s'", escapeDrawtext(text.Text)),
		fmt.Sprintf("fontsize=%d", text.FontSize),
		fmt.Sprintf("fontcolor=%s", text.Color),
		fmt.Sprintf("bordercolor=%s", text.StrokeColor),
		"borderw=2",
		"x=(w-text_w)/2",
		fmt.Sprintf("y=%s", y),
		fmt.Sprintf("enable='between(t,%s,%s)'", formatSeconds(op.StartTime), formatSeconds(op.EndTime)),
	}
	if text.Font.Path != "" {
		parts = append([]string{fmt.Sprintf("fontfile='%s'", text.Font.Path)}, parts...)
	}
	return "drawtext=" + strings.Join(parts, ":")
}

// finalizeArgs builds the last ffmpeg pass: caption overlays, background
// music mixing and the optional output trim, encoded with the configured
// output parameters. ops must be the full sorted operation list of the plan.
func finalizeArgs(cfg *config.Config, plan *timeline.Plan, basePath, outPath string) []string {
	var captions []timeline.Operation
	var music *timeline.Operation
	var trim *timeline.Operation
	for i := range plan.Operations {
		op := &plan.Operations[i]
		switch op.Kind {
		case timeline.OpOverlayText:
			captions = append(captions, *op)
		case timeline.OpMixAudio:
			music = op
		case timeline.OpTrim:
			trim = op
		}
	}

	args := []string{"-i", basePath}
	if music != nil {
		args = append(args, "-stream_loop", "-1", "-i", music.Audio.Asset.Path)
	}

	var videoFilters []string
	for _, caption := range captions {
		videoFilters = append(videoFilters, drawtextFilter(caption))
	}

	if music != nil {
		total := plan.TotalDuration
		fade := music.Audio.FadeSeconds
		chain := fmt.Sprintf("[1:a]atrim=0:%s,volume=%s", formatSeconds(total),
			strconv.FormatFloat(music.Audio.Volume, 'f', -1, 64))
		if fade > 0 {
			chain += fmt.Sprintf(",afade=t=in:st=0:d=%s,afade=t=out:st=%s:d=%s",
				formatSeconds(fade), formatSeconds(total-fade), formatSeconds(fade))
		}
		chain += "[music]"

		graph := chain + ";[0:a][music]amix=inputs=2:duration=first:dropout_transition=0[aout]"
		if len(videoFilters) > 0 {
			graph = "[0:v]" + strings.Join(videoFilters, ",") + "[vout];" + graph
			args = append(args, "-filter_complex", graph, "-map", "[vout]", "-map", "[aout]")
		} else {
			args = append(args, "-filter_complex", graph, "-map", "0:v", "-map", "[aout]")
		}
	} else if len(videoFilters) > 0 {
		args = append(args, "-vf", strings.Join(videoFilters, ","), "-map", "0:v", "-map", "0:a?")
	}

	if trim != nil {
		args = append(args, "-ss", formatSeconds(trim.StartTime), "-to", formatSeconds(trim.EndTime))
	}

	args = append(args, encoderArgs(cfg)...)
	args = append(args, outPath)
	return args
}

// encoderArgs returns the configured output encoding parameters.
func encoderArgs(cfg *config.Config) []string {
	return []string{
		"-c:v", cfg.Render.VideoCodec,
		"-preset", cfg.Render.Preset,
		"-b:v", cfg.Render.VideoBitrate,
		"-c:a", cfg.Render.AudioCodec,
		"-b:a", cfg.Render.AudioBitrate,
		"-r", strconv.Itoa(cfg.Render.FrameRate),
		"-threads", strconv.Itoa(cfg.Render.Threads),
		"-movflags", "+faststart",
	}
}
