package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func ensureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

// EncodeImageSequence encodes numbered frames into an H.264 MP4.
func (r *Runner) EncodeImageSequence(ctx context.Context, runID, framesPattern, output string, fps, width, height, crf int, audioPath string) error {
	if err := ensureDir(output); err != nil {
		return err
	}
	args := []string{
		"-y",
		"-framerate", fmt.Sprint(fps),
		"-i", framesPattern,
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", fmt.Sprint(crf),
		"-pix_fmt", "yuv420p",
	}
	if audioPath != "" {
		args = append(args, "-i", audioPath, "-c:a", "aac", "-b:a", "192k")
	} else {
		args = append(args, "-an")
	}
	args = append(args, output)
	return r.Run(ctx, runID, args)
}

// AdaptVertical scales and pads a clip to a vertical resolution without
// distorting the source aspect ratio.
func (r *Runner) AdaptVertical(ctx context.Context, runID, input, output string, width, height int) error {
	if err := ensureDir(output); err != nil {
		return err
	}
	filter := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		width, height, width, height,
	)
	args := []string{
		"-y",
		"-i", input,
		"-vf", filter,
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		output,
	}
	return r.Run(ctx, runID, args)
}

// MuxAudio remuxes a clip with a new audio track, copying the video
// stream.
func (r *Runner) MuxAudio(ctx context.Context, runID, video, audio, output string) error {
	if err := ensureDir(output); err != nil {
		return err
	}
	args := []string{
		"-y",
		"-i", video,
		"-i", audio,
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		output,
	}
	return r.Run(ctx, runID, args)
}

// ExtractCover grabs one frame as the cover image.
func (r *Runner) ExtractCover(ctx context.Context, runID, video, cover string, timecode float64) error {
	if err := ensureDir(cover); err != nil {
		return err
	}
	args := []string{
		"-y",
		"-ss", fmt.Sprint(timecode),
		"-i", video,
		"-frames:v", "1",
		cover,
	}
	return r.Run(ctx, runID, args)
}

// PlaceholderClip renders a solid-color labeled clip, used to exercise
// the pipeline without a generation backend.
func (r *Runner) PlaceholderClip(ctx context.Context, runID, output string, width, height, fps int, duration float64, text string) error {
	if err := ensureDir(output); err != nil {
		return err
	}
	label := strings.ReplaceAll(text, "'", `\'`)
	args := []string{
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=0x1a1a1a:s=%dx%d:r=%d:d=%g", width, height, fps, duration),
		"-vf", fmt.Sprintf("drawtext=text='%s':fontcolor=white:fontsize=64:x=(w-text_w)/2:y=(h-text_h)/2", label),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		output,
	}
	return r.Run(ctx, runID, args)
}
