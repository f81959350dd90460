package runner

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/automograph/mograph/internal/core/config"
	"github.com/automograph/mograph/internal/core/domain"
	"github.com/automograph/mograph/internal/infra/backend"
	"github.com/automograph/mograph/internal/infra/ffmpeg"
)

// Uploader hands a finished artifact to a publishing provider. Providers
// live outside this module; the default keeps a local draft reference.
type Uploader interface {
	Upload(ctx context.Context, artifactPath string, spec domain.JobSpec) (*domain.UploadResult, error)
}

// DraftUploader is the default Uploader: it publishes nothing and
// records the artifact as a local draft.
type DraftUploader struct{}

// Upload implements Uploader.
func (DraftUploader) Upload(_ context.Context, artifactPath string, _ domain.JobSpec) (*domain.UploadResult, error) {
	return &domain.UploadResult{
		Success:  true,
		Message:  "draft kept locally",
		Provider: "none",
		DraftURL: "file://" + artifactPath,
	}, nil
}

// ResourceLocker serializes access to the generation backend across
// hosts. The Redis client implements it.
type ResourceLocker interface {
	WaitLock(ctx context.Context, resource string, ttl, timeout time.Duration) error
	ReleaseLock(ctx context.Context, resource string) error
}

// generationResource names the lock guarding the generation backend.
const generationResource = "generation"

// Job assembles one text → image → video → post-process pipeline run.
// Each external call inside Run is already retry-wrapped by the backend
// client and the ffmpeg runner.
type Job struct {
	Backend  *backend.Client
	FFmpeg   *ffmpeg.Runner
	Uploader Uploader
	Locker   ResourceLocker // nil = no cross-host serialization
	LockTTL  time.Duration
	Video    config.VideoConfig
	// Placeholder renders a labeled solid-color clip locally instead of
	// calling the generation backend.
	Placeholder bool
}

// Run executes one pipeline run and returns the produced artifact. The
// job owns spec.OutputDir exclusively while it runs.
func (j *Job) Run(ctx context.Context, spec domain.JobSpec) (*domain.Artifact, error) {
	dir := spec.OutputDir
	frame := filepath.Join(dir, "frame.png")
	clip := filepath.Join(dir, "clip.mp4")
	final := filepath.Join(dir, "final.mp4")
	cover := filepath.Join(dir, "cover.png")

	if j.Placeholder {
		if err := j.FFmpeg.PlaceholderClip(ctx, spec.RunID, clip,
			j.Video.Width, j.Video.Height, j.Video.FPS, 4.0, spec.Title); err != nil {
			return nil, fmt.Errorf("placeholder render failed: %w", err)
		}
	} else if err := j.generate(ctx, spec, frame, clip); err != nil {
		return nil, err
	}

	if err := j.FFmpeg.AdaptVertical(ctx, spec.RunID, clip, final, j.Video.Width, j.Video.Height); err != nil {
		return nil, fmt.Errorf("vertical adaptation failed: %w", err)
	}
	if j.Video.AudioPath != "" {
		muxed := filepath.Join(dir, "final_audio.mp4")
		if err := j.FFmpeg.MuxAudio(ctx, spec.RunID, final, j.Video.AudioPath, muxed); err != nil {
			return nil, fmt.Errorf("audio mux failed: %w", err)
		}
		final = muxed
	}
	if err := j.FFmpeg.ExtractCover(ctx, spec.RunID, final, cover, 0); err != nil {
		return nil, fmt.Errorf("cover extraction failed: %w", err)
	}

	artifact := &domain.Artifact{
		Path:      final,
		CoverPath: cover,
		SourceParams: map[string]any{
			"prompt": spec.Prompt,
			"seed":   spec.Seed,
			"title":  spec.Title,
			"tags":   spec.Tags,
		},
	}

	upload, err := j.Uploader.Upload(ctx, final, spec)
	if err != nil {
		// A failed upload does not discard the artifact; the draft stays
		// on disk and the failure is recorded alongside it.
		slog.Warn("upload failed, keeping draft", "run_id", spec.RunID, "error", err)
		upload = &domain.UploadResult{Success: false, Message: err.Error()}
	}
	artifact.Upload = upload
	return artifact, nil
}

// generate drives the two backend calls, holding the generation resource
// lock when one is configured.
func (j *Job) generate(ctx context.Context, spec domain.JobSpec, frame, clip string) error {
	if j.Locker != nil {
		if err := j.Locker.WaitLock(ctx, generationResource, j.LockTTL, j.LockTTL); err != nil {
			return fmt.Errorf("failed to acquire generation lock: %w", err)
		}
		defer func() {
			if err := j.Locker.ReleaseLock(context.WithoutCancel(ctx), generationResource); err != nil {
				slog.Warn("failed to release generation lock", "error", err)
			}
		}()
	}

	if _, err := j.Backend.Txt2Img(ctx, backend.Txt2ImgRequest{
		RunID:          spec.RunID,
		Prompt:         spec.Prompt,
		NegativePrompt: spec.NegativePrompt,
		Seed:           spec.Seed,
		Width:          j.Video.Width,
		Height:         j.Video.Height,
		OutputPath:     frame,
	}); err != nil {
		return err
	}

	if _, err := j.Backend.Img2Vid(ctx, backend.Img2VidRequest{
		RunID:      spec.RunID,
		ImagePath:  frame,
		FPS:        j.Video.FPS,
		OutputPath: clip,
	}); err != nil {
		return err
	}
	return nil
}
