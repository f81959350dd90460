// Package backend is the HTTP client for the generation service
// (text-to-image and image-to-video). Every call is driven through the
// retry engine with backend-call classification.
package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/automograph/mograph/internal/engine/errclass"
	"github.com/automograph/mograph/internal/engine/retry"
)

// StatusError is a non-2xx response from the generation backend. It
// carries the status code for classification.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.Status, e.Body)
}

// StatusCode implements errclass.StatusCoder.
func (e *StatusError) StatusCode() int { return e.Status }

// Client calls the generation backend.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	exec    *retry.Executor
}

// NewClient creates a backend client. Calls are retried by exec and
// classified with errclass.ClassifyBackend.
func NewClient(baseURL, token string, timeout time.Duration, exec *retry.Executor) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		exec:    exec,
	}
}

// Txt2ImgRequest asks the backend to render one image from a prompt.
type Txt2ImgRequest struct {
	RunID          string
	Prompt         string
	NegativePrompt string
	Seed           int64
	Steps          int
	Width          int
	Height         int
	OutputPath     string
}

// ImageResult is the produced image.
type ImageResult struct {
	Path string
	Seed int64
}

type txt2imgPayload struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Seed           int64  `json:"seed"`
	Steps          int    `json:"steps"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
}

type txt2imgResponse struct {
	Images []string `json:"images"`
}

// Txt2Img renders one image and writes it to req.OutputPath.
func (c *Client) Txt2Img(ctx context.Context, req Txt2ImgRequest) (*ImageResult, error) {
	steps := req.Steps
	if steps == 0 {
		steps = 30
	}
	payload := txt2imgPayload{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Seed:           req.Seed,
		Steps:          steps,
		Width:          req.Width,
		Height:         req.Height,
	}

	result, err := c.exec.Do(ctx, retry.Operation{
		Name:     "backend_call",
		Fields:   map[string]any{"fn": "txt2img", "run_id": req.RunID},
		Classify: errclass.ClassifyBackend,
		Invoke: func(ctx context.Context) (any, error) {
			var resp txt2imgResponse
			if err := c.post(ctx, "/sdapi/v1/txt2img", payload, &resp); err != nil {
				return nil, err
			}
			if len(resp.Images) == 0 {
				return nil, fmt.Errorf("backend returned no images")
			}
			if err := writeBase64(req.OutputPath, resp.Images[0]); err != nil {
				return nil, err
			}
			return &ImageResult{Path: req.OutputPath, Seed: req.Seed}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return result.(*ImageResult), nil
}

// Img2VidRequest asks the backend to animate an image.
type Img2VidRequest struct {
	RunID      string
	ImagePath  string
	FPS        int
	Frames     int
	OutputPath string
}

// VideoResult is the produced clip.
type VideoResult struct {
	Path string
}

type img2vidPayload struct {
	Image  string `json:"image"`
	FPS    int    `json:"fps"`
	Frames int    `json:"frames,omitempty"`
}

type img2vidResponse struct {
	Video string `json:"video"`
}

// Img2Vid animates the image at req.ImagePath into a clip written to
// req.OutputPath.
func (c *Client) Img2Vid(ctx context.Context, req Img2VidRequest) (*VideoResult, error) {
	image, err := os.ReadFile(req.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read source image: %w", err)
	}
	payload := img2vidPayload{
		Image:  base64.StdEncoding.EncodeToString(image),
		FPS:    req.FPS,
		Frames: req.Frames,
	}

	result, err := c.exec.Do(ctx, retry.Operation{
		Name:     "backend_call",
		Fields:   map[string]any{"fn": "img2vid", "run_id": req.RunID},
		Classify: errclass.ClassifyBackend,
		Invoke: func(ctx context.Context) (any, error) {
			var resp img2vidResponse
			if err := c.post(ctx, "/api/v1/img2vid", payload, &resp); err != nil {
				return nil, err
			}
			if resp.Video == "" {
				return nil, fmt.Errorf("backend returned no video")
			}
			if err := writeBase64(req.OutputPath, resp.Video); err != nil {
				return nil, err
			}
			return &VideoResult{Path: req.OutputPath}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return result.(*VideoResult), nil
}

// Health probes the backend without retries.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/internal/ping", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Status: resp.StatusCode}
	}
	return nil
}

// post performs one attempt against the backend. Non-2xx responses turn
// into *StatusError with a truncated body for diagnosis.
func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Status: resp.StatusCode, Body: tail(string(data), 500)}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func writeBase64(path, encoded string) error {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("failed to decode artifact payload: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func tail(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[len(s)-limit:]
}
