package steps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"net/url"
	"os"
	"os/exec"
	"path"
	"strings"
	"time"

	"github.com/aristath/docforge/internal/orchestrator"
	"github.com/aristath/docforge/internal/project"
	"github.com/aristath/docforge/internal/workspace"
)

// Screenshot viewport.
const (
	viewportWidth  = 1280
	viewportHeight = 800
	captureTimeout = 30 * time.Second
)

// Capturer renders the page at pageURL into a PNG file at dest.
type Capturer interface {
	Capture(ctx context.Context, pageURL, dest string) error
}

// BrowserCapturer captures pages with a headless Chromium-family browser.
type BrowserCapturer struct {
	binary string
}

// browserCandidates are probed in order by FindBrowser.
var browserCandidates = []string{"chromium", "chromium-browser", "google-chrome", "google-chrome-stable", "chrome"}

// FindBrowser returns a capturer for the first browser on PATH, or nil when none is installed.
func FindBrowser() *BrowserCapturer {
	for _, name := range browserCandidates {
		if p, err := exec.LookPath(name); err == nil {
			return &BrowserCapturer{binary: p}
		}
	}
	return nil
}

// NewBrowserCapturer uses binary as the browser executable.
func NewBrowserCapturer(binary string) *BrowserCapturer {
	return &BrowserCapturer{binary: binary}
}

func (b *BrowserCapturer) Capture(ctx context.Context, pageURL, dest string) error {
	ctx, cancel := context.WithTimeout(ctx, captureTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, b.binary,
		"--headless",
		"--disable-gpu",
		"--no-sandbox",
		"--hide-scrollbars",
		fmt.Sprintf("--window-size=%d,%d", viewportWidth, viewportHeight),
		"--screenshot="+dest,
		pageURL,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("browser failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if fi, err := os.Stat(dest); err != nil || fi.Size() == 0 {
		return errors.New("browser produced no screenshot")
	}
	return nil
}

// CaptureStep screenshots every rendered page. Pages that cannot be captured
// get a placeholder image whose file name starts with "placeholder_".
type CaptureStep struct {
	deps Deps
}

func (s *CaptureStep) Name() string { return "Capture screenshots" }

func (s *CaptureStep) Run(ctx context.Context, taskID string, pc *project.Context) (orchestrator.Outcome, error) {
	if _, err := s.deps.Workspace.Create(taskID); err != nil {
		return orchestrator.Outcome{}, err
	}

	shots := make(map[string]string)
	var placeholders []string
	for i := range pc.Features {
		if err := ctx.Err(); err != nil {
			return orchestrator.Outcome{}, err
		}
		f := &pc.Features[i]
		f.ScreenshotPath = ""
		if f.HTMLPath == "" {
			continue
		}

		rel, err := s.capture(ctx, taskID, f)
		if ctx.Err() != nil {
			return orchestrator.Outcome{}, ctx.Err()
		}
		if err != nil {
			log.Printf("WARNING: [%s] screenshot of %q failed, using placeholder: %v", taskID, f.Name, err)
			rel, err = s.placeholder(taskID, f.Name)
			if err != nil {
				return orchestrator.Outcome{}, err
			}
			placeholders = append(placeholders, f.Name)
		}
		f.ScreenshotPath = rel
		shots[f.Name] = rel
	}
	pc.Screenshots = shots

	if len(placeholders) > 0 {
		return orchestrator.Warned(fmt.Sprintf("%d of %d screenshots are placeholders: %s",
			len(placeholders), len(shots), strings.Join(placeholders, ", "))), nil
	}
	return orchestrator.Succeeded(fmt.Sprintf("screenshots captured, %d images", len(shots))), nil
}

func (s *CaptureStep) capture(ctx context.Context, taskID string, f *project.Feature) (string, error) {
	if s.deps.Capturer == nil {
		return "", errors.New("no browser available")
	}
	page, err := s.deps.Workspace.Resolve(taskID, f.HTMLPath)
	if err != nil {
		return "", err
	}
	rel := path.Join(workspace.ScreenshotPath, safeFileName(f.Name)+".png")
	dest, err := s.deps.Workspace.Resolve(taskID, rel)
	if err != nil {
		return "", err
	}

	pageURL := (&url.URL{Scheme: "file", Path: page}).String()
	if err := s.deps.Capturer.Capture(ctx, pageURL, dest); err != nil {
		return "", err
	}
	return rel, nil
}

func (s *CaptureStep) placeholder(taskID, featureName string) (string, error) {
	rel := path.Join(workspace.ScreenshotPath, "placeholder_"+safeFileName(featureName)+".png")
	data, err := placeholderImage()
	if err != nil {
		return "", fmt.Errorf("failed to encode placeholder: %w", err)
	}
	if _, err := s.deps.Workspace.WriteFile(taskID, rel, data); err != nil {
		return "", err
	}
	return rel, nil
}

// placeholderImage is a flat grey PNG with a darker frame, sized like a capture.
func placeholderImage() ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, viewportWidth, viewportHeight))
	fill := color.RGBA{236, 240, 245, 255}
	frame := color.RGBA{200, 205, 212, 255}
	for y := 0; y < viewportHeight; y++ {
		for x := 0; x < viewportWidth; x++ {
			c := fill
			if x < 8 || y < 8 || x >= viewportWidth-8 || y >= viewportHeight-8 {
				c = frame
			}
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
