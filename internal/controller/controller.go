// Package controller keeps the state behind the photo rater's screen: the
// selected image, what is displayed, the last score and the status line. It
// turns user events into calls on the preferred Rater.
package controller

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/Brownie44l1/photo-rater/internal/imageutil"
	"github.com/Brownie44l1/photo-rater/internal/model"
)

// Status lines shown to the user.
const (
	StatusRunning     = "Running inference..."
	StatusNoInput     = "Error: Input image is nil."
	StatusNotReady    = "ERROR: Interpreter is not ready."
	StatusCropFailed  = "ERROR: Image could not be cropped."
	StatusOrientation = "ERROR: Image orientation couldn't be fixed."
	StatusStyleCrop   = "ERROR: Unable to crop style image."
)

// Source is where a selected image came from.
type Source string

const (
	SourceCamera  Source = "camera"
	SourceLibrary Source = "library"
)

// Role is what a pasted image is used for.
type Role string

const (
	RoleInput Role = "input"
	RoleStyle Role = "style"
)

// Raters hands out the Rater used for inference.
type Raters interface {
	Preferred() (*model.Rater, bool)
}

// State is a snapshot of the screen.
type State struct {
	Status     string        `json:"status"`
	Result     *model.Result `json:"result,omitempty"`
	RunEnabled bool          `json:"run_enabled"`
	HasImage   bool          `json:"has_image"`
	HasStyle   bool          `json:"has_style"`
}

// Controller is safe for concurrent use.
type Controller struct {
	raters Raters

	mu         sync.Mutex
	target     image.Image
	displayed  image.Image
	style      image.Image
	result     *model.Result
	status     string
	runEnabled bool
}

func New(raters Raters) *Controller {
	return &Controller{raters: raters, runEnabled: true}
}

// SelectImage handles an image picked from the camera or the library. The
// image is turned upright first; if that fails the state is left alone.
func (c *Controller) SelectImage(ctx context.Context, source Source, data []byte) State {
	img, err := imageutil.Decode(bytes.NewReader(data))

	c.mu.Lock()
	if err != nil {
		slog.Debug("image rejected", "source", source, "error", err)
		c.status = StatusOrientation
		defer c.mu.Unlock()
		return c.snapshot()
	}

	c.target = img
	if c.style == nil {
		c.displayed = img
		defer c.mu.Unlock()
		return c.snapshot()
	}
	c.mu.Unlock()

	return c.Run(ctx)
}

// Paste handles an image from the clipboard. As input it replaces the
// selected image without running; as style it is center-cropped and kept.
func (c *Controller) Paste(role Role, data []byte) State {
	img, err := imageutil.Decode(bytes.NewReader(data))

	c.mu.Lock()
	defer c.mu.Unlock()

	switch role {
	case RoleStyle:
		if err == nil {
			img, err = imageutil.CropCenter(img)
		}
		if err != nil {
			c.status = StatusStyleCrop
			return c.snapshot()
		}
		c.style = img
	default:
		if err != nil {
			c.status = StatusOrientation
			return c.snapshot()
		}
		c.target = img
		c.displayed = img
	}
	return c.snapshot()
}

// Run scores the selected image with the preferred Rater. The image is
// center-cropped and the crop replaces the selection. The run control is
// disabled while the call is in flight and re-enabled whatever the outcome.
// Cancelling ctx stops waiting and returns the state as it is; the outcome
// is still applied when the call completes.
func (c *Controller) Run(ctx context.Context) State {
	c.mu.Lock()
	if !c.runEnabled {
		defer c.mu.Unlock()
		return c.snapshot()
	}
	if c.target == nil {
		c.status = StatusNoInput
		defer c.mu.Unlock()
		return c.snapshot()
	}

	c.status = StatusRunning
	rater, ok := c.raters.Preferred()
	if !ok {
		c.status = StatusNotReady
		defer c.mu.Unlock()
		return c.snapshot()
	}

	cropped, err := imageutil.CropCenter(c.target)
	if err != nil {
		c.status = StatusCropFailed
		defer c.mu.Unlock()
		return c.snapshot()
	}
	c.target = cropped
	c.displayed = cropped
	c.runEnabled = false
	pending := rater.Submit(cropped)
	c.mu.Unlock()

	done := make(chan State, 1)
	go func() {
		done <- c.complete(<-pending)
	}()

	select {
	case s := <-done:
		return s
	case <-ctx.Done():
		slog.Debug("stopped waiting for inference", "backend", rater.Backend(), "error", ctx.Err())
		return c.Snapshot()
	}
}

func (c *Controller) complete(out model.Outcome) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if out.Err != nil {
		c.status = out.Err.Error()
	} else {
		res := out.Result
		c.result = &res
		c.status = fmt.Sprintf("Score: %v", res.Score)
	}
	c.runEnabled = true
	return c.snapshot()
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// Displayed returns the image on screen, or nil.
func (c *Controller) Displayed() image.Image {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.displayed
}

func (c *Controller) snapshot() State {
	s := State{
		Status:     c.status,
		RunEnabled: c.runEnabled,
		HasImage:   c.target != nil,
		HasStyle:   c.style != nil,
	}
	if c.result != nil {
		res := *c.result
		s.Result = &res
	}
	return s
}
