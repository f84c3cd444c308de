package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Brownie44l1/photo-rater/internal/controller"
	"github.com/Brownie44l1/photo-rater/internal/imageutil"
	"github.com/Brownie44l1/photo-rater/internal/model"
	"github.com/Brownie44l1/photo-rater/internal/registry"
)

// maxUploadSize bounds the multipart body (10MB).
const maxUploadSize = 10 << 20

type Handler struct {
	controller *controller.Controller
	registry   *registry.Registry
}

func NewHandler(c *controller.Controller, r *registry.Registry) *Handler {
	return &Handler{
		controller: c,
		registry:   r,
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"backends": h.registry.Status(),
	})
}

// SelectImage handles POST /api/image with an "image" file and an optional
// "source" field (camera or library).
func (h *Handler) SelectImage(c *gin.Context) {
	source := controller.Source(c.DefaultPostForm("source", string(controller.SourceLibrary)))
	if source != controller.SourceCamera && source != controller.SourceLibrary {
		abort(c, http.StatusBadRequest, fmt.Sprintf("unknown source %q", source))
		return
	}

	data, ok := readUpload(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, h.controller.SelectImage(c.Request.Context(), source, data))
}

// Paste handles POST /api/paste with an "image" file and a "role" field
// (input or style).
func (h *Handler) Paste(c *gin.Context) {
	role := controller.Role(c.DefaultPostForm("role", string(controller.RoleInput)))
	if role != controller.RoleInput && role != controller.RoleStyle {
		abort(c, http.StatusBadRequest, fmt.Sprintf("unknown role %q", role))
		return
	}

	data, ok := readUpload(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, h.controller.Paste(role, data))
}

func (h *Handler) Run(c *gin.Context) {
	c.JSON(http.StatusOK, h.controller.Run(c.Request.Context()))
}

func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.controller.Snapshot())
}

// Image writes the displayed image as PNG.
func (h *Handler) Image(c *gin.Context) {
	img := h.controller.Displayed()
	if img == nil {
		abort(c, http.StatusNotFound, "no image selected")
		return
	}

	c.Header("Content-Type", "image/png")
	c.Status(http.StatusOK)
	if err := imageutil.EncodePNG(c.Writer, img); err != nil {
		slog.Error("failed to encode image", "error", err)
	}
}

// Predict scores a raw input tensor with the preferred Rater.
func (h *Handler) Predict(c *gin.Context) {
	var req PredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "Invalid JSON")
		return
	}

	rater, ok := h.preferred(c)
	if !ok {
		return
	}

	res, ok := h.score(c, rater, func() (model.Result, error) {
		return rater.ScoreTensor(c.Request.Context(), req.Image)
	})
	if !ok {
		return
	}

	c.JSON(http.StatusOK, PredictionResponse{
		ID:      res.ID,
		Score:   res.Score,
		Backend: res.Backend,
		Width:   model.InputSize,
		Height:  model.InputSize,
	})
}

// PredictFromImage scores an uploaded image without touching the screen
// state: decode upright, crop center, run the preferred Rater.
func (h *Handler) PredictFromImage(c *gin.Context) {
	data, ok := readUpload(c)
	if !ok {
		return
	}

	img, err := imageutil.Decode(bytes.NewReader(data))
	if err != nil {
		abort(c, http.StatusBadRequest, "Invalid image format. Supported: JPEG, PNG, GIF, WebP, BMP, TIFF")
		return
	}

	cropped, err := imageutil.CropCenter(img)
	if err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}

	rater, ok := h.preferred(c)
	if !ok {
		return
	}

	res, ok := h.score(c, rater, func() (model.Result, error) {
		return rater.Score(c.Request.Context(), cropped)
	})
	if !ok {
		return
	}

	c.JSON(http.StatusOK, PredictionResponse{
		ID:      res.ID,
		Score:   res.Score,
		Backend: res.Backend,
		Width:   cropped.Bounds().Dx(),
		Height:  cropped.Bounds().Dy(),
	})
}

func (h *Handler) preferred(c *gin.Context) (*model.Rater, bool) {
	rater, ok := h.registry.Preferred()
	if !ok {
		abort(c, http.StatusServiceUnavailable, fmt.Sprintf("%s interpreter is not ready", h.registry.PreferredBackend()))
	}
	return rater, ok
}

func (h *Handler) score(c *gin.Context, rater *model.Rater, run func() (model.Result, error)) (model.Result, bool) {
	res, err := run()
	switch {
	case errors.Is(err, model.ErrInvalidImage):
		abort(c, http.StatusBadRequest, err.Error())
		return res, false
	case err != nil:
		slog.Error("prediction failed", "backend", rater.Backend(), "error", err)
		abort(c, http.StatusInternalServerError, "Prediction failed")
		return res, false
	}
	return res, true
}

func readUpload(c *gin.Context) ([]byte, bool) {
	header, err := c.FormFile("image")
	if err != nil {
		abort(c, http.StatusBadRequest, "No image file provided. Use 'image' as the form field name")
		return nil, false
	}

	file, err := header.Open()
	if err != nil {
		abort(c, http.StatusBadRequest, "Failed to read upload")
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		abort(c, http.StatusBadRequest, "Failed to read upload")
		return nil, false
	}

	slog.Debug("received file", "name", header.Filename, "size", header.Size)
	return data, true
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg})
}
