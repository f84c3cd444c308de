package handlers

import "github.com/Brownie44l1/photo-rater/internal/model"

// PredictionRequest is the body of POST /predict: the model input already
// resized and normalized, InputSize×InputSize interleaved RGB.
type PredictionRequest struct {
	Image []float32 `json:"image" binding:"required"`
}

// PredictionResponse is returned by POST /predict and POST /predict/image.
type PredictionResponse struct {
	ID      string        `json:"id"`
	Score   float32       `json:"score"`
	Backend model.Backend `json:"backend"`
	Width   int           `json:"width"`
	Height  int           `json:"height"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}
