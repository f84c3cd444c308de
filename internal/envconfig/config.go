// Package envconfig reads photorater settings from the environment.
package envconfig

import (
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
)

// Host returns the listen address. PHOTORATER_HOST wins; otherwise the
// server listens on all interfaces at PORT (default 8080).
func Host() string {
	if s := Var("PHOTORATER_HOST"); s != "" {
		if _, _, err := net.SplitHostPort(s); err == nil {
			return s
		}
		slog.Warn("invalid host, ignoring", "host", s)
	}

	port := Var("PORT")
	if port == "" {
		port = "8080"
	}
	if n, err := strconv.ParseUint(port, 10, 16); err != nil || n == 0 {
		slog.Warn("invalid port, using default", "port", port, "default", "8080")
		port = "8080"
	}
	return net.JoinHostPort("0.0.0.0", port)
}

// Models returns the directory holding the model file.
func Models() string {
	if s := Var("PHOTORATER_MODELS"); s != "" {
		return s
	}
	return "models"
}

// ModelName returns the logical model name, without extension.
func ModelName() string {
	if s := Var("PHOTORATER_MODEL_NAME"); s != "" {
		return s
	}
	return "predict"
}

// AllowedOrigins returns extra CORS origins from PHOTORATER_ORIGINS
// (comma separated). Empty means any origin.
func AllowedOrigins() (origins []string) {
	for _, o := range strings.Split(Var("PHOTORATER_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// LogLevel returns the log level. PHOTORATER_DEBUG=1 or true enables debug.
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("PHOTORATER_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}
	return level
}

var (
	// Runtime selects the inference runtime: onnx (default) or tflite.
	Runtime = String("PHOTORATER_RUNTIME")
	// GPUDelegate overrides the hardware delegate used by the gpu backend.
	GPUDelegate = String("PHOTORATER_GPU_DELEGATE")
	// ORTLibrary is the path to the ONNX Runtime shared library.
	ORTLibrary = String("PHOTORATER_ORT_LIBRARY")
	// Backend is the backend used to score images: gpu (default) or cpu.
	Backend = String("PHOTORATER_BACKEND")
)

// String returns a getter for a trimmed environment variable.
func String(key string) func() string {
	return func() string {
		return Var(key)
	}
}

// Var returns an environment variable stripped of whitespace and quotes.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
