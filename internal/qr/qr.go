// Package qr renders QR codes as PNG images.
package qr

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/xao-fun/xao-go/internal/metrics"
)

// DefaultContent is the URL encoded when no content is given.
const DefaultContent = "https://xao.fun"

// MaxModuleSize bounds Options.ModuleSize.
const MaxModuleSize = 40

// Options controls QR rendering. The quiet zone is always four modules.
type Options struct {
	ModuleSize int // pixels per module
	Level      qrcode.RecoveryLevel
	Foreground color.Color
	Background color.Color
}

// DefaultOptions matches the published xao.fun code: level H, 10 px modules,
// black on white.
func DefaultOptions() Options {
	return Options{
		ModuleSize: 10,
		Level:      qrcode.Highest,
		Foreground: color.Black,
		Background: color.White,
	}
}

// ParseLevel maps L, M, Q or H to a recovery level.
func ParseLevel(s string) (qrcode.RecoveryLevel, error) {
	switch strings.ToUpper(s) {
	case "L":
		return qrcode.Low, nil
	case "M":
		return qrcode.Medium, nil
	case "Q":
		return qrcode.High, nil
	case "H", "":
		return qrcode.Highest, nil
	}
	return 0, fmt.Errorf("unknown error correction level %q", s)
}

// Encode renders content as a PNG using the smallest version that fits.
func Encode(content string, opts Options) ([]byte, error) {
	if content == "" {
		return nil, errors.New("qr: empty content")
	}
	if opts.ModuleSize < 1 || opts.ModuleSize > MaxModuleSize {
		return nil, fmt.Errorf("qr: module size %d outside 1..%d", opts.ModuleSize, MaxModuleSize)
	}

	code, err := qrcode.New(content, opts.Level)
	if err != nil {
		return nil, fmt.Errorf("qr: encode: %w", err)
	}
	if opts.Foreground != nil {
		code.ForegroundColor = opts.Foreground
	}
	if opts.Background != nil {
		code.BackgroundColor = opts.Background
	}

	// Negative size means pixels per module.
	png, err := code.PNG(-opts.ModuleSize)
	if err != nil {
		return nil, fmt.Errorf("qr: png: %w", err)
	}
	metrics.AssetsGenerated.WithLabelValues("qr").Inc()
	return png, nil
}

// WriteFile encodes content and writes the PNG to path, creating parent
// directories as needed.
func WriteFile(path, content string, opts Options) error {
	png, err := Encode(content, opts)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("qr: create dir: %w", err)
	}
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return fmt.Errorf("qr: write: %w", err)
	}
	return nil
}
