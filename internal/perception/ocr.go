// internal/perception/ocr.go
package perception

import (
	"context"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"go.uber.org/zap"
)

// OCRProvider extracts text from a rendered PNG frame. Implementations are
// best-effort: they return an empty string on failure and never propagate an
// error to the caller.
type OCRProvider interface {
	TextFromImage(ctx context.Context, png []byte) string
}

// TesseractOCR is the local OCR provider used for "are we there yet"
// verification checks.
type TesseractOCR struct {
	logger *zap.Logger
}

var _ OCRProvider = (*TesseractOCR)(nil)

// NewTesseractOCR creates the provider.
func NewTesseractOCR(logger *zap.Logger) *TesseractOCR {
	return &TesseractOCR{logger: logger.Named("ocr")}
}

// TextFromImage runs Tesseract over the frame. A fresh client per call keeps
// the provider safe without holding cgo state across steps.
func (t *TesseractOCR) TextFromImage(ctx context.Context, png []byte) string {
	if len(png) == 0 {
		return ""
	}
	if err := ctx.Err(); err != nil {
		return ""
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetImageFromBytes(png); err != nil {
		t.logger.Warn("OCR failed to load image", zap.Error(err))
		return ""
	}
	text, err := client.Text()
	if err != nil {
		t.logger.Warn("OCR extraction failed", zap.Error(err))
		return ""
	}
	return strings.TrimSpace(text)
}

// ContainsAny reports whether any keyword appears in the extracted text,
// case-insensitively. Empty keywords are skipped.
func ContainsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
