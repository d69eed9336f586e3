// Package ocr extracts text from contact-info PDF documents.
package ocr

import (
	"context"

	"github.com/rotisserie/eris"
)

// Extractor extracts text content from PDF files.
type Extractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
}

// Options selects and configures an OCR provider.
type Options struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MistralAPIKey string `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
}

// NewExtractor creates an Extractor for the configured provider. Local
// pdftotext is the default; Mistral OCR handles image-heavy exports.
func NewExtractor(opts Options) (Extractor, error) {
	switch opts.Provider {
	case "local", "":
		return NewPdfToText(opts.PdfToTextPath), nil
	case "mistral":
		if opts.MistralAPIKey == "" {
			return nil, eris.New("ocr: mistral provider requires mistral_api_key")
		}
		return NewMistralOCR(opts.MistralAPIKey, ""), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", opts.Provider)
	}
}
