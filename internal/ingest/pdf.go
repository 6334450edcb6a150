package ingest

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractText converts an uploaded document body to plain text.
// PDF bodies go through the PDF text extractor; anything else is treated as
// text and passed through as-is.
func ExtractText(contentType string, body []byte) (string, error) {
	if strings.EqualFold(contentType, "application/pdf") {
		return extractPDF(body)
	}
	return string(body), nil
}

func extractPDF(body []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("copying pdf text: %w", err)
	}
	return buf.String(), nil
}
