package service

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/doctalk-ai/doctalk/internal/domain"
	"github.com/dslipak/pdf"
)

// ExtractText pulls plain text out of an uploaded file based on its
// extension. Unsupported types and empty extractions are permanent
// content failures: the caller marks the document failed rather than
// retrying.
func ExtractText(filename string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md":
		if !utf8.Valid(data) {
			return "", domain.NewDomainErrorWithCause(domain.ErrCodeUnprocessable,
				"file is not valid UTF-8 text", domain.ErrUnsupportedFileType)
		}
		return requireContent(string(data))
	case ".pdf":
		text, err := extractPDF(data)
		if err != nil {
			return "", domain.NewDomainErrorWithCause(domain.ErrCodeUnprocessable,
				"failed to parse PDF", err)
		}
		return requireContent(text)
	default:
		return "", domain.ErrUnsupportedFileType
	}
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if _, err := io.Copy(&sb, plain); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func requireContent(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", domain.ErrEmptyDocument
	}
	return text, nil
}
