package scanning

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"io"
	"os"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// EncodeImage converts receipt image bytes into the base64 payload the OCR
// service expects. HEIC/HEIF photos and PDFs are rendered to PNG first since
// text detection does not accept them.
func EncodeImage(data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", &EncodingError{Err: errors.New("image is empty")}
	}

	prepared, err := prepareImageData(data, contentType)
	if err != nil {
		return "", &EncodingError{Err: err}
	}

	return base64.StdEncoding.EncodeToString(prepared), nil
}

// EncodeReader reads an image stream once and encodes it
func EncodeReader(r io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", &EncodingError{Err: fmt.Errorf("reading image: %w", err)}
	}
	return EncodeImage(data, contentType)
}

// EncodeFile reads an image from disk once and encodes it
func EncodeFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &EncodingError{Err: fmt.Errorf("reading file: %w", err)}
	}
	return EncodeImage(data, contentTypeFromData(data))
}

// prepareImageData normalizes the MIME type and renders formats the OCR
// service cannot read into PNG. Everything else is passed through untouched.
func prepareImageData(data []byte, contentType string) ([]byte, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))

	switch {
	case mimeType == "application/pdf" || isPDFFormat(data):
		out, err := pdfToPNG(data)
		if err != nil {
			return nil, fmt.Errorf("converting PDF to image: %w", err)
		}
		return out, nil
	case isHEICFormat(data) || isHEICMimeType(mimeType):
		out, err := heicToPNG(data)
		if err != nil {
			return nil, fmt.Errorf("converting HEIC to image: %w", err)
		}
		return out, nil
	}
	return data, nil
}

// pdfToPNG renders the first page of a PDF (receipts are single page)
func pdfToPNG(data []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func heicToPNG(data []byte) ([]byte, error) {
	img, err := heic.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEICFormat checks for an ftyp box with a HEIC-family brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

func isPDFFormat(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

// contentTypeFromData guesses the content type for files read from disk
func contentTypeFromData(data []byte) string {
	switch {
	case isPDFFormat(data):
		return "application/pdf"
	case isHEICFormat(data):
		return "image/heic"
	}
	return ""
}
