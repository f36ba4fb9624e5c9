package constants

import (
	"mime"
	"strings"
)

// FileKind is what an upload endpoint accepts.
type FileKind string

const (
	IMAGE FileKind = "IMAGE"
	PDF   FileKind = "PDF"
)

const (
	MIMEPDF         = "application/pdf"
	MIMEOctetStream = "application/octet-stream"
)

// Upload form fields.
const (
	FieldFile  = "file"
	FieldFiles = "files"

	MaxBatchFiles = 10
)

// AllowedExtensions maps the extensions kept on saved uploads to their kind.
var AllowedExtensions = map[string]FileKind{
	"pdf":  PDF,
	"jpg":  IMAGE,
	"jpeg": IMAGE,
	"png":  IMAGE,
	"bmp":  IMAGE,
	"gif":  IMAGE,
	"tif":  IMAGE,
	"tiff": IMAGE,
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MediaType strips parameters and lowercases a Content-Type value.
func MediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

// Accepts reports whether a media type is valid for kind: image/* for IMAGE, application/pdf for PDF.
func (k FileKind) Accepts(mediaType string) bool {
	switch k {
	case IMAGE:
		return strings.HasPrefix(mediaType, "image/")
	case PDF:
		return mediaType == MIMEPDF
	}
	return false
}

// FailureMessage is the error text returned when processing a file of this kind fails.
func (k FileKind) FailureMessage() string {
	if k == PDF {
		return "PDF processing failed"
	}
	return "Image processing failed"
}

// RejectMessage is the error text for an upload whose media type the endpoint does not accept.
func (k FileKind) RejectMessage() string {
	if k == PDF {
		return "Invalid file type. Only PDF files are allowed."
	}
	return "Only image files are allowed for this endpoint."
}

// BatchFailureMessage is the error text when a whole batch request fails.
func (k FileKind) BatchFailureMessage() string {
	if k == PDF {
		return "Batch PDF processing failed"
	}
	return "Batch image processing failed"
}
