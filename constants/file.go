package constants

import (
	"bytes"
	"strings"
)

// Document container formats.
const (
	PDF   = "PDF"
	IMAGE = "IMAGE"
)

// FileTypes holds the document formats accepted for submission.
var FileTypes = []string{PDF, IMAGE}

// AllowedExtensions holds the default extensions picked up by directory ingestion.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"tif":  {},
	"tiff": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat maps a normalized extension to PDF or IMAGE; "" if unknown.
func MapExtToFormat(ext string) string {
	switch NormalizeExt(ext) {
	case "pdf":
		return PDF
	case "jpg", "jpeg", "png", "tif", "tiff", "gif", "bmp":
		return IMAGE
	}
	return ""
}

var imageMagic = [][]byte{
	{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'},
	{0xff, 0xd8, 0xff},
	{'I', 'I', '*', 0x00},
	{'M', 'M', 0x00, '*'},
	[]byte("GIF87a"),
	[]byte("GIF89a"),
	[]byte("BM"),
}

// SniffFormat detects the container from leading bytes; "" if unrecognized.
func SniffFormat(head []byte) string {
	if bytes.HasPrefix(bytes.TrimLeft(head[:min(len(head), 1024)], "\x00\t\r\n "), []byte("%PDF-")) {
		return PDF
	}
	for _, m := range imageMagic {
		if bytes.HasPrefix(head, m) {
			return IMAGE
		}
	}
	return ""
}

// ImageExtFromHead returns a file extension suitable for an image's leading bytes.
func ImageExtFromHead(head []byte) string {
	switch {
	case bytes.HasPrefix(head, imageMagic[0]):
		return "png"
	case bytes.HasPrefix(head, imageMagic[1]):
		return "jpg"
	case bytes.HasPrefix(head, imageMagic[2]), bytes.HasPrefix(head, imageMagic[3]):
		return "tif"
	case bytes.HasPrefix(head, imageMagic[4]), bytes.HasPrefix(head, imageMagic[5]):
		return "gif"
	case bytes.HasPrefix(head, imageMagic[6]):
		return "bmp"
	}
	return "img"
}
