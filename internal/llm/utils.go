package llm

import (
	"encoding/base64"
	"mime"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/geoextract/constants"
)

// ShouldAttachImage decides whether the page image goes along with the text.
// Only low-confidence OCR pages qualify, and only under the size gate.
func ShouldAttachImage(req ExtractRequest) (attach bool, dataURL, mimeType string) {
	attach = req.ImagePath != "" &&
		req.OCRConfidence > 0 &&
		req.OCRConfidence < constants.VisionConfidenceThreshold

	if !attach {
		return false, "", ""
	}

	// size gate
	if st, err := os.Stat(req.ImagePath); err == nil {
		if st.Size() > int64(constants.MaxVisionMB)*1024*1024 {
			return false, "", ""
		}
	}

	u, mt, err := readAsDataURL(req.ImagePath)
	if err != nil {
		return false, "", ""
	}
	return true, u, mt
}

// ReadImageBase64 returns the raw base64 payload for backends that take bare images.
func ReadImageBase64(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func readAsDataURL(path string) (string, string, error) {
	data, err := ReadImageBase64(path)
	if err != nil {
		return "", "", err
	}
	ext := constants.NormalizeExt(filepath.Ext(path))
	mt := mime.TypeByExtension("." + ext)
	if mt == "" {
		// fallbacks
		switch ext {
		case "jpg", "jpeg":
			mt = "image/jpeg"
		case "png":
			mt = "image/png"
		case "tif", "tiff":
			mt = "image/tiff"
		default:
			mt = "application/octet-stream"
		}
	}
	return "data:" + mt + ";base64," + data, mt, nil
}
