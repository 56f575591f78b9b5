package constants

// OCR backends.
const (
	OCRTesseract = "tesseract"
	OCRGosseract = "gosseract"
	// OCRCombined runs both engines on each page and keeps the more confident text.
	OCRCombined = "combined"
)

// Model backends. ModelNone runs pattern extraction only.
const (
	ModelNone      = "none"
	ModelOpenAI    = "openai"
	ModelOllama    = "ollama"
	ModelAnthropic = "anthropic"
)

// Merge policies for pattern/model candidates on the same span.
const (
	MergePreferConfidence = "prefer-confidence"
	MergePreferPattern    = "prefer-pattern"
	MergePreferModel      = "prefer-model"
)

// Languages maps the submission language enum onto tesseract traineddata names.
var Languages = map[string]string{
	"en": "eng",
	"fr": "fra",
	"es": "spa",
	"de": "deu",
	"pt": "por",
}

func LanguageCodes() []string {
	return []string{"en", "fr", "es", "de", "pt"}
}

// Pipeline defaults.
const (
	DefaultDPI                 = 300
	MinDPI                     = 72
	MaxDPI                     = 1200
	DefaultConfidenceThreshold = 0.6
	DefaultModelConfidence     = 0.5
	DefaultLanguage            = "en"
	// SampleLinkWindow is how many bytes of page text may separate a sample
	// from the coordinate it is linked to.
	SampleLinkWindow = 100
)

// Page images are attached to model requests when OCR confidence is below
// VisionConfidenceThreshold and the image is no larger than MaxVisionMB.
const (
	VisionConfidenceThreshold = 0.5
	MaxVisionMB               = 8
)

// OCRTextLayer marks pages whose text came from the PDF's embedded text layer.
const OCRTextLayer = "pdf-text"
