package constants

import (
	"strings"
)

// PrintControl decides whether a text block is exported.
type PrintControl string

const (
	PrintInclude PrintControl = "I"
	PrintMerge   PrintControl = "M"
	PrintOmit    PrintControl = "O"
)

var printControlDisplay = map[PrintControl]string{
	PrintInclude: "Include",
	PrintMerge:   "Merged",
	PrintOmit:    "Omit",
}

var allPrintControls = []PrintControl{PrintInclude, PrintMerge, PrintOmit}

// Display returns the human label, or "" for an unknown value.
func (p PrintControl) Display() string { return printControlDisplay[p] }

func (p PrintControl) Valid() bool {
	_, ok := printControlDisplay[p]
	return ok
}

// PrintControlCodes lists the stored codes in declaration order.
func PrintControlCodes() []string {
	out := make([]string, len(allPrintControls))
	for i, p := range allPrintControls {
		out[i] = string(p)
	}
	return out
}

// ParsePrintControl accepts a stored code ("I") or its label ("include", "merged").
func ParsePrintControl(input string) (PrintControl, bool) {
	s := strings.TrimSpace(input)
	if p := PrintControl(s); p.Valid() {
		return p, true
	}
	normalized := strings.ToLower(s)
	synonyms := map[string]PrintControl{
		"merge": PrintMerge,
	}
	if p, ok := synonyms[normalized]; ok {
		return p, true
	}
	for _, p := range allPrintControls {
		if normalized == strings.ToLower(p.Display()) {
			return p, true
		}
	}
	return "", false
}

// TextType is the backend's classification of the recognized text.
type TextType string

const (
	TextPrinted     TextType = "P"
	TextHandwriting TextType = "H"
)

var textTypeDisplay = map[TextType]string{
	TextPrinted:     "Printed",
	TextHandwriting: "Handwriting",
}

func (t TextType) Display() string { return textTypeDisplay[t] }

func (t TextType) Valid() bool {
	_, ok := textTypeDisplay[t]
	return ok
}

// TextTypeCodes lists the stored codes.
func TextTypeCodes() []string {
	return []string{string(TextPrinted), string(TextHandwriting)}
}

// ParseTextType accepts a stored code ("P") or a label ("printed", "HANDWRITING").
func ParseTextType(input string) (TextType, bool) {
	s := strings.TrimSpace(input)
	if t := TextType(s); t.Valid() {
		return t, true
	}
	switch strings.ToLower(s) {
	case "printed":
		return TextPrinted, true
	case "handwriting":
		return TextHandwriting, true
	}
	return "", false
}

// Confidence thresholds. Backend scores are percentages.
const (
	ConfAccepted = 99.999
	ConfHigh     = 90.0
	ConfMedium   = 80.0
	ConfLow      = 50.0
	ConfNone     = 0.0
)

// ConfidenceLevel buckets a confidence score.
func ConfidenceLevel(conf float64) string {
	switch {
	case conf >= ConfAccepted:
		return "accepted"
	case conf >= ConfHigh:
		return "high"
	case conf >= ConfMedium:
		return "medium"
	case conf >= ConfLow:
		return "low"
	default:
		return "none"
	}
}

// CloudService identifies the extraction backend an organization is configured with.
type CloudService string

const (
	ServiceTest      CloudService = "T"
	ServiceAWS       CloudService = "A"
	ServiceTesseract CloudService = "L"
)

var cloudServiceDisplay = map[CloudService]string{
	ServiceTest:      "Test",
	ServiceAWS:       "Amazon Web Services",
	ServiceTesseract: "Local Tesseract",
}

func (c CloudService) Display() string { return cloudServiceDisplay[c] }

func (c CloudService) Valid() bool {
	_, ok := cloudServiceDisplay[c]
	return ok
}
