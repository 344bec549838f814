package extract

import (
	"bytes"
	"fmt"
	"log"
	"regexp"
	"strings"

	"code.sajari.com/docconv"

	"github.com/fieldscope-hq/fieldscope/internal/core"
)

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// binaryTypes are document formats handed to docconv. When conversion fails
// or yields nothing, Text falls back to a labeled placeholder so downstream
// stages still receive non-empty input for a supported type.
var binaryTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       true,
}

// Text normalizes raw file bytes plus a declared media type into plain text.
// Pure function: no side effects beyond a log line on conversion fallback.
func Text(data []byte, mediaType, fileName string) (string, error) {
	mt := baseMediaType(mediaType)

	switch {
	case mt == "text/html" || mt == "application/xhtml+xml":
		return stripHTML(string(data)), nil
	case strings.HasPrefix(mt, "text/"), mt == "application/json", mt == "application/csv":
		return string(data), nil
	case binaryTypes[mt]:
		res, err := docconv.Convert(bytes.NewReader(data), mt, false)
		if err == nil && res != nil && strings.TrimSpace(res.Body) != "" {
			return res.Body, nil
		}
		if err != nil {
			log.Printf("extract: docconv failed for %s (%s), using placeholder: %v", fileName, mt, err)
		}
		return placeholder(fileName, mt), nil
	default:
		return "", &core.MediaTypeError{MediaType: mediaType}
	}
}

// placeholder stands in for binary documents no parser could read. The file
// stays findable by name even though its body is not searchable yet.
func placeholder(fileName, mediaType string) string {
	return fmt.Sprintf("[Unparsed document] File %q of type %s was uploaded but its contents could not be extracted. The document is stored and can be reprocessed once a parser for this format is available.", fileName, mediaType)
}

func stripHTML(s string) string {
	s = tagPattern.ReplaceAllString(s, " ")
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// baseMediaType drops parameters like "; charset=utf-8" and lower-cases.
func baseMediaType(mediaType string) string {
	mt := mediaType
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = mt[:i]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}
