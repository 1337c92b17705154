package services

import (
	"encoding/json"
	"net/http"
	"strings"
)

// ResponseContentType picks the Content-Type of a mock response: a
// configured header wins, then JSON bodies are labelled as JSON, then the
// body is sniffed. An empty body gets no content type.
func ResponseContentType(headers map[string]string, body []byte) string {
	for k, v := range headers {
		if strings.EqualFold(k, "Content-Type") {
			return v
		}
	}
	if len(body) == 0 {
		return ""
	}
	if json.Valid(body) {
		return "application/json"
	}
	return http.DetectContentType(body)
}
