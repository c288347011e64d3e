package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

// errorBody covers the error envelopes the backend is known to produce.
// Detail is either a string or a list of {msg} objects.
type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

type detailItem struct {
	Msg string `json:"msg"`
}

// normalizeError collapses an error response body into one human-readable
// string. A list-valued detail collapses to its first msg.
func normalizeError(status int, body []byte) string {
	trimmed := strings.TrimSpace(string(body))

	var eb errorBody
	if trimmed != "" && json.Unmarshal(body, &eb) == nil {
		if d := parseDetail(eb.Detail); d != "" {
			return d
		}
		if eb.Message != "" {
			return eb.Message
		}
		if eb.Error != "" {
			return eb.Error
		}
	}

	if trimmed != "" && !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return truncate(trimmed, 200)
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "An error occurred"
}

func parseDetail(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}

	var items []detailItem
	if json.Unmarshal(raw, &items) == nil {
		if len(items) > 0 && items[0].Msg != "" {
			return items[0].Msg
		}
		return "An error occurred"
	}

	var item detailItem
	if json.Unmarshal(raw, &item) == nil && item.Msg != "" {
		return item.Msg
	}
	return ""
}

// unwrapURLError strips the *url.Error wrapper so the message does not
// repeat the method and URL.
func unwrapURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) && ue.Err != nil {
		return ue.Err
	}
	return err
}
