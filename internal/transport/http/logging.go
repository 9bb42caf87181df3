package http

import (
	"encoding/json"
	"log"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	requestBodyLogKey  = "http.request.body.summary"
	responseBodyLogKey = "http.response.body.summary"
	maxLoggedBody      = 2048
)

var sensitiveKeys = []string{"password", "token", "secret", "authorization"}

func isSensitiveKey(key string) bool {
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

type accessLogEntry struct {
	Time      string         `json:"time"`
	UserID    string         `json:"user_id"`
	LatencyMS int64          `json:"latency_ms"`
	Request   accessLogHTTP  `json:"request"`
	Response  accessLogReply `json:"response"`
}

type accessLogHTTP struct {
	Method string `json:"method"`
	URI    string `json:"uri"`
	Body   any    `json:"body,omitempty"`
}

type accessLogReply struct {
	Status int    `json:"status"`
	Body   any    `json:"body,omitempty"`
	Error  string `json:"error,omitempty"`
}

func registerLogging(e *echo.Echo) {
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			entry := accessLogEntry{
				Time:      v.StartTime.Format(time.RFC3339),
				UserID:    CurrentUserID(c),
				LatencyMS: v.Latency.Milliseconds(),
				Request:   accessLogHTTP{Method: v.Method, URI: v.URI, Body: c.Get(requestBodyLogKey)},
				Response:  accessLogReply{Status: v.Status, Body: c.Get(responseBodyLogKey)},
			}
			if v.Error != nil {
				entry.Response.Error = v.Error.Error()
			}
			buf, err := json.Marshal(entry)
			if err != nil {
				return err
			}
			log.Println(string(buf))
			return nil
		},
	}))

	// Spreadsheet uploads are not buffered for the log; only their size is kept.
	e.Use(middleware.BodyDumpWithConfig(middleware.BodyDumpConfig{
		Skipper: func(c echo.Context) bool {
			if isMultipart(c.Request().Header.Get(echo.HeaderContentType)) {
				c.Set(requestBodyLogKey, map[string]any{
					"multipart":      true,
					"content_length": c.Request().ContentLength,
				})
				return true
			}
			return false
		},
		Handler: func(c echo.Context, reqBody, resBody []byte) {
			if summary := sanitizeBody(reqBody, c.Request().Header.Get(echo.HeaderContentType)); summary != nil {
				c.Set(requestBodyLogKey, summary)
			}
			if summary := sanitizeBody(resBody, c.Response().Header().Get(echo.HeaderContentType)); summary != nil {
				c.Set(responseBodyLogKey, summary)
			}
		},
	}))
}

func isMultipart(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "multipart/")
}

func sanitizeBody(body []byte, contentType string) any {
	if len(body) == 0 {
		return nil
	}

	loweredType := strings.ToLower(strings.TrimSpace(contentType))

	if isMultipart(loweredType) {
		return "binary"
	}

	isJSON := strings.HasPrefix(loweredType, "application/json") || json.Valid(body)
	if isJSON {
		var data any
		if err := json.Unmarshal(body, &data); err == nil {
			sanitized := sanitizeJSON(data, "")
			return limitJSONSize(sanitized)
		}
	}

	if strings.HasPrefix(loweredType, "application/x-www-form-urlencoded") {
		if values, err := url.ParseQuery(string(body)); err == nil {
			sanitized := make(map[string]any, len(values))
			for key, vals := range values {
				lowerKey := strings.ToLower(key)
				if isSensitiveKey(lowerKey) {
					sanitized[key] = "redacted"
					continue
				}
				slice := make([]any, 0, len(vals))
				for _, v := range vals {
					slice = append(slice, sanitizeStringValue(v, lowerKey))
				}
				if len(slice) == 1 {
					sanitized[key] = slice[0]
				} else {
					sanitized[key] = slice
				}
			}
			if len(sanitized) > 0 {
				return limitJSONSize(sanitized)
			}
		}
	}

	if containsBinaryBytes(body) {
		return "binary"
	}

	text := string(body)
	if isSensitiveKey(strings.ToLower(text)) {
		return "redacted"
	}

	return clampString(text)
}

func limitJSONSize(value any) any {
	if value == nil {
		return nil
	}
	buf, err := json.Marshal(value)
	if err != nil {
		return value
	}
	if len(buf) <= maxLoggedBody {
		return value
	}
	summary := summarizeJSONPreview(value, 0)
	if summary == nil {
		return map[string]any{"_truncated": true}
	}
	return map[string]any{
		"_truncated": true,
		"_preview":   summary,
	}
}

func sanitizeJSON(value any, keyHint string) any {
	switch v := value.(type) {
	case map[string]any:
		result := make(map[string]any, len(v))
		for key, val := range v {
			lowerKey := strings.ToLower(key)
			if isSensitiveKey(lowerKey) {
				result[key] = "redacted"
				continue
			}
			result[key] = sanitizeJSON(val, lowerKey)
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = sanitizeJSON(item, keyHint)
		}
		return result
	case string:
		return sanitizeStringValue(v, keyHint)
	default:
		return v
	}
}

func sanitizeStringValue(value string, keyHint string) string {
	if keyHint != "" && isSensitiveKey(keyHint) {
		return "redacted"
	}
	if containsBinaryBytes([]byte(value)) {
		return "binary"
	}
	return clampString(value)
}

func summarizeJSONPreview(value any, depth int) any {
	const (
		maxDepth          = 3
		maxMapEntries     = 6
		maxArraySamples   = 3
		maxStringPreview  = 256
		omittedKeysLabel  = "_omitted_fields"
		omittedItemsLabel = "_omitted_items"
		arrayLenLabel     = "_total_items"
		sampleLabel       = "_sample"
	)

	if depth >= maxDepth {
		return "...(omitted)..."
	}

	switch v := value.(type) {
	case map[string]any:
		if len(v) == 0 {
			return map[string]any{}
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		result := make(map[string]any)
		count := 0
		for _, key := range keys {
			if count >= maxMapEntries {
				result[omittedKeysLabel] = len(keys) - count
				break
			}
			result[key] = summarizeJSONPreview(v[key], depth+1)
			count++
		}
		if len(keys) > count {
			result[omittedKeysLabel] = len(keys) - count
		}
		return result
	case []any:
		total := len(v)
		if total == 0 {
			return []any{}
		}
		sample := make([]any, 0, minInt(total, maxArraySamples))
		for i := 0; i < total && i < maxArraySamples; i++ {
			sample = append(sample, summarizeJSONPreview(v[i], depth+1))
		}
		out := map[string]any{
			arrayLenLabel: total,
		}
		if len(sample) > 0 {
			out[sampleLabel] = sample
		}
		if total > len(sample) {
			out[omittedItemsLabel] = total - len(sample)
		}
		return out
	case string:
		if len(v) <= maxStringPreview {
			return v
		}
		preview := v[:maxStringPreview]
		for !utf8.ValidString(preview) && len(preview) > 0 {
			preview = preview[:len(preview)-1]
		}
		return preview + "...(truncated)"
	default:
		return v
	}
}

func containsBinaryBytes(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			return true
		}
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return true
		}
		data = data[size:]
	}
	return false
}

func clampString(value string) string {
	if len(value) <= maxLoggedBody {
		return value
	}
	truncated := value[:maxLoggedBody]
	for !utf8.ValidString(truncated) && len(truncated) > 0 {
		truncated = truncated[:len(truncated)-1]
	}
	return truncated + "...(truncated)"
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
