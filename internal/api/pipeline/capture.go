package pipeline

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/jobpipe/internal/apperr"
	"github.com/cuongbtq/jobpipe/internal/job"
)

// Request headers.
const (
	headerJobID       = "x-job-id"
	headerJobAttempts = "x-job-attempts"
)

const maxMultipartMemory = 32 << 20

// Inputs selects the request sources merged into the payload.
type Inputs struct {
	Params bool
	Query  bool
	Body   bool
	Files  bool
}

// AllInputs enables every source.
var AllInputs = Inputs{Params: true, Query: true, Body: true, Files: true}

// CaptureOptions configures RequestCapture.
type CaptureOptions struct {
	// Prefix limits capture to paths starting with it. Empty captures all.
	Prefix       string
	Inputs       Inputs
	MaxBodyBytes int64
}

// RequestCapture normalizes the request into an Envelope. Requests outside
// the prefix pass through untouched.
func RequestCapture(opts CaptureOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.HasPrefix(c.Request.URL.Path, opts.Prefix) {
			c.Next()
			return
		}
		if _, ok := EnvelopeFrom(c); ok {
			c.Next()
			return
		}

		id := requestID(c)
		c.Set(keyRequestID, id)

		payload, err := capturePayload(c, opts)
		if err != nil {
			c.Header(HeaderJobID, id)
			abort(c, err)
			return
		}

		token := ""
		if v, ok := payload[RecaptchaField]; ok {
			token, _ = v.(string)
			delete(payload, RecaptchaField)
		}

		c.Set(keyEnvelope, &Envelope{
			ID:                id,
			Attempts:          requestAttempts(c),
			Payload:           payload,
			RecaptchaResponse: token,
			Meta:              requestMeta(c),
			User:              userFrom(c),
		})
		c.Next()
	}
}

func requestID(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader(headerJobID)); id != "" {
		return id
	}
	return uuid.NewString()
}

// requestAttempts counts this request as one more attempt than the client
// reported. Only the header's leading integer is read, so "2abc" and "1.5"
// count as 2 and 1.
func requestAttempts(c *gin.Context) int {
	return parseAttempts(c.GetHeader(headerJobAttempts)) + 1
}

// parseAttempts returns the leading integer of s, clamped to
// [0, math.MaxInt-1] so the next attempt never wraps around.
func parseAttempts(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}

	n, err := strconv.Atoi(s[:end])
	switch {
	case err != nil && s[0] == '-':
		return 0
	case err != nil, n >= math.MaxInt:
		return math.MaxInt - 1
	case n < 0:
		return 0
	}
	return n
}

func requestMeta(c *gin.Context) map[string]any {
	return map[string]any{
		job.MetaTimestamp: now().UnixMilli(),
		job.MetaIP:        c.ClientIP(),
		job.MetaUserAgent: c.Request.UserAgent(),
		job.MetaReferer:   c.Request.Referer(),
		job.MetaOrigin:    c.GetHeader("Origin"),
		job.MetaMethod:    c.Request.Method,
		job.MetaURL:       c.Request.URL.RequestURI(),
	}
}

// capturePayload merges params, query and body in that order; later sources
// win. Uploaded files are listed under "files".
func capturePayload(c *gin.Context, opts CaptureOptions) (map[string]any, error) {
	payload := map[string]any{}

	if opts.Inputs.Params {
		for _, p := range c.Params {
			payload[p.Key] = p.Value
		}
	}
	if opts.Inputs.Query {
		mergeValues(payload, c.Request.URL.Query())
	}
	if !opts.Inputs.Body || !hasBody(c.Request) {
		return payload, nil
	}

	if opts.MaxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, opts.MaxBodyBytes)
	}

	switch c.ContentType() {
	case gin.MIMEJSON:
		body, err := decodeJSON(c.Request.Body)
		if err != nil {
			return nil, err
		}
		for k, v := range body {
			payload[k] = v
		}
	case gin.MIMEPOSTForm:
		if err := c.Request.ParseForm(); err != nil {
			return nil, bodyError(err)
		}
		mergeValues(payload, c.Request.PostForm)
	case gin.MIMEMultipartPOSTForm:
		if err := c.Request.ParseMultipartForm(maxMultipartMemory); err != nil {
			return nil, bodyError(err)
		}
		form := c.Request.MultipartForm
		mergeValues(payload, form.Value)
		if opts.Inputs.Files {
			if files := describeFiles(form.File); len(files) > 0 {
				payload["files"] = files
			}
		}
	}

	return payload, nil
}

func hasBody(r *http.Request) bool {
	return r.Body != nil && r.Body != http.NoBody && r.ContentLength != 0
}

func decodeJSON(r io.Reader) (map[string]any, error) {
	var body any
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, bodyError(err)
	}
	if body == nil {
		return nil, nil
	}
	obj, ok := body.(map[string]any)
	if !ok {
		return nil, apperr.BadRequest("Request body must be a JSON object.", nil)
	}
	return obj, nil
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperr.BadRequest("Request body too large.", nil)
	}
	return apperr.BadRequest("Malformed request body.", nil)
}

func mergeValues(dst map[string]any, values url.Values) {
	for key, vs := range values {
		switch len(vs) {
		case 0:
		case 1:
			dst[key] = vs[0]
		default:
			list := make([]any, len(vs))
			for i, v := range vs {
				list[i] = v
			}
			dst[key] = list
		}
	}
}

func describeFiles(files map[string][]*multipart.FileHeader) []any {
	fields := make([]string, 0, len(files))
	for field := range files {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var out []any
	for _, field := range fields {
		for _, h := range files[field] {
			out = append(out, map[string]any{
				"field":       field,
				"filename":    h.Filename,
				"size":        h.Size,
				"contentType": h.Header.Get("Content-Type"),
			})
		}
	}
	return out
}
