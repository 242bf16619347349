package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/jobpipe/internal/apperr"
	"github.com/cuongbtq/jobpipe/internal/config"
	"github.com/cuongbtq/jobpipe/internal/container"
	"github.com/cuongbtq/jobpipe/internal/job"
	"github.com/cuongbtq/jobpipe/internal/report"
	"github.com/cuongbtq/jobpipe/internal/usecase"
	"github.com/cuongbtq/jobpipe/internal/validation"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeReporter struct {
	mu     sync.Mutex
	errs   []error
	scopes []report.Scope
}

func (r *fakeReporter) Report(_ context.Context, err error, scope report.Scope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
	r.scopes = append(r.scopes, scope)
}

type harness struct {
	engine   *gin.Engine
	reporter *fakeReporter
	events   *[]job.Event
}

type harnessOptions struct {
	production bool
	// user is set on the context before job creation when non-nil.
	user *job.User
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func exampleRules() usecase.Rules {
	return usecase.Rules{
		Attempts: validation.Schema{
			"attempts": {Type: validation.TypeNumber, Rules: "max=3"},
		},
		Data: validation.Schema{
			"foo": {Type: validation.TypeString, Rules: "alpha"},
			"bar": {Type: validation.TypeString, Rules: "alpha"},
		},
	}
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()

	logger := discardLogger()
	reg := usecase.NewRegistry()

	require.NoError(t, reg.RegisterRules("echo", exampleRules()))
	require.NoError(t, reg.Register("echo", func(*container.Container) usecase.UseCase {
		return usecase.Func(func(_ context.Context, j *job.Job) (usecase.Response, error) {
			data := j.Data()
			if err := j.MarkInProgress(50); err != nil {
				return usecase.Response{}, err
			}
			return usecase.Response{
				Data:     map[string]any{"message": fmt.Sprintf("Data received for foo: %v, bar: %v", data["foo"], data["bar"])},
				Metadata: map[string]any{"attempts": j.Attempts()},
			}, nil
		})
	}))

	require.NoError(t, reg.RegisterRules("guarded", usecase.Rules{
		User: validation.Schema{
			"id":    {Type: validation.TypeString, Rules: "uuid"},
			"email": {Type: validation.TypeString, Optional: true, Rules: "email"},
			"roles": {Type: validation.TypeArray, Optional: true, Items: &validation.Field{Type: validation.TypeString}},
		},
		RecaptchaResponse: validation.Schema{
			"recaptchaResponse": {Type: validation.TypeString, Rules: "required"},
		},
	}))
	require.NoError(t, reg.Register("guarded", func(*container.Container) usecase.UseCase {
		return usecase.Func(func(_ context.Context, j *job.Job) (usecase.Response, error) {
			return usecase.Response{Data: map[string]any{"token": j.RecaptchaResponse(), "data": j.Data()}}, nil
		})
	}))

	require.NoError(t, reg.RegisterRules("profile", usecase.Rules{
		User: validation.Schema{
			"id": {Type: validation.TypeString, Rules: "uuid"},
		},
		Data: validation.Schema{
			"name": {Type: validation.TypeString, Rules: "alpha"},
		},
	}))

	require.NoError(t, reg.RegisterRules("open", usecase.Rules{}))
	require.NoError(t, reg.Register("settled", func(*container.Container) usecase.UseCase {
		return usecase.Func(func(_ context.Context, j *job.Job) (usecase.Response, error) {
			if err := j.MarkFailed("upstream-1", errors.New("upstream rejected")); err != nil {
				return usecase.Response{}, err
			}
			return usecase.Response{Data: map[string]any{"ok": true}}, nil
		})
	}))
	require.NoError(t, reg.Register("fails", func(*container.Container) usecase.UseCase {
		return usecase.Func(func(context.Context, *job.Job) (usecase.Response, error) {
			return usecase.Response{}, errors.New("database exploded")
		})
	}))
	require.NoError(t, reg.Register("forbidden", func(*container.Container) usecase.UseCase {
		return usecase.Func(func(context.Context, *job.Job) (usecase.Response, error) {
			return usecase.Response{}, apperr.Forbidden("")
		})
	}))
	require.NoError(t, reg.Register("panics", func(*container.Container) usecase.UseCase {
		return usecase.Func(func(context.Context, *job.Job) (usecase.Response, error) {
			panic("boom")
		})
	}))
	require.NoError(t, reg.Register("silent", func(*container.Container) usecase.UseCase {
		return usecase.Func(func(context.Context, *job.Job) (usecase.Response, error) {
			return usecase.Response{}, errors.New("")
		})
	}))

	deps := container.New(&config.Config{}, nil, validation.NewService(), logger)
	reporter := &fakeReporter{}
	var events []job.Event

	r := gin.New()
	r.Use(ErrorHandler(ErrorOptions{Logger: logger, Reporter: reporter, Production: opts.production}))
	r.Use(Recovery())
	if opts.user != nil {
		u := *opts.user
		r.Use(func(c *gin.Context) { SetUser(c, u) })
	}
	r.Use(RequestCapture(CaptureOptions{Prefix: "/api/", Inputs: AllInputs, MaxBodyBytes: 1 << 10}))
	r.NoRoute(NotFound())

	r.GET("/", func(c *gin.Context) {
		_, captured := EnvelopeFrom(c)
		c.JSON(http.StatusOK, gin.H{"captured": captured})
	})

	v1 := r.Group("/api/v1")
	v1.Use(JobCreation(logger, func(e job.Event) { events = append(events, e) }))

	handle := func(method, path, rules, name string) {
		v1.Handle(method, path, Validation(deps.Validator, reg, rules), Dispatch(deps, reg, name))
	}
	handle(http.MethodGet, "/echo", "echo", "echo")
	handle(http.MethodGet, "/echo/:foo", "echo", "echo")
	handle(http.MethodPost, "/guarded", "guarded", "guarded")
	handle(http.MethodPost, "/profile", "profile", "echo")
	handle(http.MethodGet, "/settled", "open", "settled")
	handle(http.MethodGet, "/fails", "open", "fails")
	handle(http.MethodGet, "/forbidden", "open", "forbidden")
	handle(http.MethodGet, "/panics", "open", "panics")
	handle(http.MethodGet, "/silent", "open", "silent")
	handle(http.MethodGet, "/norules", "missing", "echo")
	handle(http.MethodGet, "/nousecase", "open", "missing")

	// Validation mounted outside the job group.
	r.GET("/api/v2/misordered", Validation(deps.Validator, reg, "open"), Dispatch(deps, reg, "echo"))

	return &harness{engine: r, reporter: reporter, events: &events}
}

func (h *harness) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return w, body
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestPipeline_Success(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	w, body := h.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/echo?foo=hello&bar=world", nil))

	require.Equal(t, http.StatusOK, w.Code)
	jobID := w.Header().Get(HeaderJobID)
	assert.NotEmpty(t, jobID)
	assert.Equal(t, "1", w.Header().Get(HeaderJobAttempts))
	assert.Equal(t, "50", w.Header().Get(HeaderJobProgress))

	assert.Equal(t, jobID, body["jobId"])
	assert.Equal(t, map[string]any{"message": "Data received for foo: hello, bar: world"}, body["data"])
	assert.Equal(t, map[string]any{"attempts": float64(1)}, body["metadata"])
	assert.NotContains(t, body, "user")

	require.Len(t, *h.events, 2)
	assert.Equal(t, job.EventProgress, (*h.events)[0].Type)
	assert.Equal(t, job.EventCompleted, (*h.events)[1].Type)
	assert.Empty(t, h.reporter.errs)
}

func TestPipeline_ParamsAndHeaders(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/echo/path?bar=query", nil)
	req.Header.Set("x-job-id", "client-job-1")
	req.Header.Set("x-job-attempts", "2")

	w, body := h.do(t, req)

	require.Equal(t, http.StatusOK, w.Code, body)
	assert.Equal(t, "client-job-1", w.Header().Get(HeaderJobID))
	assert.Equal(t, "3", w.Header().Get(HeaderJobAttempts))
	assert.Equal(t, "client-job-1", body["jobId"])
	assert.Equal(t, "Data received for foo: path, bar: query", body["data"].(map[string]any)["message"])
}

func TestPipeline_ValidationFailures(t *testing.T) {
	t.Run("data", func(t *testing.T) {
		h := newHarness(t, harnessOptions{})

		w, body := h.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/echo?foo=hello1", nil))

		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "error", body["status"])
		assert.Equal(t, float64(400), body["code"])
		assert.Equal(t, "BadRequestError", body["name"])
		assert.Equal(t, "Data Validation failed.", body["message"])
		assert.Equal(t, w.Header().Get(HeaderJobID), body["errorId"])
		assert.NotContains(t, body, "stack")

		errs := body["errors"].([]any)
		require.Len(t, errs, 2)
		bar := errs[0].(map[string]any)
		assert.Equal(t, "required", bar["type"])
		assert.Equal(t, "bar", bar["field"])
		foo := errs[1].(map[string]any)
		assert.Equal(t, "alpha", foo["type"])
		assert.Equal(t, "foo", foo["field"])
		assert.Equal(t, "The 'foo' field must be an alphabetic string.", foo["message"])

		require.Len(t, *h.events, 1)
		assert.Equal(t, job.EventFailed, (*h.events)[0].Type)
		assert.Equal(t, body["errorId"], (*h.events)[0].ErrorID)
		assert.Empty(t, h.reporter.errs)
	})

	t.Run("attempts", func(t *testing.T) {
		h := newHarness(t, harnessOptions{})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/echo?foo=a&bar=b", nil)
		req.Header.Set("x-job-attempts", "3")
		w, body := h.do(t, req)

		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Attempts Validation failed.", body["message"])
		errs := body["errors"].([]any)
		require.Len(t, errs, 1)
		assert.Equal(t, "attempts", errs[0].(map[string]any)["field"])
	})

	t.Run("strict data", func(t *testing.T) {
		h := newHarness(t, harnessOptions{})

		w, body := h.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/echo?foo=a&bar=b&extra=1", nil))

		require.Equal(t, http.StatusBadRequest, w.Code)
		errs := body["errors"].([]any)
		require.Len(t, errs, 1)
		assert.Equal(t, "objectStrict", errs[0].(map[string]any)["type"])
	})

	t.Run("missing user", func(t *testing.T) {
		h := newHarness(t, harnessOptions{})

		w, body := h.do(t, jsonRequest(http.MethodPost, "/api/v1/guarded", `{"g-recaptcha-response":"tok"}`))

		require.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "UnauthorizedError", body["name"])
		assert.Equal(t, "User Validation failed.", body["message"])
		assert.NotContains(t, body, "errors")
	})

	t.Run("user is checked before data", func(t *testing.T) {
		h := newHarness(t, harnessOptions{})

		w, body := h.do(t, jsonRequest(http.MethodPost, "/api/v1/profile", `{"name":"not valid 1"}`))

		require.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "UnauthorizedError", body["name"])
		assert.Equal(t, "User Validation failed.", body["message"])
	})

	t.Run("missing recaptcha", func(t *testing.T) {
		h := newHarness(t, harnessOptions{user: &job.User{ID: "8c4a3e58-6a4b-4c07-9d5b-6a3b3bb8e7a1"}})

		w, body := h.do(t, jsonRequest(http.MethodPost, "/api/v1/guarded", `{"name":"x"}`))

		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Recaptcha Validation failed.", body["message"])
	})
}

func TestPipeline_UserAndRecaptcha(t *testing.T) {
	user := job.User{ID: "8c4a3e58-6a4b-4c07-9d5b-6a3b3bb8e7a1", Email: "jane@example.com", Roles: []string{"admin"}}
	h := newHarness(t, harnessOptions{user: &user})

	w, body := h.do(t, jsonRequest(http.MethodPost, "/api/v1/guarded", `{"g-recaptcha-response":"tok","name":"x"}`))

	require.Equal(t, http.StatusOK, w.Code, body)
	data := body["data"].(map[string]any)
	assert.Equal(t, "tok", data["token"])
	assert.Equal(t, map[string]any{"name": "x"}, data["data"])
	assert.Equal(t, map[string]any{"id": user.ID, "roles": []any{"admin"}}, body["user"])
}

func TestPipeline_InternalErrors(t *testing.T) {
	t.Run("development exposes message and stack", func(t *testing.T) {
		h := newHarness(t, harnessOptions{})

		w, body := h.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/fails", nil))

		require.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "InternalServerError", body["name"])
		assert.Equal(t, "database exploded", body["message"])
		assert.Contains(t, body["stack"], "database exploded")
		assert.Equal(t, w.Header().Get(HeaderJobID), body["errorId"])

		require.Len(t, h.reporter.errs, 1)
		assert.EqualError(t, h.reporter.errs[0], "database exploded")
		assert.Equal(t, body["errorId"], h.reporter.scopes[0].CorrelationID)
		assert.Equal(t, body["errorId"], h.reporter.scopes[0].JobID)
	})

	t.Run("production hides internals", func(t *testing.T) {
		h := newHarness(t, harnessOptions{production: true})

		w, body := h.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/fails", nil))

		require.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, apperr.InternalMessage, body["message"])
		assert.NotContains(t, body, "stack")
		assert.Len(t, h.reporter.errs, 1)
	})

	t.Run("empty message keeps the generic one", func(t *testing.T) {
		h := newHarness(t, harnessOptions{})

		w, body := h.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/silent", nil))

		require.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, apperr.InternalMessage, body["message"])
	})

	t.Run("panics", func(t *testing.T) {
		h := newHarness(t, harnessOptions{})

		w, body := h.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/panics", nil))

		require.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "panic: boom", body["message"])
		assert.NotEmpty(t, body["stack"])
		require.Len(t, *h.events, 1)
		assert.Equal(t, job.EventFailed, (*h.events)[0].Type)
	})

	t.Run("operational errors from use cases", func(t *testing.T) {
		h := newHarness(t, harnessOptions{})

		w, body := h.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/forbidden", nil))

		require.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "ForbiddenError", body["name"])
		assert.Equal(t, "Forbidden", body["message"])
		assert.Empty(t, h.reporter.errs)
	})
}

func TestPipeline_UseCaseFailedJobIsNotASuccess(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	w, body := h.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/settled", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "InternalServerError", body["name"])
	assert.Contains(t, body["message"], "failed job")
	require.Len(t, *h.events, 1)
	assert.Equal(t, job.EventFailed, (*h.events)[0].Type)
	assert.Equal(t, "upstream-1", (*h.events)[0].ErrorID)
}

func TestPipeline_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		message string
	}{
		{"unknown rules", "/api/v1/norules", `validation rules for use case "missing": not registered`},
		{"unknown use case", "/api/v1/nousecase", `use case "missing": not registered`},
		{"stage order", "/api/v2/misordered", "illegal stage order: job creation must run before validation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, harnessOptions{})

			w, body := h.do(t, httptest.NewRequest(http.MethodGet, tt.target, nil))

			require.Equal(t, http.StatusInternalServerError, w.Code)
			assert.Equal(t, tt.message, body["message"])
			assert.NotEmpty(t, body["errorId"])
		})
	}
}

func TestPipeline_NotFound(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	w, body := h.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NotFoundError", body["name"])
	assert.Equal(t, "Route not found", body["message"])
	assert.NotEmpty(t, body["errorId"])
	assert.Empty(t, w.Header().Get(HeaderJobID))
}

func TestPipeline_UnknownRouteOutsidePrefix(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	w, body := h.do(t, httptest.NewRequest(http.MethodGet, "/favicon.ico", nil))

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NotFoundError", body["name"])
	assert.NotEmpty(t, body["errorId"])
	assert.Empty(t, w.Header().Get(HeaderJobID))
	assert.Empty(t, *h.events)
}

func TestPipeline_OutsidePrefixIsNotCaptured(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	w, body := h.do(t, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["captured"])
}

func TestPipeline_MalformedBody(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"invalid json", `{"foo":`, "Malformed request body."},
		{"not an object", `["a"]`, "Request body must be a JSON object."},
		{"too large", `{"foo":"` + strings.Repeat("a", 2<<10) + `"}`, "Request body too large."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, harnessOptions{})

			req := jsonRequest(http.MethodPost, "/api/v1/guarded", tt.body)
			req.Header.Set("x-job-id", "client-corr-42")
			w, body := h.do(t, req)

			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.message, body["message"])
			assert.Equal(t, "client-corr-42", body["errorId"])
			assert.Equal(t, "client-corr-42", w.Header().Get(HeaderJobID))
		})
	}

	t.Run("generated id is reused", func(t *testing.T) {
		h := newHarness(t, harnessOptions{})

		w, body := h.do(t, jsonRequest(http.MethodPost, "/api/v1/guarded", `{bad`))

		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.NotEmpty(t, body["errorId"])
		assert.Equal(t, w.Header().Get(HeaderJobID), body["errorId"])
	})
}

func TestRequestCapture_Envelope(t *testing.T) {
	var env *Envelope
	r := gin.New()
	r.Use(RequestCapture(CaptureOptions{Prefix: "/api/", Inputs: AllInputs}))
	r.POST("/api/items/:id", func(c *gin.Context) {
		env, _ = EnvelopeFrom(c)
		c.Status(http.StatusNoContent)
	})

	req := jsonRequest(http.MethodPost, "/api/items/42?q=search&tag=a&tag=b", `{"name":"widget","id":"body","g-recaptcha-response":"tok"}`)
	req.Header.Set("x-job-attempts", "not-a-number")
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Referer", "https://ref.example.com")
	req.Header.Set("Origin", "https://app.example.com")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.NotNil(t, env)
	assert.NotEmpty(t, env.ID)
	assert.Equal(t, 1, env.Attempts)
	assert.Equal(t, "tok", env.RecaptchaResponse)
	assert.Equal(t, map[string]any{
		"id":   "body",
		"q":    "search",
		"tag":  []any{"a", "b"},
		"name": "widget",
	}, env.Payload)
	assert.Equal(t, "POST", env.Meta[job.MetaMethod])
	assert.Equal(t, "/api/items/42?q=search&tag=a&tag=b", env.Meta[job.MetaURL])
	assert.Equal(t, "test-agent", env.Meta[job.MetaUserAgent])
	assert.Equal(t, "https://ref.example.com", env.Meta[job.MetaReferer])
	assert.Equal(t, "https://app.example.com", env.Meta[job.MetaOrigin])
	assert.IsType(t, int64(0), env.Meta[job.MetaTimestamp])
	assert.Nil(t, env.User)
}

func TestRequestCapture_Attempts(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", 1},
		{"not a number", "not-a-number", 1},
		{"plain", "2", 3},
		{"padded", " 4 ", 5},
		{"negative", "-3", 1},
		{"fraction", "1.5", 2},
		{"trailing garbage", "2abc", 3},
		{"max int", "9223372036854775807", math.MaxInt},
		{"overflowing", "99999999999999999999999", math.MaxInt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var env *Envelope
			r := gin.New()
			r.Use(RequestCapture(CaptureOptions{Inputs: AllInputs}))
			r.GET("/x", func(c *gin.Context) {
				env, _ = EnvelopeFrom(c)
				c.Status(http.StatusNoContent)
			})

			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			req.Header.Set("x-job-attempts", tt.header)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			require.Equal(t, http.StatusNoContent, w.Code)
			require.NotNil(t, env)
			assert.Equal(t, tt.want, env.Attempts)
		})
	}
}

func TestRequestCapture_Inputs(t *testing.T) {
	var env *Envelope
	r := gin.New()
	r.Use(RequestCapture(CaptureOptions{Inputs: Inputs{Query: true}}))
	r.POST("/items/:id", func(c *gin.Context) {
		env, _ = EnvelopeFrom(c)
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest(http.MethodPost, "/items/42?q=search", `{"name":"widget"}`))

	require.Equal(t, http.StatusNoContent, w.Code)
	require.NotNil(t, env)
	assert.Equal(t, map[string]any{"q": "search"}, env.Payload)
}

func TestRequestCapture_Multipart(t *testing.T) {
	var env *Envelope
	r := gin.New()
	r.Use(RequestCapture(CaptureOptions{Inputs: AllInputs}))
	r.POST("/upload", func(c *gin.Context) {
		env, _ = EnvelopeFrom(c)
		c.Status(http.StatusNoContent)
	})

	body := &bytes.Buffer{}
	mw := newMultipart(t, body, map[string]string{"title": "report"}, "doc", "report.txt", "hello")

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", mw)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.NotNil(t, env)
	assert.Equal(t, "report", env.Payload["title"])

	files := env.Payload["files"].([]any)
	require.Len(t, files, 1)
	file := files[0].(map[string]any)
	assert.Equal(t, "doc", file["field"])
	assert.Equal(t, "report.txt", file["filename"])
	assert.Equal(t, int64(5), file["size"])
}

func TestJobCreation_Idempotent(t *testing.T) {
	var first, second *job.Job
	r := gin.New()
	r.Use(RequestCapture(CaptureOptions{Inputs: AllInputs}))
	r.Use(JobCreation(discardLogger()))
	r.Use(func(c *gin.Context) { first, _ = JobFrom(c) })
	r.Use(JobCreation(discardLogger()))
	r.GET("/x", func(c *gin.Context) {
		second, _ = JobFrom(c)
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	require.Equal(t, http.StatusNoContent, w.Code)
	require.NotNil(t, first)
	assert.Same(t, first, second)
}

func TestJobCreation_RequiresCapture(t *testing.T) {
	var errs []*gin.Error
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Next()
		errs = c.Errors
	})
	r.Use(JobCreation(discardLogger()))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0].Err, apperr.ErrIllegalStageOrder)
	assert.NotEqual(t, http.StatusNoContent, w.Code)
}
