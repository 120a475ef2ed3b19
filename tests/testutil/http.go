package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// HTTPTestCase describes one request against a single gin handler.
type HTTPTestCase struct {
	Name           string
	Method         string
	Path           string
	Body           any
	Headers        map[string]string
	ExpectedStatus int
	ExpectedCode   string
	Setup          func(t *testing.T, tc *TestContext)
	Validate       func(t *testing.T, tc *TestContext)
}

// RunHTTPTestCases runs each case as a subtest.
func RunHTTPTestCases(t *testing.T, handler gin.HandlerFunc, cases []HTTPTestCase) {
	t.Helper()

	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			RunHTTPTestCase(t, handler, tc)
		})
	}
}

// RunHTTPTestCase calls handler directly with the case's request.
func RunHTTPTestCase(t *testing.T, handler gin.HandlerFunc, tc HTTPTestCase) {
	t.Helper()

	method := tc.Method
	if method == "" {
		method = http.MethodGet
	}
	path := tc.Path
	if path == "" {
		path = "/"
	}
	var body io.Reader
	if tc.Body != nil {
		body = ToJSONReader(t, tc.Body)
	}
	req := httptest.NewRequest(method, path, body)
	if tc.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range tc.Headers {
		req.Header.Set(k, v)
	}

	testCtx := NewTestContextWithRequest(t, req)
	if tc.Setup != nil {
		tc.Setup(t, testCtx)
	}

	handler(testCtx.Context)

	if tc.ExpectedStatus != 0 {
		assert.Equal(t, tc.ExpectedStatus, testCtx.ResponseCode(), "Unexpected status code: %s", testCtx.ResponseBody())
	}
	if tc.ExpectedCode != "" {
		AssertErrorResponse(t, testCtx, tc.ExpectedCode)
	}
	if tc.Validate != nil {
		tc.Validate(t, testCtx)
	}
}

// Envelope mirrors the JSON body every API endpoint answers with.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta *struct {
		Total    int64 `json:"total"`
		Page     int   `json:"page"`
		PageSize int   `json:"page_size"`
	} `json:"meta"`
}

// ErrorCode returns the error code, or "" for a successful response.
func (e Envelope) ErrorCode() string {
	if e.Error == nil {
		return ""
	}
	return e.Error.Code
}

func parseEnvelope(t *testing.T, body []byte) Envelope {
	t.Helper()

	var env Envelope
	require.NoError(t, json.Unmarshal(body, &env), "Failed to parse response: %s", body)
	return env
}

// JSONResponseAs decodes the data field of the response into T.
func JSONResponseAs[T any](t *testing.T, tc *TestContext) T {
	t.Helper()

	var out T
	env := parseEnvelope(t, tc.ResponseBody())
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func AssertSuccessResponse(t *testing.T, tc *TestContext) {
	t.Helper()

	env := parseEnvelope(t, tc.ResponseBody())
	assert.True(t, env.Success, "Expected success: %s", tc.ResponseBody())
	assert.Nil(t, env.Error)
}

func AssertErrorResponse(t *testing.T, tc *TestContext, expectedCode string) {
	t.Helper()

	env := parseEnvelope(t, tc.ResponseBody())
	assert.False(t, env.Success)
	assert.Equal(t, expectedCode, env.ErrorCode(), "Unexpected error code")
}

// ToJSONReader marshals v into a reader.
func ToJSONReader(t *testing.T, v any) io.Reader {
	t.Helper()

	data, err := json.Marshal(v)
	require.NoError(t, err, "Failed to marshal to JSON")
	return bytes.NewReader(data)
}

// APIClient sends requests through a fully routed handler.
type APIClient struct {
	t       *testing.T
	handler http.Handler
	token   string
	headers map[string]string
}

// NewAPIClient creates a client for handler, usually a gin engine.
func NewAPIClient(t *testing.T, handler http.Handler) *APIClient {
	return &APIClient{t: t, handler: handler, headers: map[string]string{}}
}

// WithToken returns a copy that sends token as a bearer credential.
func (c *APIClient) WithToken(token string) *APIClient {
	clone := *c
	clone.token = token
	return &clone
}

// WithHeader returns a copy that sends an extra header.
func (c *APIClient) WithHeader(key, value string) *APIClient {
	clone := *c
	clone.headers = make(map[string]string, len(c.headers)+1)
	for k, v := range c.headers {
		clone.headers[k] = v
	}
	clone.headers[key] = value
	return &clone
}

// APIResponse is a recorded response with its parsed envelope.
type APIResponse struct {
	t        *testing.T
	Code     int
	Header   http.Header
	Body     []byte
	Envelope Envelope
}

// Decode unmarshals the data field into out.
func (r *APIResponse) Decode(out any) {
	r.t.Helper()
	require.NoError(r.t, json.Unmarshal(r.Envelope.Data, out), "Failed to decode data: %s", r.Body)
}

// RequireStatus fails the test unless the status matches.
func (r *APIResponse) RequireStatus(status int) *APIResponse {
	r.t.Helper()
	require.Equal(r.t, status, r.Code, "Unexpected status: %s", r.Body)
	return r
}

func (c *APIClient) Do(method, path string, body any) *APIResponse {
	c.t.Helper()

	var reader io.Reader
	if body != nil {
		reader = ToJSONReader(c.t, body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)

	resp := &APIResponse{t: c.t, Code: w.Code, Header: w.Header(), Body: w.Body.Bytes()}
	if w.Body.Len() > 0 && json.Valid(resp.Body) {
		_ = json.Unmarshal(resp.Body, &resp.Envelope)
	}
	return resp
}

func (c *APIClient) Get(path string) *APIResponse {
	c.t.Helper()
	return c.Do(http.MethodGet, path, nil)
}

func (c *APIClient) Post(path string, body any) *APIResponse {
	c.t.Helper()
	return c.Do(http.MethodPost, path, body)
}

func (c *APIClient) Put(path string, body any) *APIResponse {
	c.t.Helper()
	return c.Do(http.MethodPut, path, body)
}

func (c *APIClient) Delete(path string) *APIResponse {
	c.t.Helper()
	return c.Do(http.MethodDelete, path, nil)
}
