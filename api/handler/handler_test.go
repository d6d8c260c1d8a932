package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speedtest/config"
	"speedtest/internal/metrics"
	"speedtest/internal/model"
	"speedtest/internal/probe"
	"speedtest/internal/repository"
	"speedtest/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type response struct {
	Success  bool            `json:"success"`
	Message  string          `json:"message"`
	Received *int64          `json:"received"`
	Result   *model.Result   `json:"result"`
	Results  []*model.Result `json:"results"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) response {
	t.Helper()
	var resp response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func newResultService(t *testing.T) (service.ResultService, repository.ResultRepository) {
	t.Helper()
	repo, err := repository.NewFileResultRepository(filepath.Join(t.TempDir(), "data.json"))
	require.NoError(t, err)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return service.NewResultService(repo, node), repo
}

func serve(router *gin.Engine, method, path string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestDownloadTest(t *testing.T) {
	m := metrics.New()
	router := gin.New()
	router.GET("/download", DownloadTest(probe.NewPayload(probe.ReferenceSize), m))

	w := serve(router, http.MethodGet, "/download", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, probe.ReferenceSize, w.Body.Len())
	assert.Equal(t, "1048576", w.Header().Get("Content-Length"))
	assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Cache-Control"), "no-store")
	assert.Equal(t, "no-cache", w.Header().Get("Pragma"))
	assert.Equal(t, "0", w.Header().Get("Expires"))
	assert.Equal(t, "no-store", w.Header().Get("Surrogate-Control"))

	body := w.Body.Bytes()
	assert.Equal(t, byte(0), body[0])
	assert.Equal(t, byte(255), body[255])
	assert.Equal(t, byte(0), body[256])

	// 两次请求内容一致
	second := serve(router, http.MethodGet, "/download", nil)
	assert.True(t, bytes.Equal(body, second.Body.Bytes()))
	assert.Equal(t, float64(2*probe.ReferenceSize), testutil.ToFloat64(m.ProbeBytes.WithLabelValues(metrics.DirectionDownload)))
}

func TestUploadTest(t *testing.T) {
	router := gin.New()
	router.POST("/upload", UploadTest(nil))

	for _, size := range []int{0, 1, 3 * 1024 * 1024} {
		w := serve(router, http.MethodPost, "/upload", bytes.NewReader(make([]byte, size)))
		assert.Equal(t, http.StatusOK, w.Code)
		resp := decode(t, w)
		assert.True(t, resp.Success)
		require.NotNil(t, resp.Received)
		assert.Equal(t, int64(size), *resp.Received)
	}
}

type brokenBody struct{}

func (brokenBody) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestUploadTest_AbortsOnReadError(t *testing.T) {
	router := gin.New()
	router.POST("/upload", UploadTest(nil))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		serve(router, http.MethodPost, "/upload", brokenBody{})
	})
}

func TestSubmitResult(t *testing.T) {
	svc, _ := newResultService(t)
	router := gin.New()
	router.POST("/result", SubmitResult(svc, nil, false))

	w := serve(router, http.MethodPost, "/result",
		strings.NewReader(`{"refNumber":"abc","download":"55.5","upload":10.2,"ping":"20","id":"999","timestamp":"2000-01-01T00:00:00Z"}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode(t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, "Test result saved successfully", resp.Message)
	require.NotNil(t, resp.Result)
	assert.Equal(t, "abc", resp.Result.RefNumber)
	assert.Equal(t, 55.5, resp.Result.Download)
	assert.Equal(t, 10.2, resp.Result.Upload)
	assert.Equal(t, 20, resp.Result.Ping)
	assert.Equal(t, model.DefaultTestType, resp.Result.TestType)
	assert.NotEqual(t, snowflake.ID(999), resp.Result.ID)
	assert.NotEqual(t, 2000, resp.Result.Timestamp.Year())
}

func TestSubmitResult_Rejections(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		message string
	}{
		{"空refNumber", `{"refNumber":"","download":50,"upload":10,"ping":5}`, "Missing required fields: refNumber"},
		{"缺少ping", `{"refNumber":"a","download":50,"upload":10}`, "Missing required fields: ping"},
		{"非法数值", `{"refNumber":"a","download":"fast","upload":10,"ping":5}`, "Invalid download value"},
		{"空请求体", ``, "Missing required fields: refNumber"},
		{"非法JSON", `{"refNumber":`, "Invalid request body"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, repo := newResultService(t)
			m := metrics.New()
			router := gin.New()
			router.POST("/result", SubmitResult(svc, m, false))

			w := serve(router, http.MethodPost, "/result", strings.NewReader(tc.body))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			resp := decode(t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, tc.message, resp.Message)

			count, err := repo.Count(context.Background())
			require.NoError(t, err)
			assert.Zero(t, count)
		})
	}
}

// failingResults 存储层总是失败
type failingResults struct {
	service.ResultService
}

var errStorage = &service.StorageError{Op: "save test result", Err: errors.New("disk full")}

func (failingResults) Submit(context.Context, *model.ResultSubmission, string) (*model.Result, error) {
	return nil, errStorage
}
func (failingResults) List(context.Context) ([]*model.Result, error) { return nil, errStorage }
func (failingResults) Clear(context.Context) (int64, error)          { return 0, errStorage }

func TestStorageFailures(t *testing.T) {
	router := gin.New()
	router.POST("/result", SubmitResult(failingResults{}, nil, false))
	router.GET("/results", GetResults(failingResults{}, false))
	router.DELETE("/results", ClearResults(failingResults{}, true))

	w := serve(router, http.MethodPost, "/result", strings.NewReader(`{"refNumber":"a","download":1,"upload":1,"ping":1}`))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Error saving test result", decode(t, w).Message)

	w = serve(router, http.MethodGet, "/results", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Error fetching results", decode(t, w).Message)

	w = serve(router, http.MethodDelete, "/results", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decode(t, w)
	assert.False(t, resp.Success)
	assert.True(t, strings.HasPrefix(resp.Message, "Error clearing data: "))
	assert.Contains(t, resp.Message, "disk full")
}

func TestGetAndClearResults(t *testing.T) {
	svc, _ := newResultService(t)
	router := gin.New()
	router.POST("/result", SubmitResult(svc, nil, false))
	router.GET("/results", GetResults(svc, false))
	router.DELETE("/results", ClearResults(svc, false))

	w := serve(router, http.MethodGet, "/results", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"results":[]}`, w.Body.String())

	for _, ref := range []string{"first", "second"} {
		w = serve(router, http.MethodPost, "/result",
			strings.NewReader(`{"refNumber":"`+ref+`","download":1,"upload":1,"ping":1}`))
		require.Equal(t, http.StatusOK, w.Code)
	}

	resp := decode(t, serve(router, http.MethodGet, "/results", nil))
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "second", resp.Results[0].RefNumber)
	assert.Equal(t, "first", resp.Results[1].RefNumber)

	w = serve(router, http.MethodDelete, "/results", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "All data cleared successfully", decode(t, w).Message)

	assert.Empty(t, decode(t, serve(router, http.MethodGet, "/results", nil)).Results)
}

func TestAdminLogin(t *testing.T) {
	auth := service.NewStaticAuthenticator(config.Admin{Username: "admin", Password: "s3cret"})
	router := gin.New()
	router.POST("/login", AdminLogin(auth))

	w := serve(router, http.MethodPost, "/login", strings.NewReader(`{"username":"admin","password":"s3cret"}`))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"message":"Login successful"}`, w.Body.String())

	for _, body := range []string{`{"username":"admin","password":"wrong"}`, `{}`, `not json`} {
		w = serve(router, http.MethodPost, "/login", strings.NewReader(body))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"success":false,"message":"Invalid credentials"}`, w.Body.String())
	}
}
