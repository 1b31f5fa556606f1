package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/divrecon/src/config"
	"github.com/username/divrecon/src/logger"
	"github.com/username/divrecon/src/models"
	"github.com/username/divrecon/src/services"
)

// stubReconService replays canned results so handler behavior can be tested
// without a database.
type stubReconService struct {
	runResult    *services.ReconResult
	runErr       error
	latestResult *services.ReconResult
	latestErr    error
	gotTolerance decimal.Decimal
}

func (s *stubReconService) Run(_ context.Context, _ io.Reader, _ io.Reader, tolerance decimal.Decimal) (*services.ReconResult, error) {
	s.gotTolerance = tolerance
	return s.runResult, s.runErr
}

func (s *stubReconService) LatestResult() (*services.ReconResult, error) {
	return s.latestResult, s.latestErr
}

func setupHandlerTest() {
	logger.InitLogger("error")
	config.Cfg = &config.AppConfig{
		Port:               "8080",
		LogLevel:           "error",
		Tolerance:          decimal.Zero,
		MaxUploadSizeBytes: 10 * 1024 * 1024,
	}
}

func emptyResult() *services.ReconResult {
	return &services.ReconResult{
		RunID:       1,
		GeneratedAt: time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC),
		Tolerance:   "0",
		Breaks:      []models.BreakDetail{},
		Tasks:       []models.AgentTask{},
	}
}

func multipartUpload(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for name, content := range files {
		part, err := writer.CreateFormFile(name, name+".csv")
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	for name, value := range fields {
		require.NoError(t, writer.WriteField(name, value))
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

const ledgerCSV = "trade_id,isin,pay_date,account,amount,currency,status\n"
const custodianCSV = "event_ref,isin,payment_date,account,net_amount,ccy,status\n"

func TestHandleReconcile(t *testing.T) {
	setupHandlerTest()
	service := &stubReconService{runResult: emptyResult()}
	handler := NewReconHandler(service)

	body, contentType := multipartUpload(t, nil, map[string]string{
		"primary":   ledgerCSV,
		"custodian": custodianCSV,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/reconcile", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	handler.HandleReconcile(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var result services.ReconResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, int64(1), result.RunID)
}

func TestHandleReconcileToleranceOverride(t *testing.T) {
	setupHandlerTest()
	service := &stubReconService{runResult: emptyResult()}
	handler := NewReconHandler(service)

	body, contentType := multipartUpload(t, map[string]string{"tolerance": "0.75"}, map[string]string{
		"primary":   ledgerCSV,
		"custodian": custodianCSV,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/reconcile", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	handler.HandleReconcile(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, service.gotTolerance.Equal(decimal.RequireFromString("0.75")))
}

func TestHandleReconcileInvalidTolerance(t *testing.T) {
	setupHandlerTest()
	handler := NewReconHandler(&stubReconService{runResult: emptyResult()})

	body, contentType := multipartUpload(t, map[string]string{"tolerance": "-1"}, map[string]string{
		"primary":   ledgerCSV,
		"custodian": custodianCSV,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/reconcile", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	handler.HandleReconcile(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleReconcileMissingFile(t *testing.T) {
	setupHandlerTest()
	handler := NewReconHandler(&stubReconService{runResult: emptyResult()})

	body, contentType := multipartUpload(t, nil, map[string]string{"primary": ledgerCSV})
	req := httptest.NewRequest(http.MethodPost, "/api/reconcile", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	handler.HandleReconcile(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "custodian")
}

func TestHandleReconcileInputFaultIsUnprocessable(t *testing.T) {
	setupHandlerTest()
	handler := NewReconHandler(&stubReconService{runErr: services.ErrParsingFailed})

	body, contentType := multipartUpload(t, nil, map[string]string{
		"primary":   ledgerCSV,
		"custodian": custodianCSV,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/reconcile", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	handler.HandleReconcile(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleGetBreaksNoRun(t *testing.T) {
	setupHandlerTest()
	handler := NewReconHandler(&stubReconService{latestErr: services.ErrNoCompletedRun})

	req := httptest.NewRequest(http.MethodGet, "/api/breaks", nil)
	rec := httptest.NewRecorder()

	handler.HandleGetBreaks(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetBreaksETag(t *testing.T) {
	setupHandlerTest()
	handler := NewReconHandler(&stubReconService{latestResult: emptyResult()})

	req := httptest.NewRequest(http.MethodGet, "/api/breaks", nil)
	rec := httptest.NewRecorder()
	handler.HandleGetBreaks(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	conditional := httptest.NewRequest(http.MethodGet, "/api/breaks", nil)
	conditional.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	handler.HandleGetBreaks(rec, conditional)

	assert.Equal(t, http.StatusNotModified, rec.Code)
}

func TestHandleGetTasks(t *testing.T) {
	setupHandlerTest()
	result := emptyResult()
	result.Tasks = []models.AgentTask{{SequenceNumber: 1, TargetPersona: models.PersonaLedgerIngestion}}
	handler := NewReconHandler(&stubReconService{latestResult: result})

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	rec := httptest.NewRecorder()
	handler.HandleGetTasks(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var tasks []models.AgentTask
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, models.PersonaLedgerIngestion, tasks[0].TargetPersona)
}

func TestHandleGetReport(t *testing.T) {
	setupHandlerTest()
	handler := NewReconHandler(&stubReconService{latestResult: emptyResult()})

	req := httptest.NewRequest(http.MethodGet, "/api/report", nil)
	rec := httptest.NewRecorder()
	handler.HandleGetReport(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/markdown; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "# Dividend Reconciliation Report")
}
