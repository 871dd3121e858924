package predictions_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rd-prediction-backend/internal/bootstrap"
	"rd-prediction-backend/internal/shared/config"
)

type envelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"errors"`
}

type predictionBody struct {
	ID        string `json:"id"`
	ModelType string `json:"modelType"`
	Status    string `json:"status"`
	Result    *struct {
		PredictedClass string  `json:"predictedClass"`
		Confidence     float64 `json:"confidence"`
		ClassScores    []struct {
			Label string  `json:"label"`
			Score float64 `json:"score"`
		} `json:"classScores"`
	} `json:"result"`
	ModelVersion string `json:"modelVersion"`
	InputData    struct {
		FileName string `json:"fileName"`
	} `json:"inputData"`
}

type historyBody struct {
	Predictions []predictionBody `json:"predictions"`
	Pagination  struct {
		CurrentPage      int  `json:"currentPage"`
		TotalPages       int  `json:"totalPages"`
		TotalPredictions int  `json:"totalPredictions"`
		Limit            int  `json:"limit"`
		HasNext          bool `json:"hasNext"`
		HasPrev          bool `json:"hasPrev"`
	} `json:"pagination"`
}

func newTestApp(t *testing.T) *bootstrap.App {
	t.Helper()
	gin.SetMode(gin.TestMode)
	app, err := bootstrap.Build(config.Config{
		Env:            "dev",
		LocalStoreDir:  t.TempDir(),
		ModelDir:       t.TempDir(),
		DemoFallback:   true,
		LLMProvider:    "none",
		MaxUploadBytes: 10 << 20,
	})
	require.NoError(t, err)
	t.Cleanup(app.Close)
	return app
}

func do(t *testing.T, app *bootstrap.App, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	resp := httptest.NewRecorder()
	app.Router.ServeHTTP(resp, req)
	var env envelope
	if resp.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env), resp.Body.String())
	}
	return resp, env
}

func registerUser(t *testing.T, app *bootstrap.App, name string) string {
	t.Helper()
	body := fmt.Sprintf(`{"username":%q,"email":"%s@example.com","password":"secret123"}`, name, name)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, env := do(t, app, req)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var auth struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &auth))
	require.NotEmpty(t, auth.Token)
	return auth.Token
}

func scanPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func uploadRequest(t *testing.T, path, token, fileName string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	part, err := w.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func authed(method, path, token string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func decodePrediction(t *testing.T, env envelope) predictionBody {
	t.Helper()
	var data struct {
		Prediction predictionBody `json:"prediction"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return data.Prediction
}

func TestPredictRequiresAuth(t *testing.T) {
	app := newTestApp(t)
	resp, _ := do(t, app, uploadRequest(t, "/api/prediction/predict", "", "chest_xray.png", scanPNG(t), nil))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestPredictAutoDetectsAndCompletes(t *testing.T) {
	app := newTestApp(t)
	token := registerUser(t, app, "radiologist")

	resp, env := do(t, app, uploadRequest(t, "/api/prediction/predict", token, "chest_xray.png", scanPNG(t), map[string]string{
		"patientId":  "P-100",
		"patientAge": "54",
	}))
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	pred := decodePrediction(t, env)

	assert.Equal(t, "pneumonia", pred.ModelType)
	assert.Equal(t, "completed", pred.Status)
	assert.Equal(t, "demo", pred.ModelVersion)
	require.NotNil(t, pred.Result)
	assert.Contains(t, []string{"Normal", "Pneumonia"}, pred.Result.PredictedClass)
	assert.GreaterOrEqual(t, pred.Result.Confidence, 0.0)
	assert.LessOrEqual(t, pred.Result.Confidence, 1.0)
	assert.Len(t, pred.Result.ClassScores, 2)

	resp, env = do(t, app, authed(http.MethodGet, "/api/prediction/"+pred.ID, token))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, pred.ID, decodePrediction(t, env).ID)

	resp, env = do(t, app, authed(http.MethodGet, "/api/auth/me", token))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, string(env.Data), `"predictionCount":1`)
}

func TestEnhancedWithoutProviderStillCompletes(t *testing.T) {
	app := newTestApp(t)
	token := registerUser(t, app, "enhanced")

	resp, env := do(t, app, uploadRequest(t, "/api/prediction/enhanced", token, "scan.png", scanPNG(t), map[string]string{
		"modelType": "brainTumor",
	}))
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	pred := decodePrediction(t, env)
	assert.Equal(t, "brainTumor", pred.ModelType)
	assert.Len(t, pred.Result.ClassScores, 4)
}

func TestPredictRejectsUnknownModelWithoutRecord(t *testing.T) {
	app := newTestApp(t)
	token := registerUser(t, app, "strict")

	resp, env := do(t, app, uploadRequest(t, "/api/prediction/predict", token, "scan.png", scanPNG(t), map[string]string{
		"modelType": "kidneyStone",
	}))
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "invalid_model", env.Code)

	resp, env = do(t, app, authed(http.MethodGet, "/api/prediction/history", token))
	require.Equal(t, http.StatusOK, resp.Code)
	var hist historyBody
	require.NoError(t, json.Unmarshal(env.Data, &hist))
	assert.Zero(t, hist.Pagination.TotalPredictions)
	assert.NotNil(t, hist.Predictions)
}

func TestPredictRejectsNonImage(t *testing.T) {
	app := newTestApp(t)
	token := registerUser(t, app, "careful")

	resp, env := do(t, app, uploadRequest(t, "/api/prediction/predict", token, "report.pdf", []byte("%PDF-1.7 not an image"), nil))
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.NotEmpty(t, env.Errors)
	assert.Equal(t, "file", env.Errors[0].Field)
}

func TestHistoryPaginationAndIsolation(t *testing.T) {
	app := newTestApp(t)
	token := registerUser(t, app, "historian")
	other := registerUser(t, app, "outsider")

	for i := 0; i < 5; i++ {
		resp, _ := do(t, app, uploadRequest(t, "/api/prediction/predict", token, fmt.Sprintf("chest_%d.png", i), scanPNG(t), nil))
		require.Equal(t, http.StatusCreated, resp.Code)
	}

	resp, env := do(t, app, authed(http.MethodGet, "/api/prediction/history?page=1&limit=2", token))
	require.Equal(t, http.StatusOK, resp.Code)
	var hist historyBody
	require.NoError(t, json.Unmarshal(env.Data, &hist))
	assert.Len(t, hist.Predictions, 2)
	assert.Equal(t, 5, hist.Pagination.TotalPredictions)
	assert.Equal(t, 3, hist.Pagination.TotalPages)
	assert.Equal(t, "chest_4.png", hist.Predictions[0].InputData.FileName)
	assert.True(t, hist.Pagination.HasNext)
	assert.False(t, hist.Pagination.HasPrev)

	resp, env = do(t, app, authed(http.MethodGet, "/api/prediction/history?page=2&limit=10", token))
	require.Equal(t, http.StatusOK, resp.Code)
	hist = historyBody{}
	require.NoError(t, json.Unmarshal(env.Data, &hist))
	assert.Empty(t, hist.Predictions)
	assert.False(t, hist.Pagination.HasNext)
	assert.True(t, hist.Pagination.HasPrev)

	resp, env = do(t, app, authed(http.MethodGet, "/api/prediction/history?modelType=brainTumor", token))
	require.Equal(t, http.StatusOK, resp.Code)
	hist = historyBody{}
	require.NoError(t, json.Unmarshal(env.Data, &hist))
	assert.Zero(t, hist.Pagination.TotalPredictions)

	resp, _ = do(t, app, authed(http.MethodGet, "/api/prediction/history?modelType=unknown", token))
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp, env = do(t, app, authed(http.MethodGet, "/api/prediction/history", other))
	require.Equal(t, http.StatusOK, resp.Code)
	hist = historyBody{}
	require.NoError(t, json.Unmarshal(env.Data, &hist))
	assert.Zero(t, hist.Pagination.TotalPredictions)
}

func TestStatsAndModels(t *testing.T) {
	app := newTestApp(t)
	token := registerUser(t, app, "statistician")

	for _, name := range []string{"chest.png", "brain_mri.png", "tuberculosis.png"} {
		resp, _ := do(t, app, uploadRequest(t, "/api/prediction/predict", token, name, scanPNG(t), nil))
		require.Equal(t, http.StatusCreated, resp.Code)
	}

	resp, env := do(t, app, authed(http.MethodGet, "/api/prediction/stats", token))
	require.Equal(t, http.StatusOK, resp.Code)
	var stats struct {
		TotalPredictions      int            `json:"totalPredictions"`
		SuccessfulPredictions int            `json:"successfulPredictions"`
		FailedPredictions     int            `json:"failedPredictions"`
		AvgConfidence         float64        `json:"avgConfidence"`
		ModelDistribution     map[string]int `json:"modelDistribution"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 3, stats.TotalPredictions)
	assert.Equal(t, 3, stats.SuccessfulPredictions)
	assert.Zero(t, stats.FailedPredictions)
	assert.Greater(t, stats.AvgConfidence, 0.0)
	assert.Equal(t, map[string]int{"pneumonia": 1, "brainTumor": 1, "tuberculosis": 1}, stats.ModelDistribution)

	resp, env = do(t, app, authed(http.MethodGet, "/api/prediction/models", token))
	require.Equal(t, http.StatusOK, resp.Code)
	var models struct {
		Models []struct {
			Key  string `json:"key"`
			Mode string `json:"mode"`
		} `json:"models"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &models))
	require.Len(t, models.Models, 3)
	for _, m := range models.Models {
		assert.Equal(t, "demo", m.Mode, m.Key)
	}
}

func TestDeleteThenGetReturnsNotFound(t *testing.T) {
	app := newTestApp(t)
	token := registerUser(t, app, "cleaner")
	other := registerUser(t, app, "snoop")

	resp, env := do(t, app, uploadRequest(t, "/api/prediction/predict", token, "chest.png", scanPNG(t), nil))
	require.Equal(t, http.StatusCreated, resp.Code)
	id := decodePrediction(t, env).ID

	resp, _ = do(t, app, authed(http.MethodGet, "/api/prediction/"+id, other))
	assert.Equal(t, http.StatusNotFound, resp.Code)
	resp, _ = do(t, app, authed(http.MethodDelete, "/api/prediction/"+id, other))
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp, env = do(t, app, authed(http.MethodDelete, "/api/prediction/"+id, token))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "Prediction deleted successfully", env.Message)

	resp, env = do(t, app, authed(http.MethodGet, "/api/prediction/"+id, token))
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "Prediction not found", env.Message)
}

func TestHealthReportsDemoModelsAsDegraded(t *testing.T) {
	app := newTestApp(t)
	resp := httptest.NewRecorder()
	app.Router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	var payload struct {
		Status   string `json:"status"`
		Database string `json:"database"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	assert.Equal(t, "degraded", payload.Status)
	assert.Equal(t, "memory", payload.Database)
}
