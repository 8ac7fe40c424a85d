package analyzer

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stockpulse/assistant/internal/config"
	"github.com/stockpulse/assistant/internal/models"
)

// The subprocess contract (one JSON document or bare label on stdout) is
// exercised with shell scripts standing in for the Python analyzers.

func newScriptedRunner(t *testing.T, scripts map[string]string) *Runner {
	t.Helper()

	scriptsDir := t.TempDir()
	for name, body := range scripts {
		path := filepath.Join(scriptsDir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return NewRunner(&config.AnalyzerConfig{
		PythonBin:  "sh",
		ScriptsDir: scriptsDir,
		ModelsDir:  t.TempDir(),
		Method:     "textblob",
	}, logger)
}

func TestHasModel(t *testing.T) {
	r := newScriptedRunner(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(r.modelsDir, "AAPL_model.pkl"), []byte("x"), 0o644))

	assert.True(t, r.HasModel("AAPL"))
	assert.True(t, r.HasModel("aapl"))
	assert.False(t, r.HasModel("TSLA"))
}

func TestAnalyzeSentiment_BareLabel(t *testing.T) {
	r := newScriptedRunner(t, map[string]string{
		"sentiment_analyzer.py": "echo Positive\n",
	})

	result, err := r.AnalyzeSentiment(context.Background(), "great earnings")
	require.NoError(t, err)

	assert.Equal(t, "Positive", result.Label)
	assert.Equal(t, 0.5, result.Score)
	assert.Equal(t, "textblob", result.Method)
}

func TestAnalyzeSentiment_JSONOutput(t *testing.T) {
	r := newScriptedRunner(t, map[string]string{
		"sentiment_analyzer.py": `echo '{"label":"Negative","score":-0.8}'` + "\n",
	})

	result, err := r.AnalyzeSentiment(context.Background(), "terrible quarter")
	require.NoError(t, err)

	assert.Equal(t, "Negative", result.Label)
	assert.Equal(t, -0.8, result.Score)
}

func TestAnalyzeSentiment_UnrecognizedOutput(t *testing.T) {
	r := newScriptedRunner(t, map[string]string{
		"sentiment_analyzer.py": "echo something weird\n",
	})

	_, err := r.AnalyzeSentiment(context.Background(), "text")
	assert.Error(t, err)
}

func TestPredictPrice_NoModelArtifact(t *testing.T) {
	r := newScriptedRunner(t, nil)

	_, err := r.PredictPrice(context.Background(), "AAPL", []models.PricePoint{{Price: 100}})
	assert.ErrorIs(t, err, ErrNoModel)
}

func TestPredictPrice_ParsesForecast(t *testing.T) {
	r := newScriptedRunner(t, map[string]string{
		"ml_price_predictor.py": `echo '{"predicted_price":182.5,"current_price":178.2,"predicted_change":4.3,"predicted_change_pct":2.41,"trend":"Bullish","confidence":0.82,"model_type":"RandomForest","model_version":"v3","available":true}'` + "\n",
	})
	require.NoError(t, os.WriteFile(filepath.Join(r.modelsDir, "AAPL_model.pkl"), []byte("x"), 0o644))

	forecast, err := r.PredictPrice(context.Background(), "AAPL", []models.PricePoint{{Price: 178.2}})
	require.NoError(t, err)

	assert.Equal(t, 182.5, forecast.PredictedPrice)
	assert.Equal(t, "Bullish", forecast.Trend)
	assert.Equal(t, "RandomForest", forecast.ModelType)
}

func TestPredictPrice_ScriptReportsMissingModel(t *testing.T) {
	r := newScriptedRunner(t, map[string]string{
		"ml_price_predictor.py": `echo '{"error":"model not trained","available":false}'` + "\n",
	})
	require.NoError(t, os.WriteFile(filepath.Join(r.modelsDir, "AAPL_model.pkl"), []byte("x"), 0o644))

	_, err := r.PredictPrice(context.Background(), "AAPL", []models.PricePoint{{Price: 100}})
	assert.ErrorIs(t, err, ErrNoModel)
}

func TestHybridAnalyze_ParsesSignal(t *testing.T) {
	r := newScriptedRunner(t, map[string]string{
		"hybrid_analyzer.py": `echo '{"ema_20":175.1,"rsi_14":62.3,"technical_signal":"Buy","sentiment_label":"Positive","sentiment_score":0.4,"final_signal":"Buy","confidence":"High","explanation":"momentum plus positive news"}'` + "\n",
	})

	signal, err := r.HybridAnalyze(context.Background(), []models.PricePoint{{Price: 175}}, "good news")
	require.NoError(t, err)

	assert.Equal(t, "Buy", signal.FinalSignal)
	assert.Equal(t, "High", signal.Confidence)
	assert.Equal(t, 62.3, signal.RSI14)
}

func TestEvaluate_ParsesMetrics(t *testing.T) {
	r := newScriptedRunner(t, map[string]string{
		"evaluation.py": `echo '{"MAE":1.2,"RMSE":1.8,"MAPE":0.7,"direction_accuracy":0.66}'` + "\n",
	})

	eval, err := r.Evaluate(context.Background(), []float64{1, 2}, []float64{1.1, 2.2})
	require.NoError(t, err)

	assert.Equal(t, 1.2, eval.MAE)
	assert.Equal(t, 1.8, eval.RMSE)
	require.NotNil(t, eval.DirectionAccuracy)
	assert.Equal(t, 0.66, *eval.DirectionAccuracy)
}

func TestRun_FailedScript(t *testing.T) {
	r := newScriptedRunner(t, map[string]string{
		"sentiment_analyzer.py": "exit 3\n",
	})

	_, err := r.AnalyzeSentiment(context.Background(), "text")
	assert.Error(t, err)
}

func TestRun_EmptyOutput(t *testing.T) {
	r := newScriptedRunner(t, map[string]string{
		"sentiment_analyzer.py": "true\n",
	})

	_, err := r.AnalyzeSentiment(context.Background(), "text")
	assert.Error(t, err)
}
