package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/stockpulse/assistant/internal/config"
	"github.com/stockpulse/assistant/internal/models"
)

// ErrNoModel marks a symbol without a trained model artifact; callers fall
// back to the classical analyzer.
var ErrNoModel = errors.New("no trained model for symbol")

// SentimentResult is the sentiment scorer output.
type SentimentResult struct {
	Label  string  `json:"label"`
	Score  float64 `json:"score"`
	Method string  `json:"method"`
}

// TrendAnalysis is the moving-average analysis from price_analyzer.py.
type TrendAnalysis struct {
	ShortTermTrend string   `json:"short_term_trend"`
	LongTermTrend  string   `json:"long_term_trend"`
	MAShort        *float64 `json:"ma_short"`
	MALong         *float64 `json:"ma_long"`
}

// Evaluation is the metric set from evaluation.py.
type Evaluation struct {
	MAE               float64  `json:"MAE"`
	RMSE              float64  `json:"RMSE"`
	MAPE              *float64 `json:"MAPE"`
	DirectionAccuracy *float64 `json:"direction_accuracy"`
}

// Runner shells out to the platform's Python analysis scripts. The contract
// is one-shot: a single JSON document on stdout, non-zero exit on error. A
// dead or hung subprocess surfaces as an error the handlers swallow.
type Runner struct {
	pythonBin  string
	scriptsDir string
	modelsDir  string
	method     string
	logger     *logrus.Logger
}

// NewRunner creates the analyzer bridge.
func NewRunner(cfg *config.AnalyzerConfig, logger *logrus.Logger) *Runner {
	return &Runner{
		pythonBin:  cfg.PythonBin,
		scriptsDir: cfg.ScriptsDir,
		modelsDir:  cfg.ModelsDir,
		method:     cfg.Method,
		logger:     logger,
	}
}

// HasModel reports whether a trained artifact exists for the symbol.
func (r *Runner) HasModel(symbol string) bool {
	path := filepath.Join(r.modelsDir, strings.ToUpper(symbol)+"_model.pkl")
	_, err := os.Stat(path)
	return err == nil
}

// AnalyzeSentiment scores text. The script historically printed a bare
// label; the runner accepts both that and a JSON {label, score} document.
func (r *Runner) AnalyzeSentiment(ctx context.Context, text string) (*SentimentResult, error) {
	out, err := r.run(ctx, "sentiment_analyzer.py", text, r.method)
	if err != nil {
		return nil, err
	}

	result := &SentimentResult{Method: r.method}
	if err := json.Unmarshal(out, result); err == nil && result.Label != "" {
		result.Method = r.method
		return result, nil
	}

	label := strings.TrimSpace(string(out))
	switch label {
	case "Positive":
		result.Score = 0.5
	case "Negative":
		result.Score = -0.5
	case "Neutral":
		result.Score = 0
	default:
		return nil, fmt.Errorf("unrecognized sentiment output: %q", label)
	}
	result.Label = label
	return result, nil
}

// PredictPrice runs the trained model for a symbol over chronological
// history. Returns ErrNoModel when no artifact exists.
func (r *Runner) PredictPrice(ctx context.Context, symbol string, history []models.PricePoint) (*models.Forecast, error) {
	if !r.HasModel(symbol) {
		return nil, ErrNoModel
	}

	historyJSON, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal history: %w", err)
	}

	out, err := r.run(ctx, "ml_price_predictor.py", strings.ToUpper(symbol), string(historyJSON))
	if err != nil {
		return nil, err
	}

	var parsed struct {
		models.Forecast
		Error     string `json:"error"`
		Available bool   `json:"available"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse predictor output: %w", err)
	}
	if parsed.Error != "" {
		if !parsed.Available {
			return nil, ErrNoModel
		}
		return nil, fmt.Errorf("predictor error: %s", parsed.Error)
	}

	forecast := parsed.Forecast
	return &forecast, nil
}

// AnalyzeTrend runs the moving-average script over chronological history.
func (r *Runner) AnalyzeTrend(ctx context.Context, history []models.PricePoint) (*TrendAnalysis, error) {
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal history: %w", err)
	}

	out, err := r.run(ctx, "price_analyzer.py", string(historyJSON))
	if err != nil {
		return nil, err
	}

	var analysis TrendAnalysis
	if err := json.Unmarshal(out, &analysis); err != nil {
		return nil, fmt.Errorf("failed to parse trend output: %w", err)
	}
	return &analysis, nil
}

// HybridAnalyze combines technical indicators with news sentiment.
func (r *Runner) HybridAnalyze(ctx context.Context, history []models.PricePoint, newsText string) (*models.HybridSignal, error) {
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal history: %w", err)
	}

	out, err := r.run(ctx, "hybrid_analyzer.py", string(historyJSON), newsText)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		models.HybridSignal
		Error string `json:"error"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse hybrid output: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("hybrid analyzer error: %s", parsed.Error)
	}

	signal := parsed.HybridSignal
	return &signal, nil
}

// Evaluate computes prediction-quality metrics for paired series.
func (r *Runner) Evaluate(ctx context.Context, actual, predicted []float64) (*Evaluation, error) {
	actualJSON, err := json.Marshal(actual)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal actual series: %w", err)
	}
	predictedJSON, err := json.Marshal(predicted)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal predicted series: %w", err)
	}

	out, err := r.run(ctx, "evaluation.py", string(actualJSON), string(predictedJSON))
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Evaluation
		Error string `json:"error"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse evaluation output: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("evaluation error: %s", parsed.Error)
	}

	eval := parsed.Evaluation
	return &eval, nil
}

func (r *Runner) run(ctx context.Context, script string, args ...string) ([]byte, error) {
	cmdArgs := append([]string{filepath.Join(r.scriptsDir, script)}, args...)
	cmd := exec.CommandContext(ctx, r.pythonBin, cmdArgs...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.WithField("script", script).Debug("Running analyzer subprocess")

	if err := cmd.Run(); err != nil {
		r.logger.WithFields(logrus.Fields{
			"script": script,
			"stderr": stderr.String(),
		}).Warn("Analyzer subprocess failed")
		return nil, fmt.Errorf("analyzer %s failed: %w", script, err)
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 {
		return nil, fmt.Errorf("analyzer %s produced no output", script)
	}
	return out, nil
}
