package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"lumifax/internal/models"
	"lumifax/pkg/config"

	"go.uber.org/zap"
)

const subscriptionKeyHeader = "Ocp-Apim-Subscription-Key"

// AzureEngine talks to Azure Document Intelligence over its REST surface:
// an analyze request returns 202 with an Operation-Location header, which is
// then polled until the operation reports a terminal status.
type AzureEngine struct {
	endpoint   string
	apiKey     string
	apiVersion string
	client     *http.Client
	logger     *zap.Logger
}

func NewAzureEngine(cfg *config.AnalysisConfig, logger *zap.Logger) *AzureEngine {
	return &AzureEngine{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		apiVersion: cfg.APIVersion,
		client:     &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

func (e *AzureEngine) BeginAnalysis(ctx context.Context, modelID, fileName string, content []byte) (AnalysisOperation, error) {
	analyzeURL := fmt.Sprintf(
		"%s/documentintelligence/documentModels/%s:analyze?api-version=%s",
		e.endpoint, url.PathEscape(modelID), url.QueryEscape(e.apiVersion),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, analyzeURL, bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set(subscriptionKeyHeader, e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analyze request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("analyze request rejected: status %d: %s", resp.StatusCode, body)
	}

	opURL := resp.Header.Get("Operation-Location")
	if opURL == "" {
		return nil, fmt.Errorf("analyze response missing Operation-Location header")
	}

	e.logger.Debug("Analysis operation started",
		zap.String("model_id", modelID),
		zap.String("file", fileName),
	)

	return &azureOperation{
		url:    opURL,
		apiKey: e.apiKey,
		client: e.client,
	}, nil
}

type azureOperation struct {
	url    string
	apiKey string
	client *http.Client
}

// azureOperationResult mirrors the operation status document returned by the
// service while an analysis runs and once it completes.
type azureOperationResult struct {
	Status        string `json:"status"`
	AnalyzeResult struct {
		ModelID   string `json:"modelId"`
		Content   string `json:"content"`
		Documents []struct {
			DocType string                `json:"docType"`
			Fields  map[string]azureField `json:"fields"`
		} `json:"documents"`
	} `json:"analyzeResult"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type azureField struct {
	Type       string  `json:"type"`
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence"`
}

func (o *azureOperation) Poll(ctx context.Context) (*OperationStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build poll request: %w", err)
	}
	req.Header.Set(subscriptionKeyHeader, o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poll request rejected: status %d", resp.StatusCode)
	}

	var result azureOperationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode operation status: %w", err)
	}

	switch result.Status {
	case "succeeded":
		fields := make(map[string]models.ExtractedField)
		for _, doc := range result.AnalyzeResult.Documents {
			for name, f := range doc.Fields {
				fields[name] = models.ExtractedField{
					Content:    sanitizeUTF8(f.Content),
					Confidence: f.Confidence,
					Type:       f.Type,
				}
			}
		}
		return &OperationStatus{State: OperationSucceeded, Fields: fields}, nil
	case "failed":
		msg := result.Error.Message
		if msg == "" {
			msg = "analysis failed"
		}
		return &OperationStatus{State: OperationFailed, Error: msg}, nil
	default:
		// notStarted / running
		return &OperationStatus{State: OperationRunning}, nil
	}
}
