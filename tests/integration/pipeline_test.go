//go:build integration
// +build integration

// Package integration provides end-to-end tests against a running Harrier server.
//
// These tests drive the full pipeline over HTTP:
//
//	Train → Detect → Persisted run → CSV export → Ego graph
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// The server must be started with an empty database, e.g.
//
//	HARRIER_DB_SQLITE_PATH=/tmp/harrier-it.db go run ./cmd/harrier
//
// RULES (built in, evaluated in this order):
//
// | Rule ID               | Fires when                                           |
// |-----------------------|------------------------------------------------------|
// | amount-anomaly        | amount > origin mean + 3 * origin std, or > 100,000  |
// | balance-inconsistency | origin balance does not reconcile with the amount    |
// | zero-balance-drain    | an amount above 50,000 drains a funded origin        |
// | high-frequency        | more than 5 transactions from one origin in a step   |
// | risky-type            | type is TRANSFER or CASH_OUT                         |
package integration

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("HARRIER_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{BaseURL: baseURL}
}

// Transaction mirrors the JSON transaction accepted by the API.
type Transaction struct {
	Step              int     `json:"step"`
	Type              string  `json:"type"`
	Amount            float64 `json:"amount"`
	OriginID          string  `json:"origin_id"`
	OrigBalanceBefore float64 `json:"orig_balance_before"`
	OrigBalanceAfter  float64 `json:"orig_balance_after"`
	DestID            string  `json:"dest_id"`
	DestBalanceBefore float64 `json:"dest_balance_before"`
	DestBalanceAfter  float64 `json:"dest_balance_after"`
}

// Summary mirrors the detection summary.
type Summary struct {
	TotalTransactions int     `json:"total_transactions"`
	SuspiciousCount   int     `json:"suspicious_count"`
	AverageFraudScore float64 `json:"average_fraud_score"`
}

// DetectResponse is returned by POST /api/detect.
type DetectResponse struct {
	Status         string  `json:"status"`
	DetectionRunID string  `json:"detection_run_id"`
	ModelVersion   uint64  `json:"model_version"`
	Summary        Summary `json:"summary"`
	DownloadURL    string  `json:"download_url"`
	Suspicious     []struct {
		TransactionID int     `json:"transaction_id"`
		FraudScore    float64 `json:"fraud_score"`
		RiskLevel     string  `json:"risk_level"`
		Explanation   string  `json:"explanation"`
	} `json:"suspicious_transactions"`
}

// population builds ordinary payments with a handful of draining transfers.
func population(prefix string, n int) []Transaction {
	txs := make([]Transaction, 0, n)
	for i := 0; i < n; i++ {
		amount := 50 + float64(i%19)*30
		tx := Transaction{
			Step:              1 + i/40,
			Type:              "PAYMENT",
			Amount:            amount,
			OriginID:          fmt.Sprintf("%s-C%d", prefix, i%50),
			OrigBalanceBefore: 10000,
			OrigBalanceAfter:  10000 - amount,
			DestID:            fmt.Sprintf("%s-C%d", prefix, (i*7+1)%50),
			DestBalanceBefore: 2000,
			DestBalanceAfter:  2000 + amount,
		}
		if i%41 == 0 {
			tx.Type = "TRANSFER"
			tx.Amount = 750000
			tx.OrigBalanceBefore = 750000
			tx.OrigBalanceAfter = 0
			tx.DestBalanceBefore = 0
			tx.DestBalanceAfter = 0
		}
		txs = append(txs, tx)
	}
	return txs
}

func post(t *testing.T, config TestConfig, path string, body any) (*http.Response, []byte) {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}
	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Post(config.BaseURL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func get(t *testing.T, config TestConfig, path string) (*http.Response, []byte) {
	t.Helper()
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(config.BaseURL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func trainModel(t *testing.T, config TestConfig) {
	t.Helper()
	resp, body := post(t, config, "/api/train", map[string]any{"transactions": population("train", 400)})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Training failed with %d: %s", resp.StatusCode, body)
	}
}

// TestHealth verifies the server is up before the pipeline tests run.
func TestHealth(t *testing.T) {
	config := getTestConfig()
	resp, body := get(t, config, "/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, body)
	}
}

// TestTrainThenDetect runs a labelled batch through the whole pipeline.
func TestTrainThenDetect(t *testing.T) {
	config := getTestConfig()
	trainModel(t, config)

	resp, body := post(t, config, "/api/detect", map[string]any{"transactions": population("detect", 120)})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, body)
	}

	var result DetectResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	t.Logf("Detection run: %s", result.DetectionRunID)
	t.Logf("Suspicious:    %d / %d", result.Summary.SuspiciousCount, result.Summary.TotalTransactions)

	if result.Summary.TotalTransactions != 120 {
		t.Errorf("Expected 120 scored rows, got %d", result.Summary.TotalTransactions)
	}
	if result.Summary.SuspiciousCount != len(result.Suspicious) {
		t.Errorf("Summary count %d does not match %d suspicious rows", result.Summary.SuspiciousCount, len(result.Suspicious))
	}
	for _, row := range result.Suspicious {
		if row.FraudScore <= 0.6 {
			t.Errorf("Row %d is suspicious with score %.3f", row.TransactionID, row.FraudScore)
		}
		if row.Explanation == "" {
			t.Errorf("Row %d is suspicious without an explanation", row.TransactionID)
		}
	}

	t.Run("PersistedRun", func(t *testing.T) {
		resp, body := get(t, config, "/api/detections/"+result.DetectionRunID)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, body)
		}
	})

	t.Run("CSVExport", func(t *testing.T) {
		resp, body := get(t, config, result.DownloadURL)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected 200, got %d", resp.StatusCode)
		}
		records, err := csv.NewReader(bytes.NewReader(body)).ReadAll()
		if err != nil {
			t.Fatalf("Export is not CSV: %v", err)
		}
		if len(records) != 121 {
			t.Errorf("Expected header plus 120 rows, got %d", len(records))
		}
	})
}

// TestEgoTree builds a graph over the training data.
func TestEgoTree(t *testing.T) {
	config := getTestConfig()
	trainModel(t, config)

	resp, body := post(t, config, "/api/graph/ego-tree", map[string]any{
		"client_id": "train-C1",
		"depth":     2,
		"limit":     50,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, body)
	}

	var graph struct {
		Nodes []struct {
			ID    string `json:"id"`
			IsEgo bool   `json:"is_ego"`
			Depth int    `json:"depth"`
		} `json:"nodes"`
		Summary struct {
			TotalNodes      int    `json:"total_nodes"`
			MaxDepthReached int    `json:"max_depth_reached"`
			EgoNodeID       string `json:"ego_node_id"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(body, &graph); err != nil {
		t.Fatalf("Failed to decode graph: %v", err)
	}

	if graph.Summary.EgoNodeID != "train-C1" {
		t.Errorf("Expected ego train-C1, got %s", graph.Summary.EgoNodeID)
	}
	if graph.Summary.TotalNodes > 50 {
		t.Errorf("Node limit exceeded: %d", graph.Summary.TotalNodes)
	}
	if graph.Summary.MaxDepthReached > 2 {
		t.Errorf("Depth limit exceeded: %d", graph.Summary.MaxDepthReached)
	}
	if len(graph.Nodes) == 0 || !graph.Nodes[0].IsEgo {
		t.Error("Expected the ego node first")
	}
}

// TestInvalidGraphRequest_Error checks that every violation is reported.
func TestInvalidGraphRequest_Error(t *testing.T) {
	config := getTestConfig()

	resp, body := post(t, config, "/api/graph/ego-tree", map[string]any{
		"client_id":       "",
		"depth":           7,
		"min_fraud_score": 1.5,
		"limit":           -1,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", resp.StatusCode, body)
	}

	var errResp struct {
		Violations []string `json:"violations"`
	}
	json.Unmarshal(body, &errResp)
	if len(errResp.Violations) != 4 {
		t.Errorf("Expected 4 violations, got %v", errResp.Violations)
	}
}

// TestMissingColumns_Error uploads a CSV without the balance columns.
func TestMissingColumns_Error(t *testing.T) {
	config := getTestConfig()

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(config.BaseURL+"/api/detect", "text/csv",
		bytes.NewBufferString("step,type,amount,nameOrig,nameDest\n1,PAYMENT,10,C1,C2\n"))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
}
