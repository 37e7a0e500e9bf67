// Benchmark tool for measuring Harrier against labelled PaySim fraud data.
//
// Usage:
//
//	go run ./cmd/benchmark -csv /path/to/paysim.csv -train 0.5 -out scored.csv
//
// This tool:
//  1. Reads a labelled transaction table
//  2. Trains the anomaly scorer on the leading share of rows
//  3. Scores the remaining rows in process
//  4. Compares the suspicious verdicts with the fraud labels
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/opensource-finance/harrier/internal/dataset"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/rules"
	"github.com/opensource-finance/harrier/internal/service"
)

// Metrics tracks benchmark results
type Metrics struct {
	TruePositives  int // Fraud flagged as suspicious
	FalsePositives int // Non-fraud flagged as suspicious
	TrueNegatives  int // Non-fraud left alone
	FalseNegatives int // Fraud left alone (missed fraud!)

	TotalProcessed int
	TotalFraud     int
	TotalNonFraud  int
	Unlabelled     int
}

func main() {
	csvPath := flag.String("csv", "", "Path to PaySim CSV file")
	limit := flag.Int("limit", 100000, "Maximum transactions to read (0 = all)")
	trainShare := flag.Float64("train", 0.5, "Share of rows used for training (0.0-1.0)")
	outPath := flag.String("out", "", "Write scored rows as CSV to this path")
	verbose := flag.Bool("verbose", false, "Print each missed fraud")
	flag.Parse()

	if *csvPath == "" || *trainShare <= 0 || *trainShare >= 1 {
		fmt.Println("Usage: benchmark -csv /path/to/paysim.csv [-train 0.5] [-out scored.csv]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("HARRIER BENCHMARK - PaySim Fraud Detection")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Printf("Train Share: %.2f\n", *trainShare)
	fmt.Println()

	txs, err := dataset.LoadFile(*csvPath, dataset.ReadOptions{Limit: *limit})
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	split := int(float64(len(txs)) * *trainShare)
	if split == 0 || split == len(txs) {
		fmt.Printf("ERROR: %d rows cannot be split with train share %.2f\n", len(txs), *trainShare)
		os.Exit(1)
	}
	fmt.Printf("Loaded %s transactions (%s train, %s test)\n",
		humanize.Comma(int64(len(txs))), humanize.Comma(int64(split)), humanize.Comma(int64(len(txs)-split)))

	cfg := domain.DefaultConfig()
	engine, err := rules.NewDefaultEngine(cfg.Scoring.BalanceEpsilon)
	if err != nil {
		fmt.Printf("ERROR: Failed to build rule engine: %v\n", err)
		os.Exit(1)
	}
	svc := service.New(cfg, engine, service.Dependencies{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	ctx := context.Background()

	trainStart := time.Now()
	trained, err := svc.Train(ctx, txs[:split])
	if err != nil {
		fmt.Printf("ERROR: Training failed: %v\n", err)
		os.Exit(1)
	}
	trainDuration := time.Since(trainStart)
	fmt.Printf("Trained %s in %v\n", trained.Scorer, trainDuration.Round(time.Millisecond))

	detectStart := time.Now()
	res, err := svc.Detect(ctx, "benchmark", txs[split:])
	if err != nil {
		fmt.Printf("ERROR: Detection failed: %v\n", err)
		os.Exit(1)
	}
	detectDuration := time.Since(detectStart)

	m := evaluate(res.Rows, *verbose)
	printResults(m, res.Run.Summary, trainDuration, detectDuration)

	if *outPath != "" {
		if err := writeScored(*outPath, res.Rows); err != nil {
			fmt.Printf("ERROR: Failed to write %s: %v\n", *outPath, err)
			os.Exit(1)
		}
		fmt.Printf("Scored rows written to %s\n", *outPath)
	}
}

func evaluate(rows []domain.ScoredTransaction, verbose bool) *Metrics {
	m := &Metrics{}
	for _, row := range rows {
		m.TotalProcessed++
		if row.IsFraud == nil {
			m.Unlabelled++
			continue
		}
		fraud := *row.IsFraud
		if fraud {
			m.TotalFraud++
		} else {
			m.TotalNonFraud++
		}

		switch {
		case fraud && row.IsSuspicious:
			m.TruePositives++
		case fraud:
			m.FalseNegatives++
			if verbose {
				fmt.Printf("MISSED %-12s | Type: %-8s | Amount: %14.2f | Score: %.3f\n",
					row.OriginID, row.Type, row.Amount, row.FraudScore)
			}
		case row.IsSuspicious:
			m.FalsePositives++
		default:
			m.TrueNegatives++
		}
	}
	return m
}

func writeScored(path string, rows []domain.ScoredTransaction) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := dataset.WriteScoredCSV(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func printResults(m *Metrics, summary domain.DetectionSummary, trainDuration, detectDuration time.Duration) {
	fmt.Println("\nBENCHMARK RESULTS")

	fmt.Printf("\nDATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Fraud:      %d\n", m.TotalFraud)
	fmt.Printf("   Total Non-Fraud:  %d\n", m.TotalNonFraud)
	fmt.Printf("   Unlabelled:       %d\n", m.Unlabelled)

	fmt.Printf("\nCONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                    SUSP        CLEAR")
	fmt.Printf("   Actual  F    %8d    %8d   (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Printf("          NF    %8d    %8d   (FP, TN)\n", m.FalsePositives, m.TrueNegatives)

	precision := ratio(m.TruePositives, m.TruePositives+m.FalsePositives)
	recall := ratio(m.TruePositives, m.TruePositives+m.FalseNegatives)
	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	accuracy := ratio(m.TruePositives+m.TrueNegatives, m.TotalFraud+m.TotalNonFraud)

	fmt.Printf("\nDETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of alerts, how many were actual fraud)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of fraud, how many did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f\n", f1)
	fmt.Printf("   Accuracy:   %.4f\n", accuracy)

	fmt.Printf("\nBATCH SUMMARY\n")
	fmt.Printf("   Suspicious:        %d (%.2f%%)\n", summary.SuspiciousCount, summary.SuspiciousPercentage)
	fmt.Printf("   High Risk:         %d\n", summary.HighRiskCount)
	fmt.Printf("   Medium Risk:       %d\n", summary.MediumRiskCount)
	fmt.Printf("   Suspicious Amount: %s\n", humanize.CommafWithDigits(summary.TotalSuspiciousAmount, 2))

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Training:    %v\n", trainDuration.Round(time.Millisecond))
	fmt.Printf("   Detection:   %v\n", detectDuration.Round(time.Millisecond))
	if secs := detectDuration.Seconds(); secs > 0 {
		fmt.Printf("   Throughput:  %.2f tx/sec\n", float64(m.TotalProcessed)/secs)
	}
	fmt.Println()
}
