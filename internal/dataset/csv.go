// Package dataset reads and writes transaction tables.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/opensource-finance/harrier/internal/domain"
)

// aliases maps PaySim column names (lower-cased) to canonical column names.
var aliases = map[string]string{
	"nameorig":       domain.ColumnOriginID,
	"oldbalanceorg":  domain.ColumnOrigBalanceBefore,
	"newbalanceorig": domain.ColumnOrigBalanceAfter,
	"namedest":       domain.ColumnDestID,
	"oldbalancedest": domain.ColumnDestBalanceBefore,
	"newbalancedest": domain.ColumnDestBalanceAfter,
	"isfraud":        domain.ColumnIsFraud,
}

// ReadOptions controls CSV reading.
type ReadOptions struct {
	// Limit caps the number of rows read. Zero reads everything.
	Limit int
}

// ReadCSV parses a transaction table. Column names are matched
// case-insensitively and PaySim names are accepted.
// Any malformed row fails the whole read.
func ReadCSV(r io.Reader, opts ReadOptions) ([]domain.Transaction, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, domain.MissingColumnsError(domain.RequiredColumns())
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int, len(header))
	for i, col := range header {
		name := strings.ToLower(strings.TrimSpace(col))
		if canonical, ok := aliases[name]; ok {
			name = canonical
		}
		if _, dup := colIndex[name]; !dup {
			colIndex[name] = i
		}
	}

	var missing []string
	for _, col := range domain.RequiredColumns() {
		if _, ok := colIndex[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, domain.MissingColumnsError(missing)
	}

	var txs []domain.Transaction
	line := 1
	for opts.Limit <= 0 || len(txs) < opts.Limit {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, domain.NewValidationError(fmt.Sprintf("line %d: %v", line, err))
		}

		tx, violations := parseRecord(record, colIndex)
		if len(violations) > 0 {
			for i := range violations {
				violations[i] = fmt.Sprintf("line %d: %s", line, violations[i])
			}
			return nil, domain.NewValidationError(violations...)
		}
		txs = append(txs, tx)
	}

	return txs, nil
}

// LoadFile reads a transaction table from disk.
func LoadFile(path string, opts ReadOptions) ([]domain.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	txs, err := ReadCSV(f, opts)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}
	return txs, nil
}

func parseRecord(record []string, colIndex map[string]int) (domain.Transaction, []string) {
	var (
		tx         domain.Transaction
		violations []string
	)

	field := func(col string) string {
		return strings.TrimSpace(record[colIndex[col]])
	}
	number := func(col string) float64 {
		raw := field(col)
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			violations = append(violations, fmt.Sprintf("%s: invalid number %q", col, raw))
			return 0
		}
		return v
	}

	tx.Step = parseStep(field(domain.ColumnStep), &violations)
	tx.Type = strings.ToUpper(field(domain.ColumnType))
	tx.Amount = number(domain.ColumnAmount)
	tx.OriginID = field(domain.ColumnOriginID)
	tx.OrigBalanceBefore = number(domain.ColumnOrigBalanceBefore)
	tx.OrigBalanceAfter = number(domain.ColumnOrigBalanceAfter)
	tx.DestID = field(domain.ColumnDestID)
	tx.DestBalanceBefore = number(domain.ColumnDestBalanceBefore)
	tx.DestBalanceAfter = number(domain.ColumnDestBalanceAfter)

	violations = append(violations, tx.Violations()...)

	if idx, ok := colIndex[domain.ColumnIsFraud]; ok {
		label, err := ParseLabel(record[idx])
		if err != nil {
			violations = append(violations, err.Error())
		}
		tx.IsFraud = label
	}

	return tx, violations
}

// parseStep accepts integers and integral floats such as "3.0".
func parseStep(raw string, violations *[]string) int {
	if v, err := strconv.Atoi(raw); err == nil {
		return v
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != math.Trunc(f) {
		*violations = append(*violations, fmt.Sprintf("step: invalid integer %q", raw))
		return 0
	}
	return int(f)
}

// ParseLabel reads an optional fraud label. Empty means unlabelled.
func ParseLabel(raw string) (*bool, error) {
	var v bool
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return nil, nil
	case "1", "1.0", "true":
		v = true
	case "0", "0.0", "false":
		v = false
	default:
		return nil, fmt.Errorf("is_fraud: invalid label %q", raw)
	}
	return &v, nil
}

// scoredHeader is the column layout of WriteScoredCSV.
var scoredHeader = []string{
	"transaction_id",
	domain.ColumnStep,
	domain.ColumnType,
	domain.ColumnAmount,
	domain.ColumnOriginID,
	domain.ColumnOrigBalanceBefore,
	domain.ColumnOrigBalanceAfter,
	domain.ColumnDestID,
	domain.ColumnDestBalanceBefore,
	domain.ColumnDestBalanceAfter,
	domain.ColumnIsFraud,
	"rule_amount_anomaly",
	"rule_balance_error",
	"rule_zero_balance",
	"rule_high_frequency",
	"rule_risky_type",
	"rule_score",
	"ml_score",
	"fraud_score",
	"is_suspicious",
	"risk_level",
	"explanation",
}

// WriteScoredCSV exports scored rows, one line per transaction.
func WriteScoredCSV(w io.Writer, rows []domain.ScoredTransaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(scoredHeader); err != nil {
		return err
	}

	num := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	flag := func(v bool) string {
		if v {
			return "1"
		}
		return "0"
	}

	for i := range rows {
		r := &rows[i]
		label := ""
		if r.IsFraud != nil {
			label = flag(*r.IsFraud)
		}
		record := []string{
			strconv.Itoa(r.TransactionID),
			strconv.Itoa(r.Step),
			r.Type,
			num(r.Amount),
			r.OriginID,
			num(r.OrigBalanceBefore),
			num(r.OrigBalanceAfter),
			r.DestID,
			num(r.DestBalanceBefore),
			num(r.DestBalanceAfter),
			label,
			flag(r.Flags.AmountAnomaly),
			flag(r.Flags.BalanceError),
			flag(r.Flags.ZeroBalance),
			flag(r.Flags.HighFrequency),
			flag(r.Flags.RiskyType),
			num(r.RuleScore),
			num(r.MLScore),
			num(r.FraudScore),
			strconv.FormatBool(r.IsSuspicious),
			string(r.RiskLevel),
			r.Explanation,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
