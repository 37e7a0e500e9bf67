package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/opensource-finance/harrier/internal/dataset"
	"github.com/opensource-finance/harrier/internal/domain"
)

// uploadField is the multipart form field carrying a CSV file.
const uploadField = "file"

// readTransactions decodes the request body into transactions.
// Accepted bodies are a multipart CSV upload, a raw text/csv body, or a
// JSON TransactionBatch.
func readTransactions(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]domain.Transaction, error) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		mediaType = ""
	}

	switch mediaType {
	case "multipart/form-data":
		file, header, err := r.FormFile(uploadField)
		if err != nil {
			if tooLarge(err) {
				return nil, domain.NewValidationError(fmt.Sprintf("upload exceeds %d bytes", maxBytes))
			}
			return nil, domain.NewValidationError(fmt.Sprintf("multipart field %q is required", uploadField))
		}
		defer file.Close()
		if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
			return nil, domain.NewValidationError("only CSV files are supported")
		}
		return readCSV(file, maxBytes)
	case "text/csv":
		return readCSV(r.Body, maxBytes)
	default:
		var batch domain.TransactionBatch
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			if tooLarge(err) {
				return nil, domain.NewValidationError(fmt.Sprintf("request body exceeds %d bytes", maxBytes))
			}
			return nil, domain.NewValidationError("invalid JSON request body")
		}
		return normalizeBatch(batch.Transactions)
	}
}

func readCSV(r io.Reader, maxBytes int64) ([]domain.Transaction, error) {
	txs, err := dataset.ReadCSV(r, dataset.ReadOptions{})
	if err != nil && tooLarge(err) {
		return nil, domain.NewValidationError(fmt.Sprintf("upload exceeds %d bytes", maxBytes))
	}
	return txs, err
}

// normalizeBatch applies the same row checks as the CSV reader.
func normalizeBatch(txs []domain.Transaction) ([]domain.Transaction, error) {
	var violations []string
	for i := range txs {
		txs[i].Type = strings.ToUpper(strings.TrimSpace(txs[i].Type))
		for _, v := range txs[i].Violations() {
			violations = append(violations, fmt.Sprintf("transactions[%d]: %s", i, v))
		}
	}
	if len(violations) > 0 {
		return nil, domain.NewValidationError(violations...)
	}
	return txs, nil
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
