package archive

import (
	"bytes"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"

	"github.com/vietddude/reconciler/internal/core/domain"
)

// EncodeJSONLGZ writes one JSON document per record and gzips the result.
func EncodeJSONLGZ(records []domain.AttemptRecord) ([]byte, error) {
	var buf bytes.Buffer
	gz, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return nil, err
	}

	enc := json.NewEncoder(gz)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			_ = gz.Close()
			return nil, err
		}
	}

	// Close writes the gzip footer.
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
