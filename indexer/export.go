package indexer

import (
	"context"
	"fmt"
	"os"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type parquetEvent struct {
	ID         int64  `parquet:"name=id, type=INT64"`
	Type       string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	KioskID    string `parquet:"name=kiosk_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	AssetID    string `parquet:"name=asset_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Amount     string `parquet:"name=amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp  int64  `parquet:"name=timestamp, type=INT64"`
	Attributes string `parquet:"name=attributes, type=BYTE_ARRAY, convertedtype=UTF8"`
}

const exportPageSize = MaxListLimit

// ExportParquet writes every event matching q to a snappy-compressed parquet
// file at path and returns the number of rows written. q.Limit is ignored;
// the export pages through the whole match set.
func (s *Sink) ExportParquet(ctx context.Context, path string, q Query) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("indexer: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetEvent), 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("indexer: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	written := 0
	q.Limit = exportPageSize
	for {
		page, err := s.List(ctx, q)
		if err != nil {
			pw.WriteStop()
			file.Close()
			return written, err
		}
		for _, record := range page {
			row := &parquetEvent{
				ID:         int64(record.ID),
				Type:       record.Type,
				KioskID:    record.KioskID,
				AssetID:    record.AssetID,
				Amount:     record.Amount,
				Timestamp:  record.Timestamp,
				Attributes: record.Attributes,
			}
			if err := pw.Write(row); err != nil {
				pw.WriteStop()
				file.Close()
				return written, fmt.Errorf("indexer: parquet write: %w", err)
			}
			written++
		}
		if len(page) < exportPageSize {
			break
		}
		q.AfterID = page[len(page)-1].ID
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return written, fmt.Errorf("indexer: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return written, fmt.Errorf("indexer: close parquet file: %w", err)
	}
	return written, nil
}
