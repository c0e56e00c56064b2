package influxdb

import (
	"testing"

	"github.com/nerrad567/handsfree-core/internal/infrastructure/config"
)

func TestClientOptions(t *testing.T) {
	tests := []struct {
		name          string
		batchSize     int
		flushInterval int
		wantBatch     uint
		wantFlushMS   uint
	}{
		{name: "configured", batchSize: 50, flushInterval: 2, wantBatch: 50, wantFlushMS: 2000},
		{name: "zero uses defaults", wantBatch: defaultBatchSize, wantFlushMS: defaultFlushInterval * 1000},
		{name: "negative uses defaults", batchSize: -5, flushInterval: -1, wantBatch: defaultBatchSize, wantFlushMS: defaultFlushInterval * 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := clientOptions(config.InfluxDBConfig{BatchSize: tt.batchSize, FlushInterval: tt.flushInterval})
			if got := opts.BatchSize(); got != tt.wantBatch {
				t.Errorf("BatchSize() = %d, want %d", got, tt.wantBatch)
			}
			if got := opts.FlushInterval(); got != tt.wantFlushMS {
				t.Errorf("FlushInterval() = %d, want %d", got, tt.wantFlushMS)
			}
		})
	}
}
