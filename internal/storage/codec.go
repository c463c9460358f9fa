package storage

import (
	"encoding/json"
	"fmt"

	"github.com/annel0/arena-combat/internal/engine"
	"github.com/klauspost/compress/zstd"
)

// Codec сериализует снимки в JSON и сжимает zstd.
// EncodeAll/DecodeAll безопасны для конкурентного использования.
type Codec struct {
	compressor   *zstd.Encoder
	decompressor *zstd.Decoder
}

// NewCodec создаёт кодек со скоростью сжатия по умолчанию
func NewCodec() (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("ошибка создания zstd decoder: %w", err)
	}
	return &Codec{compressor: enc, decompressor: dec}, nil
}

// Encode сериализует и сжимает снимок
func (c *Codec) Encode(snap engine.Snapshot) ([]byte, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации снимка: %w", err)
	}
	return c.compressor.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
}

// Decode распаковывает и десериализует снимок
func (c *Codec) Decode(data []byte) (engine.Snapshot, error) {
	raw, err := c.decompressor.DecodeAll(data, nil)
	if err != nil {
		return engine.Snapshot{}, fmt.Errorf("ошибка распаковки снимка: %w", err)
	}
	var snap engine.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return engine.Snapshot{}, fmt.Errorf("ошибка десериализации снимка: %w", err)
	}
	return snap, nil
}

// Close освобождает ресурсы кодека
func (c *Codec) Close() {
	c.compressor.Close()
	c.decompressor.Close()
}
