package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/vmihailenco/msgpack/v4"
)

// Compression names, used also as HTTP Content-Encoding
const (
	CompressionNone = "none"
	CompressionGzip = "gzip"
)

// ContentType is the HTTP Content-Type of encoded batches
const ContentType = "application/msgpack"

// gzipCompressionLevel is BestSpeed since batches are small and sent on pipeline workers
const gzipCompressionLevel = gzip.BestSpeed

// IsValidCompression checks the given compression name
func IsValidCompression(compression string) bool {
	return compression == CompressionNone || compression == CompressionGzip || compression == ""
}

// Encode serializes the batch and compresses it if required
func Encode(batch *WireBatch, compression string) ([]byte, error) {
	buf := &bytes.Buffer{}
	var writer io.Writer = buf
	var gzWriter *gzip.Writer
	if compression == CompressionGzip {
		w, err := gzip.NewWriterLevel(buf, gzipCompressionLevel)
		if err != nil {
			return nil, err
		}
		gzWriter = w
		writer = w
	}

	if err := msgpack.NewEncoder(writer).UseCompactEncoding(true).Encode(batch); err != nil {
		return nil, fmt.Errorf("failed to encode batch: %w", err)
	}
	if gzWriter != nil {
		if err := gzWriter.Close(); err != nil {
			return nil, fmt.Errorf("failed to compress batch: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// Decode decompresses if required and deserializes one batch from reader
func Decode(reader io.Reader, compression string) (*WireBatch, error) {
	if compression == CompressionGzip {
		gzReader, err := gzip.NewReader(reader)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress batch: %w", err)
		}
		defer gzReader.Close()
		reader = gzReader
	}

	decoder := msgpack.NewDecoder(reader)
	decoder.UseDecodeInterfaceLoose(true)
	batch := &WireBatch{}
	if err := decoder.Decode(batch); err != nil {
		return nil, fmt.Errorf("failed to decode batch: %w", err)
	}
	return batch, nil
}
