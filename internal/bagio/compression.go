package bagio

import (
	"bufio"
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/pierrec/lz4/v4"
)

// newCompressWriter wraps w with the codec selected by c. Callers must
// call the returned io.Closer to flush any buffered codec state before
// closing the underlying file.
func newCompressWriter(w io.Writer, c Compression) (io.Writer, io.Closer, error) {
	switch c {
	case CompressionNone:
		return w, nopCloser{}, nil
	case CompressionBZ2:
		zw, err := bzip2.NewWriter(w, &bzip2.WriterConfig{Level: bzip2.DefaultCompression})
		if err != nil {
			return nil, nil, fmt.Errorf("bagio: open bz2 writer: %w", err)
		}
		return zw, zw, nil
	case CompressionLZ4:
		zw := lz4.NewWriter(w)
		return zw, zw, nil
	default:
		return nil, nil, fmt.Errorf("bagio: unknown compression mode %d", c)
	}
}

// newDecompressReader wraps r with the decoder for codec c.
func newDecompressReader(r io.Reader, c Compression) (io.Reader, error) {
	switch c {
	case CompressionNone:
		return bufio.NewReader(r), nil
	case CompressionBZ2:
		zr, err := bzip2.NewReader(r, nil)
		if err != nil {
			return nil, fmt.Errorf("bagio: open bz2 reader: %w", err)
		}
		return zr, nil
	case CompressionLZ4:
		return lz4.NewReader(r), nil
	default:
		return nil, fmt.Errorf("bagio: unknown compression mode %d", c)
	}
}

// nopCloser is the io.Closer for the uncompressed stream, which holds
// no buffered state of its own.
type nopCloser struct{}

func (nopCloser) Close() error { return nil }
