package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Codec compresses rotated log files.
type Codec interface {
	//1.- Name identifies the codec in configuration.
	Name() string
	//2.- Extension is appended to the rotated file name.
	Extension() string
	//3.- NewWriter wraps dst; closing the returned writer must flush all data.
	NewWriter(dst io.Writer) (io.WriteCloser, error)
	//4.- NewReader wraps src for tooling and tests that read rotated logs back.
	NewReader(src io.Reader) (io.ReadCloser, error)
}

// CodecFor resolves a configured compression name. "none" and "" return nil.
func CodecFor(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none", "off":
		return nil, nil
	case "gzip", "gz":
		return gzipCodec{}, nil
	case "zstd", "zst":
		return zstdCodec{}, nil
	case "snappy", "sz":
		return snappyCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown log compression codec %q", name)
	}
}

type gzipCodec struct{}

func (gzipCodec) Name() string      { return "gzip" }
func (gzipCodec) Extension() string { return ".gz" }

func (gzipCodec) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriter(dst), nil
}

func (gzipCodec) NewReader(src io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(src)
}

type zstdCodec struct{}

func (zstdCodec) Name() string      { return "zstd" }
func (zstdCodec) Extension() string { return ".zst" }

func (zstdCodec) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(dst)
}

func (zstdCodec) NewReader(src io.Reader) (io.ReadCloser, error) {
	decoder, err := zstd.NewReader(src)
	if err != nil {
		return nil, err
	}
	return decoder.IOReadCloser(), nil
}

type snappyCodec struct{}

func (snappyCodec) Name() string      { return "snappy" }
func (snappyCodec) Extension() string { return ".sz" }

func (snappyCodec) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	return snappy.NewBufferedWriter(dst), nil
}

func (snappyCodec) NewReader(src io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(snappy.NewReader(src)), nil
}
