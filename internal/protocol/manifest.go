package protocol

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// compressedPrefix marks a manifest value as gzip-compressed and
// base64-encoded. Plain values carry no prefix.
const compressedPrefix = "gzip:"

// CompressManifestValue gzips and base64-encodes page content. Callers
// decide the threshold; compressing short pages is wasted work.
func CompressManifestValue(content string) (string, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return "", err
	}
	if _, err := io.WriteString(w, content); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return compressedPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecompressManifestValue restores a manifest value, passing plain
// values through untouched.
func DecompressManifestValue(value string) (string, error) {
	encoded, found := strings.CutPrefix(value, compressedPrefix)
	if !found {
		return value, nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode manifest value: %w", err)
	}
	r, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("open manifest value: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("inflate manifest value: %w", err)
	}
	return string(out), nil
}
