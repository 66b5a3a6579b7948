package frame

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Compress gzips a payload. Unlike size-thresholded schemes, the dialog
// protocol compresses whenever the header declares GZIP, so small payloads
// (including the empty "{}" of lifecycle events) are compressed too.
func Compress(payload []byte) []byte {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	w.Write(payload) // writes to a bytes.Buffer cannot fail
	w.Close()
	return buf.Bytes()
}

// Decompress gunzips a payload.
func Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
