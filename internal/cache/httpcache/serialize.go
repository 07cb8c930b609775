package httpcache

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
)

// snapshotHeader starts every stored response snapshot
const snapshotHeader = "---HTTP-RESPONSE---\n"

// ErrCorruptSnapshot is returned for stored bytes that are not a response snapshot
var ErrCorruptSnapshot = errors.New("corrupt response snapshot")

// Serialize dumps resp in wire format. The response body stays readable.
func Serialize(resp *http.Response) ([]byte, error) {
	if resp == nil {
		return nil, errors.New("nil response")
	}

	var buf bytes.Buffer
	buf.WriteString(snapshotHeader)
	dump, err := httputil.DumpResponse(resp, true)
	if err != nil {
		return nil, err
	}
	buf.Write(dump)
	return buf.Bytes(), nil
}

// Deserialize parses a snapshot written by Serialize.
// The returned response is bound to req, which may be nil.
func Deserialize(b []byte, req *http.Request) (*http.Response, error) {
	payload, ok := bytes.CutPrefix(b, []byte(snapshotHeader))
	if !ok {
		return nil, fmt.Errorf("%w: missing snapshot header", ErrCorruptSnapshot)
	}

	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(payload)), req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}
	return resp, nil
}
