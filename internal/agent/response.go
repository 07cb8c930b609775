package agent

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"sync"
)

// cloneResponse returns a copy of resp reading body from the start.
// Every call yields an independent body, so one network response can be
// handed to the caller and to the store at the same time.
func cloneResponse(resp *http.Response, body []byte) *http.Response {
	clone := new(http.Response)
	*clone = *resp
	clone.Header = resp.Header.Clone()
	if clone.Header == nil {
		clone.Header = make(http.Header)
	}
	clone.Trailer = resp.Trailer.Clone()
	clone.Body = io.NopCloser(bytes.NewReader(body))
	clone.ContentLength = int64(len(body))
	clone.TransferEncoding = nil
	return clone
}

func cloneURL(u *url.URL) *url.URL {
	clone := *u
	if u.User != nil {
		user := *u.User
		clone.User = &user
	}
	return &clone
}

// teeBody hands the network body to the caller while keeping a copy.
// Once the caller has read it to EOF, complete receives the full copy.
// An early Close, a read error or a body larger than limit drops the copy.
type teeBody struct {
	body     io.ReadCloser
	buf      bytes.Buffer
	expected int64
	limit    int64
	complete func([]byte)
	drop     func(reason string)

	mu   sync.Mutex
	done bool
}

// newTeeBody wraps body. expected is the announced length, -1 when unknown.
// A limit of zero or less keeps copies of any size.
func newTeeBody(body io.ReadCloser, expected, limit int64, complete func([]byte), drop func(reason string)) *teeBody {
	return &teeBody{body: body, expected: expected, limit: limit, complete: complete, drop: drop}
}

func (t *teeBody) Read(p []byte) (int, error) {
	n, err := t.body.Read(p)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return n, err
	}
	if t.limit > 0 && int64(t.buf.Len()+n) > t.limit {
		t.finish(false, "response larger than the store limit")
		return n, err
	}
	t.buf.Write(p[:n])

	switch {
	case err == io.EOF:
		t.finish(true, "")
	case err != nil:
		t.finish(false, err.Error())
	}
	return n, err
}

func (t *teeBody) Close() error {
	err := t.body.Close()

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.done {
		// a caller may stop reading right after the announced length
		whole := t.expected >= 0 && int64(t.buf.Len()) == t.expected
		t.finish(whole, "body closed before EOF")
	}
	return err
}

// finish must be called with mu held
func (t *teeBody) finish(ok bool, reason string) {
	t.done = true
	if ok {
		t.complete(t.buf.Bytes())
	} else {
		t.drop(reason)
	}
	t.buf = bytes.Buffer{}
}
