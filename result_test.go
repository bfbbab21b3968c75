package kurirgo

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

func newTestStreamResult(t *testing.T, body string) *Result {
	t.Helper()
	req, err := NewRequest(http.MethodGet, "https://example.com/stream", nil)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	resp := &http.Response{
		Status:     "200 OK",
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/octet-stream"}},
	}
	return newStreamResult(req, resp, io.NopCloser(strings.NewReader(body)))
}

func TestBufferedResultBody(t *testing.T) {
	req, _ := NewRequest(http.MethodGet, "https://example.com", nil)
	res := newBufferedResult(req, http.StatusOK, "200 OK", nil, []byte("payload"))

	if !res.Buffered() {
		t.Error("Expected buffered result to report Buffered")
	}

	body, err := res.Body()
	if err != nil {
		t.Fatalf("Body() returned error: %v", err)
	}
	if string(body) != "payload" {
		t.Errorf("Expected 'payload', got '%s'", body)
	}
}

func TestBufferedResultStatus(t *testing.T) {
	req, _ := NewRequest(http.MethodGet, "https://example.com", nil)
	res := newBufferedResult(req, http.StatusCreated, "201 Created", nil, nil)

	if res.StatusCode() != http.StatusCreated {
		t.Errorf("Expected status 201, got %d", res.StatusCode())
	}
	if res.Status() != "201 Created" {
		t.Errorf("Expected status line '201 Created', got '%s'", res.Status())
	}
	if !res.IsSuccess() {
		t.Error("Expected 201 to be a success")
	}
	if res.Request() != req {
		t.Error("Expected result to carry the originating request")
	}
}

func TestIsSuccessBoundaries(t *testing.T) {
	tests := []struct {
		status   int
		expected bool
	}{
		{199, false},
		{200, true},
		{204, true},
		{299, true},
		{300, false},
		{404, false},
		{500, false},
	}

	req, _ := NewRequest(http.MethodGet, "https://example.com", nil)
	for _, tc := range tests {
		res := newBufferedResult(req, tc.status, "", nil, nil)
		if res.IsSuccess() != tc.expected {
			t.Errorf("IsSuccess(%d) = %v, want %v", tc.status, res.IsSuccess(), tc.expected)
		}
	}
}

func TestStreamingResultBodyIdempotent(t *testing.T) {
	res := newTestStreamResult(t, "chunk1chunk2chunk3")

	first, err := res.Body()
	if err != nil {
		t.Fatalf("First Body() failed: %v", err)
	}

	second, err := res.Body()
	if err != nil {
		t.Fatalf("Second Body() failed: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Error("Expected both reads to return identical bytes")
	}
	if string(first) != "chunk1chunk2chunk3" {
		t.Errorf("Unexpected body: %s", first)
	}
	if !res.Buffered() {
		t.Error("Expected result to be buffered after Body()")
	}
}

func TestStreamingResultStreamTee(t *testing.T) {
	res := newTestStreamResult(t, "streamed payload")

	stream, err := res.Stream()
	if err != nil {
		t.Fatalf("Stream() failed: %v", err)
	}

	data, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("Reading stream failed: %v", err)
	}
	if string(data) != "streamed payload" {
		t.Errorf("Expected 'streamed payload', got '%s'", data)
	}

	// The tee sealed the snapshot at EOF, so Body works afterwards.
	body, err := res.Body()
	if err != nil {
		t.Fatalf("Body() after stream drain failed: %v", err)
	}
	if string(body) != "streamed payload" {
		t.Errorf("Expected teed snapshot, got '%s'", body)
	}
}

func TestStreamingResultSecondConsumerFails(t *testing.T) {
	res := newTestStreamResult(t, "once")

	if _, err := res.Stream(); err != nil {
		t.Fatalf("First Stream() failed: %v", err)
	}

	_, err := res.Stream()
	if !errors.Is(err, ErrStreamConsumed) {
		t.Errorf("Expected ErrStreamConsumed for second consumer, got %v", err)
	}
}

func TestStreamingResultBodyWhileConsumerActive(t *testing.T) {
	res := newTestStreamResult(t, "in flight")

	if _, err := res.Stream(); err != nil {
		t.Fatalf("Stream() failed: %v", err)
	}

	_, err := res.Body()
	if !errors.Is(err, ErrStreamConsumed) {
		t.Errorf("Expected ErrStreamConsumed while a consumer owns the stream, got %v", err)
	}
}

func TestStreamingResultStreamAfterBuffering(t *testing.T) {
	res := newTestStreamResult(t, "buffered first")

	if _, err := res.Body(); err != nil {
		t.Fatalf("Body() failed: %v", err)
	}

	_, err := res.Stream()
	if !errors.Is(err, ErrStreamConsumed) {
		t.Errorf("Expected ErrStreamConsumed once buffering has begun, got %v", err)
	}
}

func TestBufferedResultStreamReadsSnapshot(t *testing.T) {
	req, _ := NewRequest(http.MethodGet, "https://example.com", nil)
	res := newBufferedResult(req, http.StatusOK, "200 OK", nil, []byte("from memory"))

	stream, err := res.Stream()
	if err != nil {
		t.Fatalf("Stream() on buffered result failed: %v", err)
	}
	data, _ := io.ReadAll(stream)
	if string(data) != "from memory" {
		t.Errorf("Expected snapshot bytes, got '%s'", data)
	}

	// The snapshot stays readable regardless.
	body, err := res.Body()
	if err != nil {
		t.Fatalf("Body() failed: %v", err)
	}
	if string(body) != "from memory" {
		t.Errorf("Expected 'from memory', got '%s'", body)
	}
}

func TestSnapshotBuffersLiveStream(t *testing.T) {
	res := newTestStreamResult(t, "snapshot me")

	snap, err := res.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}
	if !snap.Buffered() {
		t.Error("Expected snapshot to be buffered")
	}

	body, err := snap.Body()
	if err != nil {
		t.Fatalf("Snapshot Body() failed: %v", err)
	}
	if string(body) != "snapshot me" {
		t.Errorf("Expected 'snapshot me', got '%s'", body)
	}
}

func TestSnapshotFailsWithActiveConsumer(t *testing.T) {
	res := newTestStreamResult(t, "owned elsewhere")

	if _, err := res.Stream(); err != nil {
		t.Fatalf("Stream() failed: %v", err)
	}

	_, err := res.Snapshot()
	if !errors.Is(err, ErrStreamConsumed) {
		t.Errorf("Expected ErrStreamConsumed, got %v", err)
	}
}

func TestSnapshotOfBufferedResult(t *testing.T) {
	req, _ := NewRequest(http.MethodGet, "https://example.com", nil)
	res := newBufferedResult(req, http.StatusOK, "200 OK",
		http.Header{"X-Test": []string{"1"}}, []byte("data"))

	snap, err := res.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}

	body, _ := snap.Body()
	if string(body) != "data" {
		t.Errorf("Expected 'data', got '%s'", body)
	}
	if snap.Header().Get("X-Test") != "1" {
		t.Error("Expected headers to be carried into the snapshot")
	}
	if snap.StatusCode() != http.StatusOK {
		t.Errorf("Expected status 200, got %d", snap.StatusCode())
	}
}

func TestResultJSON(t *testing.T) {
	req, _ := NewRequest(http.MethodGet, "https://example.com", nil)
	res := newBufferedResult(req, http.StatusOK, "200 OK", nil, []byte(`{"name":"kurir","id":7}`))

	var out struct {
		Name string `json:"name"`
		ID   int    `json:"id"`
	}
	if err := res.JSON(&out); err != nil {
		t.Fatalf("JSON() failed: %v", err)
	}
	if out.Name != "kurir" || out.ID != 7 {
		t.Errorf("Unexpected decoded value: %+v", out)
	}
}

func TestResultJSONInvalid(t *testing.T) {
	req, _ := NewRequest(http.MethodGet, "https://example.com", nil)
	res := newBufferedResult(req, http.StatusOK, "200 OK", nil, []byte("not json"))

	var out map[string]any
	if err := res.JSON(&out); err == nil {
		t.Error("Expected decode error for invalid JSON")
	}
}

func TestResultText(t *testing.T) {
	req, _ := NewRequest(http.MethodGet, "https://example.com", nil)
	res := newBufferedResult(req, http.StatusOK, "200 OK", nil, []byte("plain text"))

	text, err := res.Text()
	if err != nil {
		t.Fatalf("Text() failed: %v", err)
	}
	if text != "plain text" {
		t.Errorf("Expected 'plain text', got '%s'", text)
	}
}

func TestResultCopyForSharesSnapshot(t *testing.T) {
	reqA, _ := NewRequest(http.MethodGet, "https://example.com/a", nil)
	reqB, _ := NewRequest(http.MethodGet, "https://example.com/a", nil)
	res := newBufferedResult(reqA, http.StatusOK, "200 OK", nil, []byte("shared"))

	cacheCopy := res.cachedCopy(reqB)
	if !cacheCopy.FromCache() {
		t.Error("Expected cached copy to report FromCache")
	}
	if cacheCopy.Request() != reqB {
		t.Error("Expected copy to be attributed to the new request")
	}

	body, _ := cacheCopy.Body()
	if string(body) != "shared" {
		t.Errorf("Expected shared snapshot, got '%s'", body)
	}
	if res.FromCache() {
		t.Error("Expected the original to stay unmarked")
	}
}

func TestTransformStreamWrapsBeforeConsumption(t *testing.T) {
	res := newTestStreamResult(t, "abc")

	res.transformStream(func(body io.ReadCloser) io.ReadCloser {
		return readCloser{io.NopCloser(&upperReader{r: body}), body}
	})

	body, err := res.Body()
	if err != nil {
		t.Fatalf("Body() failed: %v", err)
	}
	if string(body) != "ABC" {
		t.Errorf("Expected transformed body 'ABC', got '%s'", body)
	}
}

func TestTransformStreamNoOpAfterConsumer(t *testing.T) {
	res := newTestStreamResult(t, "abc")

	if _, err := res.Stream(); err != nil {
		t.Fatalf("Stream() failed: %v", err)
	}

	called := false
	res.transformStream(func(body io.ReadCloser) io.ReadCloser {
		called = true
		return body
	})
	if called {
		t.Error("Expected transformStream to be a no-op once a consumer attached")
	}
}

func TestDiscardReleasesStream(t *testing.T) {
	closed := false
	req, _ := NewRequest(http.MethodGet, "https://example.com", nil)
	resp := &http.Response{Status: "200 OK", StatusCode: http.StatusOK, Header: http.Header{}}
	res := newStreamResult(req, resp, closeTracker{
		ReadCloser: io.NopCloser(strings.NewReader("unread")),
		onClose:    func() { closed = true },
	})

	res.discard()
	if !closed {
		t.Error("Expected discard to close the live stream")
	}
}

func TestStreamCloseEarlyLeavesSnapshotUnsealed(t *testing.T) {
	res := newTestStreamResult(t, "full body here")

	stream, err := res.Stream()
	if err != nil {
		t.Fatalf("Stream() failed: %v", err)
	}

	// Read a partial chunk, then close before EOF.
	buf := make([]byte, 4)
	if _, err := stream.Read(buf); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	stream.Close()

	if res.Buffered() {
		t.Error("Expected snapshot to stay unsealed after a partial read")
	}

	// Reads after close fail rather than silently continuing.
	if _, err := stream.Read(buf); err == nil {
		t.Error("Expected read after close to fail")
	}
}

func TestStreamChunkedDrainSealsSnapshot(t *testing.T) {
	res := newTestStreamResult(t, strings.Repeat("x", 64*1024))

	stream, err := res.Stream()
	if err != nil {
		t.Fatalf("Stream() failed: %v", err)
	}

	var total int
	buf := make([]byte, 1024)
	for {
		n, err := stream.Read(buf)
		total += n
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
	}
	if total != 64*1024 {
		t.Errorf("Expected 64KiB read in total, got %d", total)
	}

	body, err := res.Body()
	if err != nil {
		t.Fatalf("Body() after drain failed: %v", err)
	}
	if len(body) != 64*1024 {
		t.Errorf("Expected sealed snapshot of 64KiB, got %d bytes", len(body))
	}
}

// upperReader uppercases ASCII as it passes through.
type upperReader struct {
	r io.Reader
}

func (u *upperReader) Read(p []byte) (int, error) {
	n, err := u.r.Read(p)
	for i := 0; i < n; i++ {
		if p[i] >= 'a' && p[i] <= 'z' {
			p[i] -= 'a' - 'A'
		}
	}
	return n, err
}

// readCloser pairs a transformed reader with the original closer.
type readCloser struct {
	io.ReadCloser
	orig io.Closer
}

func (rc readCloser) Close() error {
	rc.ReadCloser.Close()
	return rc.orig.Close()
}

type closeTracker struct {
	io.ReadCloser
	onClose func()
}

func (c closeTracker) Close() error {
	c.onClose()
	return c.ReadCloser.Close()
}
