package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"artifetch/pkg/hashutil"
	"artifetch/pkg/mirror"
)

func newTestServer(t *testing.T, content []byte) (*httptest.Server, *int64) {
	t.Helper()
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		_, _ = w.Write(content)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestClient(t *testing.T, cacheRoot string, rec Recorder) *Client {
	t.Helper()
	c, err := New(Options{CacheRoot: cacheRoot, Recorder: rec})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func sha1Of(t *testing.T, b []byte) string {
	t.Helper()
	d, err := hashutil.DigestBytes(b, "sha1")
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	return d
}

func TestFetchVerifyPublish(t *testing.T) {
	t.Parallel()

	content := []byte("known fixture bytes")
	srv, hits := newTestServer(t, content)
	dir := t.TempDir()
	c := newTestClient(t, filepath.Join(dir, "cache"), nil)

	out := filepath.Join(dir, "lib", "foo.jar")
	res, err := c.Fetch(context.Background(), Request{
		OutputPath:   out,
		URL:          srv.URL + "/group/artifact/1.0/artifact-1.0.jar",
		ExpectedHash: sha1Of(t, content),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.CacheHit {
		t.Fatal("first fetch must not be a cache hit")
	}
	if atomic.LoadInt64(hits) != 1 {
		t.Fatalf("expected 1 transfer, got %d", atomic.LoadInt64(hits))
	}

	got, err := hashutil.Digest(out, "sha1")
	if err != nil {
		t.Fatalf("digest published file: %v", err)
	}
	if got != sha1Of(t, content) {
		t.Fatalf("published digest mismatch: got=%q", got)
	}
}

func TestFetchIdempotentCacheHit(t *testing.T) {
	t.Parallel()

	content := []byte("cached artifact")
	srv, hits := newTestServer(t, content)
	dir := t.TempDir()
	c := newTestClient(t, filepath.Join(dir, "cache"), nil)

	req := Request{
		OutputPath:   filepath.Join(dir, "lib", "a.jar"),
		URL:          srv.URL + "/a.jar",
		ExpectedHash: sha1Of(t, content),
	}
	if _, err := c.Fetch(context.Background(), req); err != nil {
		t.Fatalf("first fetch: %v", err)
	}

	// The destination is re-publishable even if deleted between runs.
	if err := os.Remove(req.OutputPath); err != nil {
		t.Fatalf("remove dest: %v", err)
	}

	res, err := c.Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if !res.CacheHit {
		t.Fatal("second fetch must be a cache hit")
	}
	if atomic.LoadInt64(hits) != 1 {
		t.Fatalf("cache hit must not transfer: hits=%d", atomic.LoadInt64(hits))
	}
	if _, err := os.Stat(req.OutputPath); err != nil {
		t.Fatalf("destination missing after cache hit: %v", err)
	}
}

func TestFetchIntegrityMismatchPurgesEntry(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, []byte("tampered bytes"))
	dir := t.TempDir()
	c := newTestClient(t, filepath.Join(dir, "cache"), nil)

	expected := sha1Of(t, []byte("the real bytes"))
	res, err := c.Fetch(context.Background(), Request{
		OutputPath:   filepath.Join(dir, "lib", "a.jar"),
		URL:          srv.URL + "/a.jar",
		ExpectedHash: expected,
	})
	if !errors.Is(err, ErrIntegrityMismatch) {
		t.Fatalf("expected integrity mismatch, got %v", err)
	}

	var ierr *IntegrityError
	if !errors.As(err, &ierr) {
		t.Fatalf("expected *IntegrityError, got %T", err)
	}
	if ierr.Expected != expected {
		t.Fatalf("expected digest mismatch in error: got=%q want=%q", ierr.Expected, expected)
	}
	if ierr.Actual != sha1Of(t, []byte("tampered bytes")) {
		t.Fatalf("actual digest mismatch in error: got=%q", ierr.Actual)
	}
	if ierr.URL == "" {
		t.Fatal("error must carry the resolved URL")
	}

	if _, statErr := os.Stat(res.EntryPath); !os.IsNotExist(statErr) {
		t.Fatalf("corrupt entry must be purged: stat=%v", statErr)
	}
}

func TestFetchVerifiesCachedEntry(t *testing.T) {
	t.Parallel()

	content := []byte("good bytes")
	srv, _ := newTestServer(t, content)
	dir := t.TempDir()
	cacheRoot := filepath.Join(dir, "cache")
	c := newTestClient(t, cacheRoot, nil)

	// Plant a corrupt entry at the derived path, as if a previous run was
	// tampered with after caching.
	expected := sha1Of(t, content)
	entry := filepath.Join(cacheRoot, "a.jar-"+expected)
	if err := os.MkdirAll(cacheRoot, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(entry, []byte("corrupted"), 0644); err != nil {
		t.Fatalf("plant entry: %v", err)
	}

	_, err := c.Fetch(context.Background(), Request{
		OutputPath:   filepath.Join(dir, "a.jar"),
		URL:          srv.URL + "/a.jar",
		ExpectedHash: expected,
	})
	if !errors.Is(err, ErrIntegrityMismatch) {
		t.Fatalf("expected integrity mismatch for tampered cache entry, got %v", err)
	}
	if _, statErr := os.Stat(entry); !os.IsNotExist(statErr) {
		t.Fatal("tampered entry must be purged")
	}
}

func TestFetchHashKeyedInvalidation(t *testing.T) {
	t.Parallel()

	content := []byte("v2 content")
	srv, hits := newTestServer(t, content)
	dir := t.TempDir()
	c := newTestClient(t, filepath.Join(dir, "cache"), nil)

	url := srv.URL + "/a.jar"
	out := filepath.Join(dir, "a.jar")
	if _, err := c.Fetch(context.Background(), Request{OutputPath: out, URL: url, ExpectedHash: sha1Of(t, content)}); err != nil {
		t.Fatalf("first fetch: %v", err)
	}

	// A different pinned hash derives a different entry path, so the stale
	// entry is ignored and the artifact is fetched again.
	res, err := c.Fetch(context.Background(), Request{OutputPath: out, URL: url, ExpectedHash: sha1Of(t, content)})
	if err != nil {
		t.Fatalf("same-hash fetch: %v", err)
	}
	if !res.CacheHit {
		t.Fatal("same hash must hit the cache")
	}

	_, err = c.Fetch(context.Background(), Request{OutputPath: out, URL: url, ExpectedHash: sha1Of(t, []byte("other"))})
	if !errors.Is(err, ErrIntegrityMismatch) {
		t.Fatalf("expected integrity mismatch for wrong pin, got %v", err)
	}
	if atomic.LoadInt64(hits) != 2 {
		t.Fatalf("changed hash must re-fetch: hits=%d", atomic.LoadInt64(hits))
	}
}

func TestFetchUnpinnedURLIdentity(t *testing.T) {
	t.Parallel()

	srv, hits := newTestServer(t, []byte("unpinned"))
	dir := t.TempDir()
	c := newTestClient(t, filepath.Join(dir, "cache"), nil)

	req := Request{OutputPath: filepath.Join(dir, "a.jar"), URL: srv.URL + "/a.jar"}
	res, err := c.Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if res.Digest != "" {
		t.Fatalf("unpinned fetch must not report a digest: got=%q", res.Digest)
	}

	res, err = c.Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if !res.CacheHit || atomic.LoadInt64(hits) != 1 {
		t.Fatalf("unpinned re-fetch must hit cache: hit=%v hits=%d", res.CacheHit, atomic.LoadInt64(hits))
	}
}

func TestFetchInvalidRequests(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c := newTestClient(t, filepath.Join(dir, "cache"), nil)

	_, err := c.Fetch(context.Background(), Request{OutputPath: "", URL: "http://x/a"})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid request for empty output, got %v", err)
	}

	_, err = c.Fetch(context.Background(), Request{OutputPath: "a.jar", URL: "no-scheme"})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid request for schemeless url, got %v", err)
	}

	// No side effects: the cache root must not even exist.
	if _, statErr := os.Stat(filepath.Join(dir, "cache")); !os.IsNotExist(statErr) {
		t.Fatal("invalid request must not touch the cache")
	}
}

func TestFetchTransferFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	c := newTestClient(t, filepath.Join(dir, "cache"), nil)

	res, err := c.Fetch(context.Background(), Request{
		OutputPath: filepath.Join(dir, "a.jar"),
		URL:        srv.URL + "/a.jar",
	})
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected transfer failure, got %v", err)
	}
	if _, statErr := os.Stat(res.EntryPath); !os.IsNotExist(statErr) {
		t.Fatal("failed transfer must leave no cache entry")
	}
}

func TestFetchMirrorOverrideScenario(t *testing.T) {
	t.Parallel()

	content := []byte("mirrored artifact")
	srv, _ := newTestServer(t, content)

	dir := t.TempDir()
	conf := filepath.Join(dir, "artifetch.properties")
	if err := os.WriteFile(conf, []byte(fmt.Sprintf("download.MAVEN_CENTRAL=%s/maven2\n", srv.URL)), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	c, err := New(Options{
		CacheRoot: filepath.Join(dir, "cache"),
		Mirrors:   mirror.Load(conf, ""),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	res, err := c.Fetch(context.Background(), Request{
		OutputPath:   filepath.Join(dir, "lib", "foo.jar"),
		URL:          "MAVEN_CENTRAL:group/artifact/1.0/artifact-1.0.jar",
		ExpectedHash: sha1Of(t, content),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := srv.URL + "/maven2/group/artifact/1.0/artifact-1.0.jar"
	if res.ResolvedURL != want {
		t.Fatalf("resolved url mismatch: got=%q want=%q", res.ResolvedURL, want)
	}
}

type memRecorder struct {
	events []Event
	fail   bool
}

func (r *memRecorder) Record(ctx context.Context, ev Event) error {
	if r.fail {
		return errors.New("recorder down")
	}
	r.events = append(r.events, ev)
	return nil
}

func TestFetchRecordsEvents(t *testing.T) {
	t.Parallel()

	content := []byte("recorded")
	srv, _ := newTestServer(t, content)
	dir := t.TempDir()
	rec := &memRecorder{}
	c := newTestClient(t, filepath.Join(dir, "cache"), rec)

	req := Request{
		OutputPath:   filepath.Join(dir, "a.jar"),
		URL:          srv.URL + "/a.jar",
		ExpectedHash: sha1Of(t, content),
	}
	if _, err := c.Fetch(context.Background(), req); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if _, err := c.Fetch(context.Background(), req); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if len(rec.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(rec.events))
	}
	if rec.events[0].Outcome != "ok" || rec.events[0].CacheHit {
		t.Fatalf("first event mismatch: %+v", rec.events[0])
	}
	if !rec.events[1].CacheHit {
		t.Fatalf("second event must be a cache hit: %+v", rec.events[1])
	}
}

func TestFetchRecorderFailureIsBestEffort(t *testing.T) {
	t.Parallel()

	content := []byte("still works")
	srv, _ := newTestServer(t, content)
	dir := t.TempDir()
	c := newTestClient(t, filepath.Join(dir, "cache"), &memRecorder{fail: true})

	if _, err := c.Fetch(context.Background(), Request{
		OutputPath: filepath.Join(dir, "a.jar"),
		URL:        srv.URL + "/a.jar",
	}); err != nil {
		t.Fatalf("recorder failure must not fail the fetch: %v", err)
	}
}

func TestNewRejectsBadOptions(t *testing.T) {
	t.Parallel()

	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error for missing cache root")
	}
	if _, err := New(Options{CacheRoot: "/tmp/x", Algo: "md5"}); err == nil {
		t.Fatal("expected error for unsupported algorithm")
	}
}
