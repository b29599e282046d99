package fetch

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "github.com/provide-io/flavor/go/bullet3/pkg/recipe/errors"
)

const testVersion = "2.88"

func sourceTarball(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)

	files := map[string]string{
		"bullet3-2.88/CMakeLists.txt": "project(BULLET_PHYSICS)\n",
		"bullet3-2.88/LICENSE.txt":    "zlib\n",
	}
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "bullet3-2.88/", Typeflag: tar.TypeDir, Mode: 0o755}))
	for _, name := range []string{"bullet3-2.88/CMakeLists.txt", "bullet3-2.88/LICENSE.txt"} {
		body := files[name]
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(body))}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())
	return buf.Bytes()
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

type fixture struct {
	server   *httptest.Server
	requests *atomic.Int32
	resolver *Resolver
	fetcher  *Fetcher
	workDir  string
	payload  []byte
}

func newFixture(t *testing.T, handler func(w http.ResponseWriter, payload []byte)) *fixture {
	t.Helper()
	payload := sourceTarball(t)
	requests := &atomic.Int32{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "/bulletphysics/bullet3/archive/2.88.tar.gz", r.URL.Path)
		assert.Equal(t, "bullet3-recipe", r.Header.Get("User-Agent"))
		handler(w, payload)
	}))
	t.Cleanup(server.Close)

	resolver, err := NewResolver("bullet3",
		Upstream{Host: server.URL, Owner: "bulletphysics", Repo: "bullet3"},
		map[string]string{testVersion: sha256Hex(payload)},
		filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)

	logger := hclog.NewNullLogger()
	client := NewClient(ClientOptions{Timeout: 5 * time.Second, Retries: 0}, logger)

	return &fixture{
		server:   server,
		requests: requests,
		resolver: resolver,
		fetcher:  NewFetcher(client, time.Second, logger),
		workDir:  t.TempDir(),
		payload:  payload,
	}
}

func serve(w http.ResponseWriter, payload []byte) {
	w.Header().Set("Content-Type", "application/gzip")
	_, _ = w.Write(payload)
}

func TestResolve_IsPure(t *testing.T) {
	r, err := NewResolver("bullet3",
		Upstream{Host: "https://github.com/", Owner: "bulletphysics", Repo: "bullet3"},
		map[string]string{testVersion: "21c135775527754fc2929db1db5144e92ad0218ae72840a9f162acb467a7bbf9"},
		"/tmp")
	require.NoError(t, err)

	first, err := r.Resolve(testVersion)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := r.Resolve(testVersion)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	assert.Equal(t, "https://github.com/bulletphysics/bullet3/archive/2.88.tar.gz", first.URL)
	assert.Equal(t, "sha256:21c135775527754fc2929db1db5144e92ad0218ae72840a9f162acb467a7bbf9", first.Digest.String())
	assert.Equal(t, filepath.Join("/tmp", "bullet3-2.88.tar.gz"), first.CachePath)
	assert.Equal(t, "bullet3-2.88", first.ExtractedDir)
}

func TestResolve_SemverSpelling(t *testing.T) {
	r, err := NewResolver("bullet3", Upstream{Host: "https://example.com"},
		map[string]string{testVersion: sha256Hex([]byte("x"))}, "/tmp")
	require.NoError(t, err)

	src, err := r.Resolve("2.88.0")
	require.NoError(t, err)
	assert.Equal(t, testVersion, src.Version)

	_, err = r.Resolve("2.89")
	assert.ErrorIs(t, err, rerrors.ErrUnknownVersion)
}

func TestNewResolver_RejectsBadChecksum(t *testing.T) {
	_, err := NewResolver("bullet3", Upstream{}, map[string]string{testVersion: "not-hex"}, "/tmp")
	assert.Error(t, err)
}

func TestAcquire_DownloadsAndVerifies(t *testing.T) {
	fx := newFixture(t, serve)
	src, err := fx.resolver.Resolve(testVersion)
	require.NoError(t, err)

	a, err := fx.fetcher.Acquire(context.Background(), src, false)
	require.NoError(t, err)
	assert.False(t, a.Cached)
	assert.Equal(t, int32(1), fx.requests.Load())

	data, err := os.ReadFile(src.CachePath)
	require.NoError(t, err)
	assert.Equal(t, fx.payload, data)

	matches, err := filepath.Glob(src.CachePath + ".*.part")
	require.NoError(t, err)
	assert.Empty(t, matches, "no partial downloads left behind")
}

func TestAcquire_CachedFileSkipsNetwork(t *testing.T) {
	fx := newFixture(t, serve)
	src, err := fx.resolver.Resolve(testVersion)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Dir(src.CachePath), 0o755))
	require.NoError(t, os.WriteFile(src.CachePath, fx.payload, 0o644))

	a, err := fx.fetcher.Acquire(context.Background(), src, false)
	require.NoError(t, err)
	assert.True(t, a.Cached)
	assert.Equal(t, int32(0), fx.requests.Load())
}

func TestAcquire_ForceRedownloads(t *testing.T) {
	fx := newFixture(t, serve)
	src, err := fx.resolver.Resolve(testVersion)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Dir(src.CachePath), 0o755))
	require.NoError(t, os.WriteFile(src.CachePath, []byte("stale"), 0o644))

	a, err := fx.fetcher.Acquire(context.Background(), src, true)
	require.NoError(t, err)
	assert.False(t, a.Cached)
	assert.Equal(t, int32(1), fx.requests.Load())
}

func TestSource_TamperedCacheNeverExtracts(t *testing.T) {
	fx := newFixture(t, serve)
	src, err := fx.resolver.Resolve(testVersion)
	require.NoError(t, err)

	tampered := append([]byte(nil), fx.payload...)
	tampered[len(tampered)-1] ^= 0xff
	require.NoError(t, os.MkdirAll(filepath.Dir(src.CachePath), 0o755))
	require.NoError(t, os.WriteFile(src.CachePath, tampered, 0o644))

	_, err = fx.fetcher.Source(context.Background(), src, fx.workDir, "sources", false)
	require.Error(t, err)

	var integrity *rerrors.IntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, src.Digest.String(), integrity.Expected)
	assert.ErrorIs(t, err, rerrors.ErrIntegrityCheckFailed)
	assert.Equal(t, int32(0), fx.requests.Load())

	entries, err := os.ReadDir(fx.workDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing may be extracted after a failed verification")
}

func TestAcquire_ServedContentMismatch(t *testing.T) {
	fx := newFixture(t, func(w http.ResponseWriter, payload []byte) {
		_, _ = w.Write([]byte("not the release tarball"))
	})
	src, err := fx.resolver.Resolve(testVersion)
	require.NoError(t, err)

	_, err = fx.fetcher.Acquire(context.Background(), src, false)
	var integrity *rerrors.IntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, src.URL, integrity.Path)
	assert.ErrorIs(t, err, rerrors.ErrIntegrityCheckFailed)

	assert.NoFileExists(t, src.CachePath, "a corrupt download must not poison the cache")
	matches, err := filepath.Glob(src.CachePath + ".*.part")
	require.NoError(t, err)
	assert.Empty(t, matches)

	_, err = fx.fetcher.Acquire(context.Background(), src, false)
	assert.ErrorIs(t, err, rerrors.ErrIntegrityCheckFailed)
	assert.Equal(t, int32(2), fx.requests.Load(), "the next run downloads again without forcing")
}

func TestAcquire_HTTPErrorIsNetworkError(t *testing.T) {
	fx := newFixture(t, func(w http.ResponseWriter, payload []byte) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	src, err := fx.resolver.Resolve(testVersion)
	require.NoError(t, err)

	_, err = fx.fetcher.Acquire(context.Background(), src, false)
	var netErr *rerrors.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, http.StatusNotFound, netErr.StatusCode)
	assert.ErrorIs(t, err, rerrors.ErrNetwork)

	_, statErr := os.Stat(src.CachePath)
	assert.True(t, os.IsNotExist(statErr), "failed downloads leave no cache file")
}

func TestAcquire_RetriesServerErrors(t *testing.T) {
	attempts := &atomic.Int32{}
	fx := newFixture(t, func(w http.ResponseWriter, payload []byte) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		serve(w, payload)
	})
	fx.fetcher = NewFetcher(NewClient(ClientOptions{
		Timeout:      5 * time.Second,
		Retries:      2,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
	}, hclog.NewNullLogger()), time.Second, hclog.NewNullLogger())

	src, err := fx.resolver.Resolve(testVersion)
	require.NoError(t, err)

	_, err = fx.fetcher.Acquire(context.Background(), src, false)
	require.NoError(t, err)
	assert.Equal(t, int32(2), fx.requests.Load())
}

func TestAcquire_UnreachableHost(t *testing.T) {
	fx := newFixture(t, serve)
	src, err := fx.resolver.Resolve(testVersion)
	require.NoError(t, err)
	fx.server.Close()

	_, err = fx.fetcher.Acquire(context.Background(), src, false)
	var netErr *rerrors.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Zero(t, netErr.StatusCode)
}

func TestSource_ExtractsToCanonicalSubfolder(t *testing.T) {
	fx := newFixture(t, serve)
	src, err := fx.resolver.Resolve(testVersion)
	require.NoError(t, err)

	dir, err := fx.fetcher.Source(context.Background(), src, fx.workDir, "sources", false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(fx.workDir, "sources"), dir)

	data, err := os.ReadFile(filepath.Join(dir, "LICENSE.txt"))
	require.NoError(t, err)
	assert.Equal(t, "zlib\n", string(data))

	entries, err := os.ReadDir(fx.workDir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary extraction directories are cleaned up")
}

func TestSource_ExistingSubfolderConflicts(t *testing.T) {
	fx := newFixture(t, serve)
	src, err := fx.resolver.Resolve(testVersion)
	require.NoError(t, err)

	stale := filepath.Join(fx.workDir, "sources")
	require.NoError(t, os.MkdirAll(stale, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(stale, "marker"), []byte("old"), 0o644))

	_, err = fx.fetcher.Source(context.Background(), src, fx.workDir, "sources", false)
	var conflict *rerrors.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, stale, conflict.Path)

	data, err := os.ReadFile(filepath.Join(stale, "marker"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(data), "existing sources are never overwritten")
}

func TestAcquire_WaitsForLockHolder(t *testing.T) {
	fx := newFixture(t, serve)
	src, err := fx.resolver.Resolve(testVersion)
	require.NoError(t, err)

	unlock, err := acquireLock(context.Background(), src.CachePath, time.Second, hclog.NewNullLogger())
	require.NoError(t, err)

	fx.fetcher = NewFetcher(NewClient(ClientOptions{Timeout: time.Second}, hclog.NewNullLogger()), 200*time.Millisecond, hclog.NewNullLogger())
	_, err = fx.fetcher.Acquire(context.Background(), src, false)
	assert.ErrorContains(t, err, "timeout waiting for cache lock")

	unlock()
	_, err = fx.fetcher.Acquire(context.Background(), src, false)
	assert.NoError(t, err)
}
