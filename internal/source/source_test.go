package source

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // maintained fork
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allycraft/allycraft/internal/version"
)

func descriptor(size int64) version.Descriptor {
	return version.Descriptor{
		Version: version.MustParse("1.21.0"),
		Code:    "972100",
		Size:    size,
	}
}

func newTestDownloader(t *testing.T, template string, keyring string) *HTTPDownloader {
	t.Helper()
	d, err := NewHTTPDownloader(HTTPConfig{
		URLTemplate: template,
		KeyringPath: keyring,
		Retries:     1,
		RetryWait:   time.Millisecond,
	})
	require.NoError(t, err)
	return d
}

func TestURLFor(t *testing.T) {
	d := newTestDownloader(t, "https://mirror.example/{version}/{code}.zip", "")
	url, err := d.URLFor(descriptor(1))
	require.NoError(t, err)
	assert.Equal(t, "https://mirror.example/1.21.0/972100.zip", url)

	empty := newTestDownloader(t, "", "")
	_, err = empty.URLFor(descriptor(1))
	assert.ErrorIs(t, err, ErrNoURL)
}

func TestDownload(t *testing.T) {
	body := bytes.Repeat([]byte("package-"), 4096)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/1.21.0/972100.zip", r.URL.Path)
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		w.Write(body)
	}))
	defer server.Close()

	d := newTestDownloader(t, server.URL+"/{version}/{code}.zip", "")
	dest := filepath.Join(t.TempDir(), "dl", "package.zip")

	var last int64
	calls := 0
	err := d.Download(context.Background(), descriptor(int64(len(body))), dest, func(received, total int64) {
		assert.GreaterOrEqual(t, received, last)
		last = received
		calls++
	})
	require.NoError(t, err)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, body, got)
	assert.Equal(t, int64(len(body)), last)
	assert.Positive(t, calls)
	assert.NoFileExists(t, dest+".part")
}

func TestDownloadStatusErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"not_found", http.StatusNotFound},
		{"server_error", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			d := newTestDownloader(t, server.URL+"/{version}", "")
			dest := filepath.Join(t.TempDir(), "package.zip")

			err := d.Download(context.Background(), descriptor(10), dest, nil)
			require.Error(t, err)
			assert.NoFileExists(t, dest)
			assert.NoFileExists(t, dest+".part")
		})
	}
}

func TestDownloadRetriesTransientFailure(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	d := newTestDownloader(t, server.URL+"/{version}", "")
	dest := filepath.Join(t.TempDir(), "package.zip")

	require.NoError(t, d.Download(context.Background(), descriptor(2), dest, nil))
	assert.Equal(t, int32(2), hits.Load())
}

func TestDownloadCancelled(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1048576")
		w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	d := newTestDownloader(t, server.URL+"/{version}", "")
	dest := filepath.Join(t.TempDir(), "package.zip")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	err := d.Download(ctx, descriptor(1048576), dest, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	assert.NoFileExists(t, dest)
	assert.NoFileExists(t, dest+".part")
}

func TestDownloadChecksum(t *testing.T) {
	body := []byte("game package")
	sum := sha256.Sum256(body)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer server.Close()

	d := newTestDownloader(t, server.URL+"/{version}", "")

	good := descriptor(int64(len(body)))
	good.SHA256 = hex.EncodeToString(sum[:])
	dest := filepath.Join(t.TempDir(), "good.zip")
	require.NoError(t, d.Download(context.Background(), good, dest, nil))
	assert.FileExists(t, dest)

	bad := good
	bad.SHA256 = hex.EncodeToString(make([]byte, 32))
	dest = filepath.Join(t.TempDir(), "bad.zip")
	err := d.Download(context.Background(), bad, dest, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
	assert.NoFileExists(t, dest)
}

// signingFixture returns a keyring file and a function producing armored
// detached signatures for it.
func signingFixture(t *testing.T) (string, func([]byte) []byte) {
	t.Helper()
	entity, err := openpgp.NewEntity("allycraft test", "", "test@allycraft.invalid", nil)
	require.NoError(t, err)

	var pub bytes.Buffer
	require.NoError(t, entity.Serialize(&pub))
	keyring := filepath.Join(t.TempDir(), "packages.gpg")
	require.NoError(t, os.WriteFile(keyring, pub.Bytes(), 0o644))

	sign := func(data []byte) []byte {
		var sig bytes.Buffer
		require.NoError(t, openpgp.ArmoredDetachSign(&sig, entity, bytes.NewReader(data), nil))
		return sig.Bytes()
	}
	return keyring, sign
}

func TestDownloadSignature(t *testing.T) {
	keyring, sign := signingFixture(t)
	body := []byte("signed game package")
	sig := sign(body)
	var tampered atomic.Bool

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/1.21.0.zip":
			if tampered.Load() {
				w.Write([]byte("tampered game package"))
				return
			}
			w.Write(body)
		case "/1.21.0.zip.sig":
			w.Write(sig)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	d := newTestDownloader(t, server.URL+"/{version}.zip", keyring)

	dest := filepath.Join(t.TempDir(), "package.zip")
	require.NoError(t, d.Download(context.Background(), descriptor(int64(len(body))), dest, nil))
	assert.FileExists(t, dest)
	assert.NoFileExists(t, dest+".sig")

	tampered.Store(true)
	dest = filepath.Join(t.TempDir(), "package.zip")
	err := d.Download(context.Background(), descriptor(int64(len(body))), dest, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verify signature")
	assert.NoFileExists(t, dest)
}

func TestDownloadMissingSignature(t *testing.T) {
	keyring, _ := signingFixture(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if filepath.Ext(r.URL.Path) == ".sig" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("unsigned"))
	}))
	defer server.Close()

	d := newTestDownloader(t, server.URL+"/{version}.zip", keyring)
	dest := filepath.Join(t.TempDir(), "package.zip")

	err := d.Download(context.Background(), descriptor(8), dest, nil)
	require.Error(t, err)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
	assert.NoFileExists(t, dest)
}

func TestNewVerifierErrors(t *testing.T) {
	_, err := NewVerifier(filepath.Join(t.TempDir(), "missing.gpg"))
	assert.Error(t, err)

	garbage := filepath.Join(t.TempDir(), "garbage.gpg")
	require.NoError(t, os.WriteFile(garbage, []byte("not a keyring"), 0o644))
	_, err = NewVerifier(garbage)
	assert.Error(t, err)

	_, err = NewHTTPDownloader(HTTPConfig{KeyringPath: garbage})
	assert.Error(t, err)
}

func TestVerifySHA256(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	// sha256("abc")
	const sum = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	assert.NoError(t, VerifySHA256(path, sum))
	assert.NoError(t, VerifySHA256(path, "BA7816BF8F01CFEA414140DE5DAE2223B00361A396177A9CB410FF61F20015AD"))
	assert.Error(t, VerifySHA256(path, "00"))
	assert.Error(t, VerifySHA256(filepath.Join(t.TempDir(), "missing"), sum))
}
