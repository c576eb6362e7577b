// SPDX-License-Identifier: MIT

//go:build unix

package vpn

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anilwee/dialog/internal/feed"
)

// fakeOpenVPN records its arguments and prints the readiness line.
const fakeOpenVPN = `#!/bin/sh
echo "$@" > "$(dirname "$0")/args"
echo "Initialization Sequence Completed"
exec sleep 30
`

const failingOpenVPN = `#!/bin/sh
echo "AUTH_FAILED" >&2
exit 1
`

func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "openvpn")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o700))
	return path
}

func testConfig(t *testing.T, binary string) Config {
	return Config{
		ConfigB64: base64.StdEncoding.EncodeToString([]byte("client\nremote vpn.example 1194\n")),
		Username:  "user",
		Password:  "secret",
		WorkDir:   t.TempDir(),
		Binary:    binary,
		Settle:    5 * time.Second,
	}
}

func TestPrepareMissingEnv(t *testing.T) {
	tun := NewTunnel(Config{Username: "u", WorkDir: t.TempDir()}, zerolog.Nop())
	err := tun.Prepare()
	require.ErrorIs(t, err, ErrMissingEnv)
	assert.Contains(t, err.Error(), EnvConfig)
	assert.Contains(t, err.Error(), EnvPassword)
	assert.NotContains(t, err.Error(), EnvUsername)
}

func TestPrepareWritesFiles(t *testing.T) {
	cfg := testConfig(t, "openvpn")
	tun := NewTunnel(cfg, zerolog.Nop())
	require.NoError(t, tun.Prepare())

	ovpn, err := os.ReadFile(filepath.Join(cfg.WorkDir, "config.ovpn"))
	require.NoError(t, err)
	assert.Equal(t, "client\nremote vpn.example 1194\n", string(ovpn))

	auth := filepath.Join(cfg.WorkDir, "auth.txt")
	data, err := os.ReadFile(auth)
	require.NoError(t, err)
	assert.Equal(t, "user\nsecret\n", string(data))
	info, err := os.Stat(auth)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, tun.Stop())
	_, err = os.Stat(auth)
	assert.True(t, os.IsNotExist(err), "credentials are removed on stop")
}

func TestPrepareBadBase64(t *testing.T) {
	cfg := testConfig(t, "openvpn")
	cfg.ConfigB64 = "!!not base64!!"
	require.Error(t, NewTunnel(cfg, zerolog.Nop()).Prepare())
}

func TestStartStop(t *testing.T) {
	bin := writeScript(t, t.TempDir(), fakeOpenVPN)
	cfg := testConfig(t, bin)
	tun := NewTunnel(cfg, zerolog.Nop())
	require.NoError(t, tun.Prepare())

	start := time.Now()
	require.NoError(t, tun.Start(context.Background()))
	assert.Less(t, time.Since(start), 4*time.Second, "readiness line ends the wait early")

	args, err := os.ReadFile(filepath.Join(filepath.Dir(bin), "args"))
	require.NoError(t, err)
	assert.Equal(t, "--config "+filepath.Join(cfg.WorkDir, "config.ovpn")+" --auth-user-pass "+filepath.Join(cfg.WorkDir, "auth.txt"), strings.TrimSpace(string(args)))

	require.NoError(t, tun.Stop())
	require.NoError(t, tun.Stop())
}

func TestStartProcessExits(t *testing.T) {
	cfg := testConfig(t, writeScript(t, t.TempDir(), failingOpenVPN))
	tun := NewTunnel(cfg, zerolog.Nop())
	require.NoError(t, tun.Prepare())
	err := tun.Start(context.Background())
	require.ErrorIs(t, err, ErrTunnelExited)
	require.NoError(t, tun.Stop())
}

func TestVerify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ip":"203.0.113.7","country":"LK"}`))
	}))
	defer srv.Close()

	cfg := testConfig(t, "openvpn")
	cfg.CheckURL = srv.URL
	info, err := NewTunnel(cfg, zerolog.Nop()).Verify(context.Background())
	require.NoError(t, err)
	assert.Contains(t, info, `"country":"LK"`)
}

func gzipped(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestAcquire(t *testing.T) {
	const doc = `<tv><channel id="hiru.lk"><display-name>Hiru TV</display-name></channel></tv>`
	payload := gzipped(t, doc)
	var checked atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ip":
			checked.Store(true)
			_, _ = w.Write([]byte("203.0.113.7"))
		case "/epg/epg.xml.gz":
			_, _ = w.Write(payload)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg := testConfig(t, writeScript(t, t.TempDir(), fakeOpenVPN))
	cfg.CheckURL = srv.URL + "/ip"
	work := t.TempDir()
	public := filepath.Join(t.TempDir(), "public")

	res, err := Acquire(context.Background(), AcquireConfig{
		UseVPN:    true,
		VPN:       cfg,
		FeedURL:   srv.URL + "/epg/epg.xml.gz",
		WorkDir:   work,
		PublicDir: public,
	}, feed.NewFetcherWithClient(srv.Client(), zerolog.Nop()), zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, checked.Load())
	assert.Equal(t, "203.0.113.7", res.IPInfo)
	assert.Equal(t, filepath.Join(public, "epg.xml"), res.Extracted)
	assert.Equal(t, filepath.Join(public, "epg.xml.gz"), res.Compressed)

	got, err := os.ReadFile(res.Extracted)
	require.NoError(t, err)
	assert.Equal(t, doc, string(got))

	_, err = os.Stat(filepath.Join(cfg.WorkDir, "auth.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestAcquireDirectDownloadFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	public := filepath.Join(t.TempDir(), "public")
	_, err := Acquire(context.Background(), AcquireConfig{
		FeedURL:   srv.URL + "/epg.xml.gz",
		WorkDir:   t.TempDir(),
		PublicDir: public,
	}, feed.NewFetcherWithClient(srv.Client(), zerolog.Nop()), zerolog.Nop())
	require.Error(t, err)
	_, statErr := os.Stat(public)
	assert.True(t, os.IsNotExist(statErr), "nothing is published after a failure")
}
