// SPDX-License-Identifier: MIT

// Package vpn brings up an OpenVPN tunnel from environment-supplied
// credentials so the upstream feed can be fetched from an allowed region.
package vpn

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	lklog "github.com/anilwee/dialog/internal/log"
	"github.com/anilwee/dialog/internal/platform/httpx"
	"github.com/anilwee/dialog/internal/procgroup"
)

// Environment variables holding the tunnel credentials.
const (
	EnvConfig   = "OVPN_FILE"
	EnvUsername = "VPN_USERNAME"
	EnvPassword = "VPN_PASSWORD"
)

const (
	configFile = "config.ovpn"
	authFile   = "auth.txt"

	readyMarker  = "Initialization Sequence Completed"
	checkTimeout = 10 * time.Second
	stopGrace    = 5 * time.Second
	maxCheckBody = 4 << 10
)

var (
	// ErrMissingEnv is returned when a credential variable is empty.
	ErrMissingEnv = errors.New("vpn: required environment variable not set")
	// ErrTunnelExited is returned when openvpn stops before the tunnel is up.
	ErrTunnelExited = errors.New("vpn: openvpn exited")
)

// Config describes the tunnel.
type Config struct {
	// ConfigB64 is the base64-encoded .ovpn file.
	ConfigB64 string
	Username  string
	Password  string
	// WorkDir receives config.ovpn and auth.txt.
	WorkDir string
	Binary  string
	Sudo    bool
	// Settle is the longest Start waits for the tunnel to report readiness.
	Settle   time.Duration
	CheckURL string
}

// Tunnel is one openvpn process. Methods are not safe for concurrent use.
type Tunnel struct {
	cfg    Config
	logger zerolog.Logger
	client *http.Client

	configPath string
	authPath   string

	cmd     *exec.Cmd
	waitCh  chan error
	exited  bool
	exitErr error
	once    sync.Once
}

// NewTunnel returns an idle tunnel.
func NewTunnel(cfg Config, logger zerolog.Logger) *Tunnel {
	if cfg.Binary == "" {
		cfg.Binary = "openvpn"
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = "."
	}
	return &Tunnel{
		cfg:        cfg,
		logger:     logger.With().Str(lklog.FieldComponent, "vpn").Logger(),
		client:     httpx.NewClient(checkTimeout),
		configPath: filepath.Join(cfg.WorkDir, configFile),
		authPath:   filepath.Join(cfg.WorkDir, authFile),
	}
}

// Prepare writes config.ovpn and auth.txt (mode 0600) into the work dir.
func (t *Tunnel) Prepare() error {
	var missing []string
	for _, kv := range [][2]string{
		{EnvConfig, t.cfg.ConfigB64},
		{EnvUsername, t.cfg.Username},
		{EnvPassword, t.cfg.Password},
	} {
		if strings.TrimSpace(kv[1]) == "" {
			missing = append(missing, kv[0])
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(missing, ", "))
	}

	ovpn, err := decodeConfig(t.cfg.ConfigB64)
	if err != nil {
		return fmt.Errorf("vpn: decode %s: %w", EnvConfig, err)
	}
	if err := os.MkdirAll(t.cfg.WorkDir, 0o700); err != nil {
		return fmt.Errorf("vpn: create work dir: %w", err)
	}
	if err := os.WriteFile(t.configPath, ovpn, 0o600); err != nil {
		return fmt.Errorf("vpn: write config: %w", err)
	}
	auth := t.cfg.Username + "\n" + t.cfg.Password + "\n"
	if err := os.WriteFile(t.authPath, []byte(auth), 0o600); err != nil {
		return fmt.Errorf("vpn: write credentials: %w", err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(t.authPath, 0o600); err != nil {
		return fmt.Errorf("vpn: chmod credentials: %w", err)
	}
	t.logger.Info().Str(lklog.FieldPath, t.configPath).Msg("vpn configuration prepared")
	return nil
}

// Start launches openvpn in its own process group and waits until it reports
// the tunnel as initialised, the settle time passes, or it exits.
func (t *Tunnel) Start(ctx context.Context) error {
	args := []string{"--config", t.configPath, "--auth-user-pass", t.authPath}
	name := t.cfg.Binary
	if t.cfg.Sudo {
		args = append([]string{"-n", name}, args...)
		name = "sudo"
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("vpn: pipe: %w", err)
	}
	// #nosec G204 -- binary and arguments come from operator configuration
	cmd := exec.Command(name, args...)
	cmd.Stdout = pw
	cmd.Stderr = pw
	procgroup.Set(cmd)

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return fmt.Errorf("vpn: start %s: %w", name, err)
	}
	_ = pw.Close()
	t.cmd = cmd
	t.waitCh = make(chan error, 1)
	go func() { t.waitCh <- cmd.Wait() }()

	ready := make(chan struct{})
	go t.scan(pr, ready)

	t.logger.Info().Str("binary", name).Int("pid", cmd.Process.Pid).Msg("openvpn started")

	timer := time.NewTimer(t.cfg.Settle)
	defer timer.Stop()
	select {
	case <-ready:
		t.logger.Info().Msg("vpn tunnel is up")
		return nil
	case <-timer.C:
		t.logger.Warn().Dur("settle", t.cfg.Settle).Msg("no readiness message from openvpn, continuing")
		return nil
	case err := <-t.waitCh:
		t.exited, t.exitErr = true, err
		if err == nil {
			return ErrTunnelExited
		}
		return fmt.Errorf("%w: %w", ErrTunnelExited, err)
	case <-ctx.Done():
		_ = t.Stop()
		return ctx.Err()
	}
}

func (t *Tunnel) scan(r io.ReadCloser, ready chan<- struct{}) {
	defer func() { _ = r.Close() }()
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		t.logger.Debug().Str("line", line).Msg("openvpn")
		if strings.Contains(line, readyMarker) {
			t.once.Do(func() { close(ready) })
		}
	}
}

// Verify fetches the IP echo URL through the tunnel and logs the reply.
func (t *Tunnel) Verify(ctx context.Context) (string, error) {
	if t.cfg.CheckURL == "" {
		return "", nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.cfg.CheckURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("vpn: connectivity check: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCheckBody))
	if err != nil {
		return "", fmt.Errorf("vpn: connectivity check: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("vpn: connectivity check: HTTP %d", resp.StatusCode)
	}
	info := strings.TrimSpace(string(body))
	t.logger.Info().Str(lklog.FieldURL, t.cfg.CheckURL).Str("response", info).Msg("vpn connectivity verified")
	return info, nil
}

// Stop terminates openvpn and removes the credential files. It is safe to
// call more than once.
func (t *Tunnel) Stop() error {
	var errs []error
	if t.cmd != nil && !t.exited {
		err := procgroup.Terminate(t.cmd, t.waitCh, stopGrace)
		t.exited, t.exitErr = true, err
		t.logger.Info().Msg("openvpn stopped")
	}
	for _, p := range []string{t.authPath, t.configPath} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func decodeConfig(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
