// Package tunnel runs a cloudflared quick tunnel and discovers its public
// address from the process output.
package tunnel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultBinary is looked up on $PATH when no explicit path is configured.
const DefaultBinary = "cloudflared"

const (
	versionTimeout = 5 * time.Second
	maxLineBytes   = 1 << 20
)

// ErrNoURL is returned by Discover when the output ends without an address.
var ErrNoURL = errors.New("tunnel exited before publishing a URL")

// CheckBinary verifies that binary runs `--version` successfully.
func CheckBinary(ctx context.Context, binary string) error {
	if binary == "" {
		binary = DefaultBinary
	}
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, binary, "--version").CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("CheckBinary: %s --version timed out: %w", binary, ctx.Err())
		}
		return fmt.Errorf("CheckBinary: %s --version: %w (%s)", binary, err, out)
	}
	return nil
}

// Tunnel is a running cloudflared process.
type Tunnel struct {
	cmd    *exec.Cmd
	lines  chan string
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Launch starts `cloudflared tunnel --url <localURL> --no-autoupdate`.
// Stdout and stderr are merged and exposed line by line through Lines.
func Launch(ctx context.Context, binary, localURL string, log zerolog.Logger) (*Tunnel, error) {
	if binary == "" {
		binary = DefaultBinary
	}
	ctx, cancel := context.WithCancel(ctx)

	pr, pw := io.Pipe()
	cmd := exec.CommandContext(ctx, binary, "tunnel", "--url", localURL, "--no-autoupdate")
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("Launch: failed to start %s: %w", binary, err)
	}
	log.Info().Int("pid", cmd.Process.Pid).Str("local_url", localURL).Msg("Tunnel process started")

	t := &Tunnel{
		cmd:    cmd,
		lines:  make(chan string, 64),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		err := cmd.Wait()
		t.mu.Lock()
		t.err = err
		t.mu.Unlock()
		pw.Close()
		close(t.done)
	}()

	go func() {
		defer close(t.lines)
		pump(ctx, pr, t.lines, log)
	}()

	return t, nil
}

// pump forwards r line by line until EOF. Output that cannot be scanned is
// discarded so the process never blocks on a full pipe.
func pump(ctx context.Context, r io.Reader, lines chan<- string, log zerolog.Logger) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Text()
		log.Debug().Str("line", line).Msg("cloudflared")
		select {
		case lines <- line:
		case <-ctx.Done():
		}
	}

	if err := scanner.Err(); err != nil {
		log.Warn().Err(err).Msg("Stopped reading tunnel output")
		if _, err := io.Copy(io.Discard, r); err != nil {
			log.Debug().Err(err).Msg("Discarding tunnel output")
		}
	}
}

// Lines streams process output until the process exits. Callers must keep
// draining it or the process blocks on a full pipe.
func (t *Tunnel) Lines() <-chan string {
	return t.lines
}

// Done is closed when the process has exited.
func (t *Tunnel) Done() <-chan struct{} {
	return t.done
}

// Err returns the process exit error once Done is closed.
func (t *Tunnel) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Stop kills the process and waits for it to exit.
func (t *Tunnel) Stop() {
	t.cancel()
	<-t.done
}

// Discover reads lines until one yields a tunnel address.
func Discover(ctx context.Context, lines <-chan string) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return "", ErrNoURL
			}
			if url, ok := MatchURL(line); ok {
				return url, nil
			}
		}
	}
}
