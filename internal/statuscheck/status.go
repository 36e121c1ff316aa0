// Package statuscheck reports readiness of the external dependencies the
// server relies on.
package statuscheck

import (
	"context"
	"errors"
	"os/exec"
	"time"
)

// Pinger models the minimal capability we need from Redis and S3.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker aggregates health checks for external dependencies.
type Checker struct {
	redis       Pinger
	s3          Pinger
	rembgBinary string
	lookPath    func(string) (string, error)
}

// Options configures the Checker. Nil pingers mean the dependency is not
// configured, which is not a readiness failure.
type Options struct {
	Redis       Pinger
	S3          Pinger
	RembgBinary string
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Ready bool   `json:"ready"`
	Redis Status `json:"redis"`
	S3    Status `json:"s3"`
	Rembg Status `json:"rembg"`
}

func New(opts Options) *Checker {
	bin := opts.RembgBinary
	if bin == "" {
		bin = "rembg"
	}
	return &Checker{redis: opts.Redis, s3: opts.S3, rembgBinary: bin, lookPath: exec.LookPath}
}

// Summary returns the current status snapshot. Rembg is optional: a missing
// binary only disables background removal, so it does not affect Ready.
func (c *Checker) Summary(ctx context.Context) Summary {
	s := Summary{
		Redis: c.ping(ctx, c.redis, 2*time.Second),
		S3:    c.ping(ctx, c.s3, 5*time.Second),
		Rembg: c.checkRembg(),
	}
	s.Ready = s.Redis.OK && s.S3.OK
	return s
}

func (c *Checker) ping(ctx context.Context, p Pinger, timeout time.Duration) Status {
	if p == nil {
		return Status{OK: true, Message: "Not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkRembg() Status {
	if _, err := c.lookPath(c.rembgBinary); err != nil {
		return Status{OK: false, Message: "Binary not found"}
	}
	return Status{OK: true, Message: "Available"}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
