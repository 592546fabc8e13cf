//go:build darwin

package darwin

import (
	"context"
	"time"

	"github.com/ColonelBlimp/proctap"
)

// preferredBackend implements spec.md §4.6's macOS selection order: prefer
// content-sharing (available from macOS 13) and fall back to the
// aggregate-tap engine (macOS 14.4+) only if content-sharing's Start fails.
type preferredBackend struct {
	pid    int
	format proctap.AudioFormat

	active interface {
		Start(context.Context) error
		Stop() error
		Read(int) []byte
		NativeFormat() proctap.AudioFormat
		Overflowing() time.Duration
	}
}

// NewPreferredBackend picks the best available macOS backend for pid given
// the caller's target format (content-sharing trusts the format it is told,
// so it needs to know it up front; the tap engine reports its own native
// format instead).
func NewPreferredBackend(pid int, target proctap.AudioFormat) *preferredBackend {
	return &preferredBackend{pid: pid, format: target}
}

func (b *preferredBackend) Start(ctx context.Context) error {
	if SupportsContentSharing() {
		sharing := NewSharingEngine(b.pid, b.format)
		if err := sharing.Start(ctx); err == nil {
			b.active = sharing
			return nil
		}
	}
	if SupportsProcessTap() {
		tap := NewTapEngine(b.pid, b.format.Channels)
		if err := tap.Start(ctx); err != nil {
			return err
		}
		b.active = tap
		return nil
	}
	return &proctap.Error{Op: "darwin.Select", Kind: proctap.KindUnsupportedPlatform,
		Message: "neither content-sharing (macOS 13+) nor process tap (macOS 14.4+) is available"}
}

func (b *preferredBackend) Stop() error {
	if b.active == nil {
		return nil
	}
	return b.active.Stop()
}

func (b *preferredBackend) Read(maxBytes int) []byte {
	if b.active == nil {
		return nil
	}
	return b.active.Read(maxBytes)
}

func (b *preferredBackend) NativeFormat() proctap.AudioFormat {
	if b.active == nil {
		return proctap.AudioFormat{}
	}
	return b.active.NativeFormat()
}

func (b *preferredBackend) Overflowing() time.Duration {
	if b.active == nil {
		return 0
	}
	return b.active.Overflowing()
}
