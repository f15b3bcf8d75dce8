//go:build linux

package evdev

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// fdSource is implemented by sources backed by a file descriptor.
type fdSource interface {
	Fd() int
}

// Wait blocks for up to timeout until at least one source is readable and
// returns the readable ones in the order given. Sources without a file
// descriptor are always reported ready. A hung-up or errored descriptor is
// reported ready so the following Read surfaces the failure.
func Wait(sources []Source, timeout time.Duration) ([]Source, error) {
	var (
		fds    []unix.PollFd
		polled []Source
		ready  []Source
	)
	for _, src := range sources {
		if f, ok := src.(fdSource); ok {
			fds = append(fds, unix.PollFd{Fd: int32(f.Fd()), Events: unix.POLLIN})
			polled = append(polled, src)
			continue
		}
		ready = append(ready, src)
	}

	if len(fds) == 0 {
		return ready, nil
	}

	wait := int(timeout / time.Millisecond)
	if len(ready) > 0 {
		wait = 0
	}

	n, err := unix.Poll(fds, wait)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return ready, nil
		}
		return nil, err
	}
	if n == 0 {
		return ready, nil
	}

	const readyMask = unix.POLLIN | unix.POLLERR | unix.POLLHUP | unix.POLLNVAL
	var out []Source
	pi := 0
	for _, src := range sources {
		if _, ok := src.(fdSource); ok {
			if fds[pi].Revents&readyMask != 0 {
				out = append(out, polled[pi])
			}
			pi++
			continue
		}
		out = append(out, src)
	}
	return out, nil
}
