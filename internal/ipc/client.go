package ipc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"
)

// Send delivers one command to the owner and waits for its reply. The
// exchange is bounded by timeout and by ctx, whichever ends first.
func Send(ctx context.Context, path string, req Request, timeout time.Duration) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return Response{}, fmt.Errorf("set deadline: %w", err)
		}
	}
	unblock := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Unix(1, 0)) })
	defer unblock()

	return exchange(conn, req)
}

func exchange(conn net.Conn, req Request) (Response, error) {
	if err := writeMessage(conn, req); err != nil {
		return Response{}, err
	}
	var resp Response
	if err := readMessage(bufio.NewReader(conn), &resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}

// Probe reports whether an owner answers a status request on path. A missing
// socket or a refused connection means no owner; any other failure is an error.
func Probe(ctx context.Context, path string, timeout time.Duration) (bool, error) {
	_, err := Send(ctx, path, Request{Command: CommandStatus}, timeout)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist), errors.Is(err, syscall.ECONNREFUSED):
		return false, nil
	default:
		return false, fmt.Errorf("probe socket: %w", err)
	}
}
