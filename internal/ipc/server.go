package ipc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

const (
	// connDeadline bounds one request/response exchange on the server side.
	connDeadline = 2 * time.Second
	// maxClients caps concurrently served connections.
	maxClients = 4
)

// Handler processes one IPC command request.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// Serve answers one request per connection until ctx is cancelled or the
// listener is closed. It returns nil on either and waits for in-flight replies.
func Serve(ctx context.Context, listener net.Listener, handler Handler) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	stop := context.AfterFunc(ctx, func() { _ = listener.Close() })
	defer stop()

	slots := semaphore.NewWeighted(maxClients)
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept IPC connection: %w", err)
		}

		if err := slots.Acquire(ctx, 1); err != nil {
			_ = conn.Close()
			return nil
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer slots.Release(1)
			serveConn(ctx, conn, handler)
		}()
	}
}

func serveConn(ctx context.Context, conn net.Conn, handler Handler) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(connDeadline))

	var req Request
	if err := readMessage(bufio.NewReader(conn), &req); err != nil {
		_ = writeMessage(conn, Response{OK: false, Error: err.Error()})
		return
	}
	_ = writeMessage(conn, handle(ctx, handler, req))
}

// handle turns a handler panic into a rejected response.
func handle(ctx context.Context, handler Handler, req Request) (resp Response) {
	defer func() {
		if recovered := recover(); recovered != nil {
			resp = Response{OK: false, Error: fmt.Sprintf("handle %s: panic: %v", req.Command, recovered)}
		}
	}()
	return handler.Handle(ctx, req)
}
