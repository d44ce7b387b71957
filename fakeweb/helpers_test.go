package fakeweb

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"goa.design/clue/mock"
)

type dialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// scriptedDialer serves canned raw responses over in-memory pipes, one
// scripted exchange per dial, and records what each dial received.
type scriptedDialer struct {
	m *mock.Mock

	mu    sync.Mutex
	dials []*dialRecord
}

type dialRecord struct {
	address string
	done    chan struct{}
	request bytes.Buffer
}

func newScriptedDialer() *scriptedDialer {
	return &scriptedDialer{m: mock.New()}
}

func (d *scriptedDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	f, _ := d.m.Next("DialContext").(dialFunc)
	if f == nil {
		return nil, fmt.Errorf("unexpected dial to %s", address)
	}
	return f(ctx, network, address)
}

// respond scripts the next dial to answer with raw and close the stream.
func (d *scriptedDialer) respond(raw string) {
	d.m.Add("DialContext", dialFunc(func(_ context.Context, _, address string) (net.Conn, error) {
		client, server := net.Pipe()
		d.serve(address, server, raw)
		return client, nil
	}))
}

// refuse scripts the next dial to fail with err.
func (d *scriptedDialer) refuse(err error) {
	d.m.Add("DialContext", dialFunc(func(context.Context, string, string) (net.Conn, error) {
		return nil, err
	}))
}

func (d *scriptedDialer) serve(address string, server net.Conn, raw string) {
	rec := &dialRecord{address: address, done: make(chan struct{})}
	d.mu.Lock()
	d.dials = append(d.dials, rec)
	d.mu.Unlock()

	go func() {
		_, _ = io.Copy(&rec.request, server)
		close(rec.done)
	}()
	go func() {
		_, _ = io.WriteString(server, raw)
		_ = server.Close()
	}()
}

// request returns what the n-th dial received once its stream is closed.
func (d *scriptedDialer) request(t *testing.T, n int) (string, string) {
	t.Helper()
	d.mu.Lock()
	require.Less(t, n, len(d.dials), "dial %d not made", n)
	rec := d.dials[n]
	d.mu.Unlock()
	select {
	case <-rec.done:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "request not complete", "dial %d", n)
	}
	return rec.address, rec.request.String()
}

func (d *scriptedDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

func fixedClock() time.Time {
	return time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
}

func readAll(t *testing.T, conn Connection) string {
	t.Helper()
	b, err := io.ReadAll(conn)
	require.NoError(t, err)
	return string(b)
}
