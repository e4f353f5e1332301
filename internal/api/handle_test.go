package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firexview/cli/internal/correlator"
	"firexview/cli/internal/graph"
	"firexview/cli/internal/protocol"
	"firexview/cli/internal/turn"
)

// script answers every request written to sock with the frame returned by
// respond; a nil frame leaves the request unanswered.
func script(t *testing.T, sock *turn.FakeSocket, respond func(req protocol.Message) *protocol.Message) {
	t.Helper()
	sock.OnWrite(func(text string) {
		req, err := protocol.Decode([]byte(text))
		if err != nil {
			t.Errorf("unexpected request frame %q: %v", text, err)
			return
		}
		res := respond(req)
		if res == nil {
			return
		}
		raw, err := protocol.Encode(*res)
		if err != nil {
			t.Errorf("encode reply: %v", err)
			return
		}
		sock.EmitText(string(raw))
	})
}

func connectHandle(t *testing.T, sock *turn.FakeSocket, cfg Config) *Handle {
	t.Helper()
	connected := make(chan struct{}, 1)
	cfg.OnConnect = func() {
		select {
		case connected <- struct{}{}:
		default:
		}
	}
	h := NewHandle(HandleOptions{Dialer: turn.NewFakeDialer(sock)})
	require.NoError(t, h.Reconnect(context.Background(), cfg))
	t.Cleanup(h.Close)
	select {
	case <-connected:
	case <-time.After(time.Second):
		t.Fatal("handle did not connect")
	}
	return h
}

func TestHandle_NoAccessorInstalled(t *testing.T) {
	h := NewHandle(HandleOptions{})
	ctx := context.Background()

	_, err := h.GetRunMetadata(ctx)
	assert.ErrorIs(t, err, ErrNoAccessor)
	_, err = h.GetTaskGraph(ctx)
	assert.ErrorIs(t, err, ErrNoAccessor)
	_, err = h.FetchTaskDetails(ctx, "u1")
	assert.ErrorIs(t, err, ErrNoAccessor)
	_, err = h.FetchTaskFields(ctx, []string{"state"})
	assert.ErrorIs(t, err, ErrNoAccessor)
	_, err = h.Revoke(ctx, "u1")
	assert.ErrorIs(t, err, ErrNoAccessor)
	assert.ErrorIs(t, h.StartLiveUpdate(func(json.RawMessage) {}), ErrNoAccessor)
	assert.False(t, h.Connected())
	assert.NotPanics(t, h.StopLiveUpdate)
	assert.NotPanics(t, h.Close)
}

func TestHandle_UnknownBackendLeavesNoAccessor(t *testing.T) {
	sock := turn.NewFakeSocket()
	h := connectHandle(t, sock, Config{URL: "ws://x"})

	err := h.Reconnect(context.Background(), Config{Backend: "carrier-pigeon", URL: "ws://x"})
	require.ErrorIs(t, err, ErrNoAccessor)
	_, err = h.GetTaskGraph(context.Background())
	assert.ErrorIs(t, err, ErrNoAccessor)
}

func TestHandle_TypedRequests(t *testing.T) {
	sock := turn.NewFakeSocket()
	script(t, sock, func(req protocol.Message) *protocol.Message {
		res := &protocol.Message{ID: req.ID, Type: protocol.TypeResponse}
		switch req.Op {
		case protocol.OpSendRunMetadata:
			res.Op = protocol.OpRunMetadata
			res.Payload = json.RawMessage(`{"root_uuid":"r","logs_dir":"/logs"}`)
		case protocol.OpSendGraphState:
			res.Op = protocol.OpGraphState
			res.Payload = json.RawMessage(`{"r":{"parent_id":null,"task_num":0,"name":"Root"}}`)
		case protocol.OpSendGraphFields:
			res.Op = protocol.OpGraphFields
			res.Payload = json.RawMessage(`{"r":{"state":"task-started"}}`)
		case protocol.OpSendTaskDetails:
			var uuid string
			require.NoError(t, json.Unmarshal(req.Payload, &uuid))
			res.Op = protocol.TaskDetailsOp(uuid)
			res.Payload = json.RawMessage(`{"uuid":"` + uuid + `","hostname":"h1"}`)
		case protocol.OpRevokeTask:
			res.Op = protocol.OpRevokeSuccess
			res.Payload = json.RawMessage(`true`)
		default:
			return nil
		}
		return res
	})
	h := connectHandle(t, sock, Config{URL: "ws://x"})
	ctx := context.Background()

	md, err := h.GetRunMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r", md.RootUUID)
	assert.Equal(t, "/logs", md.LogsDir)

	tasks, err := h.GetTaskGraph(ctx)
	require.NoError(t, err)
	require.Contains(t, tasks, "r")
	assert.Equal(t, "Root", tasks["r"].Name)
	assert.True(t, tasks["r"].IsRoot())

	delta, err := h.FetchTaskFields(ctx, []string{"state"})
	require.NoError(t, err)
	assert.JSONEq(t, `"task-started"`, string(delta["r"]["state"]))

	details, err := h.FetchTaskDetails(ctx, " r ")
	require.NoError(t, err)
	assert.JSONEq(t, `"h1"`, string(details["hostname"]))

	out, err := h.Revoke(ctx, "r")
	require.NoError(t, err)
	assert.JSONEq(t, `true`, string(out))
	assert.True(t, h.Connected())
}

func TestHandle_NullGraphStateIsEmpty(t *testing.T) {
	sock := turn.NewFakeSocket()
	script(t, sock, func(req protocol.Message) *protocol.Message {
		return &protocol.Message{ID: req.ID, Type: protocol.TypeResponse, Op: protocol.OpGraphState, Payload: json.RawMessage(`null`)}
	})
	h := connectHandle(t, sock, Config{URL: "ws://x"})
	tasks, err := h.GetTaskGraph(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestHandle_RevokeUsesConfiguredTimeout(t *testing.T) {
	sock := turn.NewFakeSocket()
	h := connectHandle(t, sock, Config{URL: "ws://x", RevokeTimeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := h.Revoke(context.Background(), "u1")
	require.Error(t, err)
	assert.True(t, correlator.IsTimeout(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestHandle_ConcurrentDetailFetchesShareOneRequest(t *testing.T) {
	sock := turn.NewFakeSocket()
	var writes atomic.Int32
	firstWrite := make(chan protocol.Message, 1)
	script(t, sock, func(req protocol.Message) *protocol.Message {
		if writes.Add(1) == 1 {
			firstWrite <- req
		}
		return nil
	})
	h := connectHandle(t, sock, Config{URL: "ws://x"})

	var wg sync.WaitGroup
	results := make([]graph.Patch, 3)
	errs := make([]error, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.FetchTaskDetails(context.Background(), "u1")
		}(i)
	}

	var req protocol.Message
	select {
	case req = <-firstWrite:
	case <-time.After(time.Second):
		t.Fatal("no detail request was sent")
	}
	time.Sleep(30 * time.Millisecond)
	raw, err := protocol.Encode(protocol.Message{Type: protocol.TypeResponse, Op: protocol.TaskDetailsOp("u1"), Payload: json.RawMessage(`{"uuid":"u1","state":"task-started"}`)})
	require.NoError(t, err)
	assert.Equal(t, protocol.OpSendTaskDetails, req.Op)
	sock.EmitText(string(raw))
	wg.Wait()

	assert.Equal(t, int32(1), writes.Load())
	for i := range results {
		require.NoError(t, errs[i])
		assert.JSONEq(t, `"task-started"`, string(results[i]["state"]))
	}
}

func TestHandle_CancelledDetailCallerLeavesOthersWaiting(t *testing.T) {
	sock := turn.NewFakeSocket()
	var writes atomic.Int32
	firstWrite := make(chan struct{}, 1)
	script(t, sock, func(req protocol.Message) *protocol.Message {
		if writes.Add(1) == 1 {
			firstWrite <- struct{}{}
		}
		return nil
	})
	h := connectHandle(t, sock, Config{URL: "ws://x"})

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := h.FetchTaskDetails(ctxA, "u1")
		errA <- err
	}()
	select {
	case <-firstWrite:
	case <-time.After(time.Second):
		t.Fatal("no detail request was sent")
	}

	type result struct {
		patch graph.Patch
		err   error
	}
	resB := make(chan result, 1)
	go func() {
		p, err := h.FetchTaskDetails(context.Background(), "u1")
		resB <- result{p, err}
	}()
	time.Sleep(30 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}
	select {
	case r := <-resB:
		t.Fatalf("live caller returned early: %v", r.err)
	case <-time.After(30 * time.Millisecond):
	}

	raw, err := protocol.Encode(protocol.Message{Type: protocol.TypeResponse, Op: protocol.TaskDetailsOp("u1"), Payload: json.RawMessage(`{"uuid":"u1","state":"task-started"}`)})
	require.NoError(t, err)
	sock.EmitText(string(raw))

	select {
	case r := <-resB:
		require.NoError(t, r.err)
		assert.JSONEq(t, `"task-started"`, string(r.patch["state"]))
	case <-time.After(time.Second):
		t.Fatal("live caller never got the reply")
	}
	assert.Equal(t, int32(1), writes.Load())
}

func TestHandle_ReconnectRejectsOldPending(t *testing.T) {
	first := turn.NewFakeSocket()
	connected := make(chan struct{}, 2)
	h := NewHandle(HandleOptions{Dialer: turn.NewFakeDialer(first, turn.NewFakeSocket())})
	t.Cleanup(h.Close)
	cfg := Config{URL: "ws://x", OnConnect: func() { connected <- struct{}{} }}
	require.NoError(t, h.Reconnect(context.Background(), cfg))
	<-connected

	errCh := make(chan error, 1)
	go func() {
		_, err := h.GetTaskGraph(context.Background())
		errCh <- err
	}()
	select {
	case <-first.Writes():
	case <-time.After(time.Second):
		t.Fatal("request was not sent")
	}

	require.NoError(t, h.Reconnect(context.Background(), cfg))
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, correlator.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("old pending request was not rejected")
	}
	select {
	case <-connected:
	case <-time.After(time.Second):
		t.Fatal("new accessor did not connect")
	}
}

func TestHandle_LiveUpdatesOverRealWebSocket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			req, err := protocol.Decode(data)
			if err != nil || req.Op != protocol.OpSendRunMetadata {
				continue
			}
			push, _ := protocol.Encode(protocol.Message{Type: protocol.TypeEvent, Op: protocol.OpTasksUpdate, Payload: json.RawMessage(`{"r":{"state":"task-succeeded"}}`)})
			res, _ := protocol.Encode(protocol.Message{ID: req.ID, Type: protocol.TypeResponse, Op: protocol.OpRunMetadata, Payload: json.RawMessage(`{"root_uuid":"r"}`)})
			_ = conn.Write(ctx, websocket.MessageText, push)
			_ = conn.Write(ctx, websocket.MessageText, res)
		}
	}))
	defer srv.Close()

	connected := make(chan struct{}, 1)
	h := NewHandle(HandleOptions{Dialer: turn.RealDialer{}})
	defer h.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	require.NoError(t, h.Reconnect(context.Background(), Config{Backend: "WebSocket", URL: url, OnConnect: func() { connected <- struct{}{} }}))
	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("did not connect to test server")
	}

	pushes := make(chan string, 1)
	require.NoError(t, h.StartLiveUpdate(func(payload json.RawMessage) { pushes <- string(payload) }))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	md, err := h.GetRunMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r", md.RootUUID)
	select {
	case got := <-pushes:
		assert.JSONEq(t, `{"r":{"state":"task-succeeded"}}`, got)
	case <-time.After(time.Second):
		t.Fatal("push was not delivered")
	}
}
