package uds

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func startServer(t *testing.T, register func(*Server)) (*Server, *Client) {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "test.sock")
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	srv := NewServer(sock, logger)
	srv.Handle(MethodPing, func(_ context.Context, _ Message) (any, error) {
		return PingResponse{Pong: true}, nil
	})
	if register != nil {
		register(srv)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	select {
	case <-srv.Ready():
	case err := <-errCh:
		t.Fatalf("start: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for server")
	}

	client, err := Dial(sock)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
		cancel()
		srv.Shutdown()
		if err := <-errCh; err != nil {
			t.Errorf("server: %v", err)
		}
	})
	return srv, client
}

func TestPingRoundTrip(t *testing.T) {
	_, client := startServer(t, nil)

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer reqCancel()

	resp, err := client.Request(reqCtx, MethodPing, nil)
	if err != nil {
		t.Fatalf("ping request: %v", err)
	}

	var pong PingResponse
	if err := resp.UnmarshalData(&pong); err != nil {
		t.Fatalf("unmarshal pong: %v", err)
	}
	if !pong.Pong {
		t.Error("expected pong=true")
	}
}

func TestCallDecodesPayload(t *testing.T) {
	_, client := startServer(t, func(srv *Server) {
		srv.Handle(MethodRunImport, func(_ context.Context, req Message) (any, error) {
			var in RunImportRequest
			if err := req.UnmarshalData(&in); err != nil {
				return nil, err
			}
			if in.Link == "" {
				return nil, errors.New("link is required")
			}
			return RunImportResponse{ID: "import:1", Message: "Import job started"}, nil
		})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var out RunImportResponse
	if err := client.Call(ctx, MethodRunImport, RunImportRequest{Link: "https://example.com/"}, &out); err != nil {
		t.Fatalf("call: %v", err)
	}
	if out.ID != "import:1" {
		t.Errorf("id: got %q", out.ID)
	}

	err := client.Call(ctx, MethodRunImport, RunImportRequest{}, &out)
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if remote.Msg != "link is required" {
		t.Errorf("remote message: got %q", remote.Msg)
	}
}

func TestUnknownMethod(t *testing.T) {
	_, client := startServer(t, nil)

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer reqCancel()

	_, err := client.Request(reqCtx, "NoSuchMethod", nil)
	if err == nil {
		t.Error("expected error for unknown method")
	}
}

func TestBroadcastEvent(t *testing.T) {
	srv, client := startServer(t, nil)

	evtCh := make(chan Message, 1)
	client.OnEvent(func(msg Message) {
		evtCh <- msg
	})

	// Ensure connection is established by doing a ping first
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer pingCancel()
	if _, err := client.Request(pingCtx, MethodPing, nil); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if n := srv.Clients(); n != 1 {
		t.Errorf("clients: got %d", n)
	}

	evt, _ := NewEvent(EventWorkersDelta, map[string]string{"test": "data"})
	srv.Broadcast(evt)

	select {
	case msg := <-evtCh:
		if msg.Method != EventWorkersDelta {
			t.Errorf("expected method %s, got %s", EventWorkersDelta, msg.Method)
		}
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for broadcast event")
	}
}

func TestRequestAfterServerShutdown(t *testing.T) {
	srv, client := startServer(t, nil)
	srv.Shutdown()

	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client did not notice closed connection")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := client.Request(ctx, MethodPing, nil); err == nil {
		t.Error("expected error on closed connection")
	}
}

func TestUnmarshalDataEmpty(t *testing.T) {
	var out RunImportResponse
	if err := (Message{}).UnmarshalData(&out); err != nil {
		t.Errorf("empty payload: %v", err)
	}
	if err := (Message{Method: "X", Data: []byte("{")}).UnmarshalData(&out); err == nil {
		t.Error("expected error for malformed payload")
	}
}
