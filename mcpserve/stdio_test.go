package mcpserve_test

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/funcwire/mcpgen/mcpserve"
)

func TestStdIOMessageFlow(t *testing.T) {
	clientReader, serverWriter := io.Pipe()
	serverReader, clientWriter := io.Pipe()

	serverTransport := mcpserve.NewStdIO(serverReader, serverWriter)
	clientTransport := mcpserve.NewStdIO(clientReader, clientWriter)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverSessions := make(chan mcpserve.Session, 1)
	go func() {
		for sess := range serverTransport.Sessions() {
			serverSessions <- sess
		}
	}()
	clientSessions := make(chan mcpserve.Session, 1)
	go func() {
		for sess := range clientTransport.Sessions() {
			clientSessions <- sess
		}
	}()

	serverSess := <-serverSessions
	clientSess := <-clientSessions

	if serverSess.ID() == "" || serverSess.ID() == clientSess.ID() {
		t.Errorf("session IDs not unique: %q vs %q", serverSess.ID(), clientSess.ID())
	}

	received := make(chan mcpserve.JSONRPCMessage, 1)
	go func() {
		for msg := range serverSess.Messages() {
			received <- msg
		}
	}()

	params, _ := json.Marshal(map[string]string{"hello": "world"})
	sent := mcpserve.JSONRPCMessage{
		JSONRPC: mcpserve.JSONRPCVersion,
		ID:      mcpserve.MustString("1"),
		Method:  "ping",
		Params:  params,
	}
	if err := clientSess.Send(ctx, sent); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case got := <-received:
		if got.ID != sent.ID || got.Method != sent.Method {
			t.Errorf("received %+v, want %+v", got, sent)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}

	// The reverse direction works the same way.
	clientReceived := make(chan mcpserve.JSONRPCMessage, 1)
	go func() {
		for msg := range clientSess.Messages() {
			clientReceived <- msg
		}
	}()
	if err := serverSess.Send(ctx, mcpserve.JSONRPCMessage{
		JSONRPC: mcpserve.JSONRPCVersion,
		ID:      mcpserve.MustString("1"),
	}); err != nil {
		t.Fatalf("send response: %v", err)
	}
	select {
	case <-clientReceived:
	case <-ctx.Done():
		t.Fatal("timed out waiting for response")
	}

	serverSess.Stop()
	clientSess.Stop()

	if err := serverTransport.Shutdown(ctx); err != nil {
		t.Errorf("server shutdown: %v", err)
	}
	if err := clientTransport.Shutdown(ctx); err != nil {
		t.Errorf("client shutdown: %v", err)
	}
}

func TestStdIOSendAfterStop(t *testing.T) {
	reader, _ := io.Pipe()
	_, writer := io.Pipe()

	transport := mcpserve.NewStdIO(reader, writer)

	sessions := make(chan mcpserve.Session, 1)
	go func() {
		for sess := range transport.Sessions() {
			sessions <- sess
		}
	}()
	sess := <-sessions
	sess.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sess.Send(ctx, mcpserve.JSONRPCMessage{JSONRPC: mcpserve.JSONRPCVersion}); err == nil {
		t.Error("send after stop should fail")
	}
}

func TestStdIOMalformedInput(t *testing.T) {
	serverReader, clientWriter := io.Pipe()
	_, serverWriter := io.Pipe()

	transport := mcpserve.NewStdIO(serverReader, serverWriter)
	sessions := make(chan mcpserve.Session, 1)
	go func() {
		for sess := range transport.Sessions() {
			sessions <- sess
		}
	}()
	sess := <-sessions
	defer sess.Stop()

	received := make(chan mcpserve.JSONRPCMessage, 1)
	go func() {
		for msg := range sess.Messages() {
			received <- msg
		}
	}()

	// A garbage line is skipped; the following valid message still arrives.
	go func() {
		_, _ = clientWriter.Write([]byte("this is not json\n"))
		_, _ = clientWriter.Write([]byte(`{"jsonrpc":"2.0","id":"7","method":"ping"}` + "\n"))
	}()

	select {
	case got := <-received:
		if got.ID != mcpserve.MustString("7") {
			t.Errorf("unexpected message: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("valid message after garbage never arrived")
	}
}
