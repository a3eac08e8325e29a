package transport

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/distantsrv/hostd/protocol"
)

func TestConnRoundTripOverTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	var server net.Conn
	select {
	case server = <-accepted:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for accept")
	}
	defer server.Close()

	serverConn := NewConn(server, FormatJSON)

	want := protocol.Request{ID: 7, Payload: protocol.FileRead{Path: "/tmp/x"}}
	reqCh := make(chan protocol.Request, 1)
	errCh := make(chan error, 1)
	go func() {
		got, err := serverConn.ReadRequest()
		reqCh <- got
		errCh <- err
	}()

	frame, err := protocol.EncodeRequestJSON(want)
	if err != nil {
		t.Fatalf("EncodeRequestJSON: %v", err)
	}
	if err := writeFrame(client, frame); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("ReadRequest: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for ReadRequest")
	}
	got := <-reqCh
	if got.ID != want.ID {
		t.Errorf("ID = %d, want %d", got.ID, want.ID)
	}

	if err := serverConn.WriteResponse(protocol.Response{Origin: 7, Payload: protocol.Ok{}}); err != nil {
		t.Fatalf("WriteResponse: %v", err)
	}
	respFrame, err := readFrame(bufio.NewReader(client))
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	resp, err := protocol.DecodeResponseJSON(respFrame)
	if err != nil {
		t.Fatalf("DecodeResponseJSON: %v", err)
	}
	if resp.Origin != 7 {
		t.Errorf("Origin = %d, want 7", resp.Origin)
	}
}

func TestMemoryPairRoundTrip(t *testing.T) {
	server, client := NewMemoryPair()
	defer server.Close()

	req := protocol.Request{ID: 1, Payload: protocol.VersionOp{}}
	if err := client.Send(req); err != nil {
		t.Fatalf("Send: %v", err)
	}

	got, err := server.ReadRequest()
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if got.ID != req.ID {
		t.Errorf("ID = %d, want %d", got.ID, req.ID)
	}

	if err := server.WriteResponse(protocol.Response{Origin: 1, Payload: protocol.Ok{}}); err != nil {
		t.Fatalf("WriteResponse: %v", err)
	}
	resp, err := client.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if resp.Origin != 1 {
		t.Errorf("Origin = %d, want 1", resp.Origin)
	}
}
