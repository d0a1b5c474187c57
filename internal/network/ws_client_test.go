package network

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"webfitts/internal/api"
	"webfitts/internal/protocol"
)

func TestRelayURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"localhost:8765", "ws://localhost:8765/ws", false},
		{"ws://localhost:8765", "ws://localhost:8765/ws", false},
		{"ws://localhost:8765/", "ws://localhost:8765/", false},
		{"http://10.0.0.2:9000/relay", "ws://10.0.0.2:9000/relay", false},
		{"https://relay.example", "wss://relay.example/ws", false},
		{"ftp://relay.example", "", true},
		{"ws://", "", true},
	}
	for _, tt := range tests {
		got, err := RelayURL(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("RelayURL(%q) expected error, got %q", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("RelayURL(%q) returned error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("RelayURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

type chanSink struct {
	data   chan *protocol.StudyData
	events chan *protocol.StudyEvent
}

func (s *chanSink) StudyData(_ string, d *protocol.StudyData)    { s.data <- d }
func (s *chanSink) StudyEvent(_ string, e *protocol.StudyEvent) { s.events <- e }

func TestStudyClientAgainstRelay(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	sink := &chanSink{
		data:   make(chan *protocol.StudyData, 4),
		events: make(chan *protocol.StudyEvent, 4),
	}
	relay := api.NewServer(api.Params{ServerName: "Test Relay", Sink: sink})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relay.Serve(ctx, ln)

	client, err := NewStudyClient(ln.Addr().String(), StudyClientOptions{RetryDelay: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewStudyClient returned error: %v", err)
	}
	defer client.Close()

	acks := make(chan *protocol.HandshakeAck, 1)
	commands := make(chan *protocol.Command, 1)
	client.OnAck = func(a *protocol.HandshakeAck) { acks <- a }
	client.OnCommand = func(c *protocol.Command) { commands <- c }
	go client.Run(ctx)

	select {
	case ack := <-acks:
		if ack.Server != "Test Relay" || ack.Status != "connected" {
			t.Errorf("Unexpected ack: %+v", ack)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("No handshake ack")
	}

	if err := client.SendStudyData(protocol.StudyData{Cursor: protocol.Vec2{X: 1, Y: 2}}); err != nil {
		t.Fatalf("SendStudyData returned error: %v", err)
	}
	select {
	case d := <-sink.data:
		if d.Cursor.X != 1 || d.Cursor.Y != 2 || d.Timestamp == 0 {
			t.Errorf("Unexpected study data: %+v", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Relay did not receive study data")
	}

	client.SendEvent("task_start", nil)
	select {
	case e := <-sink.events:
		if e.Event != "task_start" {
			t.Errorf("Unexpected event: %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Relay did not receive study event")
	}

	if err := relay.BroadcastCommand(protocol.CommandTriggerClick, nil); err != nil {
		t.Fatalf("BroadcastCommand returned error: %v", err)
	}
	select {
	case cmd := <-commands:
		if cmd.Command != protocol.CommandTriggerClick {
			t.Errorf("Unexpected command: %s", cmd.Command)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Client did not receive command")
	}

	if !client.IsConnected() {
		t.Error("Expected client to report connected")
	}
}

type countingCloser struct{ closed atomic.Int32 }

func (c *countingCloser) Close() error {
	c.closed.Add(1)
	return nil
}

func TestConnClosedWhenWriterStops(t *testing.T) {
	conn := &countingCloser{}
	writerDone := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		closeOnExit(context.Background(), conn, make(chan struct{}), writerDone)
		close(finished)
	}()

	close(writerDone)
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("closeOnExit did not return after the writer stopped")
	}
	if n := conn.closed.Load(); n != 1 {
		t.Errorf("Expected the connection to be closed once, got %d", n)
	}
}
