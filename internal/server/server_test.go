package server_test

import (
	"context"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/earshot-io/earshot/internal/pool"
	"github.com/earshot-io/earshot/internal/protocol"
	"github.com/earshot-io/earshot/internal/registry"
	"github.com/earshot-io/earshot/internal/server"
	"github.com/earshot-io/earshot/internal/session"
	"github.com/earshot-io/earshot/internal/wake/mock"
)

const (
	mockFrameLength = 160
	frameBytes      = mockFrameLength * 2
)

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	libs := map[string]string{"en": "/data/lib/common/porcupine_params_en.pv"}
	keywords := map[string]registry.Keyword{
		"porcupine": {Language: "en", Name: "porcupine", ModelPath: "/data/porcupine_linux.ppn"},
		"bumblebee": {Language: "en", Name: "bumblebee", ModelPath: "/data/bumblebee_linux.ppn"},
	}
	reg, err := registry.New(libs, keywords)
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func newServer(t *testing.T, engine *mock.Engine) *server.Server {
	t.Helper()
	engine.FrameLength = mockFrameLength
	reg := newRegistry(t)
	srv, err := server.New(server.Config{
		ListenAddr: "127.0.0.1:0",
		Defaults:   session.Defaults{Keyword: "porcupine", Sensitivity: 0.5},
	}, reg, pool.New(engine, reg), nil)
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	return srv
}

// dialPipe connects a client codec to a served in-memory connection.
func dialPipe(t *testing.T, srv *server.Server) (*protocol.Writer, *protocol.Reader) {
	t.Helper()
	client, conn := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.ServeConn(ctx, conn)
	}()
	t.Cleanup(func() {
		client.Close()
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("connection handler did not exit")
		}
	})
	return protocol.NewWriter(client), protocol.NewReader(client)
}

func send(t *testing.T, w *protocol.Writer, events ...protocol.Event) {
	t.Helper()
	for _, ev := range events {
		if err := w.Write(ev); err != nil {
			t.Fatalf("write %s: %v", ev.Type, err)
		}
	}
}

func silence(t *testing.T, n int) protocol.Event {
	t.Helper()
	ev, err := protocol.AudioChunk{
		AudioFormat: protocol.AudioFormat{Rate: 16000, Width: 2, Channels: 1},
		Audio:       make([]byte, n),
	}.Event()
	if err != nil {
		t.Fatal(err)
	}
	return ev
}

func TestDescribe_AdvertisesKeywords(t *testing.T) {
	t.Parallel()
	w, r := dialPipe(t, newServer(t, &mock.Engine{}))

	send(t, w, protocol.Describe{}.Event())
	ev, err := r.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !ev.Is(protocol.TypeInfo) {
		t.Fatalf("type = %q, want info", ev.Type)
	}

	info, err := protocol.InfoFromEvent(ev)
	if err != nil {
		t.Fatal(err)
	}
	if len(info.Wake) != 1 || info.Wake[0].Name != "porcupine1" {
		t.Fatalf("wake programs = %+v", info.Wake)
	}
	prog := info.Wake[0]
	if !prog.Installed || prog.Attribution.Name != "Picovoice" {
		t.Errorf("program = %+v", prog)
	}
	if len(prog.Models) != 2 {
		t.Fatalf("got %d models, want 2", len(prog.Models))
	}
	if prog.Models[0].Name != "bumblebee" || prog.Models[1].Name != "porcupine" {
		t.Errorf("models out of order: %q, %q", prog.Models[0].Name, prog.Models[1].Name)
	}
	if langs := prog.Models[1].Languages; len(langs) != 1 || langs[0] != "en" {
		t.Errorf("languages = %v", langs)
	}
}

func TestStream_SilenceEndsNotDetected(t *testing.T) {
	t.Parallel()
	w, r := dialPipe(t, newServer(t, &mock.Engine{}))

	detect, err := protocol.Detect{Names: []string{"porcupine"}}.Event()
	if err != nil {
		t.Fatal(err)
	}
	start, err := protocol.AudioStart{AudioFormat: protocol.AudioFormat{Rate: 16000, Width: 2, Channels: 1}}.Event()
	if err != nil {
		t.Fatal(err)
	}
	stop, err := protocol.AudioStop{}.Event()
	if err != nil {
		t.Fatal(err)
	}

	send(t, w, detect, start, silence(t, frameBytes), silence(t, frameBytes), stop)

	ev, err := r.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !ev.Is(protocol.TypeNotDetected) {
		t.Errorf("type = %q, want not-detected", ev.Type)
	}
}

func TestStream_ScriptedDetection(t *testing.T) {
	t.Parallel()
	// The second processed frame fires keyword index 0.
	w, r := dialPipe(t, newServer(t, &mock.Engine{Detections: map[int]int{1: 0}}))

	detect, err := protocol.Detect{Names: []string{"porcupine"}}.Event()
	if err != nil {
		t.Fatal(err)
	}
	send(t, w, detect, silence(t, frameBytes), silence(t, frameBytes))

	ev, err := r.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !ev.Is(protocol.TypeDetection) {
		t.Fatalf("type = %q, want detection", ev.Type)
	}
	det, err := protocol.DetectionFromEvent(ev)
	if err != nil {
		t.Fatal(err)
	}
	if det.Name != "porcupine" {
		t.Errorf("name = %q, want porcupine", det.Name)
	}
}

func TestStream_UnknownKeywordKeepsConnectionAlive(t *testing.T) {
	t.Parallel()
	w, r := dialPipe(t, newServer(t, &mock.Engine{}))

	bad, err := protocol.Detect{Names: []string{"jarvis"}}.Event()
	if err != nil {
		t.Fatal(err)
	}
	send(t, w, bad)

	ev, err := r.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !ev.Is(protocol.TypeError) {
		t.Fatalf("type = %q, want error", ev.Type)
	}
	perr, err := protocol.ErrorFromEvent(ev)
	if err != nil {
		t.Fatal(err)
	}
	if perr.Code != "unknown-keyword" {
		t.Errorf("code = %q, want unknown-keyword", perr.Code)
	}

	// The connection still serves requests afterwards.
	send(t, w, protocol.Describe{}.Event())
	ev, err = r.Read()
	if err != nil {
		t.Fatalf("read after error: %v", err)
	}
	if !ev.Is(protocol.TypeInfo) {
		t.Errorf("type = %q, want info", ev.Type)
	}
}

func TestBuildInfo_EmptyRegistry(t *testing.T) {
	t.Parallel()
	reg, err := registry.New(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	ev, err := server.BuildInfo(reg)
	if err != nil {
		t.Fatal(err)
	}
	info, err := protocol.InfoFromEvent(ev)
	if err != nil {
		t.Fatal(err)
	}
	if len(info.Wake) != 1 || len(info.Wake[0].Models) != 0 {
		t.Errorf("info = %+v", info)
	}
}

func TestWSHandler_SpeaksTheEventProtocol(t *testing.T) {
	t.Parallel()
	srv := newServer(t, &mock.Engine{})
	ts := httptest.NewServer(srv.WSHandler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, "ws"+ts.URL[len("http"):], nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close(websocket.StatusNormalClosure, "")

	conn := websocket.NetConn(ctx, c, websocket.MessageBinary)
	w := protocol.NewWriter(conn)
	r := protocol.NewReader(conn)

	if err := w.Write(protocol.Describe{}.Event()); err != nil {
		t.Fatalf("write: %v", err)
	}
	ev, err := r.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !ev.Is(protocol.TypeInfo) {
		t.Errorf("type = %q, want info", ev.Type)
	}
}
