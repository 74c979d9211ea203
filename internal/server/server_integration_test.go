package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/livecam/internal/camera"
	"github.com/ayusman/livecam/internal/journal"
	"github.com/gorilla/websocket"
)

func TestAPI_SessionWorkflow(t *testing.T) {
	j, err := journal.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("journal.Open() error = %v", err)
	}
	defer j.Close()

	srv := New(Config{Journal: j})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	j.Sessions().Start(&journal.Session{ID: "s1", Backend: "sim", CameraName: "sim-mono-0"})
	j.Sessions().Finish("s1", journal.Summary{Produced: 5})

	resp, err := client.Get(ts.URL + "/api/sessions")
	if err != nil {
		t.Fatalf("GET /api/sessions error = %v", err)
	}
	var listed struct {
		Sessions []struct {
			ID       string `json:"id"`
			Produced uint64 `json:"produced"`
		} `json:"sessions"`
	}
	json.NewDecoder(resp.Body).Decode(&listed)
	resp.Body.Close()

	if len(listed.Sessions) != 1 || listed.Sessions[0].Produced != 5 {
		t.Fatalf("unexpected sessions: %+v", listed.Sessions)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/sessions/s1", nil)
	resp, _ = client.Do(req)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	resp.Body.Close()

	resp, _ = client.Get(ts.URL + "/api/sessions/s1")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET after delete status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	resp.Body.Close()
}

func TestAPI_MJPEGStream(t *testing.T) {
	hub := NewFrameHub()
	srv := New(Config{Frames: hub})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream", nil)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("GET /api/stream error = %v", err)
	}
	defer resp.Body.Close()

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/x-mixed-replace" {
		t.Fatalf("unexpected Content-Type %q", resp.Header.Get("Content-Type"))
	}

	go func() {
		for seq := uint64(1); ctx.Err() == nil; seq++ {
			hub.Publish(testFrame(seq))
			time.Sleep(10 * time.Millisecond)
		}
	}()

	mr := multipart.NewReader(bufio.NewReader(resp.Body), params["boundary"])
	for i := 0; i < 2; i++ {
		part, err := mr.NextPart()
		if err != nil {
			t.Fatalf("part %d: %v", i, err)
		}
		if ct := part.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("part %d Content-Type = %q", i, ct)
		}
		data, _ := io.ReadAll(part)
		if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
			t.Errorf("part %d is not a JPEG", i)
		}
	}
}

func TestAPI_StatsWebSocket(t *testing.T) {
	src := &fakeStats{stats: camera.Stats{SessionID: "ws", State: "streaming", Produced: 9}}
	srv := New(Config{Stats: src, StatsInterval: 10 * time.Millisecond})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.stats.Run(ctx)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}

	var got camera.Stats
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatalf("message is not stats JSON: %v", err)
	}
	if got.SessionID != "ws" || got.Produced != 9 {
		t.Errorf("unexpected stats: %+v", got)
	}
}

func TestServer_RunShutsDownOnCancel(t *testing.T) {
	srv := New(Config{Frames: NewFrameHub()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
