package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/sameergiri/relayhub/internal/config"
	"github.com/sameergiri/relayhub/internal/registry"
)

// testHub spins up a real HTTP server upgrading to this package's Hub, so
// tests exercise the full duplex-frame protocol the way a real client would,
// the same style as the teacher's own net.Pipe()-based transfer_test.go but
// over an actual socket since websocket framing is under test here too.
func testHub(t *testing.T) (*Hub, string) {
	t.Helper()
	cfg := config.Config{DownloadChunkSize: 64 * 1024, MaxFrameSize: 100 << 20, FileTTL: 30 * time.Minute}
	h := New(cfg, registry.New(), nil)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Upgrade(w, r)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	return h, url
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

// S1 — create & join.
func TestScenarioCreateAndJoin(t *testing.T) {
	_, url := testHub(t)

	a := dial(t, url)
	send(t, a, map[string]any{"type": "create_session", "deviceName": "Mac", "deviceType": "mac"})
	created := readFrame(t, a)
	require.Equal(t, "session_created", created["type"])
	code := created["sessionCode"].(string)
	require.EqualValues(t, 1, created["connectedDevices"])

	b := dial(t, url)
	send(t, b, map[string]any{"type": "join_session", "sessionCode": strings.ToLower(code), "deviceName": "iPhone", "deviceType": "iphone"})

	joined := readFrame(t, b)
	require.Equal(t, "session_joined", joined["type"])
	require.EqualValues(t, 2, joined["connectedDevices"])

	devJoined := readFrame(t, a)
	require.Equal(t, "device_joined", devJoined["type"])
	require.EqualValues(t, 2, devJoined["totalDevices"])
}

// S2 — upload, fan-out, download.
func TestScenarioUploadFanoutDownload(t *testing.T) {
	_, url := testHub(t)

	a := dial(t, url)
	send(t, a, map[string]any{"type": "create_session", "deviceName": "Mac", "deviceType": "mac"})
	created := readFrame(t, a)
	code := created["sessionCode"].(string)

	b := dial(t, url)
	send(t, b, map[string]any{"type": "join_session", "sessionCode": code, "deviceName": "iPhone", "deviceType": "iphone"})
	readFrame(t, b)          // session_joined
	devJoined := readFrame(t, a) // device_joined
	require.Equal(t, "device_joined", devJoined["type"])

	send(t, a, map[string]any{"type": "file_start", "fileName": "hi.txt", "fileSize": 5, "mimeType": "text/plain"})
	ack := readFrame(t, a)
	require.Equal(t, "file_start_ack", ack["type"])
	fileID := ack["fileId"].(string)

	require.NoError(t, a.WriteMessage(websocket.BinaryMessage, encodeDataFrame(fileID, []byte("hello"))))
	progress := readFrame(t, a)
	require.Equal(t, "upload_progress", progress["type"])
	require.EqualValues(t, 100, progress["progress"])
	require.EqualValues(t, 5, progress["received"])
	require.EqualValues(t, 5, progress["total"])

	send(t, a, map[string]any{"type": "file_complete", "fileId": fileID})

	newFile := readFrame(t, b)
	require.Equal(t, "new_file", newFile["type"])
	fileMeta := newFile["file"].(map[string]any)
	require.Equal(t, fileID, fileMeta["id"])
	require.Equal(t, "hi.txt", fileMeta["originalName"])

	completeAck := readFrame(t, a)
	require.Equal(t, "file_complete_ack", completeAck["type"])

	send(t, b, map[string]any{"type": "request_file", "fileId": fileID})

	start := readFrame(t, b)
	require.Equal(t, "file_download_start", start["type"])
	require.EqualValues(t, 5, start["size"])

	b.SetReadDeadline(time.Now().Add(5 * time.Second))
	mt, data, err := b.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, mt)
	gotID, payload, ok := decodeDataFrame(data)
	require.True(t, ok)
	require.Equal(t, fileID, gotID)
	require.Equal(t, "hello", string(payload))

	done := readFrame(t, b)
	require.Equal(t, "file_download_complete", done["type"])
}

// S3 — unknown session.
func TestScenarioUnknownSession(t *testing.T) {
	_, url := testHub(t)
	c := dial(t, url)

	send(t, c, map[string]any{"type": "join_session", "sessionCode": "ZZZZZZ", "deviceName": "x", "deviceType": "unknown"})
	errFrame := readFrame(t, c)
	require.Equal(t, "session_error", errFrame["type"])
}

// S4 — leave fan-out.
func TestScenarioLeaveFanout(t *testing.T) {
	_, url := testHub(t)

	a := dial(t, url)
	send(t, a, map[string]any{"type": "create_session", "deviceName": "Mac", "deviceType": "mac"})
	created := readFrame(t, a)
	code := created["sessionCode"].(string)

	b := dial(t, url)
	send(t, b, map[string]any{"type": "join_session", "sessionCode": code, "deviceName": "iPhone", "deviceType": "iphone"})
	readFrame(t, b)
	readFrame(t, a) // device_joined

	require.NoError(t, b.Close())

	left := readFrame(t, a)
	require.Equal(t, "device_left", left["type"])
	require.EqualValues(t, 1, left["totalDevices"])
}

// S5 — delete then request yields nothing.
func TestScenarioDeleteThenRequestYieldsNothing(t *testing.T) {
	_, url := testHub(t)

	a := dial(t, url)
	send(t, a, map[string]any{"type": "create_session", "deviceName": "Mac", "deviceType": "mac"})
	created := readFrame(t, a)
	code := created["sessionCode"].(string)

	b := dial(t, url)
	send(t, b, map[string]any{"type": "join_session", "sessionCode": code, "deviceName": "iPhone", "deviceType": "iphone"})
	readFrame(t, b)
	readFrame(t, a)

	send(t, a, map[string]any{"type": "file_start", "fileName": "hi.txt", "fileSize": 5, "mimeType": "text/plain"})
	ack := readFrame(t, a)
	fileID := ack["fileId"].(string)
	require.NoError(t, a.WriteMessage(websocket.BinaryMessage, encodeDataFrame(fileID, []byte("hello"))))
	readFrame(t, a) // upload_progress
	send(t, a, map[string]any{"type": "file_complete", "fileId": fileID})
	readFrame(t, b) // new_file
	readFrame(t, a) // file_complete_ack

	send(t, a, map[string]any{"type": "delete_file", "fileId": fileID})
	removedA := readFrame(t, a)
	require.Equal(t, "file_removed", removedA["type"])
	removedB := readFrame(t, b)
	require.Equal(t, "file_removed", removedB["type"])

	send(t, b, map[string]any{"type": "request_file", "fileId": fileID})
	// No response frame should ever arrive: assert the next read times out.
	b.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, _, err := b.ReadMessage()
	require.Error(t, err)
}

func TestPingPong(t *testing.T) {
	_, url := testHub(t)
	c := dial(t, url)
	send(t, c, map[string]any{"type": "ping"})
	pong := readFrame(t, c)
	require.Equal(t, "pong", pong["type"])
}

func TestSecondCreateSessionWhileInSessionIsIgnored(t *testing.T) {
	_, url := testHub(t)
	a := dial(t, url)
	send(t, a, map[string]any{"type": "create_session", "deviceName": "Mac", "deviceType": "mac"})
	first := readFrame(t, a)

	send(t, a, map[string]any{"type": "create_session", "deviceName": "Other", "deviceType": "mac"})
	// Ignored: send a ping right after and expect a pong, not a second
	// session_created, proving the second create_session produced no frame.
	send(t, a, map[string]any{"type": "ping"})
	next := readFrame(t, a)
	require.Equal(t, "pong", next["type"])
	require.NotEqual(t, "session_created", next["type"])
	_ = first
}
