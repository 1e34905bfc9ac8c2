package http

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWebSocketPlayFlow(t *testing.T) {
	ts := newTestServer(t)
	quiz, question := ts.activeQuiz(t, "B", 30)

	board := dial(t, ts, "/ws/leaderboard/"+quiz.ID+"?token=teacher")
	defer board.Close()
	if typ, payload := readNext(board, t, "leaderboard"); typ != "leaderboard" || len(payload["entries"].([]any)) != 0 {
		t.Fatalf("expected empty initial leaderboard, got %v", payload)
	}

	play := dial(t, ts, "/ws/play?code="+strings.ToLower(quiz.Code)+"&token=alice")
	defer play.Close()

	_, payload := readNext(play, t, "question")
	presented := payload["question"].(map[string]any)
	if presented["id"] != question.ID || presented["answerKey"] != nil {
		t.Fatalf("expected question without key, got %v", presented)
	}

	// select and submit in one message
	if err := play.WriteJSON(map[string]any{
		"type":    "submit",
		"payload": map[string]any{"questionId": question.ID, "content": "B"},
	}); err != nil {
		t.Fatalf("write submit: %v", err)
	}
	_, payload = readNext(play, t, "answer_recorded")
	if answer := payload["answer"].(map[string]any); answer["score"].(float64) != 100 {
		t.Fatalf("expected 100 points, got %v", answer)
	}
	_, payload = readNext(play, t, "finished")
	if payload["score"].(float64) != 100 {
		t.Fatalf("expected final score 100, got %v", payload)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_, payload := readNext(board, t, "leaderboard")
		entries := payload["entries"].([]any)
		if len(entries) == 1 && entries[0].(map[string]any)["displayName"] == "Alice" {
			return
		}
	}
	t.Fatalf("leaderboard never showed the finished student")
}

func TestWebSocketReportsErrors(t *testing.T) {
	ts := newTestServer(t)
	quiz, question := ts.activeQuiz(t, "A", 30)

	unknown := dial(t, ts, "/ws/play?code=NOPE00&token=alice")
	defer unknown.Close()
	if _, payload := readNext(unknown, t, "error"); !strings.Contains(payload["message"].(string), "not found") {
		t.Fatalf("expected not found, got %v", payload)
	}

	play := dial(t, ts, "/ws/play?code="+quiz.Code+"&token=alice")
	defer play.Close()
	readNext(play, t, "question")

	_ = play.WriteJSON(map[string]any{"type": "select", "payload": map[string]any{"questionId": question.ID, "content": "Z"}})
	if _, payload := readNext(play, t, "error"); payload["field"] != "content" {
		t.Fatalf("expected content validation error, got %v", payload)
	}
	_ = play.WriteJSON(map[string]any{"type": "dance"})
	readNext(play, t, "error")
}

func TestWebSocketReconnectResumesSession(t *testing.T) {
	ts := newTestServer(t)
	quiz, _ := ts.activeQuiz(t, "A", 30)

	first := dial(t, ts, "/ws/play?code="+quiz.Code+"&token=alice")
	readNext(first, t, "question")
	first.Close()

	second := dial(t, ts, "/ws/play?code="+quiz.Code+"&token=alice")
	defer second.Close()
	readNext(second, t, "question")

	session, err := ts.services.Quizzes.Session(quiz.ID, alice.UserID)
	if err != nil {
		t.Fatalf("expected the session to survive the reconnect: %v", err)
	}

	// leaving abandons the session
	_ = second.WriteJSON(map[string]any{"type": "leave"})
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !session.State().Terminal() {
		time.Sleep(10 * time.Millisecond)
	}
	if !session.State().Terminal() {
		t.Fatalf("expected abandoned session, got %s", session.State())
	}
}

func TestWebSocketRequiresToken(t *testing.T) {
	ts := newTestServer(t)
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/play?code=ABCDEF"
	_, resp, err := websocket.DefaultDialer.DialContext(context.Background(), u, nil)
	if err == nil {
		t.Fatalf("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", resp)
	}
}

func dial(t *testing.T, ts *testServer, path string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	c, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	return c
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s (%v)", expect, msg.Type, msg.Payload)
	}
	return msg.Type, msg.Payload
}
