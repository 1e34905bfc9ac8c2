package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

var (
	teacher = domain.Principal{UserID: "teacher-1", Role: domain.RoleTeacher, Name: "Ms Frizzle"}
	alice   = domain.Principal{UserID: "student-a", Role: domain.RoleStudent, Name: "Alice"}
)

// tokenAuth maps opaque tokens to principals.
type tokenAuth map[string]domain.Principal

func (a tokenAuth) Authenticate(_ context.Context, token string) (domain.Principal, error) {
	if p, ok := a[token]; ok {
		return p, nil
	}
	return domain.Principal{}, domain.ErrUnauthenticated
}

type testServer struct {
	*httptest.Server
	services *app.Services
	sessions *memory.SessionStore
	blobs    *memory.BlobStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ts := &testServer{sessions: memory.NewSessionStore()}
	ts.Server = httptest.NewUnstartedServer(nil)
	ts.blobs = memory.NewBlobStore("http://" + ts.Listener.Addr().String() + "/blobs")
	ts.services = app.NewServices(app.Deps{
		Store:    memory.NewStore(),
		Sessions: ts.sessions,
		Notifier: memory.NewNotifier(),
		Blobs:    ts.blobs,
		Options:  app.Options{RefreshInterval: 50 * time.Millisecond},
	})
	ts.Config.Handler = NewRouter(RouterConfig{
		Services: ts.services,
		Auth:     tokenAuth{"teacher": teacher, "alice": alice},
		Blobs:    ts.blobs,
	})
	ts.Start()
	t.Cleanup(func() {
		ts.Close()
		for _, s := range ts.sessions.List() {
			s.Abandon()
		}
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return ts.send(t, req)
}

func (ts *testServer) send(t *testing.T, req *http.Request) (int, []byte) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp.StatusCode, buf.Bytes()
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

// activeQuiz creates and starts a quiz with one multiple choice question.
func (ts *testServer) activeQuiz(t *testing.T, key string, limitSeconds int) (domain.Quiz, domain.Question) {
	t.Helper()
	ctx := context.Background()
	quiz, err := ts.services.Lifecycle.CreateQuiz(ctx, teacher, app.NewQuiz{Title: "Live"})
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	q, err := ts.services.Questions.AddQuestion(ctx, teacher, quiz.ID, app.NewQuestion{
		Text:             "2 + 2?",
		Type:             domain.MultipleChoice,
		TimeLimitSeconds: limitSeconds,
		Options:          []app.OptionInput{{Key: "A", Text: "3"}, {Key: "B", Text: "4"}, {Key: "C", Text: "5"}, {Key: "D", Text: "22"}},
		AnswerKey:        key,
	})
	if err != nil {
		t.Fatalf("add question: %v", err)
	}
	if quiz, err = ts.services.Lifecycle.Transition(ctx, teacher, quiz.ID, domain.QuizActive); err != nil {
		t.Fatalf("start quiz: %v", err)
	}
	return quiz, q
}
