package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"quizdesk-service/internal/app"
	"quizdesk-service/internal/auth"
	"quizdesk-service/internal/domain"
	"quizdesk-service/internal/infra/memory"
	"quizdesk-service/internal/metrics"
)

// idleScheduler never fires; countdown behavior is covered in the app package.
type idleScheduler struct{}

func (idleScheduler) Every(time.Duration, func()) func() { return func() {} }

type testEnv struct {
	server *httptest.Server
	store  *memory.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.NewStore()
	catalog := memory.NewExamCatalog(store, time.Minute)
	m := metrics.New()
	srv := NewServer(Deps{
		Exams:     app.NewExamService(store, catalog, store, memory.NewImageStore(), nil),
		Sessions:  app.NewExamSessionService(catalog, store, memory.NewSessionStore(), app.SessionConfig{Scheduler: idleScheduler{}, Metrics: m}),
		Rankings:  app.NewRankingService(store, store, store),
		Users:     app.NewUserService(store, auth.NewCredentials(store, bcrypt.MinCost), "", nil),
		Authoring: app.NewAuthoringService(nil, nil),
		Issuer:    auth.NewIssuer("test-secret", time.Hour),
		Metrics:   m,
	})
	env := &testEnv{server: httptest.NewServer(srv.Routes()), store: store}
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (e *testEnv) doList(t *testing.T, path, token string) []any {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, e.server.URL+path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", path, resp.StatusCode)
	}
	var out []any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	return out
}

func (e *testEnv) signup(t *testing.T, nationalID, role string) string {
	t.Helper()
	resp, _ := e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"nationalId": nationalID, "firstName": "Test", "lastName": role, "role": role, "password": "secret1",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: status %d", nationalID, resp.StatusCode)
	}
	resp, body := e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"nationalId": nationalID, "password": "secret1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: status %d", nationalID, resp.StatusCode)
	}
	return body["token"].(string)
}

// seedExam creates a one-question exam through the API and returns its ID.
func (e *testEnv) seedExam(t *testing.T, teacherToken string) string {
	t.Helper()
	resp, exam := e.do(t, http.MethodPost, "/api/exams", teacherToken, map[string]any{
		"title": "Arithmetic", "difficulty": "Easy", "timer": 5,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create exam: status %d body %v", resp.StatusCode, exam)
	}
	examID := exam["id"].(string)
	resp, q := e.do(t, http.MethodPost, "/api/exams/"+examID+"/questions", teacherToken, map[string]any{
		"question": "What is 2 + 2?", "options": []string{"3", "4"}, "correctAnswer": "4",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add question: status %d body %v", resp.StatusCode, q)
	}
	return examID
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected health response %d %v", resp.StatusCode, body)
	}
	metricsResp, err := http.Get(env.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer metricsResp.Body.Close()
	if metricsResp.StatusCode != http.StatusOK {
		t.Fatalf("expected metrics endpoint, got %d", metricsResp.StatusCode)
	}
}

func TestAuthAndRoleGates(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.signup(t, "1001", "teacher")
	student := env.signup(t, "2002", "student")

	if resp, _ := env.do(t, http.MethodGet, "/api/exams", "", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
	if resp, _ := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"nationalId": "1001", "password": "nope"}); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", resp.StatusCode)
	}
	if resp, _ := env.do(t, http.MethodPost, "/api/exams", student, map[string]any{"title": "x", "difficulty": "Easy", "timer": 5}); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for student authoring, got %d", resp.StatusCode)
	}
	if resp, _ := env.do(t, http.MethodGet, "/api/reports", student, nil); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for student reports, got %d", resp.StatusCode)
	}
	if resp, body := env.do(t, http.MethodPost, "/api/exams", teacher, map[string]any{"title": "", "difficulty": "Easy", "timer": 5}); resp.StatusCode != http.StatusBadRequest || body["kind"] != "validation" {
		t.Fatalf("expected 400 validation, got %d %v", resp.StatusCode, body)
	}

	examID := env.seedExam(t, teacher)
	if list := env.doList(t, "/api/exams", student); len(list) != 1 {
		t.Fatalf("student should see one exam, got %d", len(list))
	}
	resp, detail := env.do(t, http.MethodGet, "/api/exams/"+examID, student, nil)
	if resp.StatusCode != http.StatusOK || detail["questions"] != nil {
		t.Fatalf("student exam view must hide questions, got %d %v", resp.StatusCode, detail)
	}
	if resp, _ := env.do(t, http.MethodGet, "/api/exams/missing", student, nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	resp, me := env.do(t, http.MethodGet, "/api/me", student, nil)
	if resp.StatusCode != http.StatusOK || me["nationalId"] != "2002" || me["role"] != "student" {
		t.Fatalf("unexpected profile %d %v", resp.StatusCode, me)
	}
}

func TestSessionOverREST(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.signup(t, "1001", "teacher")
	student := env.signup(t, "2002", "student")
	examID := env.seedExam(t, teacher)

	resp, snap := env.do(t, http.MethodPost, "/api/exams/"+examID+"/session", student, nil)
	if resp.StatusCode != http.StatusOK || snap["state"] != "in_progress" {
		t.Fatalf("start: %d %v", resp.StatusCode, snap)
	}
	question := snap["question"].(map[string]any)
	qid := question["id"].(string)

	if resp, body := env.do(t, http.MethodPost, "/api/exams/"+examID+"/session/answers", student, map[string]string{"questionId": qid, "option": "7"}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown option, got %d %v", resp.StatusCode, body)
	}
	if resp, _ := env.do(t, http.MethodPost, "/api/exams/"+examID+"/session/answers", student, map[string]string{"questionId": qid, "option": "4"}); resp.StatusCode != http.StatusOK {
		t.Fatalf("select: %d", resp.StatusCode)
	}
	resp, snap = env.do(t, http.MethodPost, "/api/exams/"+examID+"/session/finish", student, nil)
	if resp.StatusCode != http.StatusOK || snap["state"] != "finished" {
		t.Fatalf("finish: %d %v", resp.StatusCode, snap)
	}
	if score := snap["result"].(map[string]any)["score"]; score != float64(100) {
		t.Fatalf("expected score 100, got %v", score)
	}

	// The finished session leaves the registry; starting again returns the stored result.
	if resp, _ := env.do(t, http.MethodPost, "/api/exams/"+examID+"/session/finish", student, nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after finish, got %d", resp.StatusCode)
	}
	resp, snap = env.do(t, http.MethodPost, "/api/exams/"+examID+"/session", student, nil)
	if resp.StatusCode != http.StatusOK || snap["state"] != "finished" {
		t.Fatalf("restart should short-circuit, got %d %v", resp.StatusCode, snap)
	}

	resp, report := env.do(t, http.MethodGet, "/api/reports/exams/"+examID+"?top=1", teacher, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("report: %d", resp.StatusCode)
	}
	summary := report["summary"].(map[string]any)
	if summary["participants"] != float64(1) || summary["averageScore"] != float64(100) {
		t.Fatalf("unexpected summary %v", summary)
	}
	resp, standing := env.do(t, http.MethodGet, "/api/exams/"+examID+"/standing", student, nil)
	if resp.StatusCode != http.StatusOK || standing["rank"] != float64(1) {
		t.Fatalf("standing: %d %v", resp.StatusCode, standing)
	}
	if results := env.doList(t, "/api/results", student); len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}
}

func TestWebSocketExamFlow(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.signup(t, "1001", "teacher")
	student := env.signup(t, "2002", "student")
	examID := env.seedExam(t, teacher)

	u := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/exams/" + examID + "?access_token=" + student
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Expect the initial snapshot first.
	_, snap := readNext(conn, t, "session")
	if snap["state"] != "in_progress" {
		t.Fatalf("expected in_progress, got %v", snap["state"])
	}
	qid := snap["question"].(map[string]any)["id"].(string)

	if err := conn.WriteJSON(map[string]any{"type": "select", "payload": map[string]string{"questionId": qid, "option": "3"}}); err != nil {
		t.Fatalf("write select: %v", err)
	}
	_, snap = readNext(conn, t, "session")
	if answers := snap["answers"].(map[string]any); answers[qid] != "3" {
		t.Fatalf("expected answer pushed, got %v", answers)
	}

	if err := conn.WriteJSON(map[string]any{"type": "bogus"}); err != nil {
		t.Fatalf("write bogus: %v", err)
	}
	_, errPayload := readNext(conn, t, "error")
	if errPayload["kind"] != "validation" {
		t.Fatalf("expected validation error, got %v", errPayload)
	}

	if err := conn.WriteJSON(map[string]any{"type": "finish"}); err != nil {
		t.Fatalf("write finish: %v", err)
	}
	finished := false
	for i := 0; i < 3 && !finished; i++ {
		_, snap = readNext(conn, t, "session")
		finished = snap["state"] == "finished"
	}
	if !finished {
		t.Fatalf("expected a finished snapshot")
	}
	if score := snap["result"].(map[string]any)["score"]; score != float64(0) {
		t.Fatalf("expected score 0, got %v", score)
	}

	if err := conn.WriteJSON(map[string]any{"type": "next"}); err != nil {
		t.Fatalf("write next: %v", err)
	}
	_, errPayload = readNext(conn, t, "error")
	if errPayload["kind"] != "conflict" {
		t.Fatalf("expected closed-session conflict, got %v", errPayload)
	}
}

func TestWebSocketRejectsTeachers(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.signup(t, "1001", "teacher")
	examID := env.seedExam(t, teacher)

	u := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/exams/" + examID + "?access_token=" + teacher
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 handshake, got %v", resp)
	}
}

func TestStatusOf(t *testing.T) {
	cases := map[domain.Kind]int{
		domain.KindValidation:      http.StatusBadRequest,
		domain.KindNotFound:        http.StatusNotFound,
		domain.KindConflict:        http.StatusConflict,
		domain.KindPersistence:     http.StatusInternalServerError,
		domain.KindExternal:        http.StatusBadGateway,
		domain.KindForbidden:       http.StatusForbidden,
		domain.KindUnauthenticated: http.StatusUnauthorized,
		domain.KindInternal:        http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := statusOf(kind); got != want {
			t.Fatalf("%s: expected %d, got %d", kind, want, got)
		}
	}
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
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}
