package api_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/talkscene/talkscene/internal/api"
	"github.com/talkscene/talkscene/internal/auth"
	"github.com/talkscene/talkscene/internal/character"
	"github.com/talkscene/talkscene/internal/dialogue"
	"github.com/talkscene/talkscene/internal/usage"
	"github.com/talkscene/talkscene/internal/user"
	imagepkg "github.com/talkscene/talkscene/pkg/provider/image"
	imagemock "github.com/talkscene/talkscene/pkg/provider/image/mock"
	"github.com/talkscene/talkscene/pkg/provider/llm"
	llmmock "github.com/talkscene/talkscene/pkg/provider/llm/mock"
	"github.com/talkscene/talkscene/pkg/provider/stt"
	sttmock "github.com/talkscene/talkscene/pkg/provider/stt/mock"
	ttsmock "github.com/talkscene/talkscene/pkg/provider/tts/mock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type harness struct {
	router *gin.Engine

	users      *user.MemStore
	ledger     *usage.Ledger
	characters *character.MemStore
	llm        *llmmock.Provider
	stt        *sttmock.Provider
	tts        *ttsmock.Provider
	images     *imagemock.Provider
	authsvc    *auth.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		users:      user.NewMemStore(),
		characters: character.NewMemStore(),
		llm:        &llmmock.Provider{},
		stt:        &sttmock.Provider{Transcript: &stt.Transcript{Text: "hello there"}},
		tts:        &ttsmock.Provider{Audio: []byte("mp3")},
		images:     &imagemock.Provider{Ref: &imagepkg.Ref{URL: "https://img.example/p.png"}},
	}
	h.ledger = usage.NewLedger(h.users, usage.NewMemStore(), nil)
	h.authsvc = auth.NewService(h.users, nil)

	tutor := dialogue.NewTutor(h.llm)
	orch := dialogue.New(tutor, h.stt, h.tts, h.ledger, nil, dialogue.WithRelistenDelay(0))
	creator := character.NewCreator(h.images, h.characters, h.ledger, nil)

	srv := api.New(api.Deps{
		Auth:         h.authsvc,
		Users:        h.users,
		Ledger:       h.ledger,
		Characters:   h.characters,
		Creator:      creator,
		Orchestrator: orch,
		Tutor:        tutor,
		TTS:          h.tts,
		STT:          h.stt,
	})
	h.router = srv.Routes()
	return h
}

// register creates an account through the API and returns its token.
func (h *harness) register(t *testing.T, email string) string {
	t.Helper()
	w := h.do(t, "POST", "/api/register", "", map[string]any{
		"email":    email,
		"password": "hunter2hunter2",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register = %d: %s", w.Code, w.Body)
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("register response: %v", err)
	}
	return resp.Token
}

func (h *harness) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func TestRegisterLoginFlow(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	token := h.register(t, "amy@example.com")

	w := h.do(t, "GET", "/api/user", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/user = %d: %s", w.Code, w.Body)
	}
	if !strings.Contains(w.Body.String(), "amy@example.com") {
		t.Errorf("user body = %s", w.Body)
	}

	w = h.do(t, "POST", "/api/login", "", map[string]any{
		"email": "amy@example.com", "password": "hunter2hunter2",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login = %d: %s", w.Code, w.Body)
	}

	w = h.do(t, "POST", "/api/login", "", map[string]any{
		"email": "amy@example.com", "password": "wrong-password",
	})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad login = %d, want 401", w.Code)
	}
}

func TestRequireAuth(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	for _, path := range []string{"/api/user", "/api/saved-characters", "/api/session"} {
		w := h.do(t, "GET", path, "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without token = %d, want 401", path, w.Code)
		}
	}

	w := h.do(t, "GET", "/api/user", "not-a-real-token", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bogus token = %d, want 401", w.Code)
	}
}

func TestLogoutInvalidatesToken(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	token := h.register(t, "amy@example.com")

	if w := h.do(t, "POST", "/api/logout", token, nil); w.Code != http.StatusOK {
		t.Fatalf("logout = %d", w.Code)
	}
	if w := h.do(t, "GET", "/api/user", token, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("token after logout = %d, want 401", w.Code)
	}
}

func TestCheckUsage(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	token := h.register(t, "amy@example.com")

	w := h.do(t, "POST", "/api/check-usage", token, map[string]any{"metric": "conversation"})
	if w.Code != http.StatusOK {
		t.Fatalf("check-usage = %d: %s", w.Code, w.Body)
	}
	var q struct {
		CanUse bool `json:"canUse"`
		Limit  int  `json:"limit"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &q); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !q.CanUse || q.Limit != 10 {
		t.Errorf("quota = %+v, want free tier allowance", q)
	}

	w = h.do(t, "POST", "/api/check-usage", token, map[string]any{"metric": "mana"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown metric = %d, want 400", w.Code)
	}
}

func TestIncrementUsage(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	token := h.register(t, "amy@example.com")

	w := h.do(t, "POST", "/api/increment-usage", token, map[string]any{"metric": "tts"})
	if w.Code != http.StatusOK {
		t.Fatalf("increment-usage = %d: %s", w.Code, w.Body)
	}
	var resp struct {
		Success  bool `json:"success"`
		NewUsage int  `json:"newUsage"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.NewUsage != 1 {
		t.Errorf("resp = %+v, want success with newUsage 1", resp)
	}
}

func TestGenerateImageAndCharacterCRUD(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	token := h.register(t, "amy@example.com")

	w := h.do(t, "POST", "/api/generate-image", token, map[string]any{
		"name": "Yuki", "gender": "female", "style": "cheerful",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("generate-image = %d: %s", w.Code, w.Body)
	}
	var created struct {
		ImageURL  string              `json:"imageUrl"`
		Character character.Character `json:"character"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ImageURL != "https://img.example/p.png" {
		t.Errorf("imageUrl = %q", created.ImageURL)
	}

	w = h.do(t, "GET", "/api/saved-characters", token, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Yuki") {
		t.Fatalf("list = %d: %s", w.Code, w.Body)
	}

	path := "/api/saved-characters/" + created.Character.ID
	if w = h.do(t, "GET", path, token, nil); w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}
	if w = h.do(t, "POST", path+"/use", token, nil); w.Code != http.StatusOK {
		t.Fatalf("use = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"usageCount":1`) {
		t.Errorf("use body = %s", w.Body)
	}
	if w = h.do(t, "DELETE", path, token, nil); w.Code != http.StatusOK {
		t.Fatalf("delete = %d", w.Code)
	}
	if w = h.do(t, "GET", path, token, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
}

func TestGenerateImageQuota(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	token := h.register(t, "amy@example.com")

	// Free tier allows 3 portraits.
	for i := range 3 {
		w := h.do(t, "POST", "/api/generate-image", token, map[string]any{
			"name": fmt.Sprintf("Yuki %d", i), "gender": "female", "style": "calm",
		})
		if w.Code != http.StatusOK {
			t.Fatalf("generate-image #%d = %d: %s", i, w.Code, w.Body)
		}
	}

	w := h.do(t, "POST", "/api/generate-image", token, map[string]any{
		"name": "One Too Many", "gender": "female", "style": "calm",
	})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("over-quota = %d, want 429: %s", w.Code, w.Body)
	}
	var denied struct {
		CurrentUsage int    `json:"currentUsage"`
		Limit        int    `json:"limit"`
		Type         string `json:"type"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &denied); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if denied.Type != "image_limit_exceeded" || denied.CurrentUsage != 3 || denied.Limit != 3 {
		t.Errorf("denied = %+v", denied)
	}
}

func TestSessionFlow(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	token := h.register(t, "amy@example.com")
	h.llm.CompleteFunc = scriptedTutor()

	// No session yet.
	if w := h.do(t, "GET", "/api/session", token, nil); w.Code != http.StatusNotFound {
		t.Fatalf("session before start = %d, want 404", w.Code)
	}

	// Create a character and start a scene with it.
	w := h.do(t, "POST", "/api/generate-image", token, map[string]any{
		"name": "Yuki", "gender": "female", "style": "cheerful",
	})
	var created struct {
		Character character.Character `json:"character"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	w = h.do(t, "POST", "/api/session/start", token, map[string]any{
		"characterId": created.Character.ID, "presetKey": "cafe",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("session start = %d: %s", w.Code, w.Body)
	}
	var started struct {
		Session dialogue.Snapshot `json:"session"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if started.Session.Progress != 10 || len(started.Session.Turns) != 2 {
		t.Errorf("session = progress %d, %d turns", started.Session.Progress, len(started.Session.Turns))
	}

	// Submit a recording.
	blob := base64Blob(2048)
	w = h.do(t, "POST", "/api/session/audio", token, map[string]any{"audioBlob": blob})
	if w.Code != http.StatusOK {
		t.Fatalf("session audio = %d: %s", w.Code, w.Body)
	}
	var res dialogue.SubmitResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Status != dialogue.SubmitAccepted || res.Progress != 25 {
		t.Errorf("submit = %s progress %d", res.Status, res.Progress)
	}

	// Export the transcript.
	w = h.do(t, "GET", "/api/session/export?format=markdown", token, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Yuki") {
		t.Fatalf("export = %d: %s", w.Code, w.Body)
	}

	// End the scene.
	if w = h.do(t, "POST", "/api/session/end", token, nil); w.Code != http.StatusOK {
		t.Fatalf("session end = %d", w.Code)
	}
	if w = h.do(t, "GET", "/api/session", token, nil); w.Code != http.StatusNotFound {
		t.Errorf("session after end = %d, want 404", w.Code)
	}
}

func TestAdminGate(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	token := h.register(t, "amy@example.com")

	if w := h.do(t, "GET", "/api/admin/users", token, nil); w.Code != http.StatusForbidden {
		t.Fatalf("non-admin = %d, want 403", w.Code)
	}

	// Promote through the store, then the endpoints open up.
	u, err := h.users.GetByEmail(context.Background(), "amy@example.com")
	if err != nil || u == nil {
		t.Fatalf("lookup: %v %v", u, err)
	}
	u.Role = user.RoleAdmin
	if err := h.users.Update(context.Background(), u); err != nil {
		t.Fatalf("promote: %v", err)
	}

	w := h.do(t, "GET", "/api/admin/users", token, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "amy@example.com") {
		t.Fatalf("admin list = %d: %s", w.Code, w.Body)
	}

	w = h.do(t, "PUT", "/api/admin/users/"+u.ID, token, map[string]any{"tier": "pro"})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"tier":"pro"`) {
		t.Fatalf("admin update = %d: %s", w.Code, w.Body)
	}

	w = h.do(t, "PUT", "/api/admin/users/"+u.ID, token, map[string]any{"tier": "diamond"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad tier = %d, want 400", w.Code)
	}
}

func TestTranslatePronunciation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	token := h.register(t, "amy@example.com")
	h.llm.CompleteResponse = &llm.CompletionResponse{Content: `{"translation": "안녕", "pronunciation": "AHN-nyong"}`}

	w := h.do(t, "POST", "/api/translate-pronunciation", token, map[string]any{"text": "Hello"})
	if w.Code != http.StatusOK {
		t.Fatalf("translate = %d: %s", w.Code, w.Body)
	}
	if !strings.Contains(w.Body.String(), "koreanTranslation") {
		t.Errorf("body = %s", w.Body)
	}
}

// scriptedTutor routes tutor prompts to canned JSON so session flows run
// without a live model.
func scriptedTutor() func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		switch {
		case strings.Contains(req.SystemPrompt, "Open the scene"):
			return &llm.CompletionResponse{Content: `{"text": "Welcome in!", "emotion": "happy"}`}, nil
		case strings.Contains(req.SystemPrompt, "annotate English sentences"):
			return &llm.CompletionResponse{Content: `{"translation": "환영합니다", "pronunciation": "WEL-kuhm"}`}, nil
		default:
			return &llm.CompletionResponse{Content: `{
				"text": "One latte coming right up!",
				"emotion": "happy",
				"feedback": {"accuracyScore": 92, "suggestions": [], "needsCorrection": false, "betterExpression": ""},
				"shouldEndConversation": false
			}`}, nil
		}
	}
}

func base64Blob(n int) string {
	return base64.StdEncoding.EncodeToString(make([]byte, n))
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	if w := h.do(t, "GET", "/healthz", "", nil); w.Code != http.StatusOK {
		t.Errorf("healthz = %d", w.Code)
	}
}
