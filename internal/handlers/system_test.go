package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/nanofleet/agentd/internal/identity"
	"github.com/nanofleet/agentd/internal/skills"
)

func newSystemRouter(t *testing.T, workspace string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := mustTestLogger(t)
	loaded := skills.NewLoader(workspace, log).Load()
	handler := NewSystemHandler(log, "9.9.9", identity.NewLoader(workspace, log), loaded, MemoryConfig{
		LastMessages:           20,
		ConsolidationThreshold: 85,
	})

	router := gin.New()
	router.GET("/healthcheck", handler.HealthCheck)
	router.GET("/identity", handler.Identity)
	router.GET("/system-prompt", handler.SystemPrompt)
	router.GET("/skills", handler.Skills)
	router.GET("/skills/:skillId", handler.SkillContent)
	router.GET("/memory/config", handler.MemorySettings)
	return router
}

func newWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "SOUL.md"), []byte("# Soul\nBe kind.\n"), 0o644); err != nil {
		t.Fatalf("write SOUL.md: %v", err)
	}
	return dir
}

func get(t *testing.T, router *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheckReportsVersion(t *testing.T) {
	router := newSystemRouter(t, newWorkspace(t))

	rec := get(t, router, "/healthcheck")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d", rec.Code)
	}
	var body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Version != "9.9.9" {
		t.Fatalf("body: want=ok/9.9.9 got=%s/%s", body.Status, body.Version)
	}
}

func TestIdentityReportsPresentFiles(t *testing.T) {
	workspace := newWorkspace(t)
	if err := os.WriteFile(filepath.Join(workspace, "MEMORY.md"), []byte("notes\n"), 0o644); err != nil {
		t.Fatalf("write MEMORY.md: %v", err)
	}
	router := newSystemRouter(t, workspace)

	rec := get(t, router, "/identity")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d", rec.Code)
	}
	var summary identity.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !summary.HasSoul || !summary.HasMemory {
		t.Fatalf("summary: want soul and memory present got=%+v", summary)
	}
	if summary.HasAgents {
		t.Fatalf("summary: AGENTS.md should be absent got=%+v", summary)
	}
}

func TestSystemPromptIsPlainTextWithSoul(t *testing.T) {
	router := newSystemRouter(t, newWorkspace(t))

	rec := get(t, router, "/system-prompt")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content type: want=text/plain got=%s", ct)
	}
	if !strings.Contains(rec.Body.String(), "Be kind.") {
		t.Fatalf("prompt missing soul content: %q", rec.Body.String())
	}
}

func TestSkillsListsLoadedSkills(t *testing.T) {
	workspace := newWorkspace(t)
	skillDir := filepath.Join(workspace, "skills", "summarize")
	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		t.Fatalf("mkdir skill: %v", err)
	}
	skill := "---\nname: Summarize\ndescription: Summarize text\n---\nDo the thing.\n"
	if err := os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte(skill), 0o644); err != nil {
		t.Fatalf("write SKILL.md: %v", err)
	}
	router := newSystemRouter(t, workspace)

	rec := get(t, router, "/skills")
	var body struct {
		Skills []struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			Available bool   `json:"available"`
		} `json:"skills"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Skills) != 1 || body.Skills[0].ID != "summarize" || !body.Skills[0].Available {
		t.Fatalf("skills: want one available summarize got=%+v", body.Skills)
	}
}

func TestSkillContentServesBodyAndHidesUnknown(t *testing.T) {
	workspace := newWorkspace(t)
	skillDir := filepath.Join(workspace, "skills", "summarize")
	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		t.Fatalf("mkdir skill: %v", err)
	}
	skill := "---\nname: Summarize\ndescription: Summarize text\n---\nDo the thing.\n"
	if err := os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte(skill), 0o644); err != nil {
		t.Fatalf("write SKILL.md: %v", err)
	}
	router := newSystemRouter(t, workspace)

	rec := get(t, router, "/skills/summarize")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Do the thing.") {
		t.Fatalf("content: want skill body got=%q", rec.Body.String())
	}

	rec = get(t, router, "/skills/never-loaded")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown skill status: want=404 got=%d", rec.Code)
	}
}

func TestMemorySettings(t *testing.T) {
	router := newSystemRouter(t, newWorkspace(t))

	rec := get(t, router, "/memory/config")
	var cfg MemoryConfig
	if err := json.Unmarshal(rec.Body.Bytes(), &cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.LastMessages != 20 || cfg.ConsolidationThreshold != 85 {
		t.Fatalf("config: want=20/85 got=%d/%d", cfg.LastMessages, cfg.ConsolidationThreshold)
	}
}
