package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nanofleet/agentd/internal/logger"
)

const coreInstructions = `You are a helpful AI assistant. Always be helpful, concise, and accurate in your responses.`

const memoryMaxLines = 200

// Files holds the operator-authored workspace documents. SOUL.md is the only
// required one.
type Files struct {
	Soul      string
	Style     string
	Memory    string
	Agents    string
	History   string
	Heartbeat string
}

// Summary reports which workspace documents are present, for the identity
// introspection route.
type Summary struct {
	HasSoul      bool `json:"hasSoul"`
	HasStyle     bool `json:"hasStyle"`
	HasMemory    bool `json:"hasMemory"`
	HasAgents    bool `json:"hasAgents"`
	HasHistory   bool `json:"hasHistory"`
	HasHeartbeat bool `json:"hasHeartbeat"`
}

type Loader struct {
	workspace string
	log       *logger.Logger
}

func NewLoader(workspace string, log *logger.Logger) *Loader {
	return &Loader{
		workspace: workspace,
		log:       log.With("component", "IdentityLoader"),
	}
}

func (l *Loader) readMarkdownFile(name string) string {
	raw, err := os.ReadFile(filepath.Join(l.workspace, name))
	if err != nil {
		return ""
	}
	return string(raw)
}

func (l *Loader) Load() (*Files, error) {
	files := &Files{
		Soul:      l.readMarkdownFile("SOUL.md"),
		Style:     l.readMarkdownFile("STYLE.md"),
		Memory:    l.readMarkdownFile("MEMORY.md"),
		Agents:    l.readMarkdownFile("AGENTS.md"),
		History:   l.readMarkdownFile("HISTORY.md"),
		Heartbeat: l.readMarkdownFile("HEARTBEAT.md"),
	}
	if files.Soul == "" {
		return nil, fmt.Errorf("SOUL.md is required in workspace %s", l.workspace)
	}
	return files, nil
}

// AssembleSystemPrompt builds the agent instructions from the workspace
// documents. MEMORY.md is truncated so an ever-growing memory file cannot
// crowd out the rest of the prompt.
func (l *Loader) AssembleSystemPrompt() (string, error) {
	files, err := l.Load()
	if err != nil {
		return "", err
	}

	parts := []string{coreInstructions, "", files.Soul}

	if files.Style != "" {
		parts = append(parts, "", files.Style)
	}
	if files.Memory != "" {
		parts = append(parts, "", "## Long-term Memory", truncateToLines(files.Memory, memoryMaxLines))
	}
	if files.Agents != "" {
		parts = append(parts, "", "## Other Agents", files.Agents)
	}

	return strings.Join(parts, "\n"), nil
}

func (l *Loader) Summary() (*Summary, error) {
	files, err := l.Load()
	if err != nil {
		return nil, err
	}
	return &Summary{
		HasSoul:      true,
		HasStyle:     files.Style != "",
		HasMemory:    files.Memory != "",
		HasAgents:    files.Agents != "",
		HasHistory:   files.History != "",
		HasHeartbeat: files.Heartbeat != "",
	}, nil
}

// DynamicReminders is appended to the final user message of each request so
// the model always sees the current wall-clock time.
func DynamicReminders(now time.Time) string {
	timeString := now.Format("Monday, January 2, 2006, 03:04 PM MST")
	return fmt.Sprintf(`<system-reminder>
- Current time: %s
- Always consider the current time when planning tasks or scheduling.
</system-reminder>`, timeString)
}

func truncateToLines(content string, maxLines int) string {
	lines := strings.Split(content, "\n")
	if len(lines) <= maxLines {
		return content
	}
	return strings.Join(lines[:maxLines], "\n")
}
