package skills

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nanofleet/agentd/internal/logger"
)

// Metadata is the YAML frontmatter of a SKILL.md file.
type Metadata struct {
	ID           string `yaml:"-" json:"id"`
	Name         string `yaml:"name" json:"name"`
	Description  string `yaml:"description" json:"description"`
	Version      string `yaml:"version,omitempty" json:"version,omitempty"`
	Requirements *struct {
		Binaries []string `yaml:"binaries,omitempty"`
		EnvVars  []string `yaml:"envVars,omitempty"`
	} `yaml:"requirements,omitempty" json:"-"`
}

// Skill availability is checked once at startup and frozen for the session.
type Skill struct {
	Metadata  Metadata
	Content   string
	Available bool
}

var frontmatterRe = regexp.MustCompile(`(?s)^---\s*\n(.*?)\n---\s*\n(.*)$`)

type Loader struct {
	workspace string
	log       *logger.Logger
}

func NewLoader(workspace string, log *logger.Logger) *Loader {
	return &Loader{
		workspace: workspace,
		log:       log.With("component", "SkillLoader"),
	}
}

// Load reads skills/<id>/SKILL.md under the workspace. A missing skills
// directory is normal; individual unreadable skills are skipped with a
// warning.
func (l *Loader) Load() []Skill {
	skillsPath := filepath.Join(l.workspace, "skills")

	entries, err := os.ReadDir(skillsPath)
	if err != nil {
		l.log.Debug("No skills directory found", "path", skillsPath, "error", err)
		return nil
	}

	var loaded []Skill
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		skillFile := filepath.Join(skillsPath, entry.Name(), "SKILL.md")
		raw, err := os.ReadFile(skillFile)
		if err != nil {
			l.log.Warn("Failed to load skill", "skill", entry.Name(), "error", err)
			continue
		}

		metadata, body, err := parseFrontmatter(string(raw))
		if err != nil {
			l.log.Warn("Failed to parse skill frontmatter", "skill", entry.Name(), "error", err)
			continue
		}
		metadata.ID = entry.Name()
		if metadata.Name == "" {
			metadata.Name = entry.Name()
		}

		missing := missingRequirements(metadata)
		if len(missing) > 0 {
			l.log.Warn("Skill requirements unmet", "skill", entry.Name(), "missing", strings.Join(missing, ", "))
		}

		loaded = append(loaded, Skill{
			Metadata:  metadata,
			Content:   body,
			Available: len(missing) == 0,
		})
	}

	sort.Slice(loaded, func(i, j int) bool {
		return loaded[i].Metadata.ID < loaded[j].Metadata.ID
	})
	return loaded
}

func parseFrontmatter(content string) (Metadata, string, error) {
	match := frontmatterRe.FindStringSubmatch(content)
	if match == nil {
		return Metadata{}, content, nil
	}
	var metadata Metadata
	if err := yaml.Unmarshal([]byte(match[1]), &metadata); err != nil {
		return Metadata{}, "", err
	}
	return metadata, match[2], nil
}

func missingRequirements(metadata Metadata) []string {
	if metadata.Requirements == nil {
		return nil
	}
	var missing []string
	for _, binary := range metadata.Requirements.Binaries {
		if _, err := exec.LookPath(binary); err != nil {
			missing = append(missing, "binary: "+binary)
		}
	}
	for _, envVar := range metadata.Requirements.EnvVars {
		if os.Getenv(envVar) == "" {
			missing = append(missing, "env: "+envVar)
		}
	}
	return missing
}

// MetadataXML renders the available skills as the prompt block the agent
// sees. Empty when no skills loaded.
func MetadataXML(loaded []Skill) string {
	if len(loaded) == 0 {
		return ""
	}

	var lines []string
	for _, s := range loaded {
		if !s.Available {
			continue
		}
		lines = append(lines, fmt.Sprintf("    <skill id=%q name=%q>%s</skill>", s.Metadata.ID, s.Metadata.Name, s.Metadata.Description))
	}

	return fmt.Sprintf(`
<skills>
%s
</skills>

To activate a skill, mention "activate skill: <skill-id>" in your response.`, strings.Join(lines, "\n"))
}

// Content returns the body of an available skill, or "" when the skill is
// unknown or unavailable.
func Content(loaded []Skill, skillID string) string {
	for _, s := range loaded {
		if s.Metadata.ID == skillID && s.Available {
			return s.Content
		}
	}
	return ""
}
