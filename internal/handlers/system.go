package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nanofleet/agentd/internal/identity"
	"github.com/nanofleet/agentd/internal/logger"
	"github.com/nanofleet/agentd/internal/skills"
)

// MemoryConfig is the conversational memory tuning exposed for operator
// introspection.
type MemoryConfig struct {
	LastMessages           int `json:"lastMessages"`
	ConsolidationThreshold int `json:"consolidationThreshold"`
}

type SystemHandler struct {
	log      *logger.Logger
	version  string
	identity *identity.Loader
	skills   []skills.Skill
	memory   MemoryConfig
}

func NewSystemHandler(
	log *logger.Logger,
	version string,
	identityLoader *identity.Loader,
	loadedSkills []skills.Skill,
	memory MemoryConfig,
) *SystemHandler {
	return &SystemHandler{
		log:      log.With("handler", "SystemHandler"),
		version:  version,
		identity: identityLoader,
		skills:   loadedSkills,
		memory:   memory,
	}
}

func (h *SystemHandler) HealthCheck(c *gin.Context) {
	RespondOK(c, gin.H{"status": "ok", "version": h.version})
}

func (h *SystemHandler) Identity(c *gin.Context) {
	summary, err := h.identity.Summary()
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "identity_failed", err)
		return
	}
	RespondOK(c, summary)
}

// SystemPrompt reassembles the prompt from the workspace on every call so
// operators see exactly what the next request will carry.
func (h *SystemHandler) SystemPrompt(c *gin.Context) {
	prompt, err := h.identity.AssembleSystemPrompt()
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "system_prompt_failed", err)
		return
	}
	if xml := skills.MetadataXML(h.skills); xml != "" {
		prompt += "\n" + xml
	}
	c.String(http.StatusOK, prompt)
}

func (h *SystemHandler) Skills(c *gin.Context) {
	out := make([]gin.H, 0, len(h.skills))
	for _, s := range h.skills {
		out = append(out, gin.H{
			"id":          s.Metadata.ID,
			"name":        s.Metadata.Name,
			"description": s.Metadata.Description,
			"version":     s.Metadata.Version,
			"available":   s.Available,
		})
	}
	RespondOK(c, gin.H{"skills": out})
}

// SkillContent serves the instruction body of one loaded skill. Unknown and
// unavailable skills look identical to the caller.
func (h *SystemHandler) SkillContent(c *gin.Context) {
	content := skills.Content(h.skills, c.Param("skillId"))
	if content == "" {
		RespondError(c, http.StatusNotFound, "skill_not_found", errors.New("Skill not found or unavailable"))
		return
	}
	c.String(http.StatusOK, content)
}

func (h *SystemHandler) MemorySettings(c *gin.Context) {
	RespondOK(c, h.memory)
}
