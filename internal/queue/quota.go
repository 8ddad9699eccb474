package queue

import "github.com/ShayCichocki/hive/pkg/models"

// QuotaSource tags where an effective quota came from, for observability.
type QuotaSource string

const (
	QuotaSourceWorkflow QuotaSource = "workflow"
	QuotaSourceProject  QuotaSource = "project"
	QuotaSourceDefault  QuotaSource = "default"
)

// Quota is a resolved concurrency limit and its provenance.
type Quota struct {
	// Limit is the effective maximum concurrent task count.
	Limit int `json:"limit"`
	// Source says which policy level supplied the limit.
	Source QuotaSource `json:"source"`
}

// EffectiveQuota resolves the concurrency limit for an agent configuration,
// in priority order: the workflow-specific quota when workflowID is given
// and present, then the project quota, then the config's default quota, then
// a hardcoded floor of 1. It is a pure function of its inputs.
func EffectiveQuota(cfg *models.AgentConfig, workflowID string) Quota {
	if cfg != nil && cfg.QuotaPolicy != nil {
		if workflowID != "" {
			if limit, ok := cfg.QuotaPolicy.WorkflowQuota[workflowID]; ok && limit > 0 {
				return Quota{Limit: limit, Source: QuotaSourceWorkflow}
			}
		}
		if cfg.QuotaPolicy.ProjectQuota > 0 {
			return Quota{Limit: cfg.QuotaPolicy.ProjectQuota, Source: QuotaSourceProject}
		}
	}
	if cfg != nil && cfg.DefaultQuota > 0 {
		return Quota{Limit: cfg.DefaultQuota, Source: QuotaSourceDefault}
	}
	return Quota{Limit: 1, Source: QuotaSourceDefault}
}
