package models

// Responder describes one system responder identity.
type Responder struct {
	Name              string `json:"name" mapstructure:"name"`
	DisplayName       string `json:"display_name" mapstructure:"display_name"`
	Role              string `json:"role" mapstructure:"role"`
	SystemPrompt      string `json:"system_prompt" mapstructure:"system_prompt"`
	KnowledgeBasePath string `json:"knowledge_base_path" mapstructure:"knowledge_base_path"`
}

// Label returns the display name, falling back to the mention name.
func (r Responder) Label() string {
	if r.DisplayName != "" {
		return r.DisplayName
	}
	return r.Name
}
