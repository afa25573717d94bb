package prompts

import _ "embed"

//go:embed system.txt
var SystemPrompt string

//go:embed default.tmpl
var DefaultTemplate string

//go:embed tenant.tmpl
var TenantTemplate string
