package ports

// TemplateEngine renders a descriptor before it is parsed.
type TemplateEngine interface {
	// Render executes raw as a template. variables are reachable as
	// {{ .variables.name }}.
	Render(raw []byte, variables map[string]any) ([]byte, error)
}
