package provider

// RenderContext exposes the inbound request to response templates.
type RenderContext struct {
	Method      string
	Path        string
	Headers     map[string]string
	QueryParams map[string]string
	Body        []byte
	Now         string // RFC 3339
}

// BodyRenderer renders a response body for a matched request.
type BodyRenderer interface {
	Render(ctx RenderContext) ([]byte, error)
}
