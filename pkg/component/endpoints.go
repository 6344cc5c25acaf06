package component

import (
	"net/http"

	"github.com/twinforge/twinforge/pkg/errdefs"
)

// Response is the value a component endpoint returns. Content is written
// verbatim; ContentType wins over any Content-Type header entry.
type Response struct {
	Status      int
	Headers     map[string]string
	Content     []byte
	ContentType string
}

// HandlerFunc handles one component endpoint. A non-nil error is rendered
// as the framework's error envelope with the status its kind maps to.
type HandlerFunc func(r *http.Request) (*Response, error)

// EndpointSpec mounts a handler under the component's endpoint prefix.
// Path may use chi-style parameters ("/{id}").
type EndpointSpec struct {
	Method  string
	Path    string
	Handler HandlerFunc
}

var supportedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// ValidateEndpoint rejects specs with unsupported methods or empty paths.
func ValidateEndpoint(spec EndpointSpec) error {
	if !supportedMethods[spec.Method] {
		return errdefs.Newf(errdefs.KindConfiguration, "unsupported endpoint method %q", spec.Method)
	}
	if spec.Path == "" || spec.Path[0] != '/' {
		return errdefs.Newf(errdefs.KindConfiguration, "endpoint path %q must start with /", spec.Path)
	}
	if spec.Handler == nil {
		return errdefs.New(errdefs.KindConfiguration, "endpoint handler is nil")
	}
	return nil
}
