package resources

import (
	"fmt"
	"net/url"
	"strings"
)

// projectFromURI extracts {name} from flowstate://projects/{name}/context.
// Names may be percent-encoded.
func projectFromURI(uri string) (string, error) {
	rest, ok := strings.CutPrefix(uri, projectsURI+"/")
	if !ok {
		return "", fmt.Errorf("validation: uri: expected %s", projectContextTmpl)
	}
	raw, ok := strings.CutSuffix(rest, "/context")
	if !ok || raw == "" {
		return "", fmt.Errorf("validation: uri: expected %s", projectContextTmpl)
	}
	name, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("validation: uri: %w", err)
	}
	return name, nil
}
