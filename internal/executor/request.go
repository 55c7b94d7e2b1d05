package executor

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// Request describes one logical API call. It is replayed verbatim on retry;
// only the Authorization header changes between attempts.
type Request struct {
	Operation  string // label for logs and metrics, e.g. "stock.move"
	Method     string
	Path       string            // "/estoque/{id}"
	PathParams map[string]string // values for {name} placeholders
	Query      url.Values
	JSON       any        // encoded once as application/json
	Form       url.Values // used when JSON is nil
	Header     http.Header
}

// Response is a successful (2xx) upstream reply.
type Response struct {
	Status    int
	Header    http.Header
	Body      []byte
	Attempts  int // network sends
	Refreshes int // token refreshes, including the lazy first fetch
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("decode response: empty body")
	}
	return json.Unmarshal(r.Body, v)
}

var pathParamRe = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

func (r Request) operation() string {
	if r.Operation != "" {
		return r.Operation
	}
	return strings.ToLower(r.method()) + " " + r.Path
}

func (r Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(r.Method)
}

// target expands path placeholders and appends the query string.
func (r Request) target(baseURL string) (string, error) {
	var missing []string
	path := pathParamRe.ReplaceAllStringFunc(r.Path, func(m string) string {
		name := strings.Trim(m, "{}")
		v, ok := r.PathParams[name]
		if !ok || v == "" {
			missing = append(missing, name)
			return m
		}
		return url.PathEscape(v)
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: unresolved path params %v in %s", ErrInvalidRequest, missing, r.Path)
	}
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	full := strings.TrimRight(baseURL, "/") + path
	if enc := r.Query.Encode(); enc != "" {
		if strings.Contains(full, "?") {
			full += "&" + enc
		} else {
			full += "?" + enc
		}
	}
	return full, nil
}

func (r Request) body() ([]byte, string, error) {
	switch {
	case r.JSON != nil:
		b, err := json.Marshal(r.JSON)
		if err != nil {
			return nil, "", fmt.Errorf("%w: encode body: %w", ErrInvalidRequest, err)
		}
		return b, "application/json", nil
	case r.Form != nil:
		return []byte(r.Form.Encode()), "application/x-www-form-urlencoded", nil
	}
	return nil, "", nil
}
