package normalize

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	domainerrors "github.com/spinlet-dev/spinlet/domain/errors"
)

// CGI constants announced to WAGI guests.
const (
	GatewayInterface = "CGI/1.1"
	ServerSoftware   = "WAGI/1"
)

// CGIEnv builds the CGI/1.1 meta-variables of r.
func CGIEnv(r *Request) map[string]string {
	host, port := splitAuthority(r.URL.Host, r.Scheme)
	remote := r.ClientAddr
	if h, _, err := net.SplitHostPort(remote); err == nil {
		remote = h
	}

	rawPathInfo := r.Synthetic.PathInfo
	pathInfo, err := url.PathUnescape(rawPathInfo)
	if err != nil {
		pathInfo = rawPathInfo
	}

	env := map[string]string{
		"AUTH_TYPE":         "",
		"CONTENT_LENGTH":    strconv.Itoa(len(r.Body)),
		"CONTENT_TYPE":      r.Header.Get("Content-Type"),
		"GATEWAY_INTERFACE": GatewayInterface,
		"QUERY_STRING":      r.URL.RawQuery,
		"REMOTE_ADDR":       remote,
		"REMOTE_HOST":       remote,
		"REMOTE_USER":       "",
		"REQUEST_METHOD":    r.Method,
		"SCRIPT_NAME":       scriptName(r.Synthetic),
		"PATH_INFO":         pathInfo,
		"X_RAW_PATH_INFO":   rawPathInfo,
		"PATH_TRANSLATED":   pathInfo,
		"SERVER_NAME":       host,
		"SERVER_PORT":       port,
		"SERVER_PROTOCOL":   r.Proto,
		"SERVER_SOFTWARE":   ServerSoftware,
	}
	if env["SERVER_PROTOCOL"] == "" {
		env["SERVER_PROTOCOL"] = "HTTP/1.1"
	}

	for name, values := range r.Header {
		if IsSynthetic(name) {
			continue
		}
		key := "HTTP_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
		if key == "HTTP_AUTHORIZATION" || key == "HTTP_CONNECTION" {
			continue
		}
		env[key] = strings.Join(values, ", ")
	}

	for _, f := range syntheticFields {
		if f.cgi != "" {
			env[f.cgi] = f.value(r.Synthetic)
		}
	}
	return env
}

// scriptName is the matched route with the base path applied and the
// wildcard marker removed.
func scriptName(s Synthetic) string {
	return strings.TrimSuffix(s.MatchedRoute, "/...")
}

func splitAuthority(authority, scheme string) (host, port string) {
	if h, p, err := net.SplitHostPort(authority); err == nil {
		return h, p
	}
	if scheme == "https" {
		return authority, "443"
	}
	return authority, "80"
}

// Argv expands the argv template. ${SCRIPT_NAME} becomes the request path and
// ${ARGS} the query string with '&' replaced by spaces.
func Argv(template string, r *Request) []string {
	args := strings.ReplaceAll(r.URL.RawQuery, "&", " ")
	line := strings.ReplaceAll(template, "${SCRIPT_NAME}", r.URL.Path)
	line = strings.ReplaceAll(line, "${ARGS}", args)
	return strings.Fields(line)
}

// SortedEnv flattens env into NAME=value pairs in name order.
func SortedEnv(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// ComposeCGI parses a CGI response written to stdout.
//
// The header block ends at the first empty line; CR characters in it are
// ignored. A Status header sets the status, a Location header implies 302
// unless Status is present. Output without Content-Type, Status or Location
// is rejected.
func ComposeCGI(stdout []byte) (*Response, error) {
	if len(stdout) == 0 {
		return nil, &domainerrors.CGIError{Err: fmt.Errorf("guest wrote nothing to stdout"), Code: http.StatusInternalServerError}
	}

	head, body, found := splitCGI(stdout)
	if !found {
		return nil, &domainerrors.CGIError{
			Err:    fmt.Errorf("no blank line terminating the header block"),
			Code:   http.StatusInternalServerError,
			Output: preview(stdout),
		}
	}

	resp := &Response{Status: http.StatusOK, Header: http.Header{}, Body: body}
	var status, location string
	sufficient := false

	sc := bufio.NewScanner(bytes.NewReader(head))
	for sc.Scan() {
		line := sc.Text()
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		switch strings.ToLower(name) {
		case "status":
			status = value
			sufficient = true
		case "location":
			location = value
			sufficient = true
		case "content-type":
			resp.Header.Set("Content-Type", value)
			sufficient = true
		default:
			if validHeaderName(name) {
				resp.Header.Add(name, value)
			}
		}
	}

	if !sufficient {
		return nil, &domainerrors.CGIError{
			Err:    fmt.Errorf("one of Content-Type, Status or Location must be set"),
			Code:   http.StatusInternalServerError,
			Output: preview(head),
		}
	}

	if location != "" {
		resp.Header.Set("Location", location)
		resp.Status = http.StatusFound
	}
	if status != "" {
		code, _, _ := strings.Cut(status, " ")
		n, err := strconv.Atoi(code)
		if err != nil || n < 100 || n > 599 {
			resp.Status = http.StatusBadGateway
		} else {
			resp.Status = n
		}
	}
	return resp, nil
}

// splitCGI separates the header block from the body, dropping CR from the
// header block.
func splitCGI(out []byte) (head, body []byte, found bool) {
	var last byte
	for i, b := range out {
		if b == '\r' {
			continue
		}
		if b == '\n' && last == '\n' {
			return head, out[i+1:], true
		}
		head = append(head, b)
		last = b
	}
	return nil, nil, false
}

func validHeaderName(name string) bool {
	if name == "" {
		return false
	}
	for _, c := range name {
		if c <= ' ' || c >= 0x7f || strings.ContainsRune("()<>@,;:\\\"/[]?={}", c) {
			return false
		}
	}
	return true
}

func preview(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max])
	}
	return string(b)
}
