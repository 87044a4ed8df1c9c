// Copyright (c) 2026 Amun AI AB
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package httpproxy

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/amun-ai/hypha-go/hyphaerrors"
	"github.com/amun-ai/hypha-go/service"
)

// appServeMember is the member a web-app service must expose.
const appServeMember = "serve"

// requestScope is the argument handed to an app's serve member: the
// request rendered as plain data.
type requestScope struct {
	Type        string     `json:"type"`
	Method      string     `json:"method"`
	Path        string     `json:"path"`
	RawPath     string     `json:"raw_path,omitempty"`
	QueryString string     `json:"query_string,omitempty"`
	Headers     [][]string `json:"headers,omitempty"`
	Body        string     `json:"body,omitempty"` // base64
	Workspace   string     `json:"workspace"`
	User        string     `json:"user,omitempty"`
}

// appEvent is one element of a serve member's reply stream.
type appEvent struct {
	Type     string     `json:"type"`
	Status   int        `json:"status,omitempty"`
	Headers  [][]string `json:"headers,omitempty"`
	Body     string     `json:"body,omitempty"` // base64
	MoreBody bool       `json:"more_body,omitempty"`
}

// handleApp dispatches a request to a web-app service's serve member. The
// app answers with a stream of response events: one http.response.start,
// then http.response.body chunks until more_body is false.
func (p *Proxy) handleApp(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	user := p.authenticate(r)
	vars := mux.Vars(r)
	workspace, serviceID := vars["workspace"], vars["service"]
	handle, err := p.router.GetService(user, workspace, serviceID, "")
	if err != nil {
		p.writeError(w, err)
		return
	}
	if handle.Type() != service.TypeASGI && handle.Member(appServeMember) == nil && handle.Type() != "" {
		p.writeError(w, hyphaerrors.FunctionNotFoundErrorf("service %q is not a web app", handle.FullID()))
		return
	}

	scope, err := p.buildScope(r, workspace, user.ID)
	if err != nil {
		p.writeError(w, err)
		return
	}
	result, err := handle.Call(r.Context(), appServeMember, scope)
	if err != nil {
		p.writeError(w, err)
		return
	}
	switch v := result.(type) {
	case *service.Stream:
		p.writeAppStream(w, r, v)
	default:
		p.writeAppValue(w, v)
	}
}

func (p *Proxy) buildScope(r *http.Request, workspace, userID string) (map[string]interface{}, error) {
	vars := mux.Vars(r)
	prefix := "/" + vars["workspace"] + "/apps/" + vars["service"]
	path := strings.TrimPrefix(r.URL.Path, prefix)
	if path == "" {
		path = "/"
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, hyphaerrors.InvalidArgumentErrorf("reading request body: %v", err)
	}

	headers := make([][]string, 0, len(r.Header))
	for name, values := range r.Header {
		for _, value := range values {
			headers = append(headers, []string{strings.ToLower(name), value})
		}
	}
	sort.Slice(headers, func(i, j int) bool { return headers[i][0] < headers[j][0] })

	scope := requestScope{
		Type:        "http",
		Method:      r.Method,
		Path:        path,
		QueryString: r.URL.RawQuery,
		Headers:     headers,
		Workspace:   workspace,
		User:        userID,
	}
	if len(body) > 0 {
		scope.Body = base64.StdEncoding.EncodeToString(body)
	}
	// Serve members receive plain data; re-encode through JSON so local and
	// remote apps see the identical shape.
	var out map[string]interface{}
	raw, err := json.Marshal(scope)
	if err != nil {
		return nil, hyphaerrors.InternalErrorf("encoding request scope: %v", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, hyphaerrors.InternalErrorf("encoding request scope: %v", err)
	}
	return out, nil
}

func (p *Proxy) writeAppStream(w http.ResponseWriter, r *http.Request, stream *service.Stream) {
	defer stream.Stop()
	flusher, _ := w.(http.Flusher)
	started := false
	for {
		v, err := stream.Next(r.Context())
		if err == io.EOF {
			if !started {
				p.writeError(w, hyphaerrors.ServiceErrorf("app closed the stream without a response"))
			}
			return
		}
		if err != nil {
			if !started {
				p.writeError(w, err)
			} else {
				p.logger.Warn("app stream failed mid-response", zap.Error(err))
			}
			return
		}
		event, err := decodeAppEvent(v)
		if err != nil {
			if !started {
				p.writeError(w, err)
			}
			return
		}
		switch event.Type {
		case "http.response.start":
			if started {
				continue
			}
			for _, h := range event.Headers {
				if len(h) == 2 {
					w.Header().Set(h[0], h[1])
				}
			}
			status := event.Status
			if status == 0 {
				status = http.StatusOK
			}
			w.WriteHeader(status)
			started = true
		case "http.response.body":
			if !started {
				w.WriteHeader(http.StatusOK)
				started = true
			}
			chunk, err := base64.StdEncoding.DecodeString(event.Body)
			if err != nil {
				// Apps may send small text bodies unencoded.
				chunk = []byte(event.Body)
			}
			if _, err := w.Write(chunk); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
			if !event.MoreBody {
				return
			}
		}
	}
}

// writeAppValue handles apps that answer with a single response object
// instead of a stream.
func (p *Proxy) writeAppValue(w http.ResponseWriter, v interface{}) {
	event, err := decodeAppEvent(v)
	if err != nil || (event.Status == 0 && event.Body == "") {
		writeJSON(w, http.StatusOK, v)
		return
	}
	for _, h := range event.Headers {
		if len(h) == 2 {
			w.Header().Set(h[0], h[1])
		}
	}
	status := event.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if event.Body != "" {
		chunk, err := base64.StdEncoding.DecodeString(event.Body)
		if err != nil {
			chunk = []byte(event.Body)
		}
		_, _ = w.Write(chunk)
	}
}

func decodeAppEvent(v interface{}) (*appEvent, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, hyphaerrors.ServiceErrorf("unencodable app event: %v", err)
	}
	var event appEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, hyphaerrors.ServiceErrorf("malformed app event: %v", err)
	}
	return &event, nil
}
