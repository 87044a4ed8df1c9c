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

// Package httpproxy exposes registered services over plain HTTP: listing,
// descriptors, member invocation with JSON bodies, NDJSON streaming for
// generator results, and gateway dispatch for web-app services.
package httpproxy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	hypha "github.com/amun-ai/hypha-go"
	"github.com/amun-ai/hypha-go/auth"
	"github.com/amun-ai/hypha-go/hyphaerrors"
	"github.com/amun-ai/hypha-go/service"
)

const maxBodyBytes = 32 << 20

// Proxy serves the HTTP face of a router.
type Proxy struct {
	router *hypha.Router
	logger *zap.Logger
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithLogger sets the proxy's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Proxy) { p.logger = logger }
}

// New builds a Proxy over router.
func New(router *hypha.Router, opts ...Option) *Proxy {
	p := &Proxy{router: router, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handler returns the proxy's route table. Route order matters: /health
// must beat the workspace wildcard.
func (p *Proxy) Handler() http.Handler {
	m := mux.NewRouter()
	m.Use(corsMiddleware)
	m.HandleFunc("/health", p.handleHealth).Methods(http.MethodGet, http.MethodOptions)
	m.HandleFunc("/{workspace}", p.handleSummary).Methods(http.MethodGet, http.MethodOptions)
	m.HandleFunc("/{workspace}/services", p.handleList).Methods(http.MethodGet, http.MethodOptions)
	m.HandleFunc("/{workspace}/services/{service}", p.handleDescriptor).Methods(http.MethodGet, http.MethodOptions)
	m.HandleFunc("/{workspace}/services/{service}/{member}", p.handleCall).
		Methods(http.MethodGet, http.MethodPost, http.MethodOptions)
	m.PathPrefix("/{workspace}/apps/{service}").HandlerFunc(p.handleApp)
	return m
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authenticate resolves the caller identity. Missing or invalid credentials
// degrade to a fresh anonymous caller; they never fail the request.
func (p *Proxy) authenticate(r *http.Request) *auth.UserInfo {
	token := ""
	if h := r.Header.Get("Authorization"); h != "" {
		if bearer := strings.TrimPrefix(h, "Bearer "); bearer != h {
			token = bearer
		}
	} else if q := r.URL.Query().Get("token"); q != "" {
		token = q
	}
	creds, err := p.router.Auth().Authenticate(token)
	if err != nil {
		p.logger.Debug("invalid http credential; caller is anonymous", zap.Error(err))
		creds, err = p.router.Auth().Authenticate("")
		if err != nil {
			return &auth.UserInfo{}
		}
	}
	return creds.User
}

func (p *Proxy) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"server_id": p.router.ServerID(),
	})
}

func (p *Proxy) handleSummary(w http.ResponseWriter, r *http.Request) {
	user := p.authenticate(r)
	summary, err := p.router.Summary(user, mux.Vars(r)["workspace"])
	if err != nil {
		p.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (p *Proxy) handleList(w http.ResponseWriter, r *http.Request) {
	user := p.authenticate(r)
	q := service.Query{
		Type:       r.URL.Query().Get("type"),
		Visibility: service.Visibility(r.URL.Query().Get("visibility")),
	}
	listed, err := p.router.ListServices(user, mux.Vars(r)["workspace"], q)
	if err != nil {
		p.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listed)
}

// serviceVar resolves the service path segment; "ws" is an alias for the
// built-in workspace service.
func serviceVar(vars map[string]string) string {
	if vars["service"] == "ws" {
		return hypha.ManagerServiceID
	}
	return vars["service"]
}

func (p *Proxy) handleDescriptor(w http.ResponseWriter, r *http.Request) {
	user := p.authenticate(r)
	vars := mux.Vars(r)
	handle, err := p.router.GetService(user, vars["workspace"], serviceVar(vars), r.URL.Query().Get("mode"))
	if err != nil {
		p.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, handle.Descriptor())
}

func (p *Proxy) handleCall(w http.ResponseWriter, r *http.Request) {
	user := p.authenticate(r)
	vars := mux.Vars(r)
	handle, err := p.router.GetService(user, vars["workspace"], serviceVar(vars), r.URL.Query().Get("mode"))
	if err != nil {
		p.writeError(w, err)
		return
	}
	member := vars["member"]
	args, err := p.buildArgs(handle.Member(member), r)
	if err != nil {
		p.writeError(w, err)
		return
	}
	result, err := handle.Call(r.Context(), member, args...)
	if err != nil {
		p.writeError(w, err)
		return
	}
	if stream, ok := result.(*service.Stream); ok {
		p.writeNDJSON(w, r.Context(), stream)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// buildArgs maps the HTTP request onto the member's parameters. Query
// parameters and JSON object bodies address parameters by name; a JSON
// array body is positional; any other body is the single argument.
func (p *Proxy) buildArgs(m *service.Method, r *http.Request) ([]interface{}, error) {
	reserved := map[string]struct{}{"mode": {}, "token": {}}
	kwargs := make(map[string]interface{})
	for key, values := range r.URL.Query() {
		if _, skip := reserved[key]; skip || len(values) == 0 {
			continue
		}
		kwargs[key] = parseLooseJSON(values[0])
	}

	if r.Method == http.MethodPost {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			return nil, hyphaerrors.InvalidArgumentErrorf("reading request body: %v", err)
		}
		if len(body) > 0 {
			var decoded interface{}
			if err := json.Unmarshal(body, &decoded); err != nil {
				return nil, hyphaerrors.InvalidArgumentErrorf("request body is not valid JSON: %v", err)
			}
			switch v := decoded.(type) {
			case []interface{}:
				return v, nil
			case map[string]interface{}:
				for key, value := range v {
					kwargs[key] = value
				}
			default:
				return []interface{}{v}, nil
			}
		}
	}

	if m != nil && len(m.Params) > 0 {
		args, err := m.ArgsFromMap(kwargs)
		if err == nil {
			return args, nil
		}
		// A single value under an unrecognized name is still unambiguous;
		// pass it as the lone positional argument.
		if len(kwargs) == 1 {
			for _, value := range kwargs {
				return []interface{}{value}, nil
			}
		}
		return nil, err
	}
	if len(kwargs) == 0 {
		return nil, nil
	}
	// Members registered over the wire publish names without parameter
	// schemas; hand the keyword map through as the single argument.
	return []interface{}{kwargs}, nil
}

// parseLooseJSON interprets a query value as JSON when it parses, and as a
// plain string otherwise.
func parseLooseJSON(s string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

// writeNDJSON streams one JSON document per line. A mid-stream failure is
// reported as a trailing error line since the status is already written.
func (p *Proxy) writeNDJSON(w http.ResponseWriter, ctx context.Context, stream *service.Stream) {
	defer stream.Stop()
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	for {
		v, err := stream.Next(ctx)
		if err == io.EOF {
			return
		}
		if err != nil {
			st := hyphaerrors.FromError(err)
			_ = enc.Encode(map[string]interface{}{
				"type": "error",
				"error": map[string]interface{}{
					"code":    st.Code().String(),
					"message": st.Message(),
				},
			})
			return
		}
		if err := enc.Encode(v); err != nil {
			p.logger.Debug("ndjson consumer gone", zap.Error(err))
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (p *Proxy) writeError(w http.ResponseWriter, err error) {
	st := hyphaerrors.FromError(err)
	writeJSON(w, st.Code().HTTPStatus(), map[string]interface{}{
		"success": false,
		"code":    st.Code().String(),
		"detail":  st.Message(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
