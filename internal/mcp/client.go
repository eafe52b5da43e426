// Package mcp is a client for remote tools served over the MCP streamable
// HTTP transport: JSON-RPC requests are POSTed to one endpoint and answered
// either with a JSON body or with an event stream carrying progress
// notifications ahead of the response.
package mcp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/konashevich/olexi-host/internal/pkg/json"
	"github.com/konashevich/olexi-host/internal/research"
)

const (
	ProtocolVersion = "2025-06-18"

	headerSession  = "Mcp-Session-Id"
	headerProtocol = "MCP-Protocol-Version"

	methodInitialize  = "initialize"
	methodInitialized = "notifications/initialized"
	methodCallTool    = "tools/call"
	methodProgress    = "notifications/progress"
)

// ErrToolFailed is returned when a tool reports isError.
var ErrToolFailed = errors.New("tool call failed")

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcMessage struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

type progressParams struct {
	ProgressToken any     `json:"progressToken"`
	Progress      float64 `json:"progress"`
	Total         float64 `json:"total"`
	Message       string  `json:"message"`
}

// Transport opens sessions against one MCP endpoint.
type Transport struct {
	endpoint string
	client   *http.Client
	name     string
	version  string
	logger   *log.Logger
}

// NewTransport returns a transport for endpoint. Per-call deadlines come from
// the caller's context; timeout only bounds the HTTP client as a whole.
func NewTransport(endpoint string, timeout time.Duration, logger *log.Logger) *Transport {
	if timeout == 0 {
		timeout = 90 * time.Second
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[MCP] ", log.LstdFlags)
	}
	return &Transport{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		name:     "olexi-host",
		version:  "1.0.0",
		logger:   logger,
	}
}

// Open performs the initialize handshake.
func (t *Transport) Open(ctx context.Context) (research.ToolSession, error) {
	s := &Session{t: t}
	params := map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": t.name, "version": t.version},
	}
	raw, err := s.request(ctx, methodInitialize, params, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp initialize: %w", err)
	}
	var init struct {
		ProtocolVersion string `json:"protocolVersion"`
	}
	if err := json.Unmarshal(raw, &init); err == nil && init.ProtocolVersion != "" {
		s.protocol = init.ProtocolVersion
	}
	if err := s.notify(ctx, methodInitialized); err != nil {
		return nil, fmt.Errorf("mcp initialized: %w", err)
	}
	return s, nil
}

// Session is one initialised MCP session. Calls may run concurrently.
type Session struct {
	t        *Transport
	id       string
	protocol string
	seq      atomic.Int64
}

// ID is the server-assigned session id, empty for stateless servers.
func (s *Session) ID() string { return s.id }

// Call invokes a tool. Progress notifications for this call are handed to
// onProgress in arrival order before Call returns. The full tool result
// envelope is returned as is.
func (s *Session) Call(ctx context.Context, tool string, args map[string]any, onProgress func(research.Progress)) (json.RawMessage, error) {
	params := map[string]any{"name": tool, "arguments": args}
	if onProgress != nil {
		params["_meta"] = map[string]any{"progressToken": uuid.NewString()}
	}
	raw, err := s.request(ctx, methodCallTool, params, onProgress)
	if err != nil {
		return nil, fmt.Errorf("mcp %s: %w", tool, err)
	}
	var res struct {
		IsError bool `json:"isError"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &res); err == nil && res.IsError {
		var msgs []string
		for _, c := range res.Content {
			if c.Text != "" {
				msgs = append(msgs, c.Text)
			}
		}
		return nil, fmt.Errorf("mcp %s: %w: %s", tool, ErrToolFailed, strings.Join(msgs, "; "))
	}
	return raw, nil
}

// Close ends the session on the server. Stateless sessions have nothing to
// close.
func (s *Session) Close(ctx context.Context) error {
	if s.id == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.t.endpoint, nil)
	if err != nil {
		return err
	}
	s.headers(req)
	resp, err := s.t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	// servers that do not allow client-initiated termination answer 405
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusMethodNotAllowed {
		return fmt.Errorf("mcp close: %s", resp.Status)
	}
	return nil
}

func (s *Session) headers(req *http.Request) {
	req.Header.Set("Accept", "application/json, text/event-stream")
	if s.id != "" {
		req.Header.Set(headerSession, s.id)
	}
	if s.protocol != "" {
		req.Header.Set(headerProtocol, s.protocol)
	}
}

func (s *Session) post(ctx context.Context, msg rpcRequest) (*http.Response, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	s.headers(req)
	resp, err := s.t.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.New(resp.Status + ": " + strings.TrimSpace(string(b)))
	}
	if id := resp.Header.Get(headerSession); id != "" && s.id == "" {
		s.id = id
	}
	return resp, nil
}

func (s *Session) notify(ctx context.Context, method string) error {
	resp, err := s.post(ctx, rpcRequest{JSONRPC: "2.0", Method: method})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (s *Session) request(ctx context.Context, method string, params any, onProgress func(research.Progress)) (json.RawMessage, error) {
	id := s.seq.Add(1)
	resp, err := s.post(ctx, rpcRequest{JSONRPC: "2.0", ID: &id, Method: method, Params: params})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	want := strconv.FormatInt(id, 10)
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		return readStream(resp.Body, want, onProgress)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var msg rpcMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return msg.outcome()
}

func (m *rpcMessage) outcome() (json.RawMessage, error) {
	if m.Error != nil {
		return nil, m.Error
	}
	return m.Result, nil
}

// readStream consumes SSE frames until the response with id want arrives.
func readStream(body io.Reader, want string, onProgress func(research.Progress)) (json.RawMessage, error) {
	r := bufio.NewReaderSize(body, 4*1024)
	var data strings.Builder
	for {
		line, err := r.ReadString('\n')
		line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
		if v, ok := strings.CutPrefix(line, "data:"); ok {
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(v, " "))
		}

		// a blank line ends the event
		if (line == "" || err != nil) && data.Len() > 0 {
			var msg rpcMessage
			jerr := json.UnmarshalString(data.String(), &msg)
			data.Reset()
			switch {
			case jerr != nil:
			case msg.Method == methodProgress:
				if onProgress != nil {
					var p progressParams
					if json.Unmarshal(msg.Params, &p) == nil {
						onProgress(research.Progress{Progress: p.Progress, Total: p.Total, Message: p.Message})
					}
				}
			case string(bytes.TrimSpace(msg.ID)) == want:
				return msg.outcome()
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
}
