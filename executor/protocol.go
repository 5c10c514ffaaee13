package executor

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/caffeineduck/deltabundle/hostfunc"
	"github.com/caffeineduck/deltabundle/logger"
)

// Host calls travel on the guest's stderr as \x00DB:{json}\x00; the reply is
// one JSON line on the guest's stdin.
const (
	protocolPrefix = "\x00DB:"
	protocolSuffix = "\x00"
)

type callRequest struct {
	Fn   string         `json:"fn"`
	Args map[string]any `json:"args"`
}

type callResponse struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// protocolHandler intercepts stderr to handle host function calls.
// Regular stderr output passes through; protocol messages trigger host calls.
type protocolHandler struct {
	ctx         context.Context
	registry    *hostfunc.Registry
	stdinWriter io.Writer
	log         *logger.Logger

	mu         sync.Mutex
	realStderr bytes.Buffer
	buf        bytes.Buffer
	calls      int
}

func newProtocolHandler(ctx context.Context, registry *hostfunc.Registry, stdinWriter io.Writer, log *logger.Logger) *protocolHandler {
	return &protocolHandler{
		ctx:         ctx,
		registry:    registry,
		stdinWriter: stdinWriter,
		log:         logger.OrNop(log),
	}
}

// findMessage returns the index of the next message prefix in content, or -1.
func findMessage(content string) int {
	return strings.Index(content, protocolPrefix)
}

// extractMessage splits off the message starting at idx. ok is false when
// the message is not complete yet; remaining is then the partial message.
func extractMessage(content string, idx int) (payload, remaining string, ok bool) {
	start := idx + len(protocolPrefix)
	end := strings.Index(content[start:], protocolSuffix)
	if end == -1 {
		return "", content[idx:], false
	}
	return content[start : start+end], content[start+end+len(protocolSuffix):], true
}

func (p *protocolHandler) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf.Write(data)
	content := p.buf.String()
	p.buf.Reset()

	for {
		idx := findMessage(content)
		if idx == -1 {
			// Keep a trailing NUL back: it may start a prefix split across
			// writes.
			if i := strings.LastIndexByte(content, 0); i >= 0 && strings.HasPrefix(protocolPrefix, content[i:]) {
				p.realStderr.WriteString(content[:i])
				p.buf.WriteString(content[i:])
			} else {
				p.realStderr.WriteString(content)
			}
			break
		}
		p.realStderr.WriteString(content[:idx])

		payload, rest, ok := extractMessage(content, idx)
		if !ok {
			p.buf.WriteString(rest)
			break
		}
		content = rest
		p.calls++

		var req callRequest
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			p.respond(callResponse{Error: "invalid call format"})
			continue
		}
		p.respond(p.handleCall(req))
	}

	return len(data), nil
}

func (p *protocolHandler) respond(resp callResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		data, _ = json.Marshal(callResponse{Error: "unencodable result: " + err.Error()})
	}
	// The pipe blocks until the guest reads, so the reply must not hold the
	// stderr writer.
	go p.stdinWriter.Write(append(data, '\n'))
}

func (p *protocolHandler) handleCall(req callRequest) callResponse {
	fn, ok := p.registry.Get(req.Fn)
	if !ok {
		p.log.Warn("unknown host function", "fn", req.Fn)
		return callResponse{Error: "unknown function: " + req.Fn}
	}

	result, err := fn(p.ctx, req.Args)
	if err != nil {
		p.log.Debug("host function failed", "fn", req.Fn, "error", err)
		return callResponse{Error: err.Error()}
	}
	return callResponse{Data: result}
}

func (p *protocolHandler) Stderr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.realStderr.String() + p.buf.String()
}

// Calls returns the number of protocol messages seen.
func (p *protocolHandler) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
