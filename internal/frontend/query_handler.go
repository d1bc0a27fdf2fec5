package frontend

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"dnsflatd/internal/dnsmsg"
	"dnsflatd/internal/resolver"
)

// QueryHandler parses a raw request, forwards it to the resolver with a
// timeout, and serializes a response, synthesizing FORMERR/SERVFAIL for
// malformed requests or resolution failures (spec.md §4.6, §7).
type QueryHandler struct {
	Logger   *slog.Logger
	Resolver *resolver.Resolver
	Timeout  time.Duration
}

// HandleResult is the outcome of processing one request.
type HandleResult struct {
	ResponseBytes []byte
	Source        string
	Parsed        dnsmsg.Packet
	ParsedOK      bool
}

// Handle processes one raw DNS request received over transport ("udp" or
// "tcp") from src.
func (h *QueryHandler) Handle(ctx context.Context, transport, src string, reqBytes []byte) HandleResult {
	qid := uuid.NewString()

	parsed, err := dnsmsg.ParseRequestBounded(reqBytes)
	if err != nil {
		return h.handleParseError(reqBytes)
	}

	resp, source := h.resolveWithTimeout(ctx, parsed)
	respBytes := h.marshalResponse(parsed, resp)

	h.logRequest(ctx, qid, transport, src, parsed, source, len(reqBytes))
	return HandleResult{ResponseBytes: respBytes, Source: source, Parsed: parsed, ParsedOK: true}
}

func (h *QueryHandler) handleParseError(reqBytes []byte) HandleResult {
	resp := tryBuildErrorFromRaw(reqBytes, uint16(dnsmsg.RCodeFormErr))
	if resp == nil {
		return HandleResult{ParsedOK: false, Source: "parse-error"}
	}
	return HandleResult{ResponseBytes: resp, Source: "formerr", ParsedOK: false}
}

type timedResult struct {
	resp resolver.Response
}

// resolveWithTimeout runs Resolve (or StatsAnswer for the reserved stats
// query) in a goroutine so a slow/hung resolution can't hold up the caller
// beyond h.Timeout; a SERVFAIL is synthesized on timeout or shutdown.
func (h *QueryHandler) resolveWithTimeout(ctx context.Context, parsed dnsmsg.Packet) (resolver.Response, string) {
	q := parsed.Questions[0]

	resCh := make(chan timedResult, 1)
	go func() {
		var resp resolver.Response
		if resolver.IsStatsQuery(q) {
			resp = h.Resolver.StatsAnswer(q)
		} else {
			resp = h.Resolver.Resolve(ctx, q)
		}
		resCh <- timedResult{resp: resp}
	}()

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return resolver.Response{RCode: dnsmsg.RCodeServFail, Source: "shutdown"}, "shutdown"
	case <-timer.C:
		return resolver.Response{RCode: dnsmsg.RCodeServFail, Source: "timeout"}, "timeout"
	case r := <-resCh:
		return r.resp, r.resp.Source
	}
}

func (h *QueryHandler) marshalResponse(req dnsmsg.Packet, resp resolver.Response) []byte {
	p := dnsmsg.BuildErrorResponse(req, uint16(resp.RCode))
	p.Answers = resp.Answer
	b, err := p.Marshal()
	if err != nil {
		return nil
	}
	return b
}

func (h *QueryHandler) logRequest(ctx context.Context, qid, transport, src string, parsed dnsmsg.Packet, source string, reqLen int) {
	if h.Logger == nil || !h.Logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	q := parsed.Questions[0]
	h.Logger.DebugContext(ctx, "dns request",
		"qid", qid, "transport", transport, "src", src, "id", int(parsed.Header.ID),
		"qname", q.Name, "qtype", q.Type, "bytes", reqLen, "source", source)
}

func tryBuildErrorFromRaw(reqBytes []byte, rcode uint16) []byte {
	off := 0
	h, err := dnsmsg.ParseHeader(reqBytes, &off)
	if err != nil {
		return nil
	}
	var questions []dnsmsg.Question
	if h.QDCount > 0 {
		q, err := dnsmsg.ParseQuestion(reqBytes, &off)
		if err == nil {
			questions = []dnsmsg.Question{q}
		}
	}
	p := dnsmsg.Packet{Header: dnsmsg.Header{ID: h.ID, Flags: h.Flags}, Questions: questions}
	b, err := dnsmsg.BuildErrorResponse(p, rcode).Marshal()
	if err != nil {
		return nil
	}
	return b
}
