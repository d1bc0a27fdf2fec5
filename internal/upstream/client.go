package upstream

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"dnsflatd/internal/dnsmsg"
	"dnsflatd/internal/pool"
)

// Status is the outcome category of a single upstream query (C7 contract).
type Status int

const (
	StatusAnswer Status = iota
	StatusTimeout
	StatusNetworkError
	StatusMalformed
)

// Result is what the Upstream Client returns for one query attempt.
type Result struct {
	Status  Status
	Packet  dnsmsg.Packet // valid only when Status == StatusAnswer
	Latency time.Duration
}

var lenBufPool = pool.New(func() *[2]byte { return new([2]byte) })

// DefaultMaxInFlightPerUpstream bounds how many queries a Client will have
// outstanding to a single upstream address at once. spec.md §5 lists this
// as a required-but-implementation-chosen resource bound ("maximum in-flight
// upstream queries per upstream... to avoid unbounded fan-out during
// burst"); a fixed default here is that choice.
const DefaultMaxInFlightPerUpstream = 512

// Client issues single DNS queries to upstreams over UDP, falling back to
// TCP once when the UDP reply is truncated (spec.md §4.4). It pools UDP
// sockets per upstream address to avoid a connect()/close() per query,
// mirroring the teacher's acquireConnection/releaseConnection idiom. A
// single Client is shared between the resolver's request-handling
// goroutines and the health monitor's per-upstream probe loops (spec.md
// §5), so udpPools and inFlightSems are guarded by a mutex rather than
// assumed single-writer.
type Client struct {
	mu             sync.Mutex
	udpPools       map[string]*pool.Pool[*net.UDPConn]
	inFlightSems   map[string]*pool.Semaphore
	maxInFlightCap int
}

// NewClient builds an upstream client whose per-upstream in-flight ceiling
// is DefaultMaxInFlightPerUpstream. Use NewClientWithLimit to override it.
func NewClient() *Client {
	return NewClientWithLimit(DefaultMaxInFlightPerUpstream)
}

// NewClientWithLimit builds an upstream client that admits at most
// maxInFlight concurrent queries to any single upstream address; queries
// beyond that ceiling wait for a slot to free or for the caller's deadline,
// whichever comes first (see Query).
func NewClientWithLimit(maxInFlight int) *Client {
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlightPerUpstream
	}
	return &Client{
		udpPools:       make(map[string]*pool.Pool[*net.UDPConn]),
		inFlightSems:   make(map[string]*pool.Semaphore),
		maxInFlightCap: maxInFlight,
	}
}

func (c *Client) poolFor(addr string) *pool.Pool[*net.UDPConn] {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.udpPools[addr]
	if !ok {
		p = pool.New(func() *net.UDPConn { return nil })
		c.udpPools[addr] = p
	}
	return p
}

// semFor returns the admission semaphore bounding concurrent in-flight
// queries to addr, creating it on first use.
func (c *Client) semFor(addr string) *pool.Semaphore {
	c.mu.Lock()
	defer c.mu.Unlock()
	sem, ok := c.inFlightSems[addr]
	if !ok {
		sem = pool.NewSemaphore(c.maxInFlightCap)
		c.inFlightSems[addr] = sem
	}
	return sem
}

// Query sends reqBytes (a fully-formed request with its own transaction ID)
// to t over UDP, falling back to TCP on truncation, honoring the deadline,
// and recording the outcome into t.Metrics. It does not expand CNAMEs; the
// raw answer/authority/additional sections are returned unmodified.
func (c *Client) Query(ctx context.Context, t *Tracked, reqBytes []byte, deadline time.Time) (Result, error) {
	sem := c.semFor(t.Entry.PrimaryAddr())
	admitCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	if !sem.Acquire(admitCtx) {
		return Result{Status: StatusTimeout}, nil
	}
	defer sem.Release()

	t.IncInFlight()
	defer t.DecInFlight()

	start := time.Now()
	res, err := c.queryUDP(ctx, t, reqBytes, deadline)
	if err == nil && res.Status == StatusAnswer && res.Packet.Header.Flags&dnsmsg.TCFlag != 0 {
		tcpRes, tcpErr := c.queryTCP(ctx, t, reqBytes, deadline)
		if tcpErr == nil {
			res, err = tcpRes, nil
		}
	}
	res.Latency = time.Since(start)
	c.record(t, res, err)
	return res, err
}

func (c *Client) record(t *Tracked, res Result, err error) {
	switch {
	case err != nil || res.Status == StatusTimeout:
		t.Metrics.Record(OutcomeTimeout, float64(res.Latency.Milliseconds()))
	case res.Status == StatusNetworkError:
		t.Metrics.Record(OutcomeError, float64(res.Latency.Milliseconds()))
	case res.Status == StatusMalformed:
		t.Metrics.Record(OutcomeError, float64(res.Latency.Milliseconds()))
	case res.Status == StatusAnswer:
		switch dnsmsg.RCodeFromFlags(res.Packet.Header.Flags) {
		case dnsmsg.RCodeServFail:
			t.Metrics.Record(OutcomeServFail, float64(res.Latency.Milliseconds()))
		case dnsmsg.RCodeRefused:
			t.Metrics.Record(OutcomeRefused, float64(res.Latency.Milliseconds()))
		default:
			t.Metrics.Record(OutcomeSuccess, float64(res.Latency.Milliseconds()))
		}
	}
}

func (c *Client) queryUDP(ctx context.Context, t *Tracked, reqBytes []byte, deadline time.Time) (Result, error) {
	addr := t.Entry.PrimaryAddr()
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return Result{Status: StatusNetworkError}, fmt.Errorf("upstream client: resolve %s: %w", addr, err)
	}

	p := c.poolFor(addr)
	conn := p.Get()
	if conn == nil {
		conn, err = net.DialUDP("udp", nil, raddr)
		if err != nil {
			return Result{Status: StatusNetworkError}, fmt.Errorf("upstream client: dial %s: %w", addr, err)
		}
	}
	defer func() {
		if conn != nil {
			p.Put(conn)
		}
	}()

	if err := conn.SetDeadline(deadline); err != nil {
		return Result{Status: StatusNetworkError}, err
	}
	if _, err := conn.Write(reqBytes); err != nil {
		_ = conn.Close()
		conn = nil
		return Result{Status: StatusNetworkError}, fmt.Errorf("upstream client: write: %w", err)
	}

	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return Result{Status: StatusTimeout}, nil
		}
		_ = conn.Close()
		conn = nil
		return Result{Status: StatusNetworkError}, fmt.Errorf("upstream client: read: %w", err)
	}

	respPacket, err := dnsmsg.ParsePacket(buf[:n])
	if err != nil {
		return Result{Status: StatusMalformed}, nil
	}
	if respPacket.Header.ID != expectedID(reqBytes) {
		return Result{Status: StatusMalformed}, nil
	}
	return Result{Status: StatusAnswer, Packet: respPacket}, nil
}

func (c *Client) queryTCP(ctx context.Context, t *Tracked, reqBytes []byte, deadline time.Time) (Result, error) {
	addr := t.Entry.PrimaryAddr()
	dialer := net.Dialer{Deadline: deadline}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Result{Status: StatusNetworkError}, fmt.Errorf("upstream client: tcp dial %s: %w", addr, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(deadline); err != nil {
		return Result{Status: StatusNetworkError}, err
	}

	lenBuf := lenBufPool.Get()
	defer lenBufPool.Put(lenBuf)
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(reqBytes)))

	if _, err := conn.Write(lenBuf[:]); err != nil {
		return Result{Status: StatusNetworkError}, err
	}
	if _, err := conn.Write(reqBytes); err != nil {
		return Result{Status: StatusNetworkError}, err
	}

	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return Result{Status: StatusTimeout}, nil
		}
		return Result{Status: StatusNetworkError}, err
	}
	respLen := binary.BigEndian.Uint16(lenBuf[:])
	respBuf := make([]byte, respLen)
	if _, err := io.ReadFull(conn, respBuf); err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return Result{Status: StatusTimeout}, nil
		}
		return Result{Status: StatusNetworkError}, err
	}

	respPacket, err := dnsmsg.ParsePacket(respBuf)
	if err != nil {
		return Result{Status: StatusMalformed}, nil
	}
	return Result{Status: StatusAnswer, Packet: respPacket}, nil
}

func expectedID(reqBytes []byte) uint16 {
	if len(reqBytes) < 2 {
		return 0
	}
	return binary.BigEndian.Uint16(reqBytes[0:2])
}
