package resolver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dnsflatd/internal/cache"
	"dnsflatd/internal/dnsmsg"
	"dnsflatd/internal/health"
	"dnsflatd/internal/selector"
	"dnsflatd/internal/upstream"
)

// fakeUpstream starts a local UDP listener that answers every query with the
// given responder, standing in for a real resolver so Resolve/resolveUncached
// can be exercised without touching the network.
type fakeUpstream struct {
	conn *net.UDPConn
}

func startFakeUpstream(t *testing.T, respond func(req dnsmsg.Packet) dnsmsg.Packet) *fakeUpstream {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)

	f := &fakeUpstream{conn: conn}
	go func() {
		buf := make([]byte, 4096)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			req, err := dnsmsg.ParsePacket(buf[:n])
			if err != nil {
				continue
			}
			resp := respond(req)
			b, err := resp.Marshal()
			if err != nil {
				continue
			}
			_, _ = conn.WriteToUDP(b, addr)
		}
	}()
	t.Cleanup(func() { _ = conn.Close() })
	return f
}

func (f *fakeUpstream) entry(name string) upstream.Entry {
	addr := f.conn.LocalAddr().(*net.UDPAddr)
	return upstream.Entry{
		Name:    name,
		Addrs:   []string{addr.IP.String()},
		Port:    addr.Port,
		Weight:  100,
		Timeout: 2 * time.Second,
	}
}

func newTestResolver(t *testing.T, entries []upstream.Entry, cfg Config) *Resolver {
	t.Helper()
	registry := upstream.NewRegistry(entries, 16)
	monitor := health.NewMonitor(registry, upstream.NewClient(), health.Config{FailureThreshold: 2, RecoveryThreshold: 1}, nil)
	for _, e := range entries {
		monitor.ObserveQueryOutcome(e.Name, upstream.OutcomeSuccess)
	}
	return New(registry, monitor, upstream.NewClient(), cache.New(100, 0, 0), selector.RoundRobin, cfg, nil)
}

func answerWithA(req dnsmsg.Packet, ip [4]byte, ttl uint32) dnsmsg.Packet {
	return dnsmsg.Packet{
		Header: dnsmsg.Header{ID: req.Header.ID, Flags: dnsmsg.QRFlag | dnsmsg.RDFlag, QDCount: 1, ANCount: 1},
		Questions: req.Questions,
		Answers: []dnsmsg.Record{
			{Name: req.Questions[0].Name, Type: uint16(dnsmsg.TypeA), Class: uint16(dnsmsg.ClassIN), TTL: ttl, Data: ip[:]},
		},
	}
}

func TestResolveReturnsUpstreamAnswerAndPopulatesCache(t *testing.T) {
	up := startFakeUpstream(t, func(req dnsmsg.Packet) dnsmsg.Packet {
		return answerWithA(req, [4]byte{93, 184, 216, 34}, 120)
	})
	r := newTestResolver(t, []upstream.Entry{up.entry("primary")}, Config{MaxRecursion: 10, MinTTL: 0, MaxTTL: 0, QueryTimeout: time.Second})

	q := dnsmsg.Question{Name: "example.com", Type: uint16(dnsmsg.TypeA), Class: uint16(dnsmsg.ClassIN)}
	resp := r.Resolve(context.Background(), q)

	require.Equal(t, dnsmsg.RCodeNoError, resp.RCode)
	require.Equal(t, "upstream", resp.Source)
	require.Len(t, resp.Answer, 1)
	require.Equal(t, net.IP([]byte{93, 184, 216, 34}).String(), resp.Answer[0].IPv4().String())

	second := r.Resolve(context.Background(), q)
	require.Equal(t, "cache", second.Source, "second lookup is served from cache without another upstream round trip")
}

func TestResolveFallsBackToSecondUpstreamOnFailure(t *testing.T) {
	dead, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	deadAddr := dead.LocalAddr().(*net.UDPAddr)
	require.NoError(t, dead.Close()) // nothing listens here: queries are refused, or time out if no ICMP reply arrives

	good := startFakeUpstream(t, func(req dnsmsg.Packet) dnsmsg.Packet {
		return answerWithA(req, [4]byte{10, 0, 0, 1}, 60)
	})

	deadEntry := upstream.Entry{Name: "dead", Addrs: []string{deadAddr.IP.String()}, Port: deadAddr.Port, Weight: 100, Timeout: 150 * time.Millisecond}
	r := newTestResolver(t, []upstream.Entry{deadEntry, good.entry("good")}, Config{MaxRecursion: 10, MaxUpstreamRetries: 1, QueryTimeout: 150 * time.Millisecond})

	q := dnsmsg.Question{Name: "fallback.example.com", Type: uint16(dnsmsg.TypeA), Class: uint16(dnsmsg.ClassIN)}
	resp := r.Resolve(context.Background(), q)

	require.Equal(t, dnsmsg.RCodeNoError, resp.RCode)
	require.Len(t, resp.Answer, 1)
	require.Equal(t, "10.0.0.1", resp.Answer[0].IPv4().String())
}

func TestResolveFlattensCNAMEFromUpstream(t *testing.T) {
	up := startFakeUpstream(t, func(req dnsmsg.Packet) dnsmsg.Packet {
		return dnsmsg.Packet{
			Header:    dnsmsg.Header{ID: req.Header.ID, Flags: dnsmsg.QRFlag | dnsmsg.RDFlag, QDCount: 1, ANCount: 2},
			Questions: req.Questions,
			Answers: []dnsmsg.Record{
				{Name: req.Questions[0].Name, Type: uint16(dnsmsg.TypeCNAME), Class: uint16(dnsmsg.ClassIN), TTL: 300, Data: "target.example.net"},
				{Name: "target.example.net", Type: uint16(dnsmsg.TypeA), Class: uint16(dnsmsg.ClassIN), TTL: 30, Data: []byte{1, 2, 3, 4}},
			},
		}
	})
	r := newTestResolver(t, []upstream.Entry{up.entry("primary")}, Config{MaxRecursion: 10, QueryTimeout: time.Second})

	q := dnsmsg.Question{Name: "alias.example.com", Type: uint16(dnsmsg.TypeA), Class: uint16(dnsmsg.ClassIN)}
	resp := r.Resolve(context.Background(), q)

	require.Equal(t, dnsmsg.RCodeNoError, resp.RCode)
	require.Len(t, resp.Answer, 1)
	require.Equal(t, "alias.example.com", resp.Answer[0].Name, "flattened owner name is the originally queried name")
	require.Equal(t, uint32(30), resp.Answer[0].TTL, "TTL is the minimum across the CNAME and its target")
}

func TestResolveNXDomainIsCachedAsNegative(t *testing.T) {
	up := startFakeUpstream(t, func(req dnsmsg.Packet) dnsmsg.Packet {
		return dnsmsg.Packet{
			Header:    dnsmsg.Header{ID: req.Header.ID, Flags: dnsmsg.QRFlag | dnsmsg.RDFlag | uint16(dnsmsg.RCodeNXDomain), QDCount: 1},
			Questions: req.Questions,
		}
	})
	r := newTestResolver(t, []upstream.Entry{up.entry("primary")}, Config{MaxRecursion: 10, MaxNegativeTTL: 300, QueryTimeout: time.Second})

	q := dnsmsg.Question{Name: "missing.example.com", Type: uint16(dnsmsg.TypeA), Class: uint16(dnsmsg.ClassIN)}
	resp := r.Resolve(context.Background(), q)
	require.Equal(t, dnsmsg.RCodeNXDomain, resp.RCode)

	second := r.Resolve(context.Background(), q)
	require.Equal(t, "cache", second.Source)
	require.Equal(t, dnsmsg.RCodeNXDomain, second.RCode)
}
