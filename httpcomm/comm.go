package httpcomm

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/relaynet/commd/address"
	"github.com/relaynet/commd/config"
	"github.com/relaynet/commd/frame"
	"github.com/relaynet/commd/internal/nlog"
	"github.com/relaynet/commd/monitor"
	"github.com/relaynet/commd/peerid"
	"github.com/relaynet/commd/sendqueue"
	"github.com/relaynet/commd/session"
)

// Deliverer mirrors unixcomm.Deliverer; kept as a separate type (not
// imported) so neither communicator package depends on the other.
type Deliverer interface {
	Deliver(sess *session.Session, msg frame.Inner)
}

type Notifier interface {
	QueueTeardown(sess *session.Session)
}

const (
	connectTimeout  = 10 * time.Second
	ingressBufChunk = 16 * 1024
)

// Communicator is the HTTP(S) long-polling communicator (§4.D.2,
// §4.E, §4.G): one fasthttp client, one send queue, one session
// table, with a pair of goroutines (PUT egress, GET ingress) per live
// session.
type Communicator struct {
	client *fasthttp.Client
	https  bool
	local  peerid.ID

	idleTimeout int64
	tick        int64
	cfg         config.SectionConfig
	limiter     *rate.Limiter

	// conns bounds the number of concurrently live GET goroutines (one
	// per session) at §6 MAX_CONNECTIONS. fasthttp's MaxConnsPerHost
	// bounds TCP connections to one host but not how many session
	// goroutines this communicator itself keeps resident, so the two
	// are complementary rather than redundant.
	conns *semaphore.Weighted

	Sessions *session.Table
	Reaper   *session.Reaper

	monitor   monitor.Sink
	deliverer Deliverer
	notifier  Notifier
}

// New constructs an HTTP(S) communicator. inboundBytesPerSec <= 0
// disables throttling. verifyCert applies to the whole client: the
// per-address OptVerifyCert bit (§4.A) is a finer grain than
// fasthttp.Client's single TLSConfig supports, so a communicator
// serving a mix of verified and unverified peers must run as two
// instances, one per trust level.
func New(https bool, local peerid.ID, idleTimeout, tickInterval int64, sec config.SectionConfig, inboundBytesPerSec int, verifyCert bool, sink monitor.Sink, deliverer Deliverer, notifier Notifier) (*Communicator, error) {
	dial, err := dialerFor(sec)
	if err != nil {
		return nil, err
	}
	client := &fasthttp.Client{
		Dial:                      dial,
		MaxConnsPerHost:           max(sec.MaxConnections, 1),
		TLSConfig:                 &tls.Config{InsecureSkipVerify: !verifyCert},
		MaxIdemponentCallAttempts: 1,
	}
	var limiter *rate.Limiter
	if inboundBytesPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(inboundBytesPerSec), inboundBytesPerSec)
	}
	c := &Communicator{
		client:      client,
		https:       https,
		local:       local,
		idleTimeout: idleTimeout,
		tick:        tickInterval,
		cfg:         sec,
		limiter:     limiter,
		conns:       semaphore.NewWeighted(int64(max(sec.MaxConnections, 1))),
		Sessions:    session.NewTable(),
		Reaper:      session.NewReaper(idleTimeout, tickInterval),
		monitor:     sink,
		deliverer:   deliverer,
		notifier:    notifier,
	}
	c.Reaper.OnExpired = c.destroySession
	c.Reaper.OnReArm = func(s *session.Session) {
		if c.monitor != nil {
			disp, _ := address.Format(s.Address)
			c.monitor.OnUp(s.Peer, disp)
		}
	}
	return c, nil
}

// SetHandlers wires the deliverer/notifier after construction, for
// the common case where the service client itself needs a reference
// to this communicator before it can be built.
func (c *Communicator) SetHandlers(deliverer Deliverer, notifier Notifier) {
	c.deliverer = deliverer
	c.notifier = notifier
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// lookupOrCreate resolves or creates the session for (peer, addr) and
// starts its PUT/GET goroutine pair the first time (§4.E, §4.G).
func (c *Communicator) lookupOrCreate(peer peerid.ID, addr address.Address) *session.Session {
	if s := c.Sessions.Lookup(peer, addr); s != nil {
		return s
	}
	s := session.New(peer, addr, c.idleTimeout)
	hs := newHTTPState()
	s.HTTP = hs
	if err := c.Sessions.Put(s); err != nil {
		nlog.Errorf("httpcomm: %v", err)
		return s
	}
	c.Reaper.Add(s)
	if c.monitor != nil {
		disp, _ := address.Format(addr)
		c.monitor.OnUp(peer, disp)
	}
	go func() {
		if err := c.conns.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer c.conns.Release(1)
		c.runGet(s, hs)
	}()
	return s
}

func (c *Communicator) destroySession(s *session.Session) {
	if s.InTable() {
		_ = c.Sessions.Remove(s.Peer, s)
	}
	c.Reaper.Remove(s)
	if hs, ok := s.HTTP.(*HTTPState); ok {
		hs.Queue.RemoveSession(s, errQueueGone)
		hs.Stop()
	}
	if c.monitor != nil {
		disp, _ := address.Format(s.Address)
		c.monitor.OnDown(s.Peer, disp, "disconnected")
	}
	if c.notifier != nil {
		c.notifier.QueueTeardown(s)
	}
}

// Enqueue frames payload for peer/addr and wakes its PUT goroutine.
func (c *Communicator) Enqueue(peer peerid.ID, addr address.Address, payload []byte, deadline int64, completion sendqueue.Completion) error {
	framed, err := frame.EncodeOuter(c.local, frame.EncodeInner(frame.Inner{Body: payload}))
	if err != nil {
		return err
	}
	s := c.lookupOrCreate(peer, addr)
	hs := s.HTTP.(*HTTPState)
	hs.Queue.EnqueueTail(&sendqueue.Wrapper{
		Framed:      framed,
		PayloadSize: len(payload),
		Session:     s,
		Deadline:    deadline,
		Completion:  completion,
	})
	hs.applyPut(evSendArrived)
	hs.wake()
	if hs.startPut() {
		hs.applyPut(evDataAvailable)
		go c.runPut(s, hs)
	}
	return nil
}

// Close tears down every live session, stopping its PUT/GET goroutine
// pair and failing any still-queued wrappers (mirrors unixcomm's
// Close, even though the HTTP communicator has no single shared fd to
// release).
func (c *Communicator) Close() error {
	for _, s := range c.Sessions.All() {
		c.destroySession(s)
	}
	return nil
}

func targetURL(https bool, addr address.Address, path string) string {
	scheme := "http"
	if https {
		scheme = "https"
	}
	host := addr.Host
	if addr.Port != 0 {
		host = fmt.Sprintf("%s:%d", host, addr.Port)
	}
	return fmt.Sprintf("%s://%s%s%s", scheme, host, addr.URIPath, path)
}

var errQueueGone = fmt.Errorf("httpcomm: session gone")
