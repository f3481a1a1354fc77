package httpcomm

import (
	"context"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/relaynet/commd/internal/mono"
	"github.com/relaynet/commd/session"
)

// runGet drives one session's GET half (§4.G, §4.E HTTP ingress).
// fasthttp buffers each response body in full rather than exposing an
// incremental reader, so long-polling here is one discrete
// request/response per wait cycle rather than one held-open
// connection: functionally equivalent for a protocol whose unit of
// delivery is already "however many inner messages arrived since the
// last poll", and the throttle/pause behavior below is applied the
// same either way.
func (c *Communicator) runGet(s *session.Session, hs *HTTPState) {
	hs.setGet(GetConnected)
	for {
		select {
		case <-hs.stopCh:
			hs.setGet(GetDisconnected)
			return
		default:
		}

		if wait := s.NextReceiveNotBefore - mono.NanoTime(); wait > 0 {
			select {
			case <-time.After(time.Duration(wait)):
			case <-hs.stopCh:
				hs.setGet(GetDisconnected)
				return
			}
		}

		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		req.Header.SetMethod(fasthttp.MethodGet)
		req.SetRequestURI(targetURL(c.https, s.Address, "/get"))

		err := c.client.DoTimeout(req, resp, connectTimeout)
		if err != nil {
			fasthttp.ReleaseRequest(req)
			fasthttp.ReleaseResponse(resp)
			hs.setGet(GetDisconnected)
			if !c.cfg.EmulateXHR {
				c.destroySession(s)
				return
			}
			continue // XHR-emulation: a failed poll just tries again
		}

		body := resp.Body()
		if c.limiter != nil {
			_ = c.limiter.WaitN(context.Background(), max(len(body), 1))
		}
		msgs, feedErr := hs.Reassembler.Feed(body)
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)

		if feedErr != nil {
			// malformed inner stream: per-session fatal (§7), tear the
			// session down rather than keep polling a peer that has
			// proven it can't speak the protocol.
			hs.setGet(GetDisconnected)
			c.destroySession(s)
			return
		}

		if len(msgs) > 0 {
			s.Touch(c.idleTimeout)
			c.Reaper.Touch(s)
			if c.deliverer != nil {
				for _, m := range msgs {
					c.deliverer.Deliver(s, m)
				}
			}
		}
		// XHR-emulation starts a fresh GET on every completion (§6);
		// non-XHR mode does too here, since each call is already a
		// discrete request — see the fasthttp limitation noted above.
	}
}
