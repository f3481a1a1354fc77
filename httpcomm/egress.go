package httpcomm

import (
	"io"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/relaynet/commd/session"
)

// egressReader implements the §4.D.2 PUT read-body callback as a pull
// model io.Reader: fasthttp calls Read whenever it wants more bytes
// for the request body, and this blocks (cooperatively, via putWake)
// exactly as long as the spec's "schedule a put-disconnect timer and
// return PAUSE" describes, translated to Go's io.Reader contract
// where pausing is simply "Read blocks instead of returning".
type egressReader struct {
	c  *Communicator
	hs *HTTPState
}

func (r *egressReader) Read(p []byte) (int, error) {
	for {
		if w := r.hs.Queue.Peek(); w != nil {
			rem := w.Remaining()
			n := copy(p, rem)
			if w.Advance(n) {
				r.hs.Queue.DequeueHead()
				w.Succeed(w.FramedSize())
			}
			return n, nil
		}

		r.hs.applyPut(evNoMoreData)
		if r.c.cfg.EmulateXHR {
			return 0, io.EOF
		}

		delay := r.c.cfg.PutDisconnectDelay
		if delay <= 0 {
			delay = time.Second
		}
		timer := time.NewTimer(delay)
		select {
		case <-r.hs.putWake:
			timer.Stop()
			r.hs.applyPut(evDataAvailable)
			continue
		case <-timer.C:
			r.hs.applyPut(evIdleTimerFired)
			r.hs.applyPut(evTransferEnded)
			return 0, io.EOF
		case <-r.hs.stopCh:
			timer.Stop()
			return 0, io.EOF
		}
	}
}

// runPut drives one session's PUT half for as long as the session
// lives, re-establishing the request whenever the prior one ends
// without a fatal error (§4.G: "on completion notification establish
// a new PUT").
func (c *Communicator) runPut(s *session.Session, hs *HTTPState) {
	defer hs.putExited()
	for {
		select {
		case <-hs.stopCh:
			return
		default:
		}

		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		req.Header.SetMethod(fasthttp.MethodPut)
		req.SetRequestURI(targetURL(c.https, s.Address, "/put"))
		req.SetBodyStream(&egressReader{c: c, hs: hs}, -1)

		err := c.client.DoTimeout(req, resp, connectTimeout)
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)

		if err != nil {
			hs.applyPut(evFatalError)
			c.destroySession(s)
			return
		}

		if hs.PutState() == PutDisconnected {
			return
		}
		select {
		case <-hs.stopCh:
			return
		default:
		}
		if hs.PutState() != PutTmpReconnectRequired {
			// idle-timer path: wait for the next send before looping
			// back to re-establish the PUT (§4.G TMP_DISCONNECTED ->
			// CONNECTED "on next send").
			select {
			case <-hs.putWake:
				hs.applyPut(evDataAvailable)
			case <-hs.stopCh:
				return
			}
		}
	}
}
