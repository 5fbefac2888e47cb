package preview1

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/wippyai/wasi-host/fdtable"
)

type subscription struct {
	userdata uint64
	tag      uint8
	fd       uint32
	clockID  uint32
	timeout  uint64
	flags    uint16
}

func decodeSubscription(b []byte) subscription {
	s := subscription{
		userdata: binary.LittleEndian.Uint64(b[0:]),
		tag:      b[8],
	}
	switch s.tag {
	case EventtypeClock:
		s.clockID = binary.LittleEndian.Uint32(b[16:])
		s.timeout = binary.LittleEndian.Uint64(b[24:])
		s.flags = binary.LittleEndian.Uint16(b[40:])
	default:
		s.fd = binary.LittleEndian.Uint32(b[16:])
	}
	return s
}

type event struct {
	userdata uint64
	errno    Errno
	tag      uint8
}

func (e event) encode() []byte {
	b := make([]byte, sizeEvent)
	binary.LittleEndian.PutUint64(b[0:], e.userdata)
	binary.LittleEndian.PutUint16(b[8:], uint16(e.errno))
	b[10] = e.tag
	return b
}

// clampNanos saturates a u64 nanosecond count at the largest Duration.
func clampNanos(ns uint64) int64 {
	if ns > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(ns)
}

// relativeTimeout converts a clock subscription into a wait from now.
func relativeTimeout(c *Call, s subscription) (time.Duration, Errno) {
	var now int64
	switch s.clockID {
	case ClockRealtime:
		now = c.State.Clock.Realtime()
	case ClockMonotonic:
		now = c.State.Clock.Monotonic()
	default:
		return 0, ErrnoInval
	}
	timeout := clampNanos(s.timeout)
	if s.flags&SubclockAbstime == 0 {
		return time.Duration(timeout), ErrnoSuccess
	}
	d := timeout - now
	if d < 0 {
		d = 0
	}
	return time.Duration(d), ErrnoSuccess
}

// pollOneoff reports descriptor subscriptions as immediately ready. Clock
// subscriptions only sleep when nothing else is ready; afterwards every
// clock whose timeout has passed is reported.
func pollOneoff(c *Call) Outcome {
	inPtr, outPtr, nsubs, neventsPtr := c.u32(0), c.u32(1), c.u32(2), c.u32(3)
	if nsubs == 0 {
		return Fail(ErrnoInval)
	}
	raw, err := c.Mem.ReadSpan(int64(inPtr), int64(nsubs)*sizeSubscription)
	if err != nil {
		return FailErr(err)
	}
	if _, err := c.Mem.ReadSpan(int64(outPtr), int64(nsubs)*sizeEvent); err != nil {
		return FailErr(err)
	}
	if err := c.Mem.Check(neventsPtr, 4); err != nil {
		return FailErr(err)
	}

	var (
		ready    []event
		clocks   []subscription
		timeouts []time.Duration
	)
	for i := uint32(0); i < nsubs; i++ {
		s := decodeSubscription(raw[int(i)*sizeSubscription:])
		switch s.tag {
		case EventtypeClock:
			d, errno := relativeTimeout(c, s)
			if errno != ErrnoSuccess {
				ready = append(ready, event{userdata: s.userdata, tag: s.tag, errno: errno})
				continue
			}
			clocks = append(clocks, s)
			timeouts = append(timeouts, d)
		case EventtypeFdRead, EventtypeFdWrite:
			ev := event{userdata: s.userdata, tag: s.tag}
			e, err := c.State.Table.Get(fdtable.Descriptor(s.fd))
			switch {
			case err != nil:
				ev.errno = ErrnoOf(err)
			case e.Rights&fdtable.RightPollFdReadwrite == 0:
				ev.errno = ErrnoNotcapable
			}
			ready = append(ready, ev)
		default:
			return Fail(ErrnoInval)
		}
	}

	if len(ready) == 0 && len(clocks) > 0 {
		wait := timeouts[0]
		for _, d := range timeouts[1:] {
			wait = min(wait, d)
		}
		if err := sleep(c.Ctx, c.State.Clock, wait); err != nil {
			return Fail(ErrnoIntr)
		}
		for i, s := range clocks {
			if timeouts[i] <= wait {
				ready = append(ready, event{userdata: s.userdata, tag: s.tag})
			}
		}
	} else {
		for i, s := range clocks {
			if timeouts[i] == 0 {
				ready = append(ready, event{userdata: s.userdata, tag: s.tag})
			}
		}
	}

	out := make([]byte, 0, len(ready)*sizeEvent)
	for _, ev := range ready {
		out = append(out, ev.encode()...)
	}
	if err := c.Mem.Write(outPtr, out); err != nil {
		return FailErr(err)
	}
	return FailErr(c.Mem.WriteU32(neventsPtr, uint32(len(ready))))
}
