package preview1

import (
	"io"
	"runtime"

	"github.com/wippyai/wasi-host/memory"
)

func argsSizesGet(c *Call) Outcome {
	return stringListSizes(c, c.State.Args)
}

func argsGet(c *Call) Outcome {
	return stringListGet(c, c.State.Args)
}

func environSizesGet(c *Call) Outcome {
	return stringListSizes(c, c.State.Env)
}

func environGet(c *Call) Outcome {
	return stringListGet(c, c.State.Env)
}

// stringListSizes writes the entry count and the packed buffer size.
func stringListSizes(c *Call, list []string) Outcome {
	countPtr, sizePtr := c.u32(0), c.u32(1)
	count, size := memory.StringListSize(list)

	if err := c.Mem.Check(countPtr, 4); err != nil {
		return FailErr(err)
	}
	if err := c.Mem.Check(sizePtr, 4); err != nil {
		return FailErr(err)
	}
	_ = c.Mem.WriteU32(countPtr, count)
	_ = c.Mem.WriteU32(sizePtr, size)
	return Ok
}

// stringListGet writes the pointer array and NUL-terminated strings.
func stringListGet(c *Call, list []string) Outcome {
	if err := c.Mem.WriteStringList(list, c.u32(0), c.u32(1)); err != nil {
		return FailErr(err)
	}
	return Ok
}

func clockResGet(c *Call) Outcome {
	id, resPtr := c.u32(0), c.u32(1)
	res, ok := resolution(id)
	if !ok {
		return Fail(ErrnoInval)
	}
	return FailErr(c.Mem.WriteU64(resPtr, res))
}

func clockTimeGet(c *Call) Outcome {
	id, timePtr := c.u32(0), c.u32(2)
	var now int64
	switch id {
	case ClockRealtime:
		now = c.State.Clock.Realtime()
	case ClockMonotonic:
		now = c.State.Clock.Monotonic()
	case ClockProcessCputime, ClockThreadCputime:
		now = c.State.Clock.Monotonic() - c.State.startMono
	default:
		return Fail(ErrnoInval)
	}
	return FailErr(c.Mem.WriteU64(timePtr, uint64(now)))
}

func randomGet(c *Call) Outcome {
	buf, n := c.u32(0), c.u32(1)
	if err := c.Mem.Check(buf, n); err != nil {
		return FailErr(err)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(c.State.Random, data); err != nil {
		return Fail(ErrnoIo)
	}
	return FailErr(c.Mem.Write(buf, data))
}

func procExit(c *Call) Outcome {
	return Exit(c.u32(0))
}

func schedYield(c *Call) Outcome {
	runtime.Gosched()
	return Ok
}
