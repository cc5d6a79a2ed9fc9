package envkv

import "sync/atomic"

// HandleStats counts handles of one environment.
type HandleStats struct {
	LiveTxns    int64
	LiveCursors int64
	Begun       uint64
	Committed   uint64
	Aborted     uint64

	// Cascaded counts transactions ended because an ancestor ended first.
	Cascaded uint64
}

type counters struct {
	liveTxns    atomic.Int64
	liveCursors atomic.Int64
	begun       atomic.Uint64
	committed   atomic.Uint64
	aborted     atomic.Uint64
	cascaded    atomic.Uint64
}

func (c *counters) begin() {
	c.liveTxns.Add(1)
	c.begun.Add(1)
}

func (c *counters) end(state txnState) {
	c.liveTxns.Add(-1)
	switch state {
	case txnCommitted:
		c.committed.Add(1)
	case txnAborted:
		c.aborted.Add(1)
	case txnInvalidated:
		c.cascaded.Add(1)
	}
}

func (c *counters) cursorOpened() { c.liveCursors.Add(1) }
func (c *counters) cursorClosed() { c.liveCursors.Add(-1) }

// Stats returns handle counters. They can be read after Close.
func (env *Env) Stats() HandleStats {
	return HandleStats{
		LiveTxns:    env.stats.liveTxns.Load(),
		LiveCursors: env.stats.liveCursors.Load(),
		Begun:       env.stats.begun.Load(),
		Committed:   env.stats.committed.Load(),
		Aborted:     env.stats.aborted.Load(),
		Cascaded:    env.stats.cascaded.Load(),
	}
}
