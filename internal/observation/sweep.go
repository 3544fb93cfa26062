package observation

import (
	"context"
	"time"
)

// Sweep removes every observation whose expiry is at or before now and returns how many
// were removed. Removal is immediate; the gateway gets a single batched deactivate.
func (c *Coordinator) Sweep() int {
	start := time.Now()
	defer func() { sweepDuration.Observe(time.Since(start).Seconds()) }()

	now := c.now()
	var ids []int64
	removed := 0
	for _, o := range c.reg.List() {
		if !o.ExpiredAt(now) {
			continue
		}
		wasPending := o.state == StatePending
		c.teardown(o)
		removed++
		removedTotal.WithLabelValues("expired").Inc()
		c.auditEvent(AuditExpire, o, "")
		if wasPending {
			o.deactivateOnResolve = true
			continue
		}
		ids = append(ids, o.id)
	}
	if len(ids) == 0 {
		return removed
	}

	var affected int64
	batch := ids
	c.worker.enqueue(persistJob{
		op: "deactivate_many",
		run: func(ctx context.Context) error {
			n, err := c.gw.DeactivateMany(ctx, batch)
			affected = n
			return err
		},
		done: func(err error) {
			if err != nil {
				c.log.Printf("deactivate %d expired observation(s): %v", len(batch), err)
				return
			}
			c.log.Printf("removed %d expired observation(s) (%d from database)", len(batch), affected)
			sweepDeactivated.Add(float64(affected))
			c.auditSweep(batch, affected)
		},
	})
	return removed
}
