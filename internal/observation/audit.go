package observation

import (
	"fmt"
	"time"
)

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

type AuditEntry struct {
	Time   time.Time `json:"time"`
	Event  string    `json:"event"` // e.g. "CREATE", "EXPIRE"
	ID     int64     `json:"id"`
	Author string    `json:"author,omitempty"`
	World  string    `json:"world,omitempty"`
	Pos    [3]int    `json:"pos"`
	Reason string    `json:"reason,omitempty"`

	// Count is the number of records the gateway deactivated (SWEEP only).
	Count int64 `json:"count,omitempty"`
}

const (
	AuditCreate    = "CREATE"
	AuditAssignID  = "ASSIGN_ID"
	AuditLoad      = "LOAD"
	AuditDelete    = "DELETE"
	AuditExpire    = "EXPIRE"
	AuditRerender  = "RERENDER"
	AuditSetExpiry = "SET_EXPIRY"
	AuditSweep     = "SWEEP"
)

func (c *Coordinator) auditEvent(event string, o *Observation, reason string) {
	if c.audit == nil {
		return
	}
	e := AuditEntry{
		Time:   c.now(),
		Event:  event,
		ID:     o.id,
		Author: o.author,
		World:  o.source.World,
		Pos:    o.source.Block(),
		Reason: reason,
	}
	if err := c.audit.WriteAudit(e); err != nil {
		c.log.Printf("audit %s id=%d: %v", event, o.id, err)
	}
}

// auditSweep records the gateway's answer to one batched deactivate.
func (c *Coordinator) auditSweep(batch []int64, affected int64) {
	if c.audit == nil {
		return
	}
	e := AuditEntry{
		Time:   c.now(),
		Event:  AuditSweep,
		ID:     PendingID,
		Reason: fmt.Sprintf("%d expired", len(batch)),
		Count:  affected,
	}
	if err := c.audit.WriteAudit(e); err != nil {
		c.log.Printf("audit %s: %v", AuditSweep, err)
	}
}
