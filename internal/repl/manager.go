// Package repl implements both replication roles this server can play:
// fan-out of writes to connected replicas when acting as a master
// (manager.go), and the upstream handshake/streaming loop when acting as
// a replica of another instance (replica.go).
package repl

import (
	"knotstore/internal/command"
	"knotstore/internal/logger"
	"knotstore/internal/resp"
)

// Role identifies which side of replication this instance plays.
type Role int

const (
	RoleMaster Role = iota
	RoleReplica
)

// MasterReplID is the fixed replication ID this implementation reports;
// partial resynchronization is out of scope so a stable per-process ID
// serves no purpose beyond matching the wire format of real servers.
const MasterReplID = "8371b4fb1155b71f4a04d3e1bc3e18c4a990aeeb"

type replica struct {
	addr      string
	outbox    chan<- []resp.Value
	ackOffset int64
}

// Manager tracks the roster of connected replicas and fans write
// commands out to them. It has no internal locking: like store.Database,
// it is touched only from inside the command actor's single goroutine.
type Manager struct {
	replicas []*replica

	// streamOffset is the cumulative wire size of everything enqueued to
	// the replication stream (writes and ack probes). Replica ACKs are
	// measured against this, not the actor's global offset, which also
	// counts commands that are never replicated.
	streamOffset int64
}

// NewManager returns an empty replica roster.
func NewManager() *Manager {
	return &Manager{}
}

// Add registers a new replica identified by addr, whose future
// replicated values are delivered on outbox. outbox should be
// sufficiently buffered that Replicate's non-blocking send rarely drops
// a write; a dropped write is logged and otherwise ignored; removal
// happens out-of-band (Remove), not by inferring the receiver is gone.
func (m *Manager) Add(addr string, outbox chan<- []resp.Value) {
	m.replicas = append(m.replicas, &replica{addr: addr, outbox: outbox})
	logger.Infof("added replica %s, roster size now %d", addr, len(m.replicas))
}

// Remove drops addr from the roster, e.g. once its connection closes.
func (m *Manager) Remove(addr string) {
	for i, r := range m.replicas {
		if r.addr == addr {
			m.replicas = append(m.replicas[:i], m.replicas[i+1:]...)
			logger.Infof("removed replica %s, roster size now %d", addr, len(m.replicas))
			return
		}
	}
}

// Replicate fans a write command out to every registered replica, sending
// its array wire form as a one-element value list. Non-write commands are
// never replicated.
func (m *Manager) Replicate(cmd command.Command) {
	if !cmd.IsWrite() {
		return
	}
	value := cmd.ToValue()
	m.streamOffset += int64(value.Size)
	for _, r := range m.replicas {
		select {
		case r.outbox <- []resp.Value{value}:
		default:
			logger.Warnf("replica %s outbox full; dropping replicated command", r.addr)
		}
	}
}

// Probe asks every registered replica for an acknowledgement by
// enqueueing a REPLCONF GETACK onto its outbox. Replicas answer on the
// same connection, which feeds Ack below.
func (m *Manager) Probe() {
	if len(m.replicas) == 0 {
		return
	}
	probe := resp.CommandArray([]byte("REPLCONF"), []byte("GETACK"), []byte("*"))
	m.streamOffset += int64(probe.Size)
	for _, r := range m.replicas {
		select {
		case r.outbox <- []resp.Value{probe}:
		default:
			logger.Warnf("replica %s outbox full; dropping ack probe", r.addr)
		}
	}
}

// Ack records that the replica identified by addr has applied commands
// through offset. It is called when the master receives a REPLCONF ACK
// from a replica connection.
func (m *Manager) Ack(addr string, offset int64) {
	for _, r := range m.replicas {
		if r.addr == addr {
			r.ackOffset = offset
			return
		}
	}
}

// Acked reports how many registered replicas have acknowledged at least
// minOffset.
func (m *Manager) Acked(minOffset int64) int64 {
	var n int64
	for _, r := range m.replicas {
		if r.ackOffset >= minOffset {
			n++
		}
	}
	return n
}

// Len reports the number of registered replicas.
func (m *Manager) Len() int64 {
	return int64(len(m.replicas))
}

// StreamOffset reports the cumulative wire size of the replication
// stream enqueued so far.
func (m *Manager) StreamOffset() int64 {
	return m.streamOffset
}
