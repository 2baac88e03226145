// Package actor runs the single goroutine that owns the keyspace, the
// replica roster, and the replication offset. Every command, whether it
// arrived from a client or was replayed from a master, is serialized
// through this goroutine's message loop, which is what lets the rest of
// the server touch shared state without a mutex.
package actor

import (
	"fmt"
	"strings"

	"knotstore/internal/command"
	"knotstore/internal/logger"
	"knotstore/internal/repl"
	"knotstore/internal/resp"
	"knotstore/internal/store"
)

// fixedSnapshot is the opaque RDB image handed to a replica during
// PSYNC. Its internal structure is not interpreted by either side; a
// replica reads exactly its length in bytes, logs that length, and
// discards the content.
var fixedSnapshot = []byte{
	82, 69, 68, 73, 83, 48, 48, 49, 49, 250, 9, 114, 101, 100, 105, 115, 45, 118, 101, 114,
	5, 55, 46, 50, 46, 48, 250, 10, 114, 101, 100, 105, 115, 45, 98, 105, 116, 115, 192,
	64, 250, 5, 99, 116, 105, 109, 101, 194, 109, 8, 188, 101, 250, 8, 117, 115, 101, 100,
	45, 109, 101, 109, 194, 176, 196, 16, 0, 250, 8, 97, 111, 102, 45, 98, 97, 115, 101,
	192, 0, 255, 240, 110, 59, 254, 192, 255, 90, 162,
}

// Options configures a new actor.
type Options struct {
	Role      repl.Role
	ReplicaOf string
}

// Stats is a point-in-time snapshot of actor state, used by callers that
// need to poll without blocking the actor (WAIT's timeout loop).
type Stats struct {
	Offset       int64
	StreamOffset int64
	RosterSize   int64
}

type message interface{ isMessage() }

type processCommandMsg struct {
	cmd     command.Command
	from    string
	replyTo chan<- []resp.Value
}

func (processCommandMsg) isMessage() {}

type statsQueryMsg struct {
	replyTo chan<- Stats
}

func (statsQueryMsg) isMessage() {}

type ackedQueryMsg struct {
	minOffset int64
	replyTo   chan<- int64
}

func (ackedQueryMsg) isMessage() {}

type removeReplicaMsg struct {
	addr string
	done chan<- struct{}
}

func (removeReplicaMsg) isMessage() {}

type probeReplicasMsg struct{}

func (probeReplicasMsg) isMessage() {}

// Handle is the actor's public, concurrency-safe front door. It may be
// shared freely across goroutines; every method sends a message to the
// single owning goroutine and, where a reply is needed, waits for it.
type Handle struct {
	msgs chan message
}

// Start spawns the actor goroutine and returns a Handle to it.
func Start(opts Options) *Handle {
	h := &Handle{msgs: make(chan message, 64)}
	a := &actor{
		options:     opts,
		db:          store.New(),
		replication: repl.NewManager(),
	}
	go a.run(h.msgs)
	return h
}

// Send submits a command for processing. The response values (the
// command's reply) are delivered on replyTo. from identifies the
// originating connection (its remote address), used to associate a
// PSYNC request with the replica it registers and a REPLCONF ACK with
// the replica it updates.
func (h *Handle) Send(cmd command.Command, from string, replyTo chan<- []resp.Value) {
	h.msgs <- processCommandMsg{cmd: cmd, from: from, replyTo: replyTo}
}

// Stats returns the current replication offset and roster size.
func (h *Handle) Stats() Stats {
	reply := make(chan Stats, 1)
	h.msgs <- statsQueryMsg{replyTo: reply}
	return <-reply
}

// Acked returns how many registered replicas have acknowledged at least
// minOffset.
func (h *Handle) Acked(minOffset int64) int64 {
	reply := make(chan int64, 1)
	h.msgs <- ackedQueryMsg{minOffset: minOffset, replyTo: reply}
	return <-reply
}

// ProbeReplicas enqueues a REPLCONF GETACK to every registered replica
// so their next acknowledgements reflect the current offset. Used by
// WAIT's polling loop; fire-and-forget.
func (h *Handle) ProbeReplicas() {
	h.msgs <- probeReplicasMsg{}
}

// RemoveReplica drops addr from the roster and returns once the actor
// has processed the removal. Callers that registered a connection via
// PSYNC must call this before closing the reply channel they handed the
// actor, so no fan-out can land on a closed channel.
func (h *Handle) RemoveReplica(addr string) {
	done := make(chan struct{})
	h.msgs <- removeReplicaMsg{addr: addr, done: done}
	<-done
}

type actor struct {
	options     Options
	db          *store.Database
	replication *repl.Manager
	offset      int64
}

func (a *actor) run(msgs <-chan message) {
	for m := range msgs {
		switch msg := m.(type) {
		case processCommandMsg:
			a.processCommand(msg)
		case statsQueryMsg:
			msg.replyTo <- Stats{
				Offset:       a.offset,
				StreamOffset: a.replication.StreamOffset(),
				RosterSize:   a.replication.Len(),
			}
		case ackedQueryMsg:
			msg.replyTo <- a.replication.Acked(msg.minOffset)
		case removeReplicaMsg:
			a.replication.Remove(msg.addr)
			close(msg.done)
		case probeReplicasMsg:
			a.replication.Probe()
		}
	}
}

func (a *actor) processCommand(msg processCommandMsg) {
	cmd := msg.cmd

	// The offset advances before the reply is built so that a REPLCONF
	// GETACK acknowledges its own wire bytes as well.
	a.offset += int64(cmd.Size)

	response := a.handle(cmd, msg.from, msg.replyTo)

	if msg.replyTo != nil && response != nil {
		select {
		case msg.replyTo <- response:
		default:
			logger.Warnf("reply channel for %s full; dropping response", msg.from)
		}
	}

	a.replication.Replicate(cmd)
}

// handle dispatches a single command and returns its reply values. It
// never blocks: PSYNC registers the replica inline (it already has the
// reply channel in hand) and WAIT answers immediately with the current
// roster size, leaving the actual poll-with-timeout to the caller.
func (a *actor) handle(cmd command.Command, from string, replyTo chan<- []resp.Value) []resp.Value {
	switch cmd.Kind {
	case command.Ping:
		return a.ping(cmd)
	case command.Echo:
		return []resp.Value{resp.NewBulkString(cmd.Message)}
	case command.Get:
		return a.get(cmd)
	case command.Set:
		return a.set(cmd)
	case command.Info:
		return a.info()
	case command.Replconf:
		return a.replconf(cmd, from)
	case command.Psync:
		return a.psync(from, replyTo)
	case command.Wait:
		return []resp.Value{resp.NewInteger(a.replication.Len())}
	default:
		v, _ := resp.NewSimpleError(fmt.Sprintf("ERR unknown command kind %d", cmd.Kind))
		return []resp.Value{v}
	}
}

func (a *actor) ping(cmd command.Command) []resp.Value {
	if cmd.HasMessage {
		return []resp.Value{resp.NewBulkString(cmd.Message)}
	}
	v, _ := resp.NewSimpleString("PONG")
	return []resp.Value{v}
}

func (a *actor) get(cmd command.Command) []resp.Value {
	value, ok := a.db.Get(cmd.Key)
	if !ok {
		return []resp.Value{resp.NullBulkStringValue()}
	}
	return []resp.Value{resp.NewBulkString(value)}
}

func (a *actor) set(cmd command.Command) []resp.Value {
	a.db.Set(cmd.Key, cmd.Value, cmd.Expiry)
	v, _ := resp.NewSimpleString("OK")
	return []resp.Value{v}
}

func (a *actor) info() []resp.Value {
	var b strings.Builder
	b.WriteString("# Replication\n")
	if a.options.Role == repl.RoleReplica {
		b.WriteString("role:slave\n")
	} else {
		b.WriteString("role:master\n")
		b.WriteString("master_replid:" + repl.MasterReplID + "\n")
		b.WriteString("master_repl_offset:0\n")
	}
	return []resp.Value{resp.NewBulkString([]byte(b.String()))}
}

func (a *actor) replconf(cmd command.Command, from string) []resp.Value {
	key := strings.ToUpper(string(cmd.Key))
	switch key {
	case "GETACK":
		return []resp.Value{resp.CommandArray([]byte("REPLCONF"), []byte("ACK"), []byte(fmt.Sprintf("%d", a.offset)))}
	case "ACK":
		offset := parseOffset(cmd.ReplconfValue)
		a.replication.Ack(from, offset)
		return nil
	default:
		v, _ := resp.NewSimpleString("OK")
		return []resp.Value{v}
	}
}

func (a *actor) psync(from string, replyTo chan<- []resp.Value) []resp.Value {
	fullresync, _ := resp.NewSimpleString(fmt.Sprintf("FULLRESYNC %s 0", repl.MasterReplID))
	snapshot := resp.NewBulkBytes(fixedSnapshot)

	if replyTo != nil {
		a.replication.Add(from, replyTo)
	}

	return []resp.Value{fullresync, snapshot}
}

func parseOffset(b []byte) int64 {
	var n int64
	for _, c := range b {
		if c < '0' || c > '9' {
			return n
		}
		n = n*10 + int64(c-'0')
	}
	return n
}
