package actor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knotstore/internal/command"
	"knotstore/internal/repl"
	"knotstore/internal/resp"
)

func send(t *testing.T, h *Handle, cmd command.Command, from string) []resp.Value {
	t.Helper()
	reply := make(chan []resp.Value, 1)
	h.Send(cmd, from, reply)
	select {
	case v := <-reply:
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for actor reply")
		return nil
	}
}

func TestPingWithoutMessage(t *testing.T) {
	h := Start(Options{Role: repl.RoleMaster})
	values := send(t, h, command.Command{Kind: command.Ping}, "client")
	require.Len(t, values, 1)
	assert.Equal(t, resp.SimpleString, values[0].Type)
	assert.Equal(t, "PONG", values[0].Str)
}

func TestPingWithMessage(t *testing.T) {
	h := Start(Options{Role: repl.RoleMaster})
	values := send(t, h, command.Command{Kind: command.Ping, HasMessage: true, Message: []byte("hi")}, "client")
	require.Len(t, values, 1)
	assert.Equal(t, "hi", string(values[0].Bytes))
}

func TestSetThenGet(t *testing.T) {
	h := Start(Options{Role: repl.RoleMaster})

	setReply := send(t, h, command.Command{Kind: command.Set, Key: []byte("k"), Value: []byte("v"), Size: 10}, "client")
	require.Len(t, setReply, 1)
	assert.Equal(t, "OK", setReply[0].Str)

	getReply := send(t, h, command.Command{Kind: command.Get, Key: []byte("k")}, "client")
	require.Len(t, getReply, 1)
	assert.Equal(t, "v", string(getReply[0].Bytes))
}

func TestGetMissingKeyReturnsNullBulkString(t *testing.T) {
	h := Start(Options{Role: repl.RoleMaster})
	reply := send(t, h, command.Command{Kind: command.Get, Key: []byte("missing")}, "client")
	require.Len(t, reply, 1)
	assert.Equal(t, resp.NullBulkString, reply[0].Type)
}

func TestInfoAsMaster(t *testing.T) {
	h := Start(Options{Role: repl.RoleMaster})
	reply := send(t, h, command.Command{Kind: command.Info}, "client")
	require.Len(t, reply, 1)
	body := string(reply[0].Bytes)
	assert.Contains(t, body, "role:master")
	assert.Contains(t, body, "master_replid:"+repl.MasterReplID)
}

func TestInfoAsReplica(t *testing.T) {
	h := Start(Options{Role: repl.RoleReplica})
	reply := send(t, h, command.Command{Kind: command.Info}, "client")
	require.Len(t, reply, 1)
	assert.Contains(t, string(reply[0].Bytes), "role:slave")
}

func TestPsyncRegistersReplicaAndOffsetAdvances(t *testing.T) {
	h := Start(Options{Role: repl.RoleMaster})

	replicaOutbox := make(chan []resp.Value, 4)

	// The reply channel used for PSYNC also becomes the replica's outbox:
	// a subsequent write command should be fanned out to it.
	h.Send(command.Command{Kind: command.Psync, ReplID: "none", MasterOffset: "none", Size: 5}, "127.0.0.1:9001", replicaOutbox)

	var psyncReply []resp.Value
	select {
	case psyncReply = <-replicaOutbox:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for PSYNC reply")
	}
	require.Len(t, psyncReply, 2)
	assert.Equal(t, resp.SimpleString, psyncReply[0].Type)
	assert.Contains(t, psyncReply[0].Str, "FULLRESYNC")
	assert.Equal(t, resp.BulkBytes, psyncReply[1].Type)

	h.Send(command.Command{Kind: command.Set, Key: []byte("a"), Value: []byte("b"), Size: 20}, "client", make(chan []resp.Value, 1))

	select {
	case values := <-replicaOutbox:
		require.Len(t, values, 1)
		assert.Equal(t, resp.Array, values[0].Type)
	case <-time.After(time.Second):
		t.Fatal("expected replicated SET to reach the registered replica")
	}

	// PSYNC (5 bytes) plus SET (20 bytes).
	assert.EqualValues(t, 25, h.Stats().Offset)
}

func TestReplconfAckUpdatesAcked(t *testing.T) {
	h := Start(Options{Role: repl.RoleMaster})

	send(t, h, command.Command{Kind: command.Psync, ReplID: "none", MasterOffset: "none"}, "replica-1")
	assert.EqualValues(t, 0, h.Acked(5))

	// An ACK produces no reply; it only updates the roster bookkeeping.
	replyTo := make(chan []resp.Value, 1)
	h.Send(command.Command{Kind: command.Replconf, Key: []byte("ACK"), ReplconfValue: []byte("5")}, "replica-1", replyTo)

	// Acked is served by the same actor goroutine, so by the time it
	// returns the ACK has been processed.
	assert.EqualValues(t, 1, h.Acked(5))
	assert.EqualValues(t, 0, h.Acked(6))

	select {
	case values := <-replyTo:
		t.Fatalf("REPLCONF ACK must not produce a reply, got %v", values)
	default:
	}
}

func TestReplconfGetAckReportsCumulativeOffset(t *testing.T) {
	h := Start(Options{Role: repl.RoleMaster})

	send(t, h, command.Command{Kind: command.Set, Key: []byte("k"), Value: []byte("v"), Size: 31}, "client")
	reply := send(t, h, command.Command{Kind: command.Replconf, Key: []byte("GETACK"), ReplconfValue: []byte("*"), Size: 37}, "client")

	require.Len(t, reply, 1)
	require.Len(t, reply[0].Array, 3)
	assert.Equal(t, "68", string(reply[0].Array[2].Bytes))
}

func TestWaitWithNoReplicasReturnsZero(t *testing.T) {
	h := Start(Options{Role: repl.RoleMaster})
	reply := send(t, h, command.Command{Kind: command.Wait, NumReplicas: 1, TimeoutMs: 100}, "client")
	require.Len(t, reply, 1)
	assert.EqualValues(t, 0, reply[0].Int)
}

func TestStatsReflectsRosterSize(t *testing.T) {
	h := Start(Options{Role: repl.RoleMaster})
	send(t, h, command.Command{Kind: command.Psync}, "replica-1")
	send(t, h, command.Command{Kind: command.Psync}, "replica-2")

	stats := h.Stats()
	assert.EqualValues(t, 2, stats.RosterSize)
}
