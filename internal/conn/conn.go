// Package conn implements the per-connection duplex: one goroutine reads
// and parses commands off the socket and hands them to the actor, another
// drains a reply channel and writes values back, so a slow client can
// never stall command processing for anyone else.
package conn

import (
	"bufio"
	"errors"
	"net"
	"time"

	"knotstore/internal/actor"
	"knotstore/internal/command"
	"knotstore/internal/logger"
	"knotstore/internal/resp"
)

// waitPollInterval is how often the reader goroutine re-checks replica
// acknowledgements while a WAIT command is blocked.
const waitPollInterval = 20 * time.Millisecond

// Serve runs a connection's reader and writer halves until the socket
// closes, then returns. It blocks the caller, so callers should invoke it
// from its own goroutine.
func Serve(c net.Conn, h *actor.Handle) {
	addr := c.RemoteAddr().String()
	defer func() {
		logger.Debugf("closing connection from %s", addr)
		_ = c.Close()
	}()

	outbox := make(chan []resp.Value, 256)
	done := make(chan struct{})

	go writerLoop(c, outbox, done)
	registered := readerLoop(c, addr, h, outbox)

	// A connection that became a replica must leave the roster before its
	// outbox closes, or a later fan-out would send on a closed channel.
	if registered {
		h.RemoveReplica(addr)
	}

	close(outbox)
	<-done
}

// readerLoop parses and dispatches commands until the socket dies,
// reporting whether this connection registered itself as a replica.
func readerLoop(c net.Conn, addr string, h *actor.Handle, outbox chan<- []resp.Value) (registered bool) {
	reader := resp.NewReader(bufio.NewReader(c))

	for {
		value, err := reader.Read()
		if err != nil {
			if !errors.Is(err, resp.ErrEndOfInput) {
				if resp.IsInvalid(err) {
					errVal, _ := resp.NewSimpleError("ERR " + err.Error())
					outbox <- []resp.Value{errVal}
					continue
				}
				logger.Debugf("i/o error reading command from %s: %v", addr, err)
			}
			return registered
		}

		cmd, err := command.Parse(value)
		if err != nil {
			errVal, _ := resp.NewSimpleError("ERR " + err.Error())
			outbox <- []resp.Value{errVal}
			continue
		}

		if cmd.Kind == command.Wait {
			handleWait(h, cmd, outbox)
			continue
		}

		if cmd.Kind == command.Psync {
			registered = true
		}

		h.Send(cmd, addr, outbox)
	}
}

// handleWait blocks the reader goroutine (not the actor) until
// numreplicas replicas have acknowledged the offset current when WAIT
// was issued, or the timeout elapses, then writes the acknowledged count.
func handleWait(h *actor.Handle, cmd command.Command, outbox chan<- []resp.Value) {
	stats := h.Stats()

	if stats.RosterSize == 0 {
		outbox <- []resp.Value{resp.NewInteger(0)}
		return
	}

	// Replicas only report offsets when asked; solicit acknowledgements
	// for the offset observed at WAIT time.
	h.ProbeReplicas()

	deadline := time.Now().Add(time.Duration(cmd.TimeoutMs) * time.Millisecond)
	for {
		acked := h.Acked(stats.StreamOffset)
		if acked >= cmd.NumReplicas || !time.Now().Before(deadline) {
			outbox <- []resp.Value{resp.NewInteger(acked)}
			return
		}
		time.Sleep(waitPollInterval)
	}
}

func writerLoop(c net.Conn, outbox <-chan []resp.Value, done chan<- struct{}) {
	defer close(done)

	writer := resp.NewWriter(bufio.NewWriter(c))
	for values := range outbox {
		for _, v := range values {
			if err := writer.Write(v); err != nil {
				logger.Debugf("error writing reply to %s: %v", c.RemoteAddr(), err)
				// Closing the socket unblocks the paired reader, which is
				// what tears the rest of the connection down.
				_ = c.Close()
				return
			}
		}
	}
}
