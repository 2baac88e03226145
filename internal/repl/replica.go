package repl

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strings"

	"knotstore/internal/command"
	"knotstore/internal/logger"
	"knotstore/internal/resp"
)

// handle is the subset of *actor.Handle that the replica side of
// replication needs: the ability to dispatch a parsed command for
// execution.
type handle interface {
	Send(cmd command.Command, from string, replyTo chan<- []resp.Value)
}

// Handshake dials masterAddr ("host port"), performs the four-step
// replication handshake (PING, REPLCONF listening-port, REPLCONF capa
// psync2, PSYNC ? -1), ingests the snapshot that follows, and then spawns
// a background goroutine that streams and applies subsequent commands
// through h. It returns once the handshake and snapshot ingest have
// completed (or failed); the streaming loop runs for the life of the
// process.
func Handshake(masterAddr, ownPort string, h handle) error {
	host, port, err := splitHostPort(masterAddr)
	if err != nil {
		return err
	}

	conn, err := net.Dial("tcp", net.JoinHostPort(host, port))
	if err != nil {
		return fmt.Errorf("failed to connect to master: %w", err)
	}

	reader := resp.NewReader(bufio.NewReader(conn))
	writer := resp.NewWriter(bufio.NewWriter(conn))

	steps := []resp.Value{
		resp.CommandArray([]byte("PING")),
		resp.CommandArray([]byte("REPLCONF"), []byte("listening-port"), []byte(ownPort)),
		resp.CommandArray([]byte("REPLCONF"), []byte("capa"), []byte("psync2")),
		resp.CommandArray([]byte("PSYNC"), []byte("?"), []byte("-1")),
	}

	for _, step := range steps {
		if err := writer.Write(step); err != nil {
			_ = conn.Close()
			return fmt.Errorf("failed to write handshake command: %w", err)
		}
		if _, err := reader.Read(); err != nil {
			_ = conn.Close()
			return fmt.Errorf("failed to read handshake response: %w", err)
		}
	}

	snapshot, err := reader.ReadBulkBytes()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("error reading snapshot from master: %w", err)
	}
	logger.Infof("received snapshot transfer: %d bytes", len(snapshot.Bytes))

	go replicationLoop(conn, reader, writer, h)
	return nil
}

// replicationLoop is the streaming half of the replica role: it reads
// commands forwarded by the master and hands them to the actor, either
// on a discarding reply channel (ordinary replicated writes, which never
// produce a client-visible reply) or the real upstream writer (REPLCONF
// GETACK, whose ACK reply the master is waiting to read).
func replicationLoop(conn net.Conn, reader *resp.Reader, writer *resp.Writer, h handle) {
	defer func() {
		logger.Info("exiting replication loop")
		_ = conn.Close()
	}()

	blackHole := make(chan []resp.Value, 64)
	go func() {
		for range blackHole {
			// replicated commands never produce a reply to the master
		}
	}()

	upstream := make(chan []resp.Value, 8)
	go func() {
		for values := range upstream {
			for _, v := range values {
				if err := writer.Write(v); err != nil {
					logger.Warnf("failed to write reply to master: %v", err)
					return
				}
			}
		}
	}()

	addr := conn.RemoteAddr().String()

	for {
		value, err := reader.Read()
		if err != nil {
			// Unlike a client connection, the upstream stream carries no
			// per-command error replies: any framing error means the byte
			// accounting is unrecoverable and replication must stop.
			if !errors.Is(err, resp.ErrEndOfInput) {
				logger.Warnf("error reading command from master: %v", err)
			}
			break
		}

		cmd, err := command.Parse(value)
		if err != nil {
			logger.Warnf("ignoring unparseable command from master: %v", err)
			continue
		}

		if cmd.Kind == command.Replconf && strings.EqualFold(string(cmd.Key), "GETACK") {
			logger.Debugf("using real response channel for command %v", cmd)
			h.Send(cmd, addr, upstream)
			continue
		}

		h.Send(cmd, addr, blackHole)
	}
}

func splitHostPort(addr string) (host, port string, err error) {
	host, port, err = net.SplitHostPort(addr)
	if err == nil {
		return host, port, nil
	}

	var h, p string
	n, scanErr := fmt.Sscanf(addr, "%s %s", &h, &p)
	if scanErr != nil || n != 2 {
		return "", "", fmt.Errorf("invalid replicaof address %q", addr)
	}
	return h, p, nil
}
