// Package command converts between RESP array values and the small,
// fixed set of commands this server understands. Keys and values are
// carried as raw byte slices since neither is required to be UTF-8; only
// the command name and a handful of keyword arguments (PX, GETACK, the
// PSYNC sentinels) are interpreted as text.
package command

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"knotstore/internal/resp"
)

// Kind identifies which command variant a Command holds.
type Kind int

const (
	Ping Kind = iota
	Echo
	Get
	Set
	Info
	Replconf
	Psync
	Wait
)

// Command is a tagged union over the commands this server accepts. Size
// is the wire size of the array value it was parsed from (or would
// format to); it is the amount by which the replication offset advances
// when the command runs.
type Command struct {
	Kind Kind
	Size int

	// Ping / Echo
	HasMessage bool
	Message    []byte

	// Get / Set / Replconf key
	Key []byte

	// Set
	Value  []byte
	Expiry *time.Duration

	// Info
	Sections [][]byte

	// Replconf
	ReplconfValue []byte

	// Psync
	ReplID       string // "none" for '?'
	MasterOffset string // "none" for -1

	// Wait
	NumReplicas int64
	TimeoutMs   int64
}

// IsWrite reports whether applying this command mutates the keyspace and
// therefore must be replicated to connected replicas.
func (c Command) IsWrite() bool {
	return c.Kind == Set
}

// Parse converts a RESP value (expected to be a non-empty array of bulk
// strings) into a Command. Parse errors are plain errors carrying a
// human-readable reason; they are not *resp.InvalidError values, which
// only the RESP reader returns.
func Parse(v resp.Value) (Command, error) {
	if v.Type != resp.Array {
		return Command{}, fmt.Errorf("expected array command, got value of type %d", v.Type)
	}
	if len(v.Array) == 0 {
		return Command{}, fmt.Errorf("empty command array")
	}

	args := make([][]byte, len(v.Array))
	for i, el := range v.Array {
		if el.Type != resp.BulkString {
			return Command{}, fmt.Errorf("command argument %d is not a bulk string", i)
		}
		args[i] = el.Bytes
	}

	name := strings.ToUpper(string(args[0]))
	rest := args[1:]

	var (
		cmd Command
		err error
	)
	switch name {
	case "PING":
		cmd, err = parsePing(rest)
	case "ECHO":
		cmd, err = parseEcho(rest)
	case "GET":
		cmd, err = parseGet(rest)
	case "SET":
		cmd, err = parseSet(rest)
	case "INFO":
		cmd, err = parseInfo(rest)
	case "REPLCONF":
		cmd, err = parseReplconf(rest)
	case "PSYNC":
		cmd, err = parsePsync(rest)
	case "WAIT":
		cmd, err = parseWait(rest)
	default:
		err = fmt.Errorf("unknown command %q", name)
	}
	if err != nil {
		return Command{}, err
	}

	cmd.Size = v.Size
	return cmd, nil
}

func parsePing(args [][]byte) (Command, error) {
	switch len(args) {
	case 0:
		return Command{Kind: Ping}, nil
	case 1:
		return Command{Kind: Ping, HasMessage: true, Message: args[0]}, nil
	default:
		return Command{}, wrongArity("PING")
	}
}

func parseEcho(args [][]byte) (Command, error) {
	if len(args) != 1 {
		return Command{}, wrongArity("ECHO")
	}
	return Command{Kind: Echo, Message: args[0]}, nil
}

func parseGet(args [][]byte) (Command, error) {
	if len(args) != 1 {
		return Command{}, wrongArity("GET")
	}
	return Command{Kind: Get, Key: args[0]}, nil
}

func parseSet(args [][]byte) (Command, error) {
	if len(args) != 2 && len(args) != 4 {
		return Command{}, wrongArity("SET")
	}

	cmd := Command{Kind: Set, Key: args[0], Value: args[1]}
	if len(args) == 4 {
		if !strings.EqualFold(string(args[2]), "PX") {
			return Command{}, fmt.Errorf("invalid SET option %q", args[2])
		}
		ms, err := strconv.ParseUint(string(args[3]), 10, 64)
		if err != nil {
			return Command{}, fmt.Errorf("invalid integer value for SET PX argument")
		}
		d := time.Duration(ms) * time.Millisecond
		cmd.Expiry = &d
	}
	return cmd, nil
}

func parseInfo(args [][]byte) (Command, error) {
	if len(args) == 0 {
		return Command{Kind: Info}, nil
	}
	return Command{Kind: Info, Sections: args}, nil
}

func parseReplconf(args [][]byte) (Command, error) {
	if len(args) != 2 {
		return Command{}, wrongArity("REPLCONF")
	}
	return Command{Kind: Replconf, Key: args[0], ReplconfValue: args[1]}, nil
}

func parsePsync(args [][]byte) (Command, error) {
	if len(args) != 2 {
		return Command{}, wrongArity("PSYNC")
	}

	replID := string(args[0])
	if replID == "?" {
		replID = "none"
	}

	offset := string(args[1])
	if offset == "-1" {
		offset = "none"
	}

	return Command{Kind: Psync, ReplID: replID, MasterOffset: offset}, nil
}

func parseWait(args [][]byte) (Command, error) {
	if len(args) != 2 {
		return Command{}, wrongArity("WAIT")
	}
	n, err := strconv.ParseInt(string(args[0]), 10, 64)
	if err != nil {
		return Command{}, fmt.Errorf("invalid integer value for WAIT numreplicas")
	}
	timeout, err := strconv.ParseInt(string(args[1]), 10, 64)
	if err != nil {
		return Command{}, fmt.Errorf("invalid integer value for WAIT timeout")
	}
	return Command{Kind: Wait, NumReplicas: n, TimeoutMs: timeout}, nil
}

func wrongArity(name string) error {
	return fmt.Errorf("wrong number of arguments for %q command", name)
}

// ToValue formats the command back into the array-of-bulk-strings form
// used both for encoding the original request and for fanning writes out
// to replicas. The resulting value's Size always equals what Write would
// produce for it.
func (c Command) ToValue() resp.Value {
	switch c.Kind {
	case Ping:
		if c.HasMessage {
			return resp.CommandArray([]byte("PING"), c.Message)
		}
		return resp.CommandArray([]byte("PING"))
	case Echo:
		return resp.CommandArray([]byte("ECHO"), c.Message)
	case Get:
		return resp.CommandArray([]byte("GET"), c.Key)
	case Set:
		if c.Expiry == nil {
			return resp.CommandArray([]byte("SET"), c.Key, c.Value)
		}
		ms := strconv.FormatInt(c.Expiry.Milliseconds(), 10)
		return resp.CommandArray([]byte("SET"), c.Key, c.Value, []byte("PX"), []byte(ms))
	case Info:
		parts := append([][]byte{[]byte("INFO")}, c.Sections...)
		return resp.CommandArray(parts...)
	case Replconf:
		return resp.CommandArray([]byte("REPLCONF"), c.Key, c.ReplconfValue)
	case Psync:
		replID := c.ReplID
		if replID == "none" {
			replID = "?"
		}
		offset := c.MasterOffset
		if offset == "none" {
			offset = "-1"
		}
		return resp.CommandArray([]byte("PSYNC"), []byte(replID), []byte(offset))
	case Wait:
		n := strconv.FormatInt(c.NumReplicas, 10)
		timeout := strconv.FormatInt(c.TimeoutMs, 10)
		return resp.CommandArray([]byte("WAIT"), []byte(n), []byte(timeout))
	default:
		return resp.Value{}
	}
}
