package repl_test

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knotstore/internal/actor"
	"knotstore/internal/command"
	"knotstore/internal/repl"
	"knotstore/internal/resp"
)

func fakeMaster(t *testing.T) (ln net.Listener, accept func() net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	connCh := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			connCh <- c
		}
	}()

	return ln, func() net.Conn {
		select {
		case c := <-connCh:
			return c
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for replica to connect")
			return nil
		}
	}
}

func TestHandshakePerformsFourStepSequenceAndIngestsSnapshot(t *testing.T) {
	ln, accept := fakeMaster(t)
	defer ln.Close()

	h := actor.Start(actor.Options{Role: 1})

	errCh := make(chan error, 1)
	go func() {
		errCh <- repl.Handshake(ln.Addr().String(), "6381", h)
	}()

	masterConn := accept()
	defer masterConn.Close()

	r := resp.NewReader(bufio.NewReader(masterConn))
	w := resp.NewWriter(bufio.NewWriter(masterConn))

	ping, err := r.Read()
	require.NoError(t, err)
	require.Len(t, ping.Array, 1)
	assert.Equal(t, "PING", string(ping.Array[0].Bytes))
	pong, _ := resp.NewSimpleString("PONG")
	require.NoError(t, w.Write(pong))

	listeningPort, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, "REPLCONF", string(listeningPort.Array[0].Bytes))
	assert.Equal(t, "listening-port", string(listeningPort.Array[1].Bytes))
	ok, _ := resp.NewSimpleString("OK")
	require.NoError(t, w.Write(ok))

	capa, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, "capa", string(capa.Array[1].Bytes))
	require.NoError(t, w.Write(ok))

	psync, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, "PSYNC", string(psync.Array[0].Bytes))
	fullresync, _ := resp.NewSimpleString("FULLRESYNC " + repl.MasterReplID + " 0")
	require.NoError(t, w.Write(fullresync))
	require.NoError(t, w.Write(resp.NewBulkBytes([]byte("fake-snapshot-bytes"))))

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Handshake did not return")
	}

	set := resp.CommandArray([]byte("SET"), []byte("k"), []byte("v"))
	require.NoError(t, w.Write(set))

	deadline := time.Now().Add(2 * time.Second)
	for {
		reply := make(chan []resp.Value, 1)
		h.Send(command.Command{Kind: command.Get, Key: []byte("k")}, "test", reply)
		v := <-reply
		if v[0].Type == resp.BulkString && string(v[0].Bytes) == "v" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("replicated SET was never applied by the replica")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHandshakeFailsOnUnreachableMaster(t *testing.T) {
	h := actor.Start(actor.Options{Role: 1})
	err := repl.Handshake("127.0.0.1:1", "6381", h)
	assert.Error(t, err)
}

func TestReplicationLoopRoutesGetAckThroughRealChannel(t *testing.T) {
	ln, accept := fakeMaster(t)
	defer ln.Close()

	h := actor.Start(actor.Options{Role: 1})

	errCh := make(chan error, 1)
	go func() {
		errCh <- repl.Handshake(ln.Addr().String(), "6381", h)
	}()

	masterConn := accept()
	defer masterConn.Close()

	r := resp.NewReader(bufio.NewReader(masterConn))
	w := resp.NewWriter(bufio.NewWriter(masterConn))

	for i := 0; i < 4; i++ {
		_, err := r.Read()
		require.NoError(t, err)
		ok, _ := resp.NewSimpleString("OK")
		require.NoError(t, w.Write(ok))
	}
	require.NoError(t, w.Write(resp.NewBulkBytes([]byte("snap"))))

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Handshake did not return")
	}

	getack := resp.CommandArray([]byte("REPLCONF"), []byte("GETACK"), []byte("*"))
	require.NoError(t, w.Write(getack))

	reply, err := r.Read()
	require.NoError(t, err)
	require.Len(t, reply.Array, 3)
	assert.Equal(t, "REPLCONF", string(reply.Array[0].Bytes))
	assert.Equal(t, "ACK", string(reply.Array[1].Bytes))
}
