package balancer

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// startFakeSSHServer runs a minimal SSH server that accepts any
// publickey auth and, for each "exec" request, records the command and
// writes back a fixed exit status. It exists purely to exercise Client
// against a real SSH handshake without depending on an external sshd.
func startFakeSSHServer(t *testing.T, hostSigner ssh.Signer, clientSigner ssh.Signer, fail bool) (addr string, commands chan string) {
	t.Helper()
	commands = make(chan string, 8)

	cfg := &ssh.ServerConfig{
		PublicKeyCallback: func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			return &ssh.Permissions{}, nil
		},
	}
	cfg.AddHostKey(hostSigner)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		for {
			nConn, err := listener.Accept()
			if err != nil {
				return
			}
			go handleConn(t, nConn, cfg, commands, fail)
		}
	}()

	return listener.Addr().String(), commands
}

func handleConn(t *testing.T, nConn net.Conn, cfg *ssh.ServerConfig, commands chan string, fail bool) {
	sConn, chans, reqs, err := ssh.NewServerConn(nConn, cfg)
	if err != nil {
		return
	}
	defer sConn.Close()
	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			newChan.Reject(ssh.UnknownChannelType, "unsupported")
			continue
		}
		channel, requests, err := newChan.Accept()
		if err != nil {
			return
		}
		go func() {
			defer channel.Close()
			for req := range requests {
				if req.Type == "exec" {
					// payload is a length-prefixed string; skip the 4-byte length.
					cmd := string(req.Payload[4:])
					commands <- cmd
					req.Reply(true, nil)
					status := make([]byte, 4)
					if fail {
						status[3] = 1
					}
					channel.SendRequest("exit-status", false, status)
					return
				}
				req.Reply(false, nil)
			}
		}()
	}
}

func newTestSigner(t *testing.T) ssh.Signer {
	t.Helper()
	// a fixed, well-known test key would require embedding PEM bytes; instead
	// generate one via the host's crypto/rand through ssh.NewSignerFromKey
	// is not available without a private key source, so tests rely on
	// ssh.GenerateKeyPair-less approach: use x/crypto/ssh/testdata is not
	// exported, so we build an ed25519 key directly.
	return generateEd25519Signer(t)
}

func TestSetStateSendsExpectedCommand(t *testing.T) {
	hostKey := newTestSigner(t)
	clientKey := newTestSigner(t)

	addr, commands := startFakeSSHServer(t, hostKey, clientKey, false)

	client := New(ssh.InsecureIgnoreHostKey())
	host := Host{
		Address:    addr,
		User:       "deploy",
		SocketPath: "/var/run/haproxy.sock",
		Signer:     clientKey,
		Timeout:    2 * time.Second,
	}

	err := client.SetState(context.Background(), host, "app-backend", "srv1", StateDrain)
	require.NoError(t, err)

	select {
	case cmd := <-commands:
		require.Contains(t, cmd, "set server app-backend/srv1 state drain")
		require.Contains(t, cmd, "/var/run/haproxy.sock")
	case <-time.After(time.Second):
		t.Fatal("server never received the command")
	}
}

func TestSetStateAllReportsOnlyTheFailingHost(t *testing.T) {
	hostKey := newTestSigner(t)
	clientKey := newTestSigner(t)

	goodAddr, _ := startFakeSSHServer(t, hostKey, clientKey, false)
	badAddr, _ := startFakeSSHServer(t, hostKey, clientKey, true)

	client := New(ssh.InsecureIgnoreHostKey())
	hosts := []Host{
		{Address: goodAddr, User: "deploy", SocketPath: "/s.sock", Signer: clientKey, Timeout: 2 * time.Second},
		{Address: badAddr, User: "deploy", SocketPath: "/s.sock", Signer: clientKey, Timeout: 2 * time.Second},
	}

	results := client.Drain(context.Background(), hosts, "app-backend", "srv1")
	require.Len(t, results, 1)
	require.Error(t, results[badAddr])
	require.NoError(t, results[goodAddr])
}

func TestReadySucceedsOnEveryHost(t *testing.T) {
	hostKey := newTestSigner(t)
	clientKey := newTestSigner(t)

	addr1, _ := startFakeSSHServer(t, hostKey, clientKey, false)
	addr2, _ := startFakeSSHServer(t, hostKey, clientKey, false)

	client := New(ssh.InsecureIgnoreHostKey())
	hosts := []Host{
		{Address: addr1, User: "deploy", SocketPath: "/s.sock", Signer: clientKey, Timeout: 2 * time.Second},
		{Address: addr2, User: "deploy", SocketPath: "/s.sock", Signer: clientKey, Timeout: 2 * time.Second},
	}

	results := client.Ready(context.Background(), hosts, "app-backend", "srv1")
	require.Empty(t, results)
}

func TestPingAllReportsUnreachableHosts(t *testing.T) {
	hostKey := newTestSigner(t)
	clientKey := newTestSigner(t)

	goodAddr, _ := startFakeSSHServer(t, hostKey, clientKey, false)

	client := New(ssh.InsecureIgnoreHostKey())
	hosts := []Host{
		{Address: goodAddr, User: "deploy", SocketPath: "/s.sock", Signer: clientKey, Timeout: 2 * time.Second},
		{Address: "127.0.0.1:1", User: "deploy", SocketPath: "/s.sock", Signer: clientKey, Timeout: 500 * time.Millisecond},
	}

	results := client.PingAll(context.Background(), hosts)
	require.Len(t, results, 1)
	require.Error(t, results["127.0.0.1:1"])
}
