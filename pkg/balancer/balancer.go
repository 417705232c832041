// Package balancer drains and re-enables a backend server on one or more
// load balancers during a rollout. Each balancer host is reached over SSH
// and every call concurrently executes a remote shell command against all
// configured hosts; the drain/ready command is piped into the balancer's
// local control socket the same way an operator would do it by hand:
//
//	echo "set server <backend>/<server> state <drain|ready>" | socat stdio unix-connect:<socket>
//
// A rollout only proceeds past drain, and only resumes after ready, if
// every configured balancer host confirms the command succeeded.
// Draining on two of three load balancers and timing out on the third
// must not leave traffic still landing on a host mid-deploy. PingAll runs a
// no-op command against every balancer host before each server is drained,
// so an unreachable or misconfigured balancer is caught before that server
// is touched.
package balancer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/errgroup"

	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/log"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/rollouterr"
)

// State is the HAProxy admin-socket server state to set.
type State string

const (
	StateDrain State = "drain"
	StateReady State = "ready"
)

// Host describes one load balancer reachable over SSH.
type Host struct {
	Address    string // "host:22" or "host" (default port 22 applied)
	User       string
	SocketPath string // path to the balancer's admin UNIX socket on Host
	Signer     ssh.Signer
	Timeout    time.Duration
}

func (h Host) addr() string {
	if h.Timeout == 0 {
		h.Timeout = 10 * time.Second
	}
	if _, _, err := net.SplitHostPort(h.Address); err != nil {
		return h.Address + ":22"
	}
	return h.Address
}

// Client issues drain/ready commands against a fleet of balancer hosts.
type Client struct {
	HostKeyCallback ssh.HostKeyCallback
}

// New builds a Client. hostKeyCallback is usually ssh.InsecureIgnoreHostKey
// for a closed operator network, or a real known_hosts callback in
// production; the coordinator decides which to pass in from config.
func New(hostKeyCallback ssh.HostKeyCallback) *Client {
	return &Client{HostKeyCallback: hostKeyCallback}
}

// runRemote dials host and runs cmd through an SSH exec session, returning
// stderr's content wrapped into the error on failure.
func (c *Client) runRemote(ctx context.Context, host Host, cmd string) error {
	cfg := &ssh.ClientConfig{
		User:            host.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(host.Signer)},
		HostKeyCallback: c.HostKeyCallback,
		Timeout:         host.Timeout,
	}

	conn, err := ssh.Dial("tcp", host.addr(), cfg)
	if err != nil {
		return rollouterr.New(rollouterr.KindDrainFailed, host.Address, "ssh dial failed", err)
	}
	defer conn.Close()

	session, err := conn.NewSession()
	if err != nil {
		return rollouterr.New(rollouterr.KindDrainFailed, host.Address, "ssh session failed", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case err := <-done:
		if err != nil {
			return rollouterr.New(rollouterr.KindDrainFailed, host.Address,
				fmt.Sprintf("command failed: %s", stderr.String()), err)
		}
	case <-ctx.Done():
		return rollouterr.New(rollouterr.KindDrainFailed, host.Address, "command timed out", ctx.Err())
	}
	return nil
}

// SetState sets backend/serverName to state on a single balancer host.
func (c *Client) SetState(ctx context.Context, host Host, backend, serverName string, state State) error {
	cmd := fmt.Sprintf(`echo "set server %s/%s state %s" | socat stdio unix-connect:%s`, backend, serverName, state, host.SocketPath)
	if err := c.runRemote(ctx, host, cmd); err != nil {
		return err
	}

	log.Logger.Info().Str("balancer", host.Address).Str("backend", backend).
		Str("server", serverName).Str("state", string(state)).Msg("balancer state set")
	return nil
}

// Ping runs a no-op remote command against host over the same transport
// SetState uses, to confirm the balancer is reachable and the SSH key is
// accepted before a rollout starts draining or re-enabling anything.
func (c *Client) Ping(ctx context.Context, host Host) error {
	if err := c.runRemote(ctx, host, "true"); err != nil {
		return err
	}
	log.Logger.Info().Str("balancer", host.Address).Msg("balancer reachable")
	return nil
}

// PingAll pings every host concurrently and returns a map from host address
// to the error Ping returned for it, if any; hosts that succeeded are
// omitted from the map. Callers should treat any non-empty result as a
// reason not to proceed with a drain/ready rollout.
func (c *Client) PingAll(ctx context.Context, hosts []Host) map[string]error {
	var mu sync.Mutex
	results := make(map[string]error)

	var wg sync.WaitGroup
	for _, h := range hosts {
		h := h
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Ping(ctx, h); err != nil {
				mu.Lock()
				results[h.Address] = err
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return results
}

// SetStateAll applies state to serverName on every balancer host
// concurrently and returns a map from host address to the error SetState
// returned for it, if any. A non-empty result means the server must be
// treated as NOT fully drained/ready, even though the hosts absent from the
// map individually succeeded.
func (c *Client) SetStateAll(ctx context.Context, hosts []Host, backend, serverName string, state State) map[string]error {
	var mu sync.Mutex
	results := make(map[string]error)

	g, gctx := errgroup.WithContext(ctx)
	for _, h := range hosts {
		h := h
		g.Go(func() error {
			if err := c.SetState(gctx, h, backend, serverName, state); err != nil {
				mu.Lock()
				results[h.Address] = err
				mu.Unlock()
			}
			return nil // a single host's failure never cancels its siblings
		})
	}
	_ = g.Wait()
	return results
}

// Drain is SetStateAll(..., StateDrain).
func (c *Client) Drain(ctx context.Context, hosts []Host, backend, serverName string) map[string]error {
	return c.SetStateAll(ctx, hosts, backend, serverName, StateDrain)
}

// Ready is SetStateAll(..., StateReady).
func (c *Client) Ready(ctx context.Context, hosts []Host, backend, serverName string) map[string]error {
	return c.SetStateAll(ctx, hosts, backend, serverName, StateReady)
}

// AggregateError folds a per-host error map from SetStateAll/PingAll into a
// single error naming every failing host, or nil if results is empty.
func AggregateError(results map[string]error) error {
	if len(results) == 0 {
		return nil
	}
	addrs := make([]string, 0, len(results))
	for addr := range results {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	msg := fmt.Sprintf("%d balancer host(s) failed:", len(results))
	for _, addr := range addrs {
		msg += fmt.Sprintf(" %s=%v;", addr, results[addr])
	}
	return errors.New(msg)
}
