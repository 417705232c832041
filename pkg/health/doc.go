/*
Package health provides the checker abstractions the deploy agent uses to
decide whether the local Payara instance is actually up before reporting
"running"/"healthy" in its own GET /health response, the client side of
which lives in pkg/transport.

Three checker types are available, matching what an operator would already
be running by hand against an app server:

  - HTTPChecker polls a URL and accepts any status code in an expected set.
  - TCPChecker confirms a port is accepting connections.
  - ExecChecker runs a local command (e.g. asadmin list-applications) and
    treats exit code 0 as healthy.

All three implement Checker:

	type Checker interface {
	    Check(ctx context.Context) Result
	    Type() CheckType
	}

Status tracks consecutive successes/failures against a Config's Retries
threshold, so a single flaky probe doesn't flip the agent's reported health
to unhealthy: Healthy becomes false only after Retries consecutive failed
checks, and becomes true again on the first successful one.

Example, composing a TCP reachability check in front of an HTTP one:

	tcp := health.NewTCPChecker("127.0.0.1:8080")
	http := health.NewHTTPChecker("http://127.0.0.1:8080/health")
	status := health.NewStatus()
	if r := tcp.Check(ctx); !r.Healthy {
	    status.Update(r, health.DefaultConfig())
	} else {
	    status.Update(http.Check(ctx), health.DefaultConfig())
	}
*/
package health
