package middleware

import (
	"net"
	"time"

	"github.com/deppfellow/cluster-reviewer/internal/errs"
	"github.com/deppfellow/cluster-reviewer/internal/server"
	"github.com/labstack/echo/v4"
)

// AccessMiddleware decides who may talk to the reviewer at all.
//
// The tool has no accounts: it edits files on the operator's disk, so the
// default is to serve loopback clients only.
type AccessMiddleware struct {
	server *server.Server
}

// NewAccessMiddleware constructs an AccessMiddleware.
func NewAccessMiddleware(s *server.Server) *AccessMiddleware {
	return &AccessMiddleware{
		server: s,
	}
}

// LocalOnly rejects requests whose peer address is not a loopback address
// when server.local_only is set.
//
// It looks at the TCP peer, not at X-Forwarded-For, so a proxy on the same
// machine is trusted and a forged header is not.
func (a *AccessMiddleware) LocalOnly(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !a.server.Config.Server.LocalOnly {
			return next(c)
		}

		start := time.Now()
		remote := c.Request().RemoteAddr

		if isLoopback(remote) {
			return next(c)
		}

		GetLogger(c).Warn().
			Str("function", "LocalOnly").
			Str("remote_addr", remote).
			Dur("duration", time.Since(start)).
			Msg("rejected non-local client")

		return errs.NewForbiddenError("The reviewer only accepts connections from this machine", true)
	}
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
