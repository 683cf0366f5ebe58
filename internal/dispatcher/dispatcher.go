// Package dispatcher maps the small RESP verb table Prism Cache speaks
// (PING, COMMAND, GET, HGET, QUIT) onto facade calls and shapes their
// replies (spec §4.9). This is protocol-specific glue with no
// dependency-corpus analog; it is built directly against internal/resp
// and internal/facade.
package dispatcher

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/prismcache/prismcache/internal/facade"
	"github.com/prismcache/prismcache/internal/resp"
)

// Dispatcher routes decoded commands to a Facade and writes RESP
// replies.
type Dispatcher struct {
	facade *facade.Facade
}

// New returns a Dispatcher backed by f.
func New(f *facade.Facade) *Dispatcher {
	return &Dispatcher{facade: f}
}

// supportedCommands is COMMAND's reply: the verbs this server actually
// implements, per spec §4.9.
var supportedCommands = []string{"PING", "COMMAND", "GET", "HGET", "QUIT"}

// Dispatch executes one decoded command, writing its reply to w. The
// returned bool reports whether the connection should be closed after
// the reply is flushed (true only for QUIT).
func (d *Dispatcher) Dispatch(ctx context.Context, args []string, w *bufio.Writer) (closeConn bool, err error) {
	if len(args) == 0 {
		return false, resp.WriteError(w, "ERR", "empty command")
	}

	verb := strings.ToUpper(args[0])
	rest := args[1:]

	switch verb {
	case "PING":
		return false, d.ping(rest, w)
	case "COMMAND":
		return false, resp.WriteStringArray(w, supportedCommands)
	case "GET":
		return false, d.get(ctx, rest, w)
	case "HGET":
		return false, d.hget(ctx, rest, w)
	case "QUIT":
		if err := resp.WriteSimpleString(w, "OK"); err != nil {
			return true, err
		}
		return true, nil
	default:
		return false, resp.WriteError(w, "ERR", fmt.Sprintf("unknown command %q", args[0]))
	}
}

func (d *Dispatcher) ping(args []string, w *bufio.Writer) error {
	if len(args) > 1 {
		return resp.WriteError(w, "ERR", "wrong number of arguments for 'ping' command")
	}
	if len(args) == 1 {
		return resp.WriteBulkString(w, args[0])
	}
	return resp.WriteSimpleString(w, "PONG")
}

func (d *Dispatcher) get(ctx context.Context, args []string, w *bufio.Writer) error {
	if len(args) != 1 {
		return resp.WriteError(w, "ERR", "wrong number of arguments for 'get' command")
	}

	data, found, err := d.facade.Get(ctx, args[0])
	if err != nil {
		return writeFacadeError(w, err)
	}
	if !found {
		return resp.WriteNullBulkString(w)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return resp.WriteError(w, "ERR", "failed to encode record")
	}
	return resp.WriteBulkString(w, string(raw))
}

func (d *Dispatcher) hget(ctx context.Context, args []string, w *bufio.Writer) error {
	if len(args) != 2 {
		return resp.WriteError(w, "ERR", "wrong number of arguments for 'hget' command")
	}

	value, found, err := d.facade.HGet(ctx, args[0], args[1])
	if err != nil {
		return writeFacadeError(w, err)
	}
	if !found {
		return resp.WriteNullBulkString(w)
	}
	return resp.WriteBulkString(w, value)
}

// writeFacadeError translates a facade error into the appropriate RESP
// error kind. Backend and configuration failures are reported as
// generic ERR rather than echoing adapter internals to the client.
func writeFacadeError(w *bufio.Writer, err error) error {
	switch {
	case errors.Is(err, facade.ErrUnknownProvider):
		return resp.WriteError(w, "ERR", err.Error())
	case errors.Is(err, facade.ErrInvalidKey):
		return resp.WriteError(w, "ERR", err.Error())
	default:
		return resp.WriteError(w, "ERR", "backend unavailable")
	}
}
