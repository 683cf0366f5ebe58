package resp

import (
	"bufio"
	"fmt"
	"strings"
)

// WriteSimpleString writes a RESP simple string reply ("+OK\r\n"). s
// must not contain CR or LF; callers are expected to only use this for
// fixed protocol strings like "OK" and "PONG".
func WriteSimpleString(w *bufio.Writer, s string) error {
	if strings.ContainsAny(s, "\r\n") {
		return fmt.Errorf("resp: simple string %q contains CR or LF", s)
	}
	_, err := fmt.Fprintf(w, "+%s\r\n", s)
	return err
}

// WriteError writes a RESP error reply ("-ERR message\r\n"). kind is
// the conventional leading error-type token (e.g. "ERR", "WRONGTYPE").
func WriteError(w *bufio.Writer, kind, message string) error {
	message = strings.ReplaceAll(strings.ReplaceAll(message, "\r", " "), "\n", " ")
	_, err := fmt.Fprintf(w, "-%s %s\r\n", kind, message)
	return err
}

// WriteBulkString writes a RESP bulk string reply.
func WriteBulkString(w *bufio.Writer, s string) error {
	if _, err := fmt.Fprintf(w, "$%d\r\n", len(s)); err != nil {
		return err
	}
	if _, err := w.WriteString(s); err != nil {
		return err
	}
	_, err := w.WriteString("\r\n")
	return err
}

// WriteNullBulkString writes a RESP null bulk string reply ("$-1\r\n"),
// Prism Cache's reply for a key that does not exist.
func WriteNullBulkString(w *bufio.Writer) error {
	_, err := w.WriteString("$-1\r\n")
	return err
}

// WriteArray writes a RESP array header for n following elements;
// callers write each element themselves with the other Write* helpers.
func WriteArray(w *bufio.Writer, n int) error {
	_, err := fmt.Fprintf(w, "*%d\r\n", n)
	return err
}

// WriteStringArray writes a complete RESP array of bulk strings in one
// call, used for COMMAND's reply.
func WriteStringArray(w *bufio.Writer, items []string) error {
	if err := WriteArray(w, len(items)); err != nil {
		return err
	}
	for _, item := range items {
		if err := WriteBulkString(w, item); err != nil {
			return err
		}
	}
	return nil
}
