package kbot

import (
	"bytes"
	"fmt"
	"net"
	"time"

	"golang.org/x/text/encoding/charmap"
)

const maxWireLine = 512

// IRC wraps a stream socket to an IRC server: command builders that write
// framed wire lines, and a receive loop that hands back whole lines only.
type IRC struct {
	socket  net.Conn
	charmap *charmap.Charmap
}

// NewIRC wraps an already-connected socket. cm may be nil for UTF-8-clean
// servers; non-nil enables transcoding outgoing/incoming text through that
// legacy charset.
func NewIRC(socket net.Conn, cm *charmap.Charmap) *IRC {
	return &IRC{socket: socket, charmap: cm}
}

func (c *IRC) send(line string) (int, error) {
	n, err := c.socket.Write([]byte(line))
	if err != nil {
		return -1, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return n, nil
}

// Login runs the connection-registration sequence: USER, NICK, and, if
// password is non-empty, a NickServ identify. It attempts every step
// regardless of earlier failures, returning the first error encountered.
func (c *IRC) Login(nick, password string) (int, error) {
	var firstErr error
	total := 0

	n, err := c.send(fmt.Sprintf("\rUSER %s 0 * :%s\r\n", nick, nick))
	total += n
	if err != nil && firstErr == nil {
		firstErr = err
	}

	n, err = c.Nick(nick)
	total += n
	if err != nil && firstErr == nil {
		firstErr = err
	}

	if password != "" {
		n, err = c.send(fmt.Sprintf("\rPRIVMSG NickServ :identify %s\r\n", password))
		total += n
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if firstErr != nil {
		return -1, firstErr
	}
	return total, nil
}

func (c *IRC) Nick(nick string) (int, error) {
	return c.send(fmt.Sprintf("\rNICK %s\r\n", nick))
}

func (c *IRC) Join(channel string) (int, error) {
	return c.send(fmt.Sprintf("\rJOIN %s\r\n", channel))
}

func (c *IRC) Part(channel string) (int, error) {
	return c.send(fmt.Sprintf("\rPART %s\r\n", channel))
}

func (c *IRC) Pong(token string) (int, error) {
	return c.send(fmt.Sprintf("\rPONG :%s\r\n", token))
}

// PrivMsg sends text to target, splitting it across multiple PRIVMSG lines
// if it would otherwise overflow the 512-byte wire budget.
func (c *IRC) PrivMsg(target, text string) (int, error) {
	limit := wireBudget(target)
	lines := splitByLen(text, limit, 0)
	if len(lines) == 0 {
		lines = []string{text}
	}
	total := 0
	for _, line := range lines {
		payload := line
		if c.charmap != nil {
			payload = string(encode(line, c.charmap))
		}
		n, err := c.send(fmt.Sprintf("\rPRIVMSG %s :%s\r\n", target, payload))
		total += n
		if err != nil {
			return -1, err
		}
	}
	return total, nil
}

// Quit sends a farewell and gives the server a brief window to receive it
// before the caller closes the socket. Go's net.Conn.Write is synchronous —
// it already blocks until the bytes are handed to the kernel or an error
// occurs — so the deadline below only bounds that wait; there is no
// separate non-blocking-send-then-poll-for-writability step to replicate.
func (c *IRC) Quit(reason string) (int, error) {
	c.socket.SetWriteDeadline(time.Now().Add(5 * time.Second))
	defer c.socket.SetWriteDeadline(time.Time{})
	return c.send(fmt.Sprintf("\rQUIT :%s\r\n", reason))
}

// wireBudget returns how many bytes of PRIVMSG text fit on one line to
// target, leaving room for the command, target, and "\r"..":"../"\r\n"
// framing.
func wireBudget(target string) int {
	overhead := len("\rPRIVMSG ") + len(target) + len(" :") + len("\r\n")
	limit := maxWireLine - overhead
	if limit < 0 {
		return 0
	}
	return limit
}

const splitRecursionLimit = 1000

// splitByLen breaks line into chunks of at most limit bytes, preferring to
// break on the last space before the limit so words aren't cut mid-way.
func splitByLen(line string, limit int, depth int) []string {
	if depth >= splitRecursionLimit || limit <= 0 || len(line) == 0 {
		return nil
	}
	if len(line) <= limit {
		return []string{line}
	}
	i := indexLastSpace(line[:limit])
	if i <= 0 {
		i = limit
	}
	head := line[:i]
	tail := trimLeadingSpace(line[i:])
	return append([]string{head}, splitByLen(tail, limit, depth+1)...)
}

func indexLastSpace(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ' ' {
			return i
		}
	}
	return -1
}

func trimLeadingSpace(s string) string {
	i := 0
	for i < len(s) && s[i] == ' ' {
		i++
	}
	return s[i:]
}

// recvChunkSize is the size of each read Recv makes; Recv's tries argument
// bounds how many such reads one call makes.
const recvChunkSize = 4096

// Recv reads up to tries*4096 bytes, requiring the result to end on a
// newline; a partial trailing line is trimmed back to the last complete
// one so the caller never sees a fragment. A nil, nil return means nothing
// complete is available yet; an empty read (peer EOF) is reported as an
// error wrapping ErrTransport so the Manager can terminate the worker.
func (c *IRC) Recv(tries int) ([]byte, error) {
	var buf []byte
	chunk := make([]byte, recvChunkSize)
	for try := 0; try < tries; try++ {
		n, err := c.socket.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			if len(buf) == 0 {
				return nil, fmt.Errorf("%w: %v", ErrTransport, err)
			}
			break
		}
		if n < len(chunk) {
			break
		}
	}
	if len(buf) == 0 {
		return nil, fmt.Errorf("%w: connection closed", ErrTransport)
	}
	if buf[len(buf)-1] != '\n' {
		if i := bytes.LastIndexByte(buf, '\n'); i >= 0 {
			buf = buf[:i+1]
		} else {
			return nil, nil
		}
	}
	return buf, nil
}

// SplitLines splits a receive buffer into non-empty lines on any run of
// '\r'/'\n' bytes, tolerating any interleaving of the two separators.
func SplitLines(buf []byte) []string {
	var lines []string
	var cur []byte
	for _, b := range buf {
		if b == '\r' || b == '\n' {
			if len(cur) > 0 {
				lines = append(lines, string(cur))
				cur = nil
			}
			continue
		}
		cur = append(cur, b)
	}
	if len(cur) > 0 {
		lines = append(lines, string(cur))
	}
	return lines
}
