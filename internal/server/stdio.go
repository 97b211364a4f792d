package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// maxStdioMessage bounds a single framed message. Tool calls are small; a
// larger body means a corrupt or hostile stream.
const maxStdioMessage = 16 << 20

// Stdio runs the server over a Content-Length framed stream, the framing
// agent hosts use for local tool servers. A first line starting with '{'
// is accepted as an unframed message for clients that skip headers.
type Stdio struct {
	server *Server

	in  *bufio.Reader
	out io.Writer

	mu sync.Mutex // serializes writes to out
}

// NewStdio wires the server to a reader and writer, typically os.Stdin and
// os.Stdout.
func NewStdio(server *Server, in io.Reader, out io.Writer) *Stdio {
	return &Stdio{server: server, in: bufio.NewReader(in), out: out}
}

// Serve reads requests until EOF or context cancellation. Malformed frames
// are answered with a JSON-RPC error and the loop continues; only stream
// errors end it.
func (s *Stdio) Serve(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		body, err := s.readMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.server.logger.Info("stdio stream closed")
				return nil
			}
			return err
		}

		req, errResp := parseRequest(body)
		if errResp != nil {
			if werr := s.write(errResp); werr != nil {
				return werr
			}
			continue
		}

		resp := s.server.Handle(ctx, req)
		if resp == nil {
			continue
		}
		if err := s.write(resp); err != nil {
			return err
		}
	}
}

// readMessage reads one framed message: header lines terminated by an empty
// line, then exactly Content-Length bytes of body.
func (s *Stdio) readMessage() ([]byte, error) {
	contentLength := -1
	for {
		line, err := s.in.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) && strings.TrimSpace(line) == "" {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("reading frame header: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")

		// Unframed fallback: a bare JSON line instead of headers.
		if contentLength < 0 && strings.HasPrefix(strings.TrimSpace(line), "{") {
			return []byte(line), nil
		}

		if line == "" {
			if contentLength < 0 {
				// Stray blank line between frames.
				continue
			}
			break
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("malformed frame header %q", line)
		}
		if strings.EqualFold(strings.TrimSpace(name), "content-length") {
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil || n < 0 {
				return nil, fmt.Errorf("invalid Content-Length %q", strings.TrimSpace(value))
			}
			contentLength = n
		}
		// Other headers such as Content-Type are ignored.
	}

	if contentLength > maxStdioMessage {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit %d", contentLength, maxStdioMessage)
	}
	body := make([]byte, contentLength)
	if _, err := io.ReadFull(s.in, body); err != nil {
		return nil, fmt.Errorf("reading frame body: %w", err)
	}
	return body, nil
}

func (s *Stdio) write(resp *Response) error {
	data, err := encodeResponse(resp)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.out, "Content-Length: %d\r\n\r\n", len(data)); err != nil {
		return fmt.Errorf("writing frame header: %w", err)
	}
	if _, err := s.out.Write(data); err != nil {
		return fmt.Errorf("writing frame body: %w", err)
	}
	return nil
}
