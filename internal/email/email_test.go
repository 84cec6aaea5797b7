package email

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
)

// fakeSMTP accepts one session and records the DATA payload.
type fakeSMTP struct {
	ln   net.Listener
	mu   sync.Mutex
	rcpt []string
	data string
	done chan struct{}
}

func newFakeSMTP(t *testing.T) *fakeSMTP {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	f := &fakeSMTP{ln: ln, done: make(chan struct{})}
	go f.serve()

	return f
}

func (f *fakeSMTP) serve() {
	defer close(f.done)

	conn, err := f.ln.Accept()
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	r := bufio.NewReader(conn)
	write := func(line string) { _, _ = conn.Write([]byte(line + "\r\n")) }

	write("220 localhost ESMTP")
	for {
		line, readErr := r.ReadString('\n')
		if readErr != nil {
			return
		}

		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			write("250 localhost")
		case strings.HasPrefix(cmd, "MAIL FROM"):
			write("250 OK")
		case strings.HasPrefix(cmd, "RCPT TO"):
			f.mu.Lock()
			f.rcpt = append(f.rcpt, strings.TrimSpace(line))
			f.mu.Unlock()
			write("250 OK")
		case cmd == "DATA":
			write("354 go ahead")

			var b strings.Builder
			for {
				dataLine, dataErr := r.ReadString('\n')
				if dataErr != nil {
					return
				}
				if dataLine == ".\r\n" {
					break
				}
				b.WriteString(dataLine)
			}

			f.mu.Lock()
			f.data = b.String()
			f.mu.Unlock()
			write("250 queued")
		case cmd == "QUIT":
			write("221 bye")
			return
		default:
			write("250 OK")
		}
	}
}

func TestSMTPSenderSend(t *testing.T) {
	server := newFakeSMTP(t)
	addr := server.ln.Addr().(*net.TCPAddr)

	sender := NewSMTPSender(Config{
		Host:     "127.0.0.1",
		Port:     addr.Port,
		From:     "noreply@example.com",
		FromName: "Promoter",
	})

	err := sender.Send(context.Background(), "ada@example.com\r\nBcc: evil@example.com",
		"New Content Available to Share!", "<p>hi</p>")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-server.done

	if len(server.rcpt) != 1 || !strings.Contains(server.rcpt[0], "ada@example.com") {
		t.Fatalf("unexpected recipients: %v", server.rcpt)
	}

	for _, want := range []string{
		"Subject: New Content Available to Share!",
		"From: Promoter <noreply@example.com>",
		"Content-Type: text/html; charset=UTF-8",
		"<p>hi</p>",
	} {
		if !strings.Contains(server.data, want) {
			t.Errorf("expected %q in message:\n%s", want, server.data)
		}
	}

	if strings.Contains(server.data, "\r\nBcc:") {
		t.Fatalf("header injection was not sanitized:\n%s", server.data)
	}
}

func TestSMTPSenderDialError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	sender := NewSMTPSender(Config{Host: "127.0.0.1", Port: port, From: "a@b.c"})
	if err = sender.Send(context.Background(), "x@y.z", "s", "b"); err == nil {
		t.Fatalf("expected dial error")
	}

	if !strings.Contains(err.Error(), "dial smtp") {
		t.Fatalf("unexpected error: %v", err)
	}
}
