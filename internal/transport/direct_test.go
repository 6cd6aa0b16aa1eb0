package transport

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestDirectDialConnectsToListener(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
	}()

	d := NewDirect(Config{DialTimeout: 2 * time.Second})
	conn, err := d.Dial(context.Background(), "tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
}

func TestDirectDialFailsOnUnreachableAddress(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close() // nothing listens here anymore

	d := NewDirect(Config{DialTimeout: 2 * time.Second})
	if _, err := d.Dial(context.Background(), "tcp", addr); err == nil {
		t.Fatal("expected dial error against a closed port")
	}
}
