package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/fingerspell/fingerspell-core/internal/protocol"
)

// fingerspell-feed publishes a directory of frame images as a gesture stream,
// for demos and smoke-testing a running daemon.
func main() {
	var (
		servers    string
		sessionID  string
		dir        string
		intervalMS int
		encoding   string
	)

	flag.StringVar(&servers, "servers", "nats://localhost:4222", "Comma-separated NATS servers")
	flag.StringVar(&sessionID, "session", "", "Session id (random when empty)")
	flag.StringVar(&dir, "dir", ".", "Directory of frame images, published in name order")
	flag.IntVar(&intervalMS, "interval", 100, "Milliseconds between frames")
	flag.StringVar(&encoding, "encoding", "jpeg", "Frame encoding (jpeg, png, raw)")
	flag.Parse()

	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	if err := run(servers, sessionID, dir, intervalMS, encoding); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(servers, sessionID, dir string, intervalMS int, encoding string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read frame directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return fmt.Errorf("no frames in %s", dir)
	}

	conn, err := nats.Connect(servers, nats.Name("fingerspell-feed"))
	if err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}
	defer conn.Drain()

	subject := protocol.SubjectGestureFramePrefix + "." + sessionID
	interval := time.Duration(intervalMS) * time.Millisecond

	for i, name := range names {
		image, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read frame %s: %w", name, err)
		}
		frame := protocol.GestureFrame{
			SessionID: sessionID,
			Sequence:  i,
			Encoding:  encoding,
			Image:     image,
		}
		if err := publish(conn, subject, frame); err != nil {
			return err
		}
		time.Sleep(interval)
	}

	final := protocol.GestureFrame{SessionID: sessionID, Sequence: len(names), Final: true}
	if err := publish(conn, subject, final); err != nil {
		return err
	}

	fmt.Printf("published %d frames to session %s\n", len(names), sessionID)
	return nil
}

func publish(conn *nats.Conn, subject string, frame protocol.GestureFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if err := conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish frame: %w", err)
	}
	return nil
}
