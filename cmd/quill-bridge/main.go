// quill-bridge exposes a quill subprocess over a WebSocket: client messages
// go to the agent's stdin, and each stdout/stderr line comes back as a typed
// JSON frame. Intended for browser frontends driving the ACP mode.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type frame struct {
	Type string `json:"type"` // "stdout" or "stderr"
	Data string `json:"data"`
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: quill-bridge [-addr :8080] <agent command> [args...]")
		os.Exit(1)
	}

	http.HandleFunc("/ws", handleWS(flag.Args()))
	log.Printf("WebSocket bridge on ws://%s/ws", *addr)
	log.Fatal(http.ListenAndServe(*addr, nil))
}

func handleWS(cmdArgs []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}
		defer conn.Close()

		cmd := exec.Command(cmdArgs[0], cmdArgs[1:]...)
		stdin, err := cmd.StdinPipe()
		if err != nil {
			log.Println("stdin pipe error:", err)
			return
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			log.Println("stdout pipe error:", err)
			return
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			log.Println("stderr pipe error:", err)
			return
		}
		if err := cmd.Start(); err != nil {
			log.Println("agent start error:", err)
			return
		}
		defer func() {
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
			_ = cmd.Wait()
		}()

		// All WebSocket writes go through this channel; the connection has
		// a single writer.
		frames := make(chan frame, 16)

		var g errgroup.Group
		g.Go(func() error { return forwardLines(stdout, "stdout", frames) })
		g.Go(func() error { return forwardLines(stderr, "stderr", frames) })
		go func() {
			_ = g.Wait()
			close(frames)
		}()

		// WebSocket → agent stdin.
		go func() {
			defer stdin.Close()
			for {
				_, msg, err := conn.ReadMessage()
				if err != nil {
					return
				}
				if _, err := stdin.Write(append(msg, '\n')); err != nil {
					return
				}
			}
		}()

		// Frames → WebSocket, single writer. After a write failure the
		// channel is still drained so the pipe goroutines can finish.
		var writeErr error
		for f := range frames {
			if writeErr != nil {
				continue
			}
			data, err := json.Marshal(f)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Println("ws write error:", err)
				writeErr = err
			}
		}
	}
}

// forwardLines turns each line from the agent into a typed frame.
func forwardLines(r io.Reader, kind string, frames chan<- frame) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		frames <- frame{Type: kind, Data: scanner.Text()}
	}
	return scanner.Err()
}
