package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

// A minimal worker for subprocess channel tests. It speaks the protocol on
// stdin/stdout without any model runtime.
func main() {
	var (
		loadDelay  time.Duration
		exitOnLoad bool
		noSeq      bool
	)
	flag.DurationVar(&loadDelay, "load-delay", 0, "delay before answering loadModel")
	flag.BoolVar(&exitOnLoad, "exit-on-load", false, "exit with status 3 when loadModel arrives")
	flag.BoolVar(&noSeq, "no-seq", false, "do not echo seq")
	flag.Parse()

	type feeds struct {
		Tokens   []int64 `json:"tokens"`
		Tones    []int64 `json:"tones"`
		Speakers int64   `json:"speakers"`
	}
	type command struct {
		Type      string `json:"type"`
		ModelPath string `json:"modelPath"`
		Feeds     *feeds `json:"feeds"`
		Seq       uint64 `json:"seq"`
	}
	type response struct {
		Type   string    `json:"type"`
		Status string    `json:"status"`
		Result []float32 `json:"result,omitempty"`
		Error  string    `json:"error,omitempty"`
		Seq    uint64    `json:"seq,omitempty"`
	}

	out := bufio.NewWriter(os.Stdout)
	write := func(r response) {
		if noSeq {
			r.Seq = 0
		}
		b, _ := json.Marshal(r)
		out.Write(append(b, '\n'))
		out.Flush()
	}

	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(make([]byte, 1024*1024), 16*1024*1024)
	for sc.Scan() {
		var cmd command
		if err := json.Unmarshal(sc.Bytes(), &cmd); err != nil {
			fmt.Fprintf(os.Stderr, "bad command: %v\n", err)
			continue
		}
		switch cmd.Type {
		case "loadModel":
			if exitOnLoad {
				fmt.Fprintln(os.Stderr, "fatal: cannot allocate session")
				os.Exit(3)
			}
			time.Sleep(loadDelay)
			if strings.Contains(cmd.ModelPath, "bad") {
				write(response{Type: "loadModel", Status: "error", Error: "cannot open model " + cmd.ModelPath})
				continue
			}
			write(response{Type: "loadModel", Status: "success"})
		case "run":
			if cmd.Feeds != nil && cmd.Feeds.Speakers == 13 {
				write(response{Type: "run", Status: "error", Error: "speaker 13 not supported", Seq: cmd.Seq})
				continue
			}
			write(response{Type: "run", Status: "success", Result: []float32{0.1, 0.2}, Seq: cmd.Seq})
		default:
			write(response{Type: cmd.Type, Status: "error", Error: "unknown message type"})
		}
	}
}
