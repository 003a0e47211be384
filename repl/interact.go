package repl

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/peterh/liner"

	"github.com/leftmike/anchor/anchor"
)

const (
	anchorHistory = ".anchor_history"
)

type lineReader struct {
	line *liner.State
}

func (lr lineReader) ReadLine() (string, error) {
	s, err := lr.line.Prompt("anchor: ")
	if err == liner.ErrPromptAborted {
		return "", io.EOF
	} else if err != nil {
		return "", err
	}
	lr.line.AppendHistory(s)
	return s, nil
}

// Interact runs a console session on the terminal, keeping history in .anchor_history.
func Interact(ctx context.Context, env *anchor.Env) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	if f, err := os.Open(anchorHistory); err == nil {
		line.ReadHistory(f)
		f.Close()
	}

	ses := &Session{
		Env:    env,
		Writer: os.Stdout,
		Source: "console",
	}
	ses.Run(ctx, lineReader{line: line})

	if f, err := os.Create(anchorHistory); err != nil {
		fmt.Fprintf(os.Stderr, "anchor: error writing history file, %s: %s", anchorHistory, err)
	} else {
		line.WriteHistory(f)
		f.Close()
	}
}
