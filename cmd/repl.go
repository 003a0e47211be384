package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leftmike/anchor/repl"
)

var (
	replCmd = &cobra.Command{
		Use:   "repl [file ...]",
		Short: "Run console commands from files, or interactively",
		RunE:  replRun,
	}
)

func init() {
	anchorCmd.AddCommand(replCmd)
}

func replRun(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := context.Background()
	if len(args) == 0 {
		repl.Interact(ctx, env)
		return nil
	}

	for _, arg := range args {
		f, err := os.Open(arg)
		if err != nil {
			return fmt.Errorf("anchor: %s", err)
		}
		ses := &repl.Session{
			Env:    env,
			Writer: os.Stdout,
			Source: arg,
		}
		ses.Run(ctx, repl.NewLineReader(f))
		f.Close()
	}
	return nil
}
