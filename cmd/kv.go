package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leftmike/anchor/anchor"
	"github.com/leftmike/anchor/repl"
)

var (
	scanLimit = -1
)

func init() {
	scanCmd := &cobra.Command{
		Use:   "scan start end",
		Short: "Print the keys and values in [start, end)",
		Args:  cobra.ExactArgs(2),
		RunE:  scanRun,
	}
	scanCmd.Flags().IntVar(&scanLimit, "limit", scanLimit,
		"print at most `count` keys; negative means all")

	anchorCmd.AddCommand(
		&cobra.Command{
			Use:   "get key",
			Short: "Print the value of a key",
			Args:  cobra.ExactArgs(1),
			RunE:  getRun,
		},
		&cobra.Command{
			Use:   "put key value",
			Short: "Set the value of a key in its own write transaction",
			Args:  cobra.ExactArgs(2),
			RunE:  putRun,
		},
		scanCmd)
}

func getRun(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := context.Background()
	txn, err := anchor.BeginRead(ctx, env)
	if err != nil {
		return err
	}
	defer txn.Commit(ctx)

	val, err := txn.Get(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Println(val)
	return nil
}

func putRun(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := context.Background()
	txn, err := anchor.BeginWrite(ctx, env)
	if err != nil {
		return err
	}

	err = txn.Put(ctx, args[0], args[1])
	if err != nil {
		txn.Abort(ctx)
		return err
	}
	return txn.Commit(ctx)
}

func scanRun(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	return repl.Scan(context.Background(), env, args[0], args[1], scanLimit, os.Stdout)
}
