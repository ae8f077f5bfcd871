// Chdhash builds, inspects, and benchmarks chdhash index files.
//
// Usage:
//
//	chdhash build --input keys.tsv --output keys.idx --payload 4 --fp 1
//	chdhash query --index keys.idx alice bob
//	chdhash stats --index keys.idx
//	chdhash verify --index keys.idx
//	chdhash bench --keys 1000000
//
// Input files hold one key per line. With --payload, each key is followed by
// a tab and an unsigned decimal payload.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ledgerwatch/log/v3"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var (
	verbosity string // log level name: crit, error, warn, info, debug, trace
	indexPath string // index file for query/stats/verify
	logger    log.Logger
)

var rootCmd = &cobra.Command{
	Use:           "chdhash",
	Short:         "Build and query minimal perfect hash index files",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		lvl, err := log.LvlFromString(verbosity)
		if err != nil {
			return fmt.Errorf("--verbosity: %w", err)
		}
		logger = newLogger(lvl, cmd.ErrOrStderr())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&verbosity, "verbosity", "info", "log level: crit, error, warn, info, debug, trace")
	rootCmd.AddCommand(buildCmd, queryCmd, statsCmd, verifyCmd, benchCmd)
}

// newLogger writes records at lvl and above to w, colored when w is a terminal.
func newLogger(lvl log.Lvl, w io.Writer) log.Logger {
	format := log.TerminalFormatNoColor()
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		format = log.TerminalFormat()
	}
	l := log.New()
	l.SetHandler(log.LvlFilterHandler(lvl, log.StreamHandler(w, format)))
	return l
}

func withIndex(cmd *cobra.Command) {
	cmd.Flags().StringVar(&indexPath, "index", "", "path to the index file")
	must(cmd.MarkFlagRequired("index"))
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
