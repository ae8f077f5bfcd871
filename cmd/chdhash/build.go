package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/ledgerwatch/log/v3"
	"github.com/spf13/cobra"
	"github.com/tamirms/chdhash"
)

var buildFlags struct {
	input     string
	output    string
	payload   int
	fp        int
	workers   int
	maxTrials uint32
	retries   int
	metadata  string
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build an index file from a key list",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(buildFlags.input)
		if err != nil {
			return err
		}
		defer f.Close()

		entries, err := readEntries(f, buildFlags.payload > 0)
		if err != nil {
			return fmt.Errorf("%s: %w", buildFlags.input, err)
		}
		logger.Info("[build] input loaded", "file", buildFlags.input, "keys", len(entries))

		start := time.Now()
		builder, err := chdhash.NewBuilder(cmd.Context(), buildFlags.output, uint64(len(entries)),
			chdhash.WithPayload(buildFlags.payload),
			chdhash.WithFingerprint(buildFlags.fp),
			chdhash.WithWorkers(buildFlags.workers),
			chdhash.WithMaxTrials(buildFlags.maxTrials),
			chdhash.WithRetries(buildFlags.retries),
			chdhash.WithUserMetadata([]byte(buildFlags.metadata)),
			chdhash.WithLogger(logger),
			chdhash.WithLogLevel(log.LvlInfo),
		)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := builder.AddKey(e.key, e.payload); err != nil {
				return errors.Join(err, builder.Close())
			}
		}
		if err := builder.Finish(); err != nil {
			return err
		}

		info, err := os.Stat(buildFlags.output)
		if err != nil {
			return err
		}
		logger.Info("[build] done", "file", buildFlags.output,
			"size", datasize.ByteSize(info.Size()).HumanReadable(), "took", time.Since(start))
		return nil
	},
}

func init() {
	buildCmd.Flags().StringVar(&buildFlags.input, "input", "", "key file: one key per line, or key<TAB>payload with --payload")
	buildCmd.Flags().StringVar(&buildFlags.output, "output", "", "index file to write")
	buildCmd.Flags().IntVar(&buildFlags.payload, "payload", 0, "payload size in bytes (0-8, 0 for MPHF only)")
	buildCmd.Flags().IntVar(&buildFlags.fp, "fp", 0, "fingerprint size in bytes (0-4)")
	buildCmd.Flags().IntVar(&buildFlags.workers, "workers", 1, "parallel workers")
	buildCmd.Flags().Uint32Var(&buildFlags.maxTrials, "max-trials", 1<<20, "displacement values tried per bucket")
	buildCmd.Flags().IntVar(&buildFlags.retries, "retries", 0, "rebuild attempts after displacement exhaustion")
	buildCmd.Flags().StringVar(&buildFlags.metadata, "metadata", "", "user metadata stored in the index")
	must(buildCmd.MarkFlagRequired("input"))
	must(buildCmd.MarkFlagRequired("output"))
}

type entry struct {
	key     string
	payload uint64
}

// readEntries parses one entry per line. Without payloads the whole line is
// the key, tabs included. With payloads each line is "key<TAB>payload" and
// the payload follows the last tab.
func readEntries(r io.Reader, withPayload bool) ([]entry, error) {
	var entries []entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for line := 1; sc.Scan(); line++ {
		text := sc.Text()
		if !withPayload {
			entries = append(entries, entry{key: text})
			continue
		}
		tab := strings.LastIndexByte(text, '\t')
		if tab < 0 {
			return nil, fmt.Errorf("line %d: missing payload", line)
		}
		p, err := strconv.ParseUint(text[tab+1:], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		entries = append(entries, entry{key: text[:tab], payload: p})
	}
	return entries, sc.Err()
}
