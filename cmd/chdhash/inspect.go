package main

import (
	"errors"
	"fmt"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/cobra"
	"github.com/tamirms/chdhash"
	chderrors "github.com/tamirms/chdhash/errors"
)

var queryCmd = &cobra.Command{
	Use:   "query KEY...",
	Short: "Print the slot and payload of each key",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := chdhash.Open(indexPath)
		if err != nil {
			return err
		}
		defer idx.Close()

		out := cmd.OutOrStdout()
		for _, key := range args {
			slot, err := idx.Query(key)
			switch {
			case errors.Is(err, chderrors.ErrNotFound), errors.Is(err, chderrors.ErrFingerprintMismatch):
				fmt.Fprintf(out, "%s\tnot found\n", key)
				continue
			case err != nil:
				return fmt.Errorf("query %q: %w", key, err)
			}
			if !idx.HasPayload() {
				fmt.Fprintf(out, "%s\t%d\n", key, slot)
				continue
			}
			payload, err := idx.QueryPayload(key)
			if err != nil {
				return fmt.Errorf("query %q: %w", key, err)
			}
			fmt.Fprintf(out, "%s\t%d\t%d\n", key, slot, payload)
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print index statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := chdhash.GetStats(indexPath)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "keys:              %d\n", s.NumKeys)
		fmt.Fprintf(out, "size:              %s\n", datasize.ByteSize(s.IndexSize).HumanReadable())
		fmt.Fprintf(out, "bits/key:          %.3f\n", s.BitsPerKey)
		fmt.Fprintf(out, "payload bytes:     %d\n", s.PayloadSize)
		fmt.Fprintf(out, "fingerprint bytes: %d\n", s.FingerprintSize)
		fmt.Fprintf(out, "buckets:           %d (%d singletons)\n", s.NumBuckets, s.SingletonBuckets)
		fmt.Fprintf(out, "max displacement:  %d\n", s.MaxDisplacement)
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check index checksums and structure",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := chdhash.Open(indexPath)
		if err != nil {
			return err
		}
		if err := idx.Verify(); err != nil {
			return errors.Join(err, idx.Close())
		}
		logger.Info("[verify] ok", "file", indexPath, "keys", idx.NumKeys())
		return idx.Close()
	},
}

func init() {
	withIndex(queryCmd)
	withIndex(statsCmd)
	withIndex(verifyCmd)
}
