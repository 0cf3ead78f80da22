package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ralt/rpmmd"
)

// NewDumpCmd creates the dump command
func NewDumpCmd() *cobra.Command {
	var endpoint string
	var withFiles bool

	cmd := &cobra.Command{
		Use:   "dump <root>",
		Short: "Stream a repository's package records to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(cmd, args[0], endpoint, withFiles)
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Endpoint URL for S3-compatible storage")
	cmd.Flags().BoolVar(&withFiles, "files", false, "Include each package's file list")
	return cmd
}

func runDump(cmd *cobra.Command, root, endpoint string, withFiles bool) error {
	ctx := cmd.Context()
	b, err := openBackend(ctx, root, endpoint)
	if err != nil {
		return err
	}
	reader, err := rpmmd.OpenRepositoryBackend(ctx, b, rpmmd.ReadOptions{})
	if err != nil {
		return err
	}
	it, err := reader.IterPackages(ctx)
	if err != nil {
		return err
	}
	defer it.Close()

	for {
		pkg, err := it.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s %s %s\n", pkg.NEVRA(), pkg.Checksum.Type, pkg.PkgID())
		if withFiles {
			for _, f := range pkg.Files {
				fmt.Printf("  %s\n", f.Path)
			}
		}
	}
}
