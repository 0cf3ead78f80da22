package cli

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ralt/rpmmd/backend"
)

// NewPushCmd creates the push command
func NewPushCmd() *cobra.Command {
	var endpoint string

	cmd := &cobra.Command{
		Use:   "push <local-root> <target-root>",
		Short: "Upload a repository to another root",
		Long: `Copies a repository tree to a target root, typically an s3:// URI.
repomd.xml is uploaded last: consumers polling the target never see an
index referencing files that are not there yet.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPush(cmd, args[0], args[1], endpoint)
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Endpoint URL for S3-compatible storage")
	return cmd
}

func runPush(cmd *cobra.Command, localRoot, targetRoot, endpoint string) error {
	ctx := cmd.Context()
	src := backend.NewFSBackend(localRoot)
	dst, err := openBackend(ctx, targetRoot, endpoint)
	if err != nil {
		return err
	}

	files, err := src.List(ctx, ".")
	if err != nil {
		return err
	}

	// Everything except the index first; repomd.xml is the commit point.
	const index = "repodata/repomd.xml"
	uploaded := 0
	hasIndex := false
	for _, path := range files {
		if path == index {
			hasIndex = true
			continue
		}
		if err := pushFile(cmd, src, dst, path); err != nil {
			return err
		}
		uploaded++
	}
	if hasIndex {
		if err := pushFile(cmd, src, dst, index); err != nil {
			return err
		}
		uploaded++
	}

	logrus.Infof("Pushed %d files to %s", uploaded, dst.RepoRoot())
	return nil
}

func pushFile(cmd *cobra.Command, src *backend.FSBackend, dst backend.Backend, path string) error {
	ctx := cmd.Context()
	rc, err := src.Open(ctx, path)
	if err != nil {
		return err
	}
	defer rc.Close()
	logrus.Debugf("Uploading %s", path)
	if err := dst.WriteFile(ctx, path, rc); err != nil {
		return fmt.Errorf("failed to upload %s: %w", path, err)
	}
	return nil
}
