package cli

import (
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ralt/rpmmd"
)

// NewVerifyCmd creates the verify command
func NewVerifyCmd() *cobra.Command {
	var endpoint string
	var strictSHA bool

	cmd := &cobra.Command{
		Use:   "verify <root>",
		Short: "Verify repository metadata against its repomd.xml",
		Long: `Checks every metadata file's size and checksums against the repomd.xml
declarations, then walks all package records to confirm the three
streams agree. Verification reads each file in full.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, args[0], endpoint, strictSHA)
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Endpoint URL for S3-compatible storage")
	cmd.Flags().BoolVar(&strictSHA, "strict-legacy-checksums", false, `Reject the legacy "sha" checksum tag instead of reading it as sha1`)
	return cmd
}

func runVerify(cmd *cobra.Command, root, endpoint string, strictSHA bool) error {
	ctx := cmd.Context()
	b, err := openBackend(ctx, root, endpoint)
	if err != nil {
		return err
	}
	reader, err := rpmmd.OpenRepositoryBackend(ctx, b, rpmmd.ReadOptions{RejectLegacySHA: strictSHA})
	if err != nil {
		return err
	}

	it, err := reader.VerifyAndIterPackages(ctx)
	if err != nil {
		return err
	}
	defer it.Close()

	count := 0
	for {
		_, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		count++
	}
	for _, d := range it.Diagnostics() {
		logrus.Warn(d.String())
	}
	logrus.Infof("Verified %d packages in %s", count, b.RepoRoot())
	return nil
}
