package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ralt/rpmmd"
)

// NewInfoCmd creates the info command
func NewInfoCmd() *cobra.Command {
	var endpoint string

	cmd := &cobra.Command{
		Use:   "info <root>",
		Short: "Summarize a repository's repomd.xml",
		Long:  `Prints the revision, tags and data records of a repository index. The root may be a local directory or an s3:// URI.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(cmd, args[0], endpoint)
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Endpoint URL for S3-compatible storage")
	return cmd
}

func runInfo(cmd *cobra.Command, root, endpoint string) error {
	ctx := cmd.Context()
	b, err := openBackend(ctx, root, endpoint)
	if err != nil {
		return err
	}
	reader, err := rpmmd.OpenRepositoryBackend(ctx, b, rpmmd.ReadOptions{})
	if err != nil {
		return err
	}

	repomd := reader.Repomd()
	fmt.Printf("repository: %s\n", b.RepoRoot())
	fmt.Printf("revision:   %s\n", repomd.Revision)
	for _, tag := range repomd.RepoTags {
		fmt.Printf("repo tag:   %s\n", tag)
	}
	for _, tag := range repomd.ContentTags {
		fmt.Printf("content:    %s\n", tag)
	}
	for _, tag := range repomd.DistroTags {
		if tag.CPEID != "" {
			fmt.Printf("distro:     %s (%s)\n", tag.Name, tag.CPEID)
		} else {
			fmt.Printf("distro:     %s\n", tag.Name)
		}
	}
	fmt.Println()
	for _, rec := range repomd.Records {
		fmt.Printf("%-14s %s\n", rec.Type, rec.LocationHref)
		fmt.Printf("               checksum %s, size %d, open-size %d\n",
			rec.Checksum, rec.Size, rec.OpenSize)
	}
	return nil
}
