package cli

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ralt/rpmmd"
	"github.com/ralt/rpmmd/internal/rpmfile"
	"github.com/ralt/rpmmd/internal/signer"
)

type createConfig struct {
	ChecksumType  string
	Compression   string
	SimpleNames   bool
	Revision      string
	RepoTags      []string
	ContentTags   []string
	DistroTag     string
	DistroCPEID   string
	GPGKeyPath    string
	GPGPassphrase string
}

// NewCreateCmd creates the create command
func NewCreateCmd() *cobra.Command {
	var config createConfig

	cmd := &cobra.Command{
		Use:   "create <dir>",
		Short: "Generate repository metadata for a directory of RPM packages",
		Long: `Scans a directory tree for .rpm files and writes the repodata/
metadata describing them. repomd.xml is published atomically, so a
repository being served stays consistent during regeneration.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(args[0], &config)
		},
	}

	cmd.Flags().StringVar(&config.ChecksumType, "checksum", "sha256", "Checksum type (sha1, sha256, sha512, md5)")
	cmd.Flags().StringVar(&config.Compression, "compression", "gzip", "Metadata compression (none, gzip, bzip2, xz, zstd)")
	cmd.Flags().BoolVar(&config.SimpleNames, "simple-md-filenames", false, "Name metadata files primary.xml.gz instead of <checksum>-primary.xml.gz")
	cmd.Flags().StringVar(&config.Revision, "revision", "", "Revision stamped into repomd.xml (defaults to current time)")
	cmd.Flags().StringSliceVar(&config.RepoTags, "repo-tag", nil, "Repository tags for repomd.xml")
	cmd.Flags().StringSliceVar(&config.ContentTags, "content-tag", nil, "Content tags for repomd.xml")
	cmd.Flags().StringVar(&config.DistroTag, "distro", "", "Distribution tag for repomd.xml")
	cmd.Flags().StringVar(&config.DistroCPEID, "distro-cpeid", "", "CPE id for the distribution tag")
	cmd.Flags().StringVarP(&config.GPGKeyPath, "gpg-key", "k", "", "Path to GPG private key for signing repomd.xml")
	cmd.Flags().StringVarP(&config.GPGPassphrase, "gpg-passphrase", "p", "", "GPG key passphrase")

	return cmd
}

func runCreate(root string, config *createConfig) error {
	checksumType, err := rpmmd.ParseChecksumType(config.ChecksumType, false)
	if err != nil {
		return err
	}
	compression, err := parseCompression(config.Compression)
	if err != nil {
		return err
	}

	rpms, err := findRPMs(root)
	if err != nil {
		return err
	}
	logrus.Infof("Found %d packages under %s", len(rpms), root)

	opts := rpmmd.RepositoryOptions{
		MetadataChecksumType:    checksumType,
		PackageChecksumType:     checksumType,
		Compression:             compression,
		SimpleMetadataFilenames: config.SimpleNames,
		Revision:                config.Revision,
		RepoTags:                config.RepoTags,
		ContentTags:             config.ContentTags,
	}
	if config.DistroTag != "" {
		opts.DistroTags = []rpmmd.DistroTag{{Name: config.DistroTag, CPEID: config.DistroCPEID}}
	}

	writer, err := rpmmd.NewRepositoryWriterOptions(root, len(rpms), opts)
	if err != nil {
		return err
	}
	defer writer.Close()

	for _, rel := range rpms {
		pkg, err := rpmfile.ParsePackage(filepath.Join(root, rel), checksumType)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", rel, err)
		}
		pkg.LocationHref = filepath.ToSlash(rel)
		logrus.Debugf("Adding %s", pkg.NEVRA())
		if err := writer.AddPackage(pkg); err != nil {
			return err
		}
	}

	if err := writer.Finish(); err != nil {
		return err
	}

	if config.GPGKeyPath != "" {
		if err := signRepomd(root, config.GPGKeyPath, config.GPGPassphrase); err != nil {
			return fmt.Errorf("failed to sign repomd.xml: %w", err)
		}
		logrus.Info("Repository signed successfully")
	}

	logrus.Infof("Repository metadata generated for %d packages", len(rpms))
	return nil
}

// findRPMs returns the .rpm files under root, sorted so that repeated runs
// over the same tree produce identical metadata.
func findRPMs(root string) ([]string, error) {
	var rpms []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "repodata" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), ".rpm") {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			rpms = append(rpms, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(rpms)
	return rpms, nil
}

func signRepomd(root, keyPath, passphrase string) error {
	s, err := signer.NewGPGSigner(keyPath, passphrase)
	if err != nil {
		return err
	}
	repomdPath := filepath.Join(root, "repodata", "repomd.xml")
	data, err := os.ReadFile(repomdPath)
	if err != nil {
		return err
	}
	sig, err := s.SignDetached(data)
	if err != nil {
		return err
	}
	return os.WriteFile(repomdPath+".asc", sig, 0644)
}
