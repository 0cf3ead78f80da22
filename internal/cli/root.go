package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rpmmd",
		Short: "Read, write and verify RPM repository metadata",
		Long: `rpmmd works with the repodata/ directory of RPM repositories: the
repomd.xml index and the primary, filelists, other and updateinfo
streams it references.

Repositories are processed in a streaming fashion, so repository size
does not affect memory use. Local directories and s3:// roots are both
supported where it makes sense.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Setup logging
			verbose, _ := cmd.Flags().GetBool("verbose")
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			} else {
				logrus.SetLevel(logrus.InfoLevel)
			}
		},
	}

	// Global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	rootCmd.AddCommand(NewCreateCmd())
	rootCmd.AddCommand(NewInfoCmd())
	rootCmd.AddCommand(NewVerifyCmd())
	rootCmd.AddCommand(NewDumpCmd())
	rootCmd.AddCommand(NewPushCmd())

	return rootCmd
}
