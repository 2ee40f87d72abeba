package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/imovelprime/primegate/pki"
	"github.com/imovelprime/primegate/storage/files"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Create the local CA and the server certificate",
	Long: `Runs the certificate pipeline: CA key, self-signed CA certificate, server
key, certificate signing request, and server certificate signed by the CA.
Each artifact is written to the artifact directory (default ./certs) as soon
as it exists. Existing artifacts are replaced.`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	bootstrapCfg, err := cfg.BootstrapConfig()
	if err != nil {
		return err
	}
	ledger, closeLedger, err := openLedger(cfg.Artifacts.LedgerPath)
	if err != nil {
		return err
	}
	defer closeLedger()

	store := files.New(cfg.Artifacts.Dir)
	authority := pki.NewAuthority(pki.WithLedger(ledger), pki.WithLogger(logger))
	res, err := pki.Bootstrap(cmd.Context(), store, bootstrapCfg,
		pki.WithAuthority(authority),
		pki.WithBootstrapLogger(logger),
	)
	if err != nil {
		return err
	}

	printGenerateSummary(cmd.OutOrStdout(), store, res)
	return nil
}

func printGenerateSummary(w io.Writer, store *files.Store, res *pki.BootstrapResult) {
	fmt.Fprintf(w, "Certificates generated in %s (run %s)\n\n", store.Dir(), res.RunID)
	for _, name := range pki.ArtifactNames() {
		fmt.Fprintf(w, "  %s\n", store.Path(name))
	}
	fmt.Fprintf(w, "\nCA serial:     %s\n", res.CACert.Cert.SerialNumber.Text(16))
	fmt.Fprintf(w, "Server serial: %s\n", res.LeafCert.Cert.SerialNumber.Text(16))
	fmt.Fprintf(w, "Valid until:   %s\n", res.LeafCert.Cert.NotAfter.UTC().Format("2006-01-02"))
	fmt.Fprintf(w, `
To avoid browser warnings, import %s as a trusted root:
  - Windows: certmgr.msc > Trusted Root Certification Authorities > Import
  - macOS:   open the file in Keychain Access and set "Always Trust"
  - Linux:   copy it to /usr/local/share/ca-certificates/ and run update-ca-certificates
`, store.Path(pki.ArtifactCACert))
}
