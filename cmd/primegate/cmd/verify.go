package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/imovelprime/primegate/pki"
	"github.com/imovelprime/primegate/storage"
)

type verifyResult struct {
	Dir         string            `json:"dir"`
	AuthorityID string            `json:"authority_id"`
	CA          map[string]string `json:"ca"`
	Leaf        map[string]string `json:"leaf"`
	CSRSubject  string            `json:"csr_subject"`
	Ledger      []checkResult     `json:"ledger,omitempty"`
}

type checkResult struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "pass", "warn"
	Detail string `json:"detail,omitempty"`
}

var verifyJSONOutput bool

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that the generated artifacts form one consistent trust chain",
	Long: `Loads the five artifacts and checks that the CA is self-signed with CA=true,
that each private key matches its certificate, that the server certificate
chains to the CA, and that the CSR is validly signed for the server key.
When an issuance ledger is configured, both serial numbers are looked up in it.`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().BoolVar(&verifyJSONOutput, "json", false, "Output results as JSON")
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	report, err := pki.VerifyArtifacts(cfg.Artifacts.Dir)
	if err != nil {
		return err
	}
	result := verifyResult{
		Dir:         cfg.Artifacts.Dir,
		AuthorityID: report.AuthorityID,
		CA:          report.CA,
		Leaf:        report.Leaf,
		CSRSubject:  report.CSRSubject,
	}

	if path := cfg.Artifacts.LedgerPath; path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			ledger, closeLedger, err := openLedger(path)
			if err != nil {
				return err
			}
			defer closeLedger()
			result.Ledger = checkLedger(ledger, report)
		}
	}

	if verifyJSONOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	printHumanResult(cmd.OutOrStdout(), result)
	return nil
}

// checkLedger looks both serials up. A missing record is a warning: the
// artifacts may have been generated with the ledger disabled.
func checkLedger(ledger storage.Ledger, report *pki.Report) []checkResult {
	var checks []checkResult
	for _, c := range []struct {
		name   string
		fields map[string]string
	}{
		{"ca_serial_recorded", report.CA},
		{"leaf_serial_recorded", report.Leaf},
	} {
		serial := c.fields[pki.FieldSerialNumber]
		rec, err := ledger.Get(report.AuthorityID, serial)
		switch {
		case err == nil:
			checks = append(checks, checkResult{
				Name: c.name, Status: "pass",
				Detail: fmt.Sprintf("%s issued %s (run %s)", rec.Kind, rec.IssuedAt.UTC().Format("2006-01-02T15:04:05Z"), rec.RunID),
			})
		case errors.Is(err, storage.ErrNotFound):
			checks = append(checks, checkResult{Name: c.name, Status: "warn", Detail: "serial " + serial + " not in ledger"})
		default:
			checks = append(checks, checkResult{Name: c.name, Status: "warn", Detail: err.Error()})
		}
	}
	return checks
}

func printHumanResult(w io.Writer, result verifyResult) {
	fmt.Fprintf(w, "Artifacts: %s\n", result.Dir)
	printFields(w, "CA certificate", result.CA)
	printFields(w, "Server certificate", result.Leaf)
	fmt.Fprintf(w, "\nCSR subject: %s\n", result.CSRSubject)
	if len(result.Ledger) > 0 {
		fmt.Fprintln(w, "\nIssuance ledger:")
		for _, c := range result.Ledger {
			fmt.Fprintf(w, "  [%s] %s", strings.ToUpper(c.Status), c.Name)
			if c.Detail != "" {
				fmt.Fprintf(w, ": %s", c.Detail)
			}
			fmt.Fprintln(w)
		}
	}
	fmt.Fprintln(w, "\nResult: VALID")
}

func printFields(w io.Writer, title string, fields map[string]string) {
	fmt.Fprintf(w, "\n%s:\n", title)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if fields[k] == "" {
			continue
		}
		fmt.Fprintf(w, "  %-20s %s\n", k, fields[k])
	}
}
