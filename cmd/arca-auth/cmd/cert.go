package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/arca-auth/internal/signature"
)

var certCmd = &cobra.Command{
	Use:   "cert [certificate.pem]",
	Short: "Show the certificate used to sign ticket requests",
	Long: `Print subject, issuer and validity of a tenant certificate. Without an
argument the configured certificate file is used. With --key the key is
checked against the certificate by signing a probe document.

Examples:
  arca-auth cert cert.pem
  arca-auth cert --cert cert.pem --key key.pem`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCert,
}

func init() {
	rootCmd.AddCommand(certCmd)
}

// CertOutput is the printed form of a certificate
type CertOutput struct {
	*signature.SignerInfo
	ValidNow bool   `json:"valid_now"`
	KeyCheck string `json:"key_check,omitempty"`
}

func runCert(cmd *cobra.Command, args []string) error {
	path := cfg.Credentials.CertFile
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		return errors.New("no certificate given (argument, --cert or credentials.cert_file)")
	}

	certPEM, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read certificate: %w", err)
	}

	info, err := signature.Describe(certPEM)
	if err != nil {
		return err
	}

	out := CertOutput{SignerInfo: info, ValidNow: info.ValidAt(time.Now())}
	if cfg.Credentials.KeyFile != "" {
		out.KeyCheck = checkKey(certPEM, cfg.Credentials.KeyFile)
	}

	switch outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	default:
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "Subject:\t%s\n", info.Name)
		fmt.Fprintf(tw, "Organization:\t%s\n", info.Organization)
		fmt.Fprintf(tw, "Subject serial:\t%s\n", info.SubjectSerial)
		fmt.Fprintf(tw, "Issuer:\t%s\n", info.Issuer)
		fmt.Fprintf(tw, "Serial:\t%s\n", info.SerialNumber)
		fmt.Fprintf(tw, "Valid:\t%s to %s\n", info.ValidFrom.Format(time.RFC3339), info.ValidTo.Format(time.RFC3339))
		fmt.Fprintf(tw, "Valid now:\t%t\n", out.ValidNow)
		if out.KeyCheck != "" {
			fmt.Fprintf(tw, "Key:\t%s\n", out.KeyCheck)
		}
		return tw.Flush()
	}
}

func checkKey(certPEM []byte, keyFile string) string {
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return fmt.Sprintf("unreadable (%v)", err)
	}
	signer := signature.NewCMSSigner(signature.WithSignerLogger(logger))
	if _, err := signer.Sign(certPEM, keyPEM, "<probe/>"); err != nil {
		return fmt.Sprintf("unusable (%v)", err)
	}
	return "matches certificate"
}
