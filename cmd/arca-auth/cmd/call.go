package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rezonia/arca-auth/internal/model"
)

var dryRun bool

var callCmd = &cobra.Command{
	Use:   "call <payload.xml|->",
	Short: "Send an authenticated WSFEv1 request",
	Long: `Wrap a WSFEv1 operation payload with a cached or freshly issued ticket and
send it. The payload is the XML that goes inside the operation element after
<ar:Auth>, e.g. <ar:FeCAEReq>...</ar:FeCAEReq> for FECAESolicitar.

Examples:
  arca-auth call request.xml --tenant 20123456789 --cert cert.pem --key key.pem
  cat request.xml | arca-auth call - -f json
  arca-auth call request.xml --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runCall,
}

func init() {
	rootCmd.AddCommand(callCmd)

	callCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the envelope without sending it")
}

func runCall(cmd *cobra.Command, args []string) error {
	if cfg.TenantID <= 0 {
		return errors.New("a tenant is required (--tenant or tenant_id)")
	}

	payload, err := readPayload(args[0])
	if err != nil {
		return err
	}

	if err := cfg.ValidateCredentials(); err != nil {
		return err
	}

	comps, err := buildComponents(cfg, nil)
	if err != nil {
		return err
	}
	client := comps.wsfeClient(cfg)

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.WSAA.Timeout+cfg.WSFE.Timeout)
	defer cancel()

	id := model.ServiceIdentity{TenantID: cfg.TenantID, Service: model.ServiceWSFE}

	if dryRun {
		req, err := client.PrepareRequest(ctx, id, payload, comps.source)
		if err != nil {
			return describeError(err)
		}
		fmt.Println(req.Envelope)
		return nil
	}

	result, err := client.CallAuthenticated(ctx, id, payload, comps.source)
	if err != nil {
		var fault *model.RemoteFault
		if errors.As(err, &fault) {
			return fmt.Errorf("rejected by ARCA [%s]: %s", fault.Code, fault.Message)
		}
		return describeError(err)
	}

	switch outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	default:
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "Authorization:\t%s\n", result.AuthorizationCode)
		fmt.Fprintf(tw, "Expires:\t%s\n", result.Expiration.Format("2006-01-02"))
		if result.ExpirationAssumed {
			fmt.Fprintf(tw, "\t(expiration assumed, the service returned an unreadable date)\n")
		}
		for _, obs := range result.Observations {
			fmt.Fprintf(tw, "Observation:\t%s\t%s\n", obs.Code, obs.Message)
		}
		return tw.Flush()
	}
}

func readPayload(arg string) (string, error) {
	if arg == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(arg)
	if err != nil {
		return "", fmt.Errorf("failed to read payload: %w", err)
	}
	return string(data), nil
}
