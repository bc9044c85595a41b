package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/arca-auth/internal/model"
	"github.com/rezonia/arca-auth/internal/wsfe"
)

var printAuthBlock bool

var ticketCmd = &cobra.Command{
	Use:   "ticket <service>",
	Short: "Request an authentication ticket from WSAA",
	Long: `Sign a ticket request with the tenant certificate and exchange it at WSAA.

WSAA refuses a new ticket while a recent one for the same service is still
valid; in that case the command fails with a "too soon" error and the
previous ticket has to be reused.

Examples:
  arca-auth ticket wsfe --tenant 20123456789 --cert cert.pem --key key.pem
  arca-auth ticket wsmtxca -f json
  arca-auth ticket wsfe --auth-block`,
	Args: cobra.ExactArgs(1),
	RunE: runTicket,
}

func init() {
	rootCmd.AddCommand(ticketCmd)

	ticketCmd.Flags().BoolVar(&printAuthBlock, "auth-block", false, "Print the WSFEv1 <ar:Auth> block instead of the ticket")
}

// TicketOutput is the printed form of a ticket
type TicketOutput struct {
	TenantID   int64     `json:"tenant_id"`
	Service    string    `json:"service"`
	Token      string    `json:"token"`
	Sign       string    `json:"sign"`
	Expiration time.Time `json:"expiration"`
}

func runTicket(cmd *cobra.Command, args []string) error {
	service, err := model.ParseService(args[0])
	if err != nil {
		return err
	}
	if cfg.TenantID <= 0 {
		return errors.New("a tenant is required (--tenant or tenant_id)")
	}

	if err := cfg.ValidateCredentials(); err != nil {
		return err
	}

	comps, err := buildComponents(cfg, nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*cfg.WSAA.Timeout)
	defer cancel()

	id := model.ServiceIdentity{TenantID: cfg.TenantID, Service: service}
	printVerbose("Requesting %s ticket at %s\n", id, comps.wsaa.Endpoint())

	if printAuthBlock {
		block, err := comps.tickets.GetOrRenew(ctx, id, comps.source, wsfe.AuthBlock)
		if err != nil {
			return describeError(err)
		}
		fmt.Println(block)
		return nil
	}

	var out TicketOutput
	_, err = comps.tickets.GetOrRenew(ctx, id, comps.source, func(tenant int64, token, sign string) string {
		out = TicketOutput{TenantID: tenant, Service: service.String(), Token: token, Sign: sign}
		return ""
	})
	if err != nil {
		return describeError(err)
	}
	if ticket, ok := comps.tickets.Peek(id); ok {
		out.Expiration = ticket.Expiration
	}

	switch outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	default:
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "Tenant:\t%d\n", out.TenantID)
		fmt.Fprintf(tw, "Service:\t%s\n", out.Service)
		fmt.Fprintf(tw, "Expires:\t%s\n", out.Expiration.Format(time.RFC3339))
		fmt.Fprintf(tw, "Token:\t%s\n", out.Token)
		fmt.Fprintf(tw, "Sign:\t%s\n", out.Sign)
		return tw.Flush()
	}
}

// describeError adds a hint for the failures users can act on
func describeError(err error) error {
	var tooSoon *model.TooSoonError
	switch {
	case errors.As(err, &tooSoon):
		return fmt.Errorf("%w (%s)", err, tooSoon.Hint)
	case model.IsFatal(err):
		return fmt.Errorf("%w (check the certificate, key and credential source)", err)
	default:
		return err
	}
}
