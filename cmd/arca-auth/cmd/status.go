package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/arca-auth/internal/health"
	"github.com/rezonia/arca-auth/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status [services...]",
	Short: "Check whether ARCA services are up",
	Long: `Call the dummy operation of each service and report the state of its
application, database and authentication servers. No ticket is needed.

Services: wsfe, wsfex, wsmtxca (default: all)

Examples:
  arca-auth status
  arca-auth status wsfe --env production
  arca-auth status wsmtxca -f json`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		args = []string{"wsfe", "wsfex", "wsmtxca"}
	}

	probes := make([]health.Probe, 0, len(args))
	for _, arg := range args {
		service, err := model.ParseService(arg)
		if err != nil {
			return err
		}
		probe, err := health.ForService(service, cfg.Env())
		if err != nil {
			return err
		}
		probe.Timeout = cfg.Health.Timeout
		probes = append(probes, probe)
	}

	prober := health.NewProber(health.WithLogger(logger))

	results := make([]health.Status, len(probes))
	var wg sync.WaitGroup
	for i, probe := range probes {
		wg.Add(1)
		go func(i int, probe health.Probe) {
			defer wg.Done()
			printVerbose("Probing %s at %s\n", probe.Name, probe.URL)
			results[i] = prober.Check(cmd.Context(), probe)
		}(i, probe)
	}
	wg.Wait()

	switch outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	default:
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SERVICE\tHTTP\tAPP\tDB\tAUTH\tTIME\tRESULT")
		for _, s := range results {
			result := "OK"
			if !s.Healthy() {
				result = string(s.Bucket)
				if s.Bucket == health.BucketResponded {
					result = "DEGRADED"
				}
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
				s.Probe, s.HTTPStatus, mark(s.AppServerOK), mark(s.DBServerOK), mark(s.AuthServerOK), s.Elapsed.Round(time.Millisecond), result)
		}
		return tw.Flush()
	}
}

func mark(ok bool) string {
	if ok {
		return "ok"
	}
	return "-"
}
