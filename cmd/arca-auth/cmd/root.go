package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rezonia/arca-auth/internal/config"
	"github.com/rezonia/arca-auth/internal/logging"
)

var (
	version = "1.0.0"

	// Global flags
	cfgFile      string
	environment  string
	tenantID     int64
	certFile     string
	keyFile      string
	logLevel     string
	verbose      bool
	outputFormat string

	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "arca-auth",
	Short: "Obtain and use ARCA (AFIP) authentication tickets",
	Long: `arca-auth manages WSAA authentication tickets for the ARCA fiscal web services.

Supports:
  - Requesting tickets from WSAA with a tenant certificate
  - Authenticated WSFEv1 calls with cached tickets
  - Health checks of WSFEv1, WSFEXv1 and WSMTXCA
  - An HTTP API exposing ticket status and metrics

Examples:
  # Request a WSFEv1 ticket in homologation
  arca-auth ticket wsfe --tenant 20123456789 --cert cert.pem --key key.pem

  # Check whether the services are up
  arca-auth status

  # Start the API server with a config file
  arca-auth serve --config arca-auth.yaml`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ./arca-auth.yaml)")
	rootCmd.PersistentFlags().StringVarP(&environment, "env", "e", "", "Environment: testing or production (env: ARCA_AUTH_ENVIRONMENT)")
	rootCmd.PersistentFlags().Int64Var(&tenantID, "tenant", 0, "Tenant CUIT (env: ARCA_AUTH_TENANT_ID)")
	rootCmd.PersistentFlags().StringVar(&certFile, "cert", "", "Certificate PEM file (env: ARCA_AUTH_CREDENTIALS_CERT_FILE)")
	rootCmd.PersistentFlags().StringVar(&keyFile, "key", "", "Private key PEM file (env: ARCA_AUTH_CREDENTIALS_KEY_FILE)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "table", "Output format (json, table)")
}

// initConfig loads the configuration and lets flags override it
func initConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("env") {
		loaded.Environment = environment
	}
	if flags.Changed("tenant") {
		loaded.TenantID = tenantID
	}
	if flags.Changed("cert") {
		loaded.Credentials.Source = config.SourceFile
		loaded.Credentials.CertFile = certFile
	}
	if flags.Changed("key") {
		loaded.Credentials.Source = config.SourceFile
		loaded.Credentials.KeyFile = keyFile
	}
	if flags.Changed("log-level") {
		loaded.Log.Level = logLevel
	} else if verbose {
		loaded.Log.Level = "debug"
	}

	if err := loaded.Validate(); err != nil {
		return err
	}

	cfg = loaded
	logger = logging.New(cfg.Log.Level, cfg.Log.Format)
	return nil
}

func printVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}
