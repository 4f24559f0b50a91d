// Package cli implements the mazerunner admin command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/invisible-tech/mazerunner-sdk/internal/config"
	"github.com/invisible-tech/mazerunner-sdk/pkg/mazerunner"
)

type rootOptions struct {
	host         string
	apiKey       string
	apiSecret    string
	certificate  string
	credentials  string
	envFile      string
	verboseCount int
}

// Execute runs the command line with os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

func init() {
	// PTerm output to Stderr (to keep Stdout clean for piping)
	pterm.SetDefaultOutput(os.Stderr)
	pterm.Success.Writer = os.Stderr
	pterm.Info.Writer = os.Stderr
	pterm.Error.Writer = os.Stderr
	pterm.Warning.Writer = os.Stderr
	pterm.DefaultHeader.Writer = os.Stderr
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "mazerunner",
		Short:         "Administer a MazeRunner deception server",
		Long:          `mazerunner talks to the MazeRunner management server API to inspect and manage decoys, breadcrumbs, endpoints and alerts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.host, "host", "", "MazeRunner management server address (env MAZERUNNER_HOST)")
	flags.StringVar(&opts.apiKey, "api-key", "", "API key id (env MAZERUNNER_API_KEY)")
	flags.StringVar(&opts.apiSecret, "api-secret", "", "API key secret (env MAZERUNNER_API_SECRET)")
	flags.StringVar(&opts.certificate, "certificate", "", "server certificate to pin (env MAZERUNNER_CERTIFICATE)")
	flags.StringVar(&opts.credentials, "credentials", "", "YAML or JSON credentials file")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load")
	flags.CountVarP(&opts.verboseCount, "verbose", "v", "Increase verbosity level (-v, -vv, -vvv)")

	root.AddCommand(
		newListCommand(opts),
		newGetCommand(opts),
		newParamsCommand(opts),
		newDeleteEverythingCommand(opts),
		newTasksCommand(opts),
		newCIDRCommand(opts),
		newAlertsCommand(opts),
		newSOCCommand(opts),
		newVersionCommand(),
	)
	return root
}

func (o *rootOptions) logger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	switch {
	case o.verboseCount >= 3:
		log.SetLevel(logrus.TraceLevel)
	case o.verboseCount == 2:
		log.SetLevel(logrus.DebugLevel)
	case o.verboseCount == 1:
		log.SetLevel(logrus.InfoLevel)
	default:
		log.SetLevel(logrus.WarnLevel)
	}
	return log
}

// connection resolves settings: flags over the credentials file over the
// environment, which the dotenv file fills in.
func (o *rootOptions) connection() (mazerunner.Config, error) {
	if err := config.LoadDotEnv(o.envFile); err != nil {
		return mazerunner.Config{}, err
	}
	cfg := config.ConnectionFromEnv()
	if o.credentials != "" {
		var err error
		if cfg, err = config.LoadCredentialsFile(o.credentials, cfg); err != nil {
			return cfg, err
		}
	}
	if o.host != "" {
		cfg.Host = o.host
	}
	if o.apiKey != "" {
		cfg.APIKey = o.apiKey
	}
	if o.apiSecret != "" {
		cfg.APISecret = o.apiSecret
	}
	if o.certificate != "" {
		cfg.Certificate = o.certificate
	}
	return cfg, nil
}

// withClient connects and runs fn, closing the client afterwards.
func (o *rootOptions) withClient(cmd *cobra.Command, fn func(ctx context.Context, c *mazerunner.Client) error) error {
	cfg, err := o.connection()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := mazerunner.NewClient(ctx, cfg, o.logger())
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer c.Close()
	return fn(ctx, c)
}
