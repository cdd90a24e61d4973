package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0x6d61/vkrest/internal/config"
	"github.com/0x6d61/vkrest/internal/logger"
	"github.com/0x6d61/vkrest/internal/rest"
	"github.com/0x6d61/vkrest/internal/session"
	"github.com/0x6d61/vkrest/internal/transport"
	"github.com/0x6d61/vkrest/internal/vk"
)

// Version information (set by build flags)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// app carries the state shared by every command of one invocation.
type app struct {
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger

	store  session.Store
	sdk    *vk.SDK
	client *rest.Client
}

// Execute runs the vkrest command line.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	root, a := newRootCmd()
	defer a.close()
	return root.ExecuteContext(ctx)
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{logger: zap.NewNop()}

	rootCmd := &cobra.Command{
		Use:   "vkrest",
		Short: "vk.com OAuth helper and redirect-following REST client",
		Long: `vkrest - vk.com OAuth helper and redirect-following REST client

Build the authorization URL, exchange the returned code for an access token,
keep the token between runs and call API methods with it. The get command
runs the same redirect-following client against any URL.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "Config file (default ./vkrest.yaml or ~/.vkrest/vkrest.yaml)")

	// App flags
	flags.String("app-id", "", "Application (client) ID")
	flags.String("app-secret", "", "Application secret")
	flags.String("redirect-uri", "", "Redirect URI registered for the application")
	flags.String("api-version", "", "API version sent as v (default 5.131)")

	// Storage flags
	flags.String("store", "", "Token storage: sqlite, bbolt or memory")
	flags.String("store-path", "", "Token storage file")

	// Connection flags
	flags.String("transport", "", "HTTP backend: net or resty")
	flags.Int("max-redirects", rest.DefaultMaxRedirects, "Maximum redirects to follow")
	flags.Duration("timeout", 30*time.Second, "Request timeout")
	flags.Float64("rate-limit", 3, "Maximum requests per second (0 = unlimited)")
	flags.String("proxy", "", "Proxy URL (http://host:port or socks5://host:port)")
	flags.Bool("random-agent", false, "Use random User-Agent")
	flags.BoolP("insecure", "k", false, "Skip TLS certificate verification")

	// Output flags
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("log-format", "", "Log format (console, json)")
	flags.IntP("verbose", "v", 0, "Verbosity level (0-2)")
	flags.StringP("output", "o", "", "Output file path")
	flags.StringP("format", "f", "text", "Output format (text, json)")

	// Endpoint overrides, for mirrors and tests.
	flags.String("authorize-url", "", "Authorization endpoint")
	flags.String("token-url", "", "Token endpoint")
	flags.String("api-url", "", "API method base URL")
	for _, name := range []string{"authorize-url", "token-url", "api-url"} {
		_ = flags.MarkHidden(name)
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newLoginURLCmd(a),
		newLoginCmd(a),
		newTokenCmd(a),
		newWhoamiCmd(a),
		newAPICmd(a),
		newGetCmd(a),
		newLogoutCmd(a),
		newSessionCmd(a),
	)
	return rootCmd, a
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "vkrest %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

// load reads the configuration, applies flag overrides and builds the
// logger. Stores, clients and the SDK are opened on demand.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	return nil
}

// applyFlags copies explicitly set flags over the loaded configuration.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	str := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	str("app-id", &cfg.AppID)
	str("app-secret", &cfg.AppSecret)
	str("redirect-uri", &cfg.RedirectURI)
	str("api-version", &cfg.APIVersion)
	str("store", &cfg.StoreType)
	str("store-path", &cfg.StorePath)
	str("transport", &cfg.Transport)
	str("proxy", &cfg.Proxy)
	str("log-level", &cfg.LogLevel)
	str("log-format", &cfg.LogFormat)
	str("authorize-url", &cfg.AuthorizeURL)
	str("token-url", &cfg.TokenURL)
	str("api-url", &cfg.APIURL)

	if flags.Changed("max-redirects") {
		cfg.MaxRedirects, _ = flags.GetInt("max-redirects")
	}
	if flags.Changed("timeout") {
		cfg.Timeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("rate-limit") {
		cfg.RateLimit, _ = flags.GetFloat64("rate-limit")
	}
	if flags.Changed("random-agent") {
		cfg.RandomAgent, _ = flags.GetBool("random-agent")
	}
	if flags.Changed("insecure") {
		cfg.InsecureSkipVerify, _ = flags.GetBool("insecure")
	}
}

// openStore opens the configured token store once per invocation.
func (a *app) openStore() (session.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	store, err := session.NewStore(a.cfg.StoreType, a.cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open token store: %w", err)
	}
	a.store = store
	return store, nil
}

// newClient builds a redirect-following client over the configured
// transport.
func (a *app) newClient() (*rest.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	t, err := transport.New(a.cfg.Transport, transport.ClientOptions{
		Timeout:            a.cfg.Timeout,
		InsecureSkipVerify: a.cfg.InsecureSkipVerify,
		UserAgent:          a.cfg.UserAgent,
		RandomUserAgent:    a.cfg.RandomAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}
	if a.cfg.Proxy != "" {
		if err := t.SetProxy(a.cfg.Proxy); err != nil {
			t.Close()
			return nil, fmt.Errorf("failed to set proxy: %w", err)
		}
	}
	t.SetRateLimit(a.cfg.RateLimit)
	a.client = rest.New(t,
		rest.WithLogger(a.logger),
		rest.WithMaxRedirects(a.cfg.MaxRedirects),
	)
	return a.client, nil
}

// endpoints resolves the provider URLs, falling back to vk.com.
func (a *app) endpoints() vk.Endpoints {
	e := vk.DefaultEndpoints
	if a.cfg.AuthorizeURL != "" {
		e.AuthorizeURL = a.cfg.AuthorizeURL
	}
	if a.cfg.TokenURL != "" {
		e.TokenURL = a.cfg.TokenURL
	}
	if a.cfg.APIURL != "" {
		e.APIURL = a.cfg.APIURL
	}
	return e
}

// openSDK wires the store and client into an SDK.
func (a *app) openSDK() (*vk.SDK, error) {
	if a.sdk != nil {
		return a.sdk, nil
	}
	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	client, err := a.newClient()
	if err != nil {
		return nil, err
	}
	sdk, err := vk.New(a.cfg.AppID,
		vk.WithSecret(a.cfg.AppSecret),
		vk.WithRedirectURI(a.cfg.RedirectURI),
		vk.WithAPIVersion(a.cfg.APIVersion),
		vk.WithEndpoints(a.endpoints()),
		vk.WithStore(store),
		vk.WithClient(client),
		vk.WithLogger(a.logger),
	)
	if err != nil {
		return nil, err
	}
	a.sdk = sdk
	return sdk, nil
}

func (a *app) requireAppID() error {
	if a.cfg.AppID == "" {
		return errors.New("application ID is required (use --app-id or VKREST_APP_ID)")
	}
	return nil
}

// close releases everything opened during the invocation.
func (a *app) close() {
	if a.client != nil {
		a.client.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	_ = a.logger.Sync()
}

// output returns where results go: the --output file or stdout. The
// returned func closes the file.
func output(cmd *cobra.Command) (io.Writer, func(), error) {
	path, _ := cmd.Flags().GetString("output")
	if path == "" {
		return cmd.OutOrStdout(), func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file %q: %w", path, err)
	}
	return f, func() { f.Close() }, nil
}
