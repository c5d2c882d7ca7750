// Package cli implements the seiflow command line: intent parsing, chain
// listing, Sei network reads and forwarded transfers, and unit conversion.
package cli

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"SeiFlow/internal/config"
	xerrors "SeiFlow/internal/errors"
	"SeiFlow/internal/mcp"
	"SeiFlow/internal/parser"
	"SeiFlow/internal/sei"
	"SeiFlow/pkg/logger"
)

// Exit codes returned by Run.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitUsage       = 2
	ExitForbidden   = 3
	ExitUnavailable = 4
)

// SeiClient is the part of *sei.Session the CLI uses.
type SeiClient interface {
	GetChainInfo(ctx context.Context) (*sei.ChainInfo, error)
	GetBalance(ctx context.Context, address string) (string, error)
	GetTokenInfo(ctx context.Context, token string) (*sei.TokenInfo, error)
	GetTokenBalance(ctx context.Context, token, owner string) (*sei.TokenBalance, error)
	GetTransaction(ctx context.Context, hash string) (*sei.TransactionResult, error)
	TransferSei(ctx context.Context, to, amount string) (*sei.TransactionResult, error)
	TransferToken(ctx context.Context, token, to, amount string) (*sei.TransactionResult, error)
	ApproveToken(ctx context.Context, token, spender, amount string) (*sei.TransactionResult, error)
	IsContract(ctx context.Context, address string) (bool, error)
	HealthCheck(ctx context.Context) bool
	Close() error
}

// SeiFactory builds the Sei client for a command.
type SeiFactory func(ctx context.Context, cfg sei.Config) (SeiClient, error)

// defaultSeiFactory returns a connected session.
func defaultSeiFactory(ctx context.Context, cfg sei.Config) (SeiClient, error) {
	session := sei.NewSession(cfg, nil)
	if err := session.Connect(ctx); err != nil {
		return nil, err
	}
	return session, nil
}

// Runner executes CLI invocations against the given writers.
type Runner struct {
	stdout     io.Writer
	stderr     io.Writer
	newSei     SeiFactory
	cmdTimeout time.Duration
}

// NewRunner writes to the process stdout and stderr.
func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

// NewRunnerWithWriters writes to the given writers.
func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout:     stdout,
		stderr:     stderr,
		newSei:     defaultSeiFactory,
		cmdTimeout: time.Minute,
	}
}

// WithSeiFactory replaces how Sei clients are built.
func (r *Runner) WithSeiFactory(f SeiFactory) *Runner {
	r.newSei = f
	return r
}

// globalFlags are shared by every command.
type globalFlags struct {
	ConfigPath string
	Network    string
	RPCURL     string
	MCPURL     string
	Provider   string
	Plain      bool
	LogLevel   string
}

func (f *globalFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.ConfigPath, "config", "", "Path to config file (default $SEIFLOW_CONFIG or configs/seiflow.json)")
	fs.StringVar(&f.Network, "network", "", "Sei network: sei, sei-testnet or sei-devnet")
	fs.StringVar(&f.RPCURL, "rpc-url", "", "EVM RPC endpoint used for reads")
	fs.StringVar(&f.MCPURL, "mcp-url", "", "Sei MCP server URL")
	fs.StringVar(&f.Provider, "provider", "", "AI provider: groq, openai, anthropic or mock")
	fs.BoolVar(&f.Plain, "plain", false, "Print scalar results without JSON")
	fs.StringVar(&f.LogLevel, "log-level", "warn", "Log level written to stderr")
}

type state struct {
	runner *Runner
	flags  globalFlags
	cfg    *config.Config
}

// Run executes args and returns the process exit code.
func (r *Runner) Run(args []string) int {
	s := &state{runner: r}
	root := s.newRootCommand()
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	ctx, cancel := context.WithTimeout(context.Background(), r.cmdTimeout)
	defer cancel()
	err := root.ExecuteContext(ctx)
	defer func() { _ = logger.Sync() }()
	if err == nil {
		return ExitOK
	}
	s.renderError(err)
	return exitCode(err)
}

func (s *state) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seiflow",
		Short: "Parse cross-chain intents and query the Sei network",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			path := s.flags.ConfigPath
			if path == "" {
				path = config.Path()
			}
			cfg, err := config.LoadOptional(path)
			if err != nil {
				return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "load configuration")
			}
			s.applyFlags(cfg)
			s.cfg = cfg
			// stdout carries command output, so logs go to stderr.
			return logger.Init(logger.Config{
				Level:       s.flags.LogLevel,
				Format:      "text",
				OutputPaths: []string{"stderr"},
			})
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "parse flags")
	})
	s.flags.register(cmd.PersistentFlags())

	cmd.AddCommand(s.newParseCommand())
	cmd.AddCommand(s.newChainsCommand())
	cmd.AddCommand(s.newSeiCommand())
	cmd.AddCommand(s.newHealthCommand())
	cmd.AddCommand(s.newUnitsCommand())
	return cmd
}

func (s *state) applyFlags(cfg *config.Config) {
	if s.flags.Network != "" {
		cfg.Sei.Network = s.flags.Network
	}
	if s.flags.RPCURL != "" {
		cfg.Sei.RPCURL = s.flags.RPCURL
	}
	if s.flags.MCPURL != "" {
		cfg.Sei.MCP.ServerURL = s.flags.MCPURL
	}
	if s.flags.Provider != "" {
		cfg.LLM.Provider = s.flags.Provider
		cfg.LLM.APIKeyEnv = parser.APIKeyEnv(parserProvider(s.flags.Provider))
	}
}

func (s *state) seiClient(ctx context.Context) (SeiClient, error) {
	cfg, err := s.cfg.Sei.ServiceConfig()
	if err != nil {
		return nil, err
	}
	return s.runner.newSei(ctx, cfg)
}

// withSei opens a Sei client for the duration of fn.
func (s *state) withSei(ctx context.Context, fn func(SeiClient) (any, error)) error {
	client, err := s.seiClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	out, err := fn(client)
	if err != nil {
		return err
	}
	return s.render(out)
}

func (s *state) render(v any) error {
	if str, ok := v.(string); ok && s.flags.Plain {
		_, err := io.WriteString(s.runner.stdout, str+"\n")
		return err
	}
	enc := json.NewEncoder(s.runner.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *state) renderError(err error) {
	var env errorEnvelope
	env.Error.Code = string(xerrors.CodeOf(err))
	env.Error.Message = err.Error()
	enc := json.NewEncoder(s.runner.stderr)
	enc.SetIndent("", "  ")
	_ = enc.Encode(env)
}

func exitCode(err error) int {
	switch xerrors.CodeOf(err) {
	case xerrors.CodeInvalidArgument:
		return ExitUsage
	case mcp.CodePrivateKeyRequired:
		return ExitForbidden
	case mcp.CodeUnavailable, xerrors.CodeInitializationFailure, xerrors.CodeTimeout, parser.CodeLLMUnavailable:
		return ExitUnavailable
	}
	if strings.Contains(err.Error(), "unknown command") {
		return ExitUsage
	}
	return ExitFailure
}
