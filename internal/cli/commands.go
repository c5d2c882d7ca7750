package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	xerrors "SeiFlow/internal/errors"
	"SeiFlow/internal/knowledge"
	"SeiFlow/internal/llm"
	"SeiFlow/internal/parser"
	"SeiFlow/internal/sei"
)

// usageArgs marks argument count errors as invalid input.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "invalid arguments")
		}
		return nil
	}
}

// groupCommand prints help when called bare and rejects unknown subcommands.
func groupCommand(use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return xerrors.New(xerrors.CodeInvalidArgument,
				fmt.Sprintf("unknown command %q for %q", args[0], cmd.CommandPath()))
		},
	}
}

func parserProvider(raw string) llm.Provider {
	return llm.Provider(strings.ToLower(strings.TrimSpace(raw)))
}

func (s *state) newParseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <request...>",
		Short: "Parse a natural-language request into an intent and execution plan",
		Args:  usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := s.cfg.Chains.Registry()
			if err != nil {
				return err
			}
			opts := []parser.Option{parser.WithRegistry(registry)}
			if s.cfg.Knowledge.Source != "" {
				kp, err := knowledge.LoadStaticProvider(s.cfg.Knowledge.Source, s.cfg.Knowledge.MaxResults)
				if err != nil {
					return err
				}
				opts = append(opts, parser.WithKnowledgeProvider(kp))
			}
			p, err := parser.New(s.cfg.LLM.ParserConfig(), opts...)
			if err != nil {
				return err
			}
			result, err := p.Parse(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			return s.render(result)
		},
	}
}

func (s *state) newChainsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chains",
		Short: "List known chains",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(_ *cobra.Command, _ []string) error {
			registry, err := s.cfg.Chains.Registry()
			if err != nil {
				return err
			}
			return s.render(registry.Chains())
		},
	}
}

func (s *state) newSeiCommand() *cobra.Command {
	root := groupCommand("sei", "Query the Sei network through RPC or the Sei MCP server")

	root.AddCommand(&cobra.Command{
		Use:   "chain-info",
		Short: "Show chain id, latest block and RPC endpoint",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.withSei(cmd.Context(), func(c SeiClient) (any, error) { return c.GetChainInfo(cmd.Context()) })
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "balance <address>",
		Short: "Show the native SEI balance in wei",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withSei(cmd.Context(), func(c SeiClient) (any, error) { return c.GetBalance(cmd.Context(), args[0]) })
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "token <token-address>",
		Short: "Show ERC-20 token metadata",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withSei(cmd.Context(), func(c SeiClient) (any, error) { return c.GetTokenInfo(cmd.Context(), args[0]) })
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "token-balance <token-address> <owner>",
		Short: "Show an ERC-20 balance",
		Args:  usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withSei(cmd.Context(), func(c SeiClient) (any, error) {
				return c.GetTokenBalance(cmd.Context(), args[0], args[1])
			})
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "tx <hash>",
		Short: "Show a transaction and its receipt",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withSei(cmd.Context(), func(c SeiClient) (any, error) { return c.GetTransaction(cmd.Context(), args[0]) })
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "is-contract <address>",
		Short: "Report whether an address holds contract code",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withSei(cmd.Context(), func(c SeiClient) (any, error) {
				ok, err := c.IsContract(cmd.Context(), args[0])
				if err != nil {
					return nil, err
				}
				return contractReport{Address: args[0], IsContract: ok}, nil
			})
		},
	})
	root.AddCommand(s.newTransferCommand())
	root.AddCommand(&cobra.Command{
		Use:   "approve <token-address> <spender> <amount>",
		Short: "Forward an ERC-20 approval to the Sei MCP server",
		Long:  "The MCP server signs and broadcasts the approval. SEI_PRIVATE_KEY must be set. An amount of 0 revokes.",
		Args:  usageArgs(cobra.ExactArgs(3)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withSei(cmd.Context(), func(c SeiClient) (any, error) {
				return c.ApproveToken(cmd.Context(), args[0], args[1], args[2])
			})
		},
	})
	return root
}

type contractReport struct {
	Address    string `json:"address"`
	IsContract bool   `json:"isContract"`
}

func (s *state) newTransferCommand() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "transfer <to> <amount>",
		Short: "Forward a SEI or ERC-20 transfer to the Sei MCP server",
		Long:  "The MCP server signs and broadcasts the transfer. SEI_PRIVATE_KEY must be set.",
		Args:  usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withSei(cmd.Context(), func(c SeiClient) (any, error) {
				if token != "" {
					return c.TransferToken(cmd.Context(), token, args[0], args[1])
				}
				return c.TransferSei(cmd.Context(), args[0], args[1])
			})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "ERC-20 token address; native SEI when empty")
	return cmd
}

type healthReport struct {
	Network string `json:"network"`
	MCP     bool   `json:"mcp"`
}

func (s *state) newHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the Sei MCP server answers",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := s.seiClient(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()
			report := healthReport{Network: s.cfg.Sei.Network, MCP: client.HealthCheck(cmd.Context())}
			if err := s.render(report); err != nil {
				return err
			}
			if !report.MCP {
				return xerrors.New(xerrors.CodeInitializationFailure, "Sei MCP server is not reachable")
			}
			return nil
		},
	}
}

func (s *state) newUnitsCommand() *cobra.Command {
	root := groupCommand("units", "Convert between decimal amounts and base units")
	var decimals int

	toWei := &cobra.Command{
		Use:   "to-wei <amount>",
		Short: "Convert a decimal amount to base units",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(_ *cobra.Command, args []string) error {
			out, err := sei.FormatToWei(args[0], decimals)
			if err != nil {
				return err
			}
			return s.render(out)
		},
	}
	fromWei := &cobra.Command{
		Use:   "from-wei <wei>",
		Short: "Convert base units to a decimal amount",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(_ *cobra.Command, args []string) error {
			out, err := sei.FormatFromWei(args[0], decimals)
			if err != nil {
				return err
			}
			return s.render(out)
		},
	}
	root.PersistentFlags().IntVar(&decimals, "decimals", 18, "Token decimals")
	root.AddCommand(toWei, fromWei)
	return root
}
