package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/mbd888/riskmesh/internal/units"
	"github.com/mbd888/riskmesh/internal/validation"
)

type globalOpts struct {
	apiURL  string
	apiKey  string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &globalOpts{}
	root := &cobra.Command{
		Use:           "riskctl",
		Short:         "Operate a riskmesh risk scoring service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.apiURL, "api-url", envOr("RISKMESH_API_URL", "http://localhost:8080"), "riskmesh API base URL")
	root.PersistentFlags().StringVar(&opts.apiKey, "api-key", os.Getenv("RISKMESH_API_KEY"), "API key (sk_...) for mutating commands")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 15*time.Second, "request timeout")

	client := func() *apiClient { return newAPIClient(opts.apiURL, opts.apiKey, opts.timeout) }

	root.AddCommand(
		newAssessCmd(client),
		newHistoryCmd(client),
		newTrendCmd(client),
		newThresholdCmd(client),
		newOracleCmd(client),
		newModelCmd(client),
		newResultCmd(client),
		newRewardCmd(client),
	)
	return root
}

type clientFunc func() *apiClient

// printJSON pretty-prints an API response.
func printJSON(cmd *cobra.Command, raw json.RawMessage) error {
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		_, err = cmd.OutOrStdout().Write(raw)
		return err
	}
	out.WriteByte('\n')
	_, err := out.WriteTo(cmd.OutOrStdout())
	return err
}

func run(cmd *cobra.Command, call func(ctx context.Context) (json.RawMessage, error)) error {
	raw, err := call(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(cmd, raw)
}

func newAssessCmd(client clientFunc) *cobra.Command {
	var (
		volatility, liquidity, marketCap, regulatory, aiConfidence uint64
		lastUpdated                                                 string
		sources                                                     []string
	)
	cmd := &cobra.Command{
		Use:   "assess <assetId>",
		Short: "Submit a risk assessment for an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			at := time.Now().UTC()
			if lastUpdated != "" {
				t, err := time.Parse(time.RFC3339, lastUpdated)
				if err != nil {
					return fmt.Errorf("--last-updated: %w", err)
				}
				at = t
			}
			body := map[string]any{
				"assetId": args[0],
				"parameters": map[string]any{
					"volatilityScore":   volatility,
					"liquidityScore":    liquidity,
					"marketCapScore":    marketCap,
					"regulatoryScore":   regulatory,
					"aiConfidenceScore": aiConfidence,
					"lastUpdated":       at,
					"isActive":          true,
				},
			}
			if len(sources) > 0 {
				body["sources"] = sources
			}
			return run(cmd, func(ctx context.Context) (json.RawMessage, error) {
				return client().post(ctx, "/v1/risk/assess", body)
			})
		},
	}
	f := cmd.Flags()
	f.Uint64Var(&volatility, "volatility", 0, "volatility score in bps (0-10000)")
	f.Uint64Var(&liquidity, "liquidity", 0, "liquidity score in bps")
	f.Uint64Var(&marketCap, "market-cap", 0, "market cap score in bps")
	f.Uint64Var(&regulatory, "regulatory", 0, "regulatory score in bps")
	f.Uint64Var(&aiConfidence, "ai-confidence", 0, "AI confidence score in bps")
	f.StringVar(&lastUpdated, "last-updated", "", "RFC3339 time the inputs were observed (default now)")
	f.StringSliceVar(&sources, "source", nil, "contributing oracle source (repeatable)")
	return cmd
}

func newHistoryCmd(client clientFunc) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <assetId>",
		Short: "Show recent recorded scores for an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{"limit": {strconv.Itoa(limit)}}
			return run(cmd, func(ctx context.Context) (json.RawMessage, error) {
				return client().get(ctx, "/v1/risk/"+url.PathEscape(args[0])+"/history", q)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of scores")
	return cmd
}

func newTrendCmd(client clientFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "trend <assetId>",
		Short: "Show the difference between the last two recorded scores",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context) (json.RawMessage, error) {
				return client().get(ctx, "/v1/risk/"+url.PathEscape(args[0])+"/trend", nil)
			})
		},
	}
}

func newThresholdCmd(client clientFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "threshold <assetId> [bps]",
		Short: "Show an asset's alert threshold, or set it (0 clears)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/risk/" + url.PathEscape(args[0]) + "/threshold"
			if len(args) == 1 {
				return run(cmd, func(ctx context.Context) (json.RawMessage, error) {
					return client().get(ctx, path, nil)
				})
			}
			bps, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("threshold must be a non-negative integer: %w", err)
			}
			return run(cmd, func(ctx context.Context) (json.RawMessage, error) {
				return client().put(ctx, path, map[string]any{"threshold": bps})
			})
		},
	}
}

func newOracleCmd(client clientFunc) *cobra.Command {
	cmd := &cobra.Command{Use: "oracle", Short: "Manage oracle sources"}

	var weight uint64
	add := &cobra.Command{
		Use:   "add <name> <address>",
		Short: "Register or replace an oracle source",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !validation.IsValidEthAddress(args[1]) {
				return fmt.Errorf("invalid address %q", args[1])
			}
			return run(cmd, func(ctx context.Context) (json.RawMessage, error) {
				return client().post(ctx, "/v1/oracles", map[string]any{"name": args[0], "address": args[1], "weight": weight})
			})
		},
	}
	add.Flags().Uint64Var(&weight, "weight", 0, "source weight in bps (0-10000)")

	var activeOnly bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List oracle sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var q url.Values
			if activeOnly {
				q = url.Values{"active": {"true"}}
			}
			return run(cmd, func(ctx context.Context) (json.RawMessage, error) {
				return client().get(ctx, "/v1/oracles", q)
			})
		},
	}
	list.Flags().BoolVar(&activeOnly, "active", false, "only active sources")

	deactivate := &cobra.Command{
		Use:   "deactivate <name>",
		Short: "Deactivate an oracle source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context) (json.RawMessage, error) {
				return client().post(ctx, "/v1/oracles/"+url.PathEscape(args[0])+"/deactivate", nil)
			})
		},
	}

	cmd.AddCommand(add, list, deactivate)
	return cmd
}

func newModelCmd(client clientFunc) *cobra.Command {
	cmd := &cobra.Command{Use: "model", Short: "Manage AI models"}
	cmd.AddCommand(&cobra.Command{
		Use:   "register <modelId> <modelHash>",
		Short: "Register or replace an AI model (needs ai_operator)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context) (json.RawMessage, error) {
				return client().post(ctx, "/v1/models", map[string]any{"modelId": args[0], "modelHash": args[1]})
			})
		},
	})
	return cmd
}

func newResultCmd(client clientFunc) *cobra.Command {
	cmd := &cobra.Command{Use: "result", Short: "Submit and verify AI results"}

	var (
		score, confidence uint64
		proofHex          string
	)
	submit := &cobra.Command{
		Use:   "submit <modelId> <assetId>",
		Short: "Submit an AI risk result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			proof, err := hexutil.Decode(proofHex)
			if err != nil {
				return fmt.Errorf("--proof must be 0x-prefixed hex: %w", err)
			}
			body := map[string]any{
				"modelId":    args[0],
				"assetId":    args[1],
				"riskScore":  score,
				"confidence": confidence,
				"proof":      hexutil.Bytes(proof),
			}
			return run(cmd, func(ctx context.Context) (json.RawMessage, error) {
				return client().post(ctx, "/v1/results", body)
			})
		},
	}
	submit.Flags().Uint64Var(&score, "score", 0, "risk score in bps (0-10000)")
	submit.Flags().Uint64Var(&confidence, "confidence", 0, "confidence in bps (0-10000)")
	submit.Flags().StringVar(&proofHex, "proof", "0x", "proof payload as hex")

	verify := &cobra.Command{
		Use:   "verify <resultId>",
		Short: "Verify a result's proof (needs verifier)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context) (json.RawMessage, error) {
				return client().post(ctx, "/v1/results/"+url.PathEscape(args[0])+"/verify", nil)
			})
		},
	}

	cmd.AddCommand(submit, verify)
	return cmd
}

// parseAmount accepts a coin amount ("1.5") or, with wei set, a raw integer.
func parseAmount(s string, wei bool) (string, error) {
	if wei {
		v, ok := units.ParseWei(s)
		if !ok || !units.Positive(v) {
			return "", fmt.Errorf("invalid wei amount %q", s)
		}
		return v.String(), nil
	}
	v, ok := units.ParseCoin(s)
	if !ok || !units.Positive(v) {
		return "", fmt.Errorf("invalid coin amount %q", s)
	}
	return v.String(), nil
}

func newRewardCmd(client clientFunc) *cobra.Command {
	cmd := &cobra.Command{Use: "reward", Short: "Manage the operator reward pool"}
	var wei bool
	cmd.PersistentFlags().BoolVar(&wei, "wei", false, "amounts are integer wei instead of coins")

	fund := &cobra.Command{
		Use:   "fund <amount>",
		Short: "Add funds to the reward pool (needs admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[0], wei)
			if err != nil {
				return err
			}
			return run(cmd, func(ctx context.Context) (json.RawMessage, error) {
				return client().post(ctx, "/v1/rewards/fund", map[string]any{"amount": amount})
			})
		},
	}

	distribute := &cobra.Command{
		Use:   "distribute <operator> <amount>",
		Short: "Move pool funds to an operator's pending balance (needs admin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !validation.IsValidEthAddress(args[0]) {
				return fmt.Errorf("invalid operator address %q", args[0])
			}
			amount, err := parseAmount(args[1], wei)
			if err != nil {
				return err
			}
			return run(cmd, func(ctx context.Context) (json.RawMessage, error) {
				return client().post(ctx, "/v1/rewards/distribute", map[string]any{"operator": args[0], "amount": amount})
			})
		},
	}

	claim := &cobra.Command{
		Use:   "claim",
		Short: "Claim the caller's pending rewards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context) (json.RawMessage, error) {
				return client().post(ctx, "/v1/rewards/claim", nil)
			})
		},
	}

	balance := &cobra.Command{
		Use:   "balance [operator]",
		Short: "Show an operator's reward account, or the pool without an address",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/rewards/pool"
			if len(args) == 1 {
				path = "/v1/rewards/" + url.PathEscape(args[0])
			}
			return run(cmd, func(ctx context.Context) (json.RawMessage, error) {
				return client().get(ctx, path, nil)
			})
		},
	}

	cmd.AddCommand(fund, distribute, claim, balance)
	return cmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
