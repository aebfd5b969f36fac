package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ppiankov/competia/internal/ledger"
	"github.com/ppiankov/competia/internal/model"
)

var (
	claimSubtype   string
	overrideStatus string
	validatedBy    string
)

// claimsCmd represents the claims command group
var claimsCmd = &cobra.Command{
	Use:   "claims",
	Short: "Inspect and adjudicate ledger claims",
}

// claimsShowCmd prints the active claim for a key.
var claimsShowCmd = &cobra.Command{
	Use:   "show <competitor-id> <claim-type>",
	Short: "Show the active claim for a competitor and claim type",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(led *ledger.Ledger) error {
			key := model.ClaimKey{CompetitorID: args[0], ClaimType: args[1], ClaimSubtype: claimSubtype}
			claim, err := led.ActiveClaim(key)
			if err != nil {
				return err
			}
			if claim == nil {
				return fmt.Errorf("no active claim for %s", key.String())
			}
			return printJSON(claim)
		})
	},
}

// claimsHistoryCmd prints every version recorded for a key.
var claimsHistoryCmd = &cobra.Command{
	Use:   "history <competitor-id> <claim-type>",
	Short: "Show all claim versions for a competitor and claim type, oldest first",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(led *ledger.Ledger) error {
			key := model.ClaimKey{CompetitorID: args[0], ClaimType: args[1], ClaimSubtype: claimSubtype}
			history, err := led.History(key)
			if err != nil {
				return err
			}
			if len(history) == 0 {
				return fmt.Errorf("no claims recorded for %s", key.String())
			}
			return printJSON(history)
		})
	},
}

// claimsOverrideCmd applies a manual decision to one claim.
var claimsOverrideCmd = &cobra.Command{
	Use:   "override <claim-id>",
	Short: "Manually force a claim active or reject it",
	Long: `Override applies a human decision to a claim, bypassing scoring.
Forcing a claim active supersedes the current active claim for its key;
rejecting an active claim clears the key's active slot. The decision is
recorded with validated_by.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var status model.ClaimStatus
		switch overrideStatus {
		case "active":
			status = model.StatusActive
		case "rejected":
			status = model.StatusRejected
		default:
			return fmt.Errorf("invalid --status %q (allowed: active, rejected)", overrideStatus)
		}

		return withLedger(func(led *ledger.Ledger) error {
			claim, err := led.Override(args[0], status, validatedBy)
			if err != nil {
				return err
			}
			return printJSON(claim)
		})
	},
}

func init() {
	claimsCmd.PersistentFlags().StringVar(&ledgerPath, "ledger-path", "", "claim ledger directory (default: $HOME/.competia/ledger)")
	claimsCmd.PersistentFlags().StringVar(&claimSubtype, "subtype", "", "claim subtype qualifying the key")

	claimsOverrideCmd.Flags().StringVar(&overrideStatus, "status", "", "target status: active or rejected (required)")
	claimsOverrideCmd.Flags().StringVar(&validatedBy, "validated-by", "human", "who made the decision")
	_ = claimsOverrideCmd.MarkFlagRequired("status")

	claimsCmd.AddCommand(claimsShowCmd)
	claimsCmd.AddCommand(claimsHistoryCmd)
	claimsCmd.AddCommand(claimsOverrideCmd)
	rootCmd.AddCommand(claimsCmd)
}

// withLedger opens the configured ledger, runs fn, and closes it.
func withLedger(fn func(*ledger.Ledger) error) error {
	cfg := loadConfig()
	led, err := ledger.Open(cfg.Ledger, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = led.Close() }()
	return fn(led)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
