package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agrotrace/agrotrace/pkg/client"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL   string
	bearerToken string
	cfgFile     string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "agrotrace",
	Short: "AgroTrace ledger CLI",
	Long: `agrotrace is the command-line interface for the AgroTrace ledger service.

It submits traceability events, inspects blocks, resolves batch provenance
chains, and verifies ledger integrity against a running ledgerd instance.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.agrotrace")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
		if bearerToken == "" {
			bearerToken = viper.GetString("token")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.agrotrace/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "ledger service URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&bearerToken, "token", "", "role token for authenticated operations")

	rootCmd.AddCommand(mintCmd)
	rootCmd.AddCommand(chainCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(blockCmd)
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() (*client.Client, error) {
	opts := []client.Option{}
	if bearerToken != "" {
		opts = append(opts, client.WithBearerToken(bearerToken))
	}
	return client.New(serverURL, opts...)
}

// ── mint ─────────────────────────────────────────────────────────────────────

var (
	mintEventType string
	mintPayload   string
	mintInputs    []string
)

var mintCmd = &cobra.Command{
	Use:   "mint <batch-id>",
	Short: "Submit a traceability event and mint its block",
	Long: `Mint submits an event for a batch and appends the sealed block to the ledger.

The payload is an arbitrary JSON document; its canonical hash becomes the
block's data hash. Transformations name their consumed batches via --input:

  agrotrace mint LOTE-77 --event TRANSFORMATION \
      --payload '{"process":"roasting"}' \
      --input ORDER-9:300`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		if !json.Valid([]byte(mintPayload)) {
			return fmt.Errorf("--payload must be valid JSON")
		}

		inputs, err := parseInputs(mintInputs)
		if err != nil {
			return err
		}

		receipt, err := c.MintEvent(context.Background(), client.MintRequest{
			BatchID:   args[0],
			EventType: mintEventType,
			Payload:   json.RawMessage(mintPayload),
			Inputs:    inputs,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Status:   %s\n", receipt.Status)
		fmt.Printf("Block:    #%d\n", receipt.Block.Index)
		fmt.Printf("Tx Hash:  %s\n", receipt.TxHash)
		fmt.Printf("Signer:   %s\n", receipt.Signer)
		return nil
	},
}

func init() {
	mintCmd.Flags().StringVar(&mintEventType, "event", "", "Event type (GENESIS, TRANSPORT_PICKUP, TRANSPORT_DELIVERY, TRANSFORMATION, SALE)")
	mintCmd.Flags().StringVar(&mintPayload, "payload", "{}", "Event dossier payload as a JSON document")
	mintCmd.Flags().StringArrayVar(&mintInputs, "input", nil, "Consumed batch as <batch-id>[:<quantity-kg>]; repeatable")
	_ = mintCmd.MarkFlagRequired("event")
}

// parseInputs turns "<batch-id>[:<quantity-kg>]" flags into Input values.
func parseInputs(raw []string) ([]client.Input, error) {
	var inputs []client.Input
	for _, s := range raw {
		in := client.Input{BatchID: s}
		if i := strings.LastIndexByte(s, ':'); i >= 0 {
			qty, err := strconv.ParseFloat(s[i+1:], 64)
			if err != nil {
				return nil, fmt.Errorf("invalid input %q: quantity must be numeric", s)
			}
			in.BatchID, in.QuantityKG = s[:i], qty
		}
		if in.BatchID == "" {
			return nil, fmt.Errorf("invalid input %q: batch id is empty", s)
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

// ── chain ────────────────────────────────────────────────────────────────────

var chainFormat string

var chainCmd = &cobra.Command{
	Use:   "chain <batch-id>",
	Short: "Resolve the full provenance chain of a batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		chain, err := c.Chain(context.Background(), args[0])
		if err != nil {
			return err
		}

		if chainFormat == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(chain)
		}

		if len(chain) == 0 {
			fmt.Printf("no history recorded for %s\n", args[0])
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tBATCH\tEVENT\tSIGNER\tTIMESTAMP\tHASH")
		for _, e := range chain {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
				e.VisualIndex, e.BatchID, e.EventType, e.Signer,
				e.Timestamp.Format("2006-01-02 15:04:05"), short(e.BlockHash))
		}
		return w.Flush()
	},
}

func init() {
	chainCmd.Flags().StringVar(&chainFormat, "format", "text", "Output format: text or json")
}

// ── verify ───────────────────────────────────────────────────────────────────

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the integrity of the whole ledger",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		result, err := c.Verify(context.Background())
		if err != nil {
			return err
		}
		if !result.Valid {
			return fmt.Errorf("ledger integrity check FAILED: %s", result.Error)
		}
		fmt.Println("ledger intact")
		return nil
	},
}

// ── block ────────────────────────────────────────────────────────────────────

var blockCmd = &cobra.Command{
	Use:   "block <index>",
	Short: "Show a single block by chain index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := strconv.Atoi(args[0])
		if err != nil || idx < 0 {
			return fmt.Errorf("index must be a non-negative integer")
		}

		c, err := newClient()
		if err != nil {
			return err
		}

		block, err := c.Block(context.Background(), idx)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(block)
	},
}

// ── ledger ───────────────────────────────────────────────────────────────────

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Show the chain height and root hash",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		overview, err := c.Ledger(context.Background())
		if err != nil {
			return err
		}

		fmt.Printf("Blocks: %d\n", overview.Blocks)
		fmt.Printf("Root:   %s\n", overview.Root)
		return nil
	},
}

// ── token ────────────────────────────────────────────────────────────────────

var (
	tokenAdminSecret string
	tokenParticipant string
	tokenRole        string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a role token using the admin secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		token, err := c.IssueToken(context.Background(), tokenAdminSecret, tokenParticipant, tokenRole)
		if err != nil {
			return err
		}

		// Bare token on stdout so it can be captured directly:
		//   export AGROTRACE_TOKEN=$(agrotrace token ...)
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenAdminSecret, "admin-secret", "", "Service admin secret")
	tokenCmd.Flags().StringVar(&tokenParticipant, "participant", "", "Participant identifier recorded in the token")
	tokenCmd.Flags().StringVar(&tokenRole, "role", "", "Role to grant (Producer, Transporter, Processor, Retailer)")
	_ = tokenCmd.MarkFlagRequired("admin-secret")
	_ = tokenCmd.MarkFlagRequired("participant")
	_ = tokenCmd.MarkFlagRequired("role")
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("agrotrace", version)
	},
}

// short truncates a hash for tabular display.
func short(hash string) string {
	if len(hash) <= 12 {
		return hash
	}
	return hash[:12]
}
