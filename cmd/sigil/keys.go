package main

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/sagarc03/sigil"
	"github.com/sagarc03/sigil/config"
	"github.com/sagarc03/sigil/database"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage provisioned access keys",
	Long: `Manage access keys in the credential database.

Keys provisioned here are served by 'sigil serve' when the resolver
backend is set to database.`,
}

var keysAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Provision a new access key",
	Long: `Provision a new access key in the credential database.

When --access-key is omitted a key pair is generated and the secret is
printed exactly once. When --access-key is given without --secret-key,
the secret is read from an interactive prompt so it never lands in
shell history.

Examples:
  # Generate a fresh key pair for a principal
  sigil keys add --principal arn:aws:iam::123456789012:user/ci

  # Import an existing key pair (secret prompted)
  sigil keys add --access-key AKIAEXAMPLE --principal deploy-bot`,
	RunE: runKeysAdd,
}

var keysListCmd = &cobra.Command{
	Use:   "list [prefix]",
	Short: "List provisioned access keys",
	Long: `List provisioned access keys, optionally filtered by access key
ID prefix. Secrets are never shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runKeysList,
}

var keysDeactivateCmd = &cobra.Command{
	Use:   "deactivate <access-key-id> [more...]",
	Short: "Deactivate access keys",
	Long: `Deactivate access keys so the server stops honoring them.

Records are kept for audit; deactivation is how a leaked key is
revoked without losing the trail of what it signed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runKeysDeactivate,
}

var (
	keysAddAccessKey    string
	keysAddSecretKey    string
	keysAddSessionToken string
	keysAddPrincipal    string
	keysAddAccount      string
)

func init() {
	keysAddCmd.Flags().StringVar(&keysAddAccessKey, "access-key", "", "access key ID (generated when omitted)")
	keysAddCmd.Flags().StringVar(&keysAddSecretKey, "secret-key", "", "secret access key (prompted when omitted)")
	keysAddCmd.Flags().StringVar(&keysAddSessionToken, "session-token", "", "session token for temporary credentials")
	keysAddCmd.Flags().StringVar(&keysAddPrincipal, "principal", "", "principal identifier the key authenticates as")
	keysAddCmd.Flags().StringVar(&keysAddAccount, "account", "", "account or tenant the principal belongs to")

	keysCmd.AddCommand(keysAddCmd)
	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysDeactivateCmd)
	rootCmd.AddCommand(keysCmd)
}

func runKeysAdd(cmd *cobra.Command, _ []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	accessKey := keysAddAccessKey
	secretKey := keysAddSecretKey
	generated := false

	if accessKey == "" {
		accessKey, secretKey, err = generateKeyPair()
		if err != nil {
			return fmt.Errorf("generate key pair: %w", err)
		}
		generated = true
	} else if secretKey == "" {
		secretPrompt := promptui.Prompt{
			Label: "Secret Key",
			Mask:  '*',
			Validate: func(input string) error {
				if input == "" {
					return errors.New("secret key is required")
				}
				return nil
			},
		}
		secretKey, err = secretPrompt.Run()
		if err != nil {
			return handlePromptError(err)
		}
	}

	principal := keysAddPrincipal
	if principal == "" {
		principalPrompt := promptui.Prompt{
			Label:   "Principal",
			Default: accessKey,
		}
		principal, err = principalPrompt.Run()
		if err != nil {
			return handlePromptError(err)
		}
	}

	store, closeStore, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer closeStore()

	record, err := store.CreateKey(ctx, sigil.KeyRecord{
		AccessKeyID:     accessKey,
		SecretAccessKey: secretKey,
		SessionToken:    keysAddSessionToken,
		Principal:       principal,
		Account:         keysAddAccount,
	})
	if errors.Is(err, sigil.ErrKeyExists) {
		return fmt.Errorf("access key %s is already provisioned", accessKey)
	}
	if err != nil {
		return fmt.Errorf("create key: %w", err)
	}

	fmt.Printf("Provisioned access key for '%s'.\n\n", record.Principal)
	fmt.Printf("  Access Key ID:     %s\n", record.AccessKeyID)
	if generated {
		fmt.Printf("  Secret Access Key: %s\n\n", secretKey)
		fmt.Println("Store the secret access key now; it cannot be retrieved later.")
	}

	return nil
}

func runKeysList(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	prefix := ""
	if len(args) > 0 {
		prefix = args[0]
	}

	store, closeStore, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer closeStore()

	records, err := store.ListKeys(ctx, prefix)
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("No keys found.")
		return nil
	}

	// Calculate column widths
	maxKeyLen := 13 // "ACCESS KEY ID"
	maxPrincipalLen := 9
	for i := range records {
		if len(records[i].AccessKeyID) > maxKeyLen {
			maxKeyLen = len(records[i].AccessKeyID)
		}
		if len(records[i].Principal) > maxPrincipalLen {
			maxPrincipalLen = len(records[i].Principal)
		}
	}
	if maxPrincipalLen > 60 {
		maxPrincipalLen = 60
	}

	fmt.Printf("%-*s  %-*s  %-8s  %s\n", maxKeyLen, "ACCESS KEY ID", maxPrincipalLen, "PRINCIPAL", "STATUS", "CREATED")
	fmt.Printf("%s  %s  %s  %s\n", strings.Repeat("-", maxKeyLen), strings.Repeat("-", maxPrincipalLen),
		strings.Repeat("-", 8), strings.Repeat("-", 19))

	for i := range records {
		r := &records[i]
		principal := r.Principal
		if len(principal) > maxPrincipalLen {
			principal = principal[:maxPrincipalLen-3] + "..."
		}
		status := "active"
		if !r.Active {
			status = "inactive"
		}
		fmt.Printf("%-*s  %-*s  %-8s  %s\n", maxKeyLen, r.AccessKeyID, maxPrincipalLen, principal,
			status, r.CreatedAt.Format("2006-01-02 15:04:05"))
	}

	fmt.Printf("\n%d key(s)\n", len(records))
	return nil
}

func runKeysDeactivate(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	store, closeStore, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer closeStore()

	deactivated := 0
	notFound := 0

	for _, accessKey := range args {
		err := store.DeactivateKey(ctx, accessKey)
		if errors.Is(err, sigil.ErrKeyNotFound) {
			notFound++
			slog.Warn("no active key", "access_key_id", accessKey)
			continue
		}
		if err != nil {
			return fmt.Errorf("deactivate %s: %w", accessKey, err)
		}
		deactivated++
		slog.Info("deactivated", "access_key_id", accessKey)
	}

	slog.Info("deactivate complete", "deactivated", deactivated, "not_found", notFound)
	if notFound > 0 {
		return fmt.Errorf("%d key(s) not found", notFound)
	}
	return nil
}

// idAlphabet matches the character set AWS uses for access key IDs.
const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

// generateKeyPair produces an AWS-shaped access key pair: a 20-character
// AKIA-prefixed ID and a 40-character secret.
func generateKeyPair() (accessKey, secretKey string, err error) {
	idBytes := make([]byte, 16)
	if _, err = rand.Read(idBytes); err != nil {
		return "", "", err
	}
	id := make([]byte, len(idBytes))
	for i, b := range idBytes {
		id[i] = idAlphabet[int(b)%len(idAlphabet)]
	}

	secretBytes := make([]byte, 30)
	if _, err = rand.Read(secretBytes); err != nil {
		return "", "", err
	}

	return "AKIA" + string(id), base64.StdEncoding.EncodeToString(secretBytes), nil
}

// handlePromptError handles promptui errors.
func handlePromptError(err error) error {
	if errors.Is(err, promptui.ErrInterrupt) {
		fmt.Println("\nCancelled.")
		os.Exit(0)
	}
	if errors.Is(err, promptui.ErrAbort) {
		fmt.Println("Cancelled.")
		return nil
	}
	return err
}
