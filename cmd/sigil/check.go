package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/sagarc03/sigil/config"
	sigilhttp "github.com/sagarc03/sigil/http"
	"github.com/sagarc03/sigil/sigtest"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify a running server accepts a signed request",
	Long: `Sign a request against a running sigil server and print the
identity it authenticates as.

The request is signed with the region and service from configuration,
so a failure here usually means the key is not provisioned or the
signing scope does not match the server's.

Examples:
  # Check the local server with a provisioned key
  sigil check --access-key AKIAEXAMPLE

  # Check a deployed server
  sigil check --endpoint https://auth.example.com --access-key AKIAEXAMPLE`,
	RunE: runCheck,
}

var (
	checkEndpoint     string
	checkAccessKey    string
	checkSecretKey    string
	checkSessionToken string
)

func init() {
	checkCmd.Flags().StringVar(&checkEndpoint, "endpoint", "http://localhost:5998", "server base URL")
	checkCmd.Flags().StringVar(&checkAccessKey, "access-key", "", "access key ID (prompted when omitted)")
	checkCmd.Flags().StringVar(&checkSecretKey, "secret-key", "", "secret access key (prompted when omitted)")
	checkCmd.Flags().StringVar(&checkSessionToken, "session-token", "", "session token for temporary credentials")

	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	accessKey := checkAccessKey
	if accessKey == "" {
		accessKeyPrompt := promptui.Prompt{
			Label: "Access Key",
			Validate: func(input string) error {
				if input == "" {
					return errors.New("access key is required")
				}
				return nil
			},
		}
		accessKey, err = accessKeyPrompt.Run()
		if err != nil {
			return handlePromptError(err)
		}
	}

	secretKey := checkSecretKey
	if secretKey == "" {
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

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	checkURL := strings.TrimSuffix(checkEndpoint, "/") + "/whoami"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, checkURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	creds := sigtest.Credentials{
		AccessKeyID:     accessKey,
		SecretAccessKey: secretKey,
		SessionToken:    checkSessionToken,
	}
	if err := sigtest.SignRequest(req, creds, cfg.Auth.Region, cfg.Auth.Service, time.Now()); err != nil {
		return fmt.Errorf("sign request: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", checkEndpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		fmt.Printf("Check FAILED: %s\n\n%s\n", resp.Status, strings.TrimSpace(string(body)))
		return fmt.Errorf("server rejected the request (%s)", resp.Status)
	}

	var who sigilhttp.WhoAmIResponse
	if err := json.Unmarshal(body, &who); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	fmt.Printf("Check OK: authenticated against %s\n\n", checkEndpoint)
	fmt.Printf("  Principal:  %s\n", who.Principal)
	if who.Account != "" {
		fmt.Printf("  Account:    %s\n", who.Account)
	}
	fmt.Printf("  Request ID: %s\n", who.RequestID)

	return nil
}
