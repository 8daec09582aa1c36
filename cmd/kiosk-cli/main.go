package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const defaultRPCURL = "http://127.0.0.1:8547"

// Environment variables consulted by the CLI.
const (
	envRPCURL     = "KIOSK_RPC_URL"
	envRPCToken   = "KIOSK_RPC_TOKEN"
	envCapToken   = "KIOSK_CAP_TOKEN"
	envPassphrase = "KIOSK_KEY_PASSPHRASE"
)

var rpcEndpoint = defaultRPCEndpoint()

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv(envRPCURL)); v != "" {
		return v
	}
	return defaultRPCURL
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type command func(args []string, stdout, stderr io.Writer) int

var commands = map[string]command{
	"generate-key":    runGenerateKey,
	"create":          runCreate,
	"refresh-token":   runRefreshToken,
	"recover-token":   runRecoverToken,
	"set-owner":       runSetOwner,
	"place-offer":     runPlaceOffer,
	"cancel-offer":    runCancelOffer,
	"accept":          runAccept,
	"withdraw-item":   runWithdrawItem,
	"deposit-profits": runDepositProfits,
	"withdraw":        runWithdraw,
	"close":           runClose,
	"get":             runGet,
	"has-offer":       runHasOffer,
	"has-item":        runHasItem,
	"events":          runEvents,
	"balance":         runBalance,
	"mint":            runMint,
	"mint-asset":      runMintAsset,
	"asset":           runAsset,
	"transfer-asset":  runTransferAsset,
}

func run(args []string, stdout, stderr io.Writer) int {
	args, err := applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
	return cmd(args[1:], stdout, stderr)
}

// applyGlobalFlags strips a leading --rpc flag and applies it.
func applyGlobalFlags(args []string) ([]string, error) {
	for len(args) > 0 {
		arg := args[0]
		switch {
		case arg == "--rpc" || arg == "-rpc":
			if len(args) < 2 {
				return nil, fmt.Errorf("Error: --rpc requires a URL")
			}
			rpcEndpoint = args[1]
			args = args[2:]
		case strings.HasPrefix(arg, "--rpc="):
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			args = args[1:]
		default:
			return args, nil
		}
	}
	return args, nil
}

func usage() string {
	return strings.TrimSpace(`Usage:
  kiosk-cli [--rpc URL] <command> [flags]

Key management:
  generate-key     Create an encrypted keystore file

Kiosk owner (capability token from --cap or ` + envCapToken + `):
  create           Create a kiosk owned by the key's address
  refresh-token    Issue a fresh capability token
  recover-token    Re-issue the capability token (signed by the current owner)
  set-owner        Hand the kiosk to a new owner (signed by the new owner)
  place-offer      Escrow an offer for an asset
  cancel-offer     Cancel an open offer and reclaim the payment
  withdraw-item    Take a delivered asset out of the kiosk
  deposit-profits  Add funds to the profit pool
  withdraw         Withdraw profits (all when --amount is omitted)
  close            Close an empty kiosk and reclaim its profits

Fulfiller:
  accept           Deliver an asset against an open offer

Queries:
  get              Show a kiosk
  has-offer        Report whether a kiosk holds an offer for an asset
  has-item         Report whether a kiosk holds a delivered asset
  events           List indexed kiosk events
  balance          Show an account balance
  asset            Show an asset's custody record

Assets and funds:
  transfer-asset   Move an asset between addresses (signed by the holder)
  mint             Credit an account (operator token from ` + envRPCToken + `)
  mint-asset       Register a new asset (operator token from ` + envRPCToken + `)
`)
}
