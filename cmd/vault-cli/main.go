package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	rpcURLEnv     = "VAULT_RPC_URL"
	tokenEnv      = "VAULT_TOKEN"
	walletPassEnv = "VAULT_WALLET_PASS"
	defaultRPCURL = "http://127.0.0.1:8645"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 2
	}
	var err error
	switch args[0] {
	case "keygen":
		err = runKeygen(args[1:], stdout)
	case "address":
		err = runAddress(args[1:], stdout)
	case "token":
		err = runToken(args[1:], stdout)
	case "tx":
		err = runTx(args[1:], stdout)
	case "query":
		err = runQuery(args[1:], stdout)
	case "receipts":
		err = runReceipts(args[1:], stdout)
	case "export":
		err = runExport(args[1:], stdout)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		printUsage(stderr)
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, strings.TrimSpace(`
Usage: vault-cli <command> [flags]

Commands:
  keygen   -out <keystore>                          create an encrypted account keystore
  address  -keystore <keystore>                     print the account address of a keystore
  token    -keystore <keystore> [-ttl 1h]           mint an API token for the keystore account
  tx       <instruction> [json|@file]               submit an instruction
  query    <name> [key=value ...]                   run a query
  receipts [-sender addr] [-instruction name]       list indexed receipts
  export                                            write a ledger snapshot (owner only)

Environment:
  VAULT_RPC_URL      API endpoint (default http://127.0.0.1:8645)
  VAULT_TOKEN        bearer token for tx, receipts and export
  VAULT_WALLET_PASS  keystore passphrase
  VAULT_JWT_SECRET   HMAC secret used by token`))
}
