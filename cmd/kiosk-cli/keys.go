package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"offerkiosk/cmd/internal/passphrase"
	"offerkiosk/crypto"
)

// signatureValidity is how long a signed request stays acceptable.
const signatureValidity = 5 * time.Minute

var passphrases = passphrase.NewSource(envPassphrase, "kiosk key")

// signer is an unlocked keystore key.
type signer struct {
	key  *crypto.PrivateKey
	addr [20]byte
}

func loadSigner(path string) (*signer, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("--key is required")
	}
	pass, err := passphrases.Get()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return nil, fmt.Errorf("load key %s: %w", path, err)
	}
	return &signer{key: key, addr: key.PubKey().Address().Array()}, nil
}

func (s *signer) address() string { return crypto.AddressFromArray(s.addr).String() }

// sign returns the hex encoded signature over digest.
func (s *signer) sign(digest [32]byte) (string, error) {
	sig, err := s.key.Sign(digest)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}

func signatureDeadline() int64 {
	return cliNow().Add(signatureValidity).Unix()
}

func runGenerateKey(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("generate-key", stderr)
	out := fs.String("out", "kiosk.key", "keystore file to write")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if _, err := os.Stat(*out); err == nil {
		return printError(stderr, fmt.Sprintf("%s already exists", *out))
	}
	pass, err := passphrases.Get()
	if err != nil {
		return printError(stderr, err.Error())
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return printError(stderr, err.Error())
	}
	if err := crypto.SaveToKeystore(*out, key, pass); err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintf(stdout, "Address: %s\nKeystore: %s\n", key.PubKey().Address().String(), *out)
	return 0
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func printError(w io.Writer, msg string) int {
	fmt.Fprintf(w, "Error: %s\n", msg)
	return 1
}
