package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/Klingon-tech/vite-agent/internal/agent"
	"github.com/Klingon-tech/vite-agent/internal/wallet"
	"github.com/Klingon-tech/vite-agent/pkg/types"
)

func usageError(format string, args ...interface{}) agent.Result {
	return failed("usage", fmt.Errorf("%w: %s", agent.ErrInvalidArgument, fmt.Sprintf(format, args...)))
}

func failed(op string, err error) agent.Result {
	return agent.Result{Message: op + " failed", Error: agent.Classify(err)}
}

func succeeded(op string, data interface{}) agent.Result {
	return agent.Result{OK: true, Message: op + " success", Data: data}
}

// ── create ──────────────────────────────────────────────────────────────

func cmdCreate(ctx context.Context, e *env, args []string) agent.Result {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	save := fs.String("save", "", "Keystore wallet name to save the mnemonic under")
	if err := fs.Parse(args); err != nil {
		return usageError("%v", err)
	}

	res := e.agent.CreateWallet(ctx)
	if !res.OK || *save == "" {
		return res
	}
	data := res.Data.(agent.WalletData)

	password, err := readNewPassword()
	if err != nil {
		return failed("create", err)
	}
	if _, err := e.ks.Create(*save, data.Mnemonics, password, wallet.DefaultParams()); err != nil {
		return failed("create", err)
	}
	fmt.Fprintf(os.Stderr, "Saved to keystore as %q\n", *save)
	return res
}

// ── balance / transactions ──────────────────────────────────────────────

func cmdBalance(ctx context.Context, e *env, args []string) agent.Result {
	if len(args) != 1 {
		return usageError("balance <address>")
	}
	return e.agent.GetBalance(ctx, args[0])
}

func cmdTransactions(ctx context.Context, e *env, args []string) agent.Result {
	if len(args) < 1 || strings.HasPrefix(args[0], "-") {
		return usageError("transactions <address> [--size n] [--index n]")
	}
	address := args[0]

	fs := flag.NewFlagSet("transactions", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	size := fs.Int("size", agent.DefaultPageSize, "Page size")
	index := fs.Int("index", 0, "Page index")
	if err := fs.Parse(args[1:]); err != nil {
		return usageError("%v", err)
	}
	return e.agent.GetTransactions(ctx, address, *size, *index)
}

// ── send / receive ──────────────────────────────────────────────────────

// seedFlags registers --mnemonics and --wallet on fs.
type seedFlags struct {
	mnemonics *string
	wallet    *string
}

func addSeedFlags(fs *flag.FlagSet) seedFlags {
	return seedFlags{
		mnemonics: fs.String("mnemonics", "", "Inline mnemonic"),
		wallet:    fs.String("wallet", "", "Keystore wallet name"),
	}
}

// resolve returns the mnemonic named by the flags, prompting for the
// keystore password when a wallet was given.
func (s seedFlags) resolve(ks *wallet.Keystore) (string, error) {
	switch {
	case *s.mnemonics != "" && *s.wallet != "":
		return "", fmt.Errorf("%w: give either --mnemonics or --wallet", agent.ErrInvalidArgument)
	case *s.wallet != "":
		password, err := readPassword("Enter password: ")
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return ks.Load(*s.wallet, password)
	case *s.mnemonics != "":
		return *s.mnemonics, nil
	default:
		return "", fmt.Errorf("%w: --mnemonics or --wallet is required", agent.ErrInvalidArgument)
	}
}

func cmdSend(ctx context.Context, e *env, args []string) agent.Result {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	to := fs.String("to", "", "Recipient address")
	amount := fs.String("amount", "", "Amount in smallest units")
	token := fs.String("token", types.ViteTokenID.String(), "Token ID")
	index := fs.Uint("index", 0, "Address index")
	seed := addSeedFlags(fs)
	if err := fs.Parse(args); err != nil {
		return usageError("%v", err)
	}
	if *to == "" || *amount == "" {
		return usageError("send --to <addr> --amount <raw> [--token <tti>] [--index n] <seed>")
	}
	if *index > uint(^uint32(0)) {
		return usageError("index %d out of range", *index)
	}

	mnemonics, err := seed.resolve(e.ks)
	if err != nil {
		return failed("send", err)
	}
	return e.agent.Send(ctx, mnemonics, uint32(*index), *to, *token, *amount)
}

func cmdReceive(ctx context.Context, e *env, args []string) agent.Result {
	fs := flag.NewFlagSet("receive", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	index := fs.Uint("index", 0, "Address index")
	indices := fs.String("indices", "", "Comma-separated address indices received concurrently")
	seed := addSeedFlags(fs)
	if err := fs.Parse(args); err != nil {
		return usageError("%v", err)
	}

	var list []uint32
	if *indices != "" {
		var err error
		if list, err = parseIndices(*indices); err != nil {
			return usageError("%v", err)
		}
	} else if *index > uint(^uint32(0)) {
		return usageError("index %d out of range", *index)
	}

	mnemonics, err := seed.resolve(e.ks)
	if err != nil {
		return failed("receive", err)
	}
	if list != nil {
		return e.agent.ReceiveAllMany(ctx, mnemonics, list)
	}
	return e.agent.ReceiveAll(ctx, mnemonics, uint32(*index))
}

// parseIndices parses "0,1,5" into address indices.
func parseIndices(s string) ([]uint32, error) {
	parts := strings.Split(s, ",")
	out := make([]uint32, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad index %q", p)
		}
		out = append(out, uint32(n))
	}
	if len(out) == 0 {
		return nil, errors.New("no indices given")
	}
	return out, nil
}

// ── keystore ────────────────────────────────────────────────────────────

func cmdKeystore(e *env, args []string) agent.Result {
	if len(args) < 1 {
		return usageError("keystore <save|list|show> [flags]")
	}

	fs := flag.NewFlagSet("keystore "+args[0], flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	name := fs.String("name", "", "Wallet name")
	if err := fs.Parse(args[1:]); err != nil {
		return usageError("%v", err)
	}

	switch args[0] {
	case "save":
		if *name == "" {
			return usageError("keystore save --name <name>")
		}
		return keystoreSave(e.ks, *name)
	case "list":
		names, err := e.ks.List()
		if err != nil {
			return failed("keystore list", err)
		}
		if names == nil {
			names = []string{}
		}
		return succeeded("keystore list", names)
	case "show":
		if *name == "" {
			return usageError("keystore show --name <name>")
		}
		accounts, err := e.ks.ListAccounts(*name)
		if err != nil {
			return failed("keystore show", err)
		}
		return succeeded("keystore show", accounts)
	default:
		return usageError("unknown keystore command %q", args[0])
	}
}

func keystoreSave(ks *wallet.Keystore, name string) agent.Result {
	mnemonic, err := readPassword("Enter mnemonic: ")
	if err != nil {
		return failed("keystore save", err)
	}
	password, err := readNewPassword()
	if err != nil {
		return failed("keystore save", err)
	}
	entry, err := ks.Create(name, string(mnemonic), password, wallet.DefaultParams())
	if err != nil {
		return failed("keystore save", err)
	}
	return succeeded("keystore save", entry)
}

// ── Terminal input ──────────────────────────────────────────────────────

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, err
	}
	return password, nil
}

// readNewPassword prompts twice and requires both entries to match.
func readNewPassword() ([]byte, error) {
	password, err := readPassword("Enter password: ")
	if err != nil {
		return nil, err
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		return nil, err
	}
	if string(password) != string(confirm) {
		return nil, fmt.Errorf("%w: passwords do not match", agent.ErrInvalidArgument)
	}
	if len(password) == 0 {
		return nil, fmt.Errorf("%w: empty password", agent.ErrInvalidArgument)
	}
	return password, nil
}
