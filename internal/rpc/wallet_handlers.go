package rpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/Klingon-tech/vite-agent/internal/agent"
	"github.com/Klingon-tech/vite-agent/internal/wallet"
)

func (s *Server) handleWalletCreate(ctx context.Context, req *Request) (interface{}, *Error) {
	var p CreateParam
	if err := parseOptionalParams(req, &p); err != nil {
		return nil, err
	}
	if p.Name != "" {
		if s.keystore == nil {
			return nil, &Error{Code: CodeNotFound, Message: "keystore not enabled"}
		}
		if p.Password == "" {
			return nil, &Error{Code: CodeInvalidParams, Message: "password required to save a wallet"}
		}
	}

	res := s.agent.CreateWallet(ctx)
	if !res.OK || p.Name == "" {
		return res, nil
	}

	data, ok := res.Data.(agent.WalletData)
	if !ok {
		return nil, &Error{Code: CodeInternalError, Message: "unexpected create result"}
	}
	if _, err := s.keystore.Create(p.Name, data.Mnemonics, []byte(p.Password), s.keyParams); err != nil {
		return nil, keystoreError(err)
	}
	s.logger.Info().Str("wallet", p.Name).Str("address", data.Address.String()).Msg("Wallet saved to keystore")
	return res, nil
}

func (s *Server) handleWalletGetBalance(ctx context.Context, req *Request) (interface{}, *Error) {
	var p AddressParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	return s.agent.GetBalance(ctx, p.Address), nil
}

func (s *Server) handleWalletGetTransactions(ctx context.Context, req *Request) (interface{}, *Error) {
	var p TransactionsParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	return s.agent.GetTransactions(ctx, p.Address, p.Size, p.Index), nil
}

func (s *Server) handleWalletSend(ctx context.Context, req *Request) (interface{}, *Error) {
	var p SendParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	mnemonics, rpcErr := s.resolveSeed(p.SeedParam)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return s.agent.Send(ctx, mnemonics, p.Index, p.ToAddress, p.TokenID, p.Amount), nil
}

func (s *Server) handleWalletReceiveAll(ctx context.Context, req *Request) (interface{}, *Error) {
	var p ReceiveParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	mnemonics, rpcErr := s.resolveSeed(p.SeedParam)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if len(p.Indices) > 0 {
		return s.agent.ReceiveAllMany(ctx, mnemonics, p.Indices), nil
	}
	return s.agent.ReceiveAll(ctx, mnemonics, p.Index), nil
}

func (s *Server) handleWalletHistory(ctx context.Context, req *Request) (interface{}, *Error) {
	var p HistoryParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	return s.agent.History(ctx, p.Address, p.Limit), nil
}

func (s *Server) handleWalletList(req *Request) (interface{}, *Error) {
	if s.keystore == nil {
		return nil, &Error{Code: CodeNotFound, Message: "keystore not enabled"}
	}
	names, err := s.keystore.List()
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	out := make([]WalletInfo, 0, len(names))
	for _, name := range names {
		accounts, err := s.keystore.ListAccounts(name)
		if err != nil {
			return nil, keystoreError(err)
		}
		out = append(out, WalletInfo{Name: name, Accounts: accounts})
	}
	return out, nil
}

// resolveSeed returns the mnemonic a request signs with. An inline
// mnemonic is passed through untouched; validation is the agent's job.
func (s *Server) resolveSeed(p SeedParam) (string, *Error) {
	if p.Wallet == "" {
		return p.Mnemonics, nil
	}
	if p.Mnemonics != "" {
		return "", &Error{Code: CodeInvalidParams, Message: "give either mnemonics or wallet, not both"}
	}
	if s.keystore == nil {
		return "", &Error{Code: CodeNotFound, Message: "keystore not enabled"}
	}
	mnemonics, err := s.keystore.Load(p.Wallet, []byte(p.Password))
	if err != nil {
		return "", keystoreError(err)
	}
	return mnemonics, nil
}

func keystoreError(err error) *Error {
	switch {
	case errors.Is(err, wallet.ErrWalletNotFound):
		return &Error{Code: CodeNotFound, Message: err.Error()}
	case errors.Is(err, wallet.ErrWrongPassword),
		errors.Is(err, wallet.ErrWalletName),
		errors.Is(err, wallet.ErrWalletExists),
		errors.Is(err, wallet.ErrInvalidSeed):
		return &Error{Code: CodeInvalidParams, Message: err.Error()}
	default:
		return &Error{Code: CodeInternalError, Message: fmt.Sprintf("keystore: %v", err)}
	}
}
