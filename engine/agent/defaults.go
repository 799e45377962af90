package agent

import (
	"context"

	"github.com/agentforge-io/agentforge/engine/core"
	"github.com/agentforge-io/agentforge/engine/wallet"
	"github.com/agentforge-io/agentforge/pkg/logger"
)

// defaultDecisionMaker approves everything and signs with the wallet's
// main keys. Projects needing human-in-the-loop arbitration register
// their own implementation instead.
type defaultDecisionMaker struct {
	identity *wallet.Identity
	wallet   *wallet.Wallet
	log      logger.Logger
}

func newDefaultDecisionMaker(identity *wallet.Identity, w *wallet.Wallet, log logger.Logger) (DecisionMaker, error) {
	return &defaultDecisionMaker{identity: identity, wallet: w, log: log}, nil
}

func (d *defaultDecisionMaker) Name() string { return DefaultCollaborator }

func (d *defaultDecisionMaker) Start(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (d *defaultDecisionMaker) Stop() error { return nil }

// Sign signs a message on the given ledger with the wallet's main key.
func (d *defaultDecisionMaker) Sign(ledger string, message []byte) ([]byte, error) {
	crypto, ok := d.wallet.Main.Crypto(ledger)
	if !ok {
		return nil, core.NewError(
			nil,
			core.CodeNotFound,
			map[string]any{"ledger": ledger},
		)
	}
	return crypto.Sign(message)
}

// defaultErrorHandler logs and moves on.
type defaultErrorHandler struct {
	log logger.Logger
}

func newDefaultErrorHandler(log logger.Logger) (ErrorHandler, error) {
	return &defaultErrorHandler{log: log}, nil
}

func (h *defaultErrorHandler) Name() string { return DefaultCollaborator }

func (h *defaultErrorHandler) OnUnsupportedProtocol(_ context.Context, protocolID core.PublicId) error {
	if h.log != nil {
		h.log.Warn("received envelope on unsupported protocol", "protocol", protocolID.String())
	}
	return nil
}

func (h *defaultErrorHandler) OnNoActiveHandler(_ context.Context, reason string) error {
	if h.log != nil {
		h.log.Warn("no active handler for envelope", "reason", reason)
	}
	return nil
}
