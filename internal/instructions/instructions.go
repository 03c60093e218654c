// Package instructions applies a batch feed of banking operations, one
// JSON object per line, to the settlement service. It is the
// non-interactive ingress for the daemon; malformed or rejected lines
// are counted and logged, never fatal.
package instructions

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atlasbank/settlement-core/internal/bank"
	"github.com/atlasbank/settlement-core/internal/domain"
	"github.com/atlasbank/settlement-core/internal/logging"
)

const (
	OpDeposit  = "deposit"
	OpWithdraw = "withdraw"
	OpTransfer = "transfer"
	OpUndo     = "undo"
	OpRedo     = "redo"
)

// Instruction is one line of the feed.
type Instruction struct {
	Op          string          `json:"op"`
	Account     string          `json:"account"`
	Dest        string          `json:"dest,omitempty"`
	Amount      decimal.Decimal `json:"amount,omitempty"`
	Description string          `json:"description,omitempty"`
	Actor       string          `json:"actor,omitempty"`
}

type service interface {
	ProcessDeposit(ctx context.Context, accountNumber string, amount decimal.Decimal, description string) (*domain.Transaction, error)
	ProcessWithdrawal(ctx context.Context, accountNumber string, amount decimal.Decimal, description string) (*domain.Transaction, error)
	ProcessTransfer(ctx context.Context, sourceNumber, destNumber string, amount decimal.Decimal, description string) (*domain.Transaction, error)
	Undo(ctx context.Context, accountID uuid.UUID) (*domain.Transaction, bool, error)
	Redo(ctx context.Context, accountID uuid.UUID) (*domain.Transaction, bool, error)
}

type accountResolver interface {
	GetByNumber(number string) (*domain.Account, error)
}

// Result summarizes one feed run.
type Result struct {
	Applied   int
	Rejected  int
	Malformed int
}

type Applier struct {
	svc      service
	accounts accountResolver
}

func NewApplier(svc service, accounts accountResolver) *Applier {
	return &Applier{svc: svc, accounts: accounts}
}

// Apply reads the feed to EOF and applies each instruction in order.
// Stops early only when ctx is cancelled.
func (a *Applier) Apply(ctx context.Context, r io.Reader) (Result, error) {
	var res Result
	log := logging.FromContext(ctx)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("Apply: %w", err)
		}
		line++

		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var inst Instruction
		if err := json.Unmarshal([]byte(text), &inst); err != nil {
			res.Malformed++
			log.Warn("malformed instruction skipped", "line", line, "error", err)
			continue
		}

		if err := a.applyOne(ctx, inst); err != nil {
			res.Rejected++
			log.Warn("instruction rejected", "line", line, "op", inst.Op, "account", inst.Account, "error", err)
			continue
		}
		res.Applied++
	}
	if err := scanner.Err(); err != nil {
		return res, fmt.Errorf("Apply: read: %w", err)
	}
	return res, nil
}

func (a *Applier) applyOne(ctx context.Context, inst Instruction) error {
	if inst.Actor != "" {
		ctx = bank.WithActor(ctx, inst.Actor)
	}

	switch inst.Op {
	case OpDeposit:
		_, err := a.svc.ProcessDeposit(ctx, inst.Account, inst.Amount, inst.Description)
		return err
	case OpWithdraw:
		_, err := a.svc.ProcessWithdrawal(ctx, inst.Account, inst.Amount, inst.Description)
		return err
	case OpTransfer:
		_, err := a.svc.ProcessTransfer(ctx, inst.Account, inst.Dest, inst.Amount, inst.Description)
		return err
	case OpUndo:
		account, err := a.accounts.GetByNumber(inst.Account)
		if err != nil {
			return err
		}
		_, _, err = a.svc.Undo(ctx, account.ID)
		return err
	case OpRedo:
		account, err := a.accounts.GetByNumber(inst.Account)
		if err != nil {
			return err
		}
		_, _, err = a.svc.Redo(ctx, account.ID)
		return err
	default:
		return fmt.Errorf("unknown op %q", inst.Op)
	}
}
