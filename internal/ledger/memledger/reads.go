package memledger

import (
	"context"
	"fmt"
	"math/big"

	"lottery/internal/ledger"
	"lottery/internal/models"
)

func (l *Ledger) readable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
	}
	if l.readErr != nil {
		return l.readErr
	}
	return nil
}

// LotteryInfo returns a copy of lottery id.
func (l *Ledger) LotteryInfo(ctx context.Context, id uint64) (models.Lottery, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.readable(ctx); err != nil {
		return models.Lottery{}, err
	}
	e, reason := l.find(id)
	if reason != "" {
		return models.Lottery{}, fmt.Errorf("lottery %d: %w", id, ledger.ErrNotFound)
	}
	return e.Clone(), nil
}

// TotalLotteries returns how many lotteries exist.
func (l *Ledger) TotalLotteries(ctx context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.readable(ctx); err != nil {
		return 0, err
	}
	return uint64(len(l.lotteries)), nil
}

// ActiveLotteries returns the ids of lotteries still selling tickets.
func (l *Ledger) ActiveLotteries(ctx context.Context) ([]uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.readable(ctx); err != nil {
		return nil, err
	}
	now := l.now()
	var ids []uint64
	for _, e := range l.lotteries {
		if !e.Closed && !e.Ended(now) {
			ids = append(ids, e.ID)
		}
	}
	return ids, nil
}

// LotteriesByCreator returns the ids of lotteries created by creator.
func (l *Ledger) LotteriesByCreator(ctx context.Context, creator models.Identity) ([]uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.readable(ctx); err != nil {
		return nil, err
	}
	var ids []uint64
	for _, e := range l.lotteries {
		if e.Creator == creator {
			ids = append(ids, e.ID)
		}
	}
	return ids, nil
}

// MyTickets returns the tickets who holds in lottery id; unknown lotteries hold none.
func (l *Ledger) MyTickets(ctx context.Context, id uint64, who models.Identity) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.readable(ctx); err != nil {
		return 0, err
	}
	e, reason := l.find(id)
	if reason != "" {
		return 0, nil
	}
	return e.tickets[who], nil
}

// Participants returns the participants of lottery id in order of first purchase.
func (l *Ledger) Participants(ctx context.Context, id uint64) ([]models.Identity, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.readable(ctx); err != nil {
		return nil, err
	}
	e, reason := l.find(id)
	if reason != "" {
		return nil, fmt.Errorf("lottery %d: %w", id, ledger.ErrNotFound)
	}
	return append([]models.Identity(nil), e.order...), nil
}

// ParticipantStats returns the counters of who.
func (l *Ledger) ParticipantStats(ctx context.Context, who models.Identity) (models.ParticipantStats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.readable(ctx); err != nil {
		return models.ParticipantStats{}, err
	}
	if st, ok := l.stats[who]; ok {
		return *st, nil
	}
	return models.ParticipantStats{}, nil
}

// PendingWithdrawal returns the unclaimed winnings of who.
func (l *Ledger) PendingWithdrawal(ctx context.Context, who models.Identity) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.readable(ctx); err != nil {
		return nil, err
	}
	return balance(l.pending, who), nil
}

// UserFile returns the anchor of who for kind, or the zero word when unset.
func (l *Ledger) UserFile(ctx context.Context, who models.Identity, kind models.AnchorKind) (models.ContentID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.readable(ctx); err != nil {
		return "", err
	}
	if id, ok := l.anchors[anchorKey{owner: who, kind: kind}]; ok {
		return id, nil
	}
	return "0x0000000000000000000000000000000000000000000000000000000000000000", nil
}
