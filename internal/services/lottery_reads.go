package services

import (
	"context"
	"math/big"

	"lottery/internal/ledger"
	"lottery/internal/models"
)

// GetInfo reads lottery id live and returns the confirmed snapshot.
func (s *LotteryService) GetInfo(ctx context.Context, id uint64) (models.Lottery, error) {
	return s.cache.Refresh(ctx, id)
}

// WriteStatus polls the outcome of an accepted write once. A nil receipt means it
// is still pending.
func (s *LotteryService) WriteStatus(ctx context.Context, h ledger.Handle) (*ledger.Receipt, error) {
	return s.ledger.Status(ctx, h)
}

// Cached returns the last confirmed snapshot without a read.
func (s *LotteryService) Cached(id uint64) (models.Lottery, bool) {
	return s.cache.Get(id)
}

// GetMyTickets returns how many tickets who holds in lottery id.
func (s *LotteryService) GetMyTickets(ctx context.Context, id uint64, who models.Identity) (uint64, error) {
	return s.cache.RefreshMyTickets(ctx, id, who)
}

// GetParticipants returns the distinct identities holding tickets in lottery id.
func (s *LotteryService) GetParticipants(ctx context.Context, id uint64) ([]models.Identity, error) {
	return s.ledger.Participants(ctx, id)
}

// GetParticipantStats returns the ledger's counters for who.
func (s *LotteryService) GetParticipantStats(ctx context.Context, who models.Identity) (models.ParticipantStats, error) {
	return s.cache.RefreshParticipantStats(ctx, who)
}

// GetPendingWithdrawal returns the winnings who can still claim.
func (s *LotteryService) GetPendingWithdrawal(ctx context.Context, who models.Identity) (*big.Int, error) {
	return s.cache.RefreshPendingWithdrawal(ctx, who)
}

// ListAll returns every lottery ever created.
func (s *LotteryService) ListAll(ctx context.Context) ([]models.Lottery, error) {
	total, err := s.ledger.TotalLotteries(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, total)
	for id := uint64(0); id < total; id++ {
		ids = append(ids, id)
	}
	return s.load(ctx, ids)
}

// ListActive returns the lotteries still selling tickets.
func (s *LotteryService) ListActive(ctx context.Context) ([]models.Lottery, error) {
	ids, err := s.ledger.ActiveLotteries(ctx)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, ids)
}

// ListByCreator returns the lotteries created by creator.
func (s *LotteryService) ListByCreator(ctx context.Context, creator models.Identity) ([]models.Lottery, error) {
	ids, err := s.ledger.LotteriesByCreator(ctx, creator)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, ids)
}

// MyHoldings lists every lottery in which who holds at least one ticket.
func (s *LotteryService) MyHoldings(ctx context.Context, who models.Identity) ([]models.TicketHolding, error) {
	total, err := s.ledger.TotalLotteries(ctx)
	if err != nil {
		return nil, err
	}
	var holdings []models.TicketHolding
	for id := uint64(0); id < total; id++ {
		n, err := s.cache.RefreshMyTickets(ctx, id, who)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			holdings = append(holdings, models.TicketHolding{LotteryID: id, Quantity: n})
		}
	}
	return holdings, nil
}

func (s *LotteryService) load(ctx context.Context, ids []uint64) ([]models.Lottery, error) {
	out := make([]models.Lottery, 0, len(ids))
	for _, id := range ids {
		l, err := s.cache.Refresh(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}
