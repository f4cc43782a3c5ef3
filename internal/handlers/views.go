package handlers

import (
	"time"

	"lottery/internal/models"
)

// etherDecimals is the number of decimals between wei and ether.
const etherDecimals = 18

type lotteryView struct {
	ID                    uint64              `json:"id"`
	Name                  string              `json:"name"`
	Creator               string              `json:"creator"`
	State                 models.LotteryState `json:"state"`
	Ended                 bool                `json:"ended"`
	TicketPrice           string              `json:"ticketPrice"`
	TicketPriceEth        string              `json:"ticketPriceEth"`
	MaxTickets            uint64              `json:"maxTickets"`
	TicketsSold           uint64              `json:"ticketsSold"`
	TicketsLeft           uint64              `json:"ticketsLeft"`
	CommissionBasisPoints uint16              `json:"commissionBasisPoints"`
	Pot                   string              `json:"pot"`
	PotEth                string              `json:"potEth"`
	EndTime               time.Time           `json:"endTime"`
	Winner                string              `json:"winner,omitempty"`
	Description           models.ContentID    `json:"description,omitempty"`
}

func newLotteryView(l models.Lottery, now time.Time) lotteryView {
	v := lotteryView{
		ID:                    l.ID,
		Name:                  l.Name,
		Creator:               l.Creator.Hex(),
		State:                 l.State(),
		Ended:                 l.Ended(now),
		MaxTickets:            l.MaxTickets,
		TicketsSold:           l.TicketsSold,
		TicketsLeft:           l.TicketsLeft(),
		CommissionBasisPoints: l.CommissionBasisPoints,
		EndTime:               l.EndTime,
	}
	if l.TicketPrice != nil {
		v.TicketPrice = l.TicketPrice.String()
		v.TicketPriceEth = models.FormatUnits(l.TicketPrice, etherDecimals)
	}
	if l.Pot != nil {
		v.Pot = l.Pot.String()
		v.PotEth = models.FormatUnits(l.Pot, etherDecimals)
	}
	if l.HasWinner() {
		v.Winner = l.Winner.Hex()
	}
	if !l.DescriptionAnchor.IsZero() {
		v.Description = l.DescriptionAnchor
	}
	return v
}
