package risk

import (
	"fmt"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/orders"
	"main/internal/schema"
)

var (
	ErrNoAccount    = errors.New("risk: account not configured")
	ErrNoInstrument = errors.New("risk: no instrument parameters")
)

// InstrumentParams holds the per-(account,instrument) risk limits.
type InstrumentParams struct {
	TradeEnabled bool
	ClipSize     schema.Quantity
	MaxPos       schema.Quantity
}

// Config defines the risk parameters for one account.
type Config struct {
	AccountID   schema.AccountID
	Enabled     bool
	Instruments map[schema.InstrumentID]InstrumentParams
}

// PositionView provides the live position counters consulted by the
// gate.
type PositionView interface {
	AccountPosition(accountID schema.AccountID, instrumentID schema.InstrumentID) *orders.AccountInstrPos
}

// Gate performs pre-trade validation for one account. Modifies and
// cancels always pass: a modify only changes price and a cancel only
// reduces exposure.
type Gate struct {
	cfg       Config
	positions PositionView
}

// NewGate creates a risk gate. Missing configuration is a hard
// initialization failure, unlike runtime validation which soft-rejects.
func NewGate(cfg Config, positions PositionView) (*Gate, error) {
	if cfg.AccountID == 0 {
		return nil, ErrNoAccount
	}
	if len(cfg.Instruments) == 0 {
		return nil, ErrNoInstrument
	}
	if positions == nil {
		return nil, errors.New("risk: nil position view")
	}
	return &Gate{cfg: cfg, positions: positions}, nil
}

// AccountID returns the account this gate validates for.
func (g *Gate) AccountID() schema.AccountID {
	return g.cfg.AccountID
}

// SendNew validates a new order against the configured limits and the
// current position state.
func (g *Gate) SendNew(o *orders.Order) (bool, schema.Reject) {
	return g.check(o.AccountID, o.InstrumentID, o.Qty, o.Side)
}

// CanSend is the side-effect-free pre-check variant for collaborators
// that have no order constructed yet.
func (g *Gate) CanSend(accountID schema.AccountID, instrumentID schema.InstrumentID, qty schema.Quantity, side schema.OrderSide) (bool, schema.Reject) {
	return g.check(accountID, instrumentID, qty, side)
}

func (g *Gate) check(accountID schema.AccountID, instrumentID schema.InstrumentID, qty schema.Quantity, side schema.OrderSide) (bool, schema.Reject) {
	if accountID != g.cfg.AccountID {
		return false, schema.GetRej(schema.RejectReasonAccountMismatch,
			fmt.Sprintf("account %d :: gate %d", accountID, g.cfg.AccountID))
	}
	if !g.cfg.Enabled {
		return false, schema.GetRej(schema.RejectReasonAccountDisabled,
			fmt.Sprintf("account %d", accountID))
	}
	params, ok := g.cfg.Instruments[instrumentID]
	if !ok {
		return false, schema.GetRej(schema.RejectReasonInstrumentUnknown,
			fmt.Sprintf("instrument %d", instrumentID))
	}
	if !params.TradeEnabled {
		return false, schema.GetRej(schema.RejectReasonInstrumentDisabled,
			fmt.Sprintf("instrument %d", instrumentID))
	}
	if params.ClipSize > 0 && qty > params.ClipSize {
		return false, schema.GetRej(schema.RejectReasonClipSize,
			fmt.Sprintf("%d :: %d", qty, params.ClipSize))
	}

	pos := g.positions.AccountPosition(accountID, instrumentID)
	var exposure schema.Quantity
	switch side {
	case schema.OrderSideBuy:
		exposure = pos.NetPos + pos.OpenBid
	case schema.OrderSideSell:
		exposure = -pos.NetPos + pos.OpenAsk
	}
	if params.MaxPos > 0 && exposure > params.MaxPos {
		return false, schema.GetRej(schema.RejectReasonMaxPosition,
			fmt.Sprintf("%d :: %d", exposure, params.MaxPos))
	}
	return true, schema.Reject{}
}

// ApplyUpdateAccount hot-updates the account enable flag. Updates for
// other accounts are ignored.
func (g *Gate) ApplyUpdateAccount(accountID schema.AccountID, enabled bool) bool {
	if accountID != g.cfg.AccountID {
		return false
	}
	g.cfg.Enabled = enabled
	logs.Infof("risk account %d enabled=%t", accountID, enabled)
	return true
}

// ApplyUpdateInstrument hot-updates one instrument's parameters.
// Updates for other accounts are ignored.
func (g *Gate) ApplyUpdateInstrument(accountID schema.AccountID, instrumentID schema.InstrumentID, params InstrumentParams) bool {
	if accountID != g.cfg.AccountID {
		return false
	}
	g.cfg.Instruments[instrumentID] = params
	logs.Infof("risk instrument %d updated: enabled=%t clip=%d maxPos=%d",
		instrumentID, params.TradeEnabled, params.ClipSize, params.MaxPos)
	return true
}

// InstrumentParamsFor returns the configured parameters, if present.
func (g *Gate) InstrumentParamsFor(instrumentID schema.InstrumentID) (InstrumentParams, bool) {
	params, ok := g.cfg.Instruments[instrumentID]
	return params, ok
}
