package core

import (
	"strconv"

	"github.com/bytedance/sonic"

	"main/internal/orders"
	"main/internal/risk"
	"main/internal/schema"
)

// orderView is the console-facing order summary.
type orderView struct {
	OrderID      string             `json:"orderId"`
	AccountID    schema.AccountID   `json:"accountId"`
	StrategyID   schema.StrategyID  `json:"strategyId"`
	InstrumentID schema.InstrumentID `json:"instrumentId"`
	Side         string             `json:"side"`
	State        string             `json:"state"`
	Price        schema.Price       `json:"price"`
	Qty          schema.Quantity    `json:"qty"`
	CumQty       schema.Quantity    `json:"cumQty"`
}

// positionView is the console-facing counter summary.
type positionView struct {
	AccountID    schema.AccountID    `json:"accountId,omitempty"`
	StrategyID   schema.StrategyID   `json:"strategyId,omitempty"`
	InstrumentID schema.InstrumentID `json:"instrumentId"`
	OpenBid      schema.Quantity     `json:"openBid"`
	OpenAsk      schema.Quantity     `json:"openAsk"`
	NetPos       schema.Quantity     `json:"netPos"`
}

// execute runs on the actor goroutine and answers one console command.
func (e *Engine) execute(cmd schema.Command) schema.Command {
	switch cmd.SubType {
	case schema.CommandSubTypeListOrders:
		return e.listOrders(cmd)
	case schema.CommandSubTypeListPositions:
		return e.listPositions()
	case schema.CommandSubTypePnLSnapshot:
		strategyID := schema.StrategyID(paramUint32(cmd.Params, "strategyId"))
		return respond(cmd.SubType, e.pnl.PrintToString(strategyID))
	case schema.CommandSubTypeThrottleReset:
		e.throttle.Reset()
		if e.metrics != nil {
			e.metrics.SetThrottleLatched(false)
		}
		return respond(cmd.SubType, "throttle reset")
	case schema.CommandSubTypeUpdateAccount:
		return e.updateAccount(cmd)
	case schema.CommandSubTypeUpdateAccountInstrument:
		return e.updateInstrument(cmd)
	default:
		return respond(cmd.SubType, "unknown command")
	}
}

func (e *Engine) listOrders(cmd schema.Command) schema.Command {
	filter := orders.Filter{
		AccountID:    schema.AccountID(paramUint32(cmd.Params, "accountId")),
		StrategyID:   schema.StrategyID(paramUint32(cmd.Params, "strategyId")),
		InstrumentID: schema.InstrumentID(paramUint32(cmd.Params, "instrumentId")),
	}
	live := e.table.Orders(filter)
	views := make([]orderView, 0, len(live))
	for _, o := range live {
		views = append(views, orderView{
			OrderID:      o.ID.String(),
			AccountID:    o.AccountID,
			StrategyID:   o.StrategyID,
			InstrumentID: o.InstrumentID,
			Side:         o.Side.String(),
			State:        o.State.String(),
			Price:        o.Price,
			Qty:          o.Qty,
			CumQty:       o.CumQty,
		})
	}
	return respondJSON(cmd.SubType, views)
}

func (e *Engine) listPositions() schema.Command {
	type positions struct {
		Account  []positionView `json:"account"`
		Strategy []positionView `json:"strategy"`
	}
	var out positions
	for _, pos := range e.table.AccountPositions() {
		out.Account = append(out.Account, positionView{
			AccountID:    pos.AccountID,
			InstrumentID: pos.InstrumentID,
			OpenBid:      pos.OpenBid,
			OpenAsk:      pos.OpenAsk,
			NetPos:       pos.NetPos,
		})
	}
	for _, pos := range e.table.StrategyPositions() {
		out.Strategy = append(out.Strategy, positionView{
			StrategyID:   pos.StrategyID,
			InstrumentID: pos.InstrumentID,
			OpenBid:      pos.OpenBid,
			OpenAsk:      pos.OpenAsk,
			NetPos:       pos.NetPos,
		})
	}
	return respondJSON(schema.CommandSubTypeListPositions, out)
}

func (e *Engine) updateAccount(cmd schema.Command) schema.Command {
	accountID := schema.AccountID(paramUint32(cmd.Params, "accountId"))
	enabled := cmd.Params["enabled"] == "true"
	if !e.risk.ApplyUpdateAccount(accountID, enabled) {
		return respond(cmd.SubType, "account not managed here")
	}
	return respond(cmd.SubType, "account updated")
}

func (e *Engine) updateInstrument(cmd schema.Command) schema.Command {
	accountID := schema.AccountID(paramUint32(cmd.Params, "accountId"))
	instrumentID := schema.InstrumentID(paramUint32(cmd.Params, "instrumentId"))
	params := risk.InstrumentParams{
		TradeEnabled: cmd.Params["tradeEnabled"] == "true",
		ClipSize:     schema.Quantity(paramInt64(cmd.Params, "clipSize")),
		MaxPos:       schema.Quantity(paramInt64(cmd.Params, "maxPos")),
	}
	if !e.risk.ApplyUpdateInstrument(accountID, instrumentID, params) {
		return respond(cmd.SubType, "account not managed here")
	}
	return respond(cmd.SubType, "instrument updated")
}

func respond(subType schema.CommandSubType, body string) schema.Command {
	return schema.Command{
		Type:    schema.CommandTypeResponse,
		SubType: subType,
		Body:    body,
	}
}

func respondJSON(subType schema.CommandSubType, v any) schema.Command {
	body, err := sonic.MarshalString(v)
	if err != nil {
		return respond(subType, "encode response: "+err.Error())
	}
	return respond(subType, body)
}

func paramUint32(params map[string]string, key string) uint32 {
	v, err := strconv.ParseUint(params[key], 10, 32)
	if err != nil {
		return 0
	}
	return uint32(v)
}

func paramInt64(params map[string]string, key string) int64 {
	v, err := strconv.ParseInt(params[key], 10, 64)
	if err != nil {
		return 0
	}
	return int64(v)
}
