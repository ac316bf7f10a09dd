package notification

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"breakout-trader/internal/model"
)

// The alert bodies below mirror the channel's established box format:
// a titled header, a rule, backticked values, and an italic footer.

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// LoginSuccess announces a fresh broker session.
func LoginSuccess(username, accountName string) Alert {
	return Alert{
		Level: AlertInfo,
		Title: "✅ BROKER LOGIN SUCCESS",
		Message: fmt.Sprintf(
			"*User:* `%s`\n*Account Name:* %s\n*Status:* Logged in successfully\n\n🟢 _Session initialized and ready_",
			username, accountName),
	}
}

// Logout announces a logout; stillRunning warns that the engine was up.
func Logout(stillRunning bool) Alert {
	trading := "Stopped"
	footer := "🟢 _Session closed safely_"
	level := AlertInfo
	if stillRunning {
		trading = "Still running in background"
		footer = "⚠️ _Trading engine will be stopped now_"
		level = AlertWarning
	}
	return Alert{
		Level: level,
		Title: "🚪 USER LOGOUT",
		Message: fmt.Sprintf(
			"*Status:* Logged out successfully\n*Trading:* %s\n\n%s", trading, footer),
	}
}

// EligibilitySummary lists the sell-side eligible rows, closest to their
// trigger first.
func EligibilitySummary(rows []model.StockView) Alert {
	sorted := append([]model.StockView(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Percent < sorted[j].Percent })

	var b strings.Builder
	b.WriteString("🔻 *Sell-Side Eligible Stocks (Closest First)*\n")
	for i, st := range sorted {
		emoji := "🔴"
		switch {
		case st.Percent <= 1:
			emoji = "🟢"
		case st.Percent <= 3:
			emoji = "🟡"
		}
		fmt.Fprintf(&b, "\n📌 *%d. %s* %s\n", i+1, st.Symbol, emoji)
		fmt.Fprintf(&b, "   🆔 Token        : `%d`\n", st.Token)
		fmt.Fprintf(&b, "   🔼 Day High     : `%s`\n", num(st.High))
		fmt.Fprintf(&b, "   💰 Last Price   : `%s`\n", num(st.Last))
		fmt.Fprintf(&b, "   📈 *Move to High*: `%s%%`\n", num(st.Percent))
	}
	b.WriteString("\n🤖 _Sell-side monitoring in progress…_")

	return Alert{Level: AlertInfo, Title: "🚀 Trading Monitor Activated", Message: b.String()}
}

// PositionMonitorStarted announces the switch to position monitoring.
func PositionMonitorStarted(symbol string, side string, entry float64, qty int, target float64) Alert {
	return Alert{
		Level: AlertInfo,
		Title: "🎯 POSITION MONITOR STARTED",
		Message: fmt.Sprintf(
			"🏷 *Symbol*      : `%s`\n🔁 *Side*        : `%s`\n💰 *Entry Price* : `%s`\n📦 *Quantity*    : `%d`\n🎯 *Target*      : `%s`",
			symbol, side, num(entry), qty, num(target)),
	}
}

// OrderPlaced confirms an accepted order.
func OrderPlaced(symbol, side string, qty int, orderID string) Alert {
	return Alert{
		Level: AlertInfo,
		Title: "📤 ORDER PLACED SUCCESSFULLY",
		Message: fmt.Sprintf(
			"📌 *Symbol*      : `%s`\n🔻 *Side*        : `%s`\n📦 *Quantity*   : `%d`\n🧾 *Order ID*   : `%s`\n\n⚡ _Order sent to exchange via Algo Engine_",
			symbol, side, qty, orderID),
	}
}

// OrderFailed flags a rejected submission for immediate operator action.
func OrderFailed(symbol, side string, qty int) Alert {
	return Alert{
		Level: AlertCritical,
		Title: "❌ ORDER PLACEMENT FAILED",
		Message: fmt.Sprintf(
			"🏷 *Symbol*     : `%s`\n🔻 *Side*       : `%s`\n📦 *Quantity*  : `%d`\n⚠️ *Reason*    : `Not able to place order, check immediately`\n\n🛑 _Order NOT sent to exchange_",
			symbol, side, qty),
	}
}

// TargetHit reports a booked target exit.
func TargetHit(symbol string, qty int, price float64) Alert {
	return Alert{
		Level: AlertInfo,
		Title: "🎯 TARGET ACHIEVED",
		Message: fmt.Sprintf(
			"🏷 *Symbol*      : `%s`\n📦 *Quantity*    : `%d`\n💰 *Exit Price*  : `%s`\n\n✅ _Profit booked successfully_",
			symbol, qty, num(price)),
	}
}

// StopLossHit reports a stop-loss exit on a candle close.
func StopLossHit(symbol, side string, qty int, closePrice, sl float64) Alert {
	return Alert{
		Level: AlertWarning,
		Title: "⚠️ STOPLOSS TRIGGERED",
		Message: fmt.Sprintf(
			"🏷 *Symbol*        : `%s`\n🔁 *Side*          : `%s`\n📦 *Quantity*      : `%d`\n💰 *Exit Price*    : `%s`\n🛑 *Stop Loss*     : `%s`\n\n🔻 _Position exited to control risk_",
			symbol, side, qty, num(closePrice), num(sl)),
	}
}

// PositionClosed is the terminal notification for any exit reason.
func PositionClosed(symbol string, qty int, price float64, reason string) Alert {
	return Alert{
		Level: AlertInfo,
		Title: "🔒 POSITION CLOSED",
		Message: fmt.Sprintf(
			"🏷 *Symbol*      : `%s`\n📦 *Quantity*    : `%d`\n💰 *Exit Price*  : `%s`\n📋 *Reason*      : `%s`",
			symbol, qty, num(price), reason),
	}
}

// TestAlert is the operator-triggered channel check.
func TestAlert() Alert {
	return Alert{Level: AlertInfo, Title: "🚨 TEST ALERT", Message: "Sending test files"}
}

// EODReport closes out the test-alert file uploads.
func EODReport() Alert {
	return Alert{Level: AlertInfo, Title: "✅ Daily EOD Report", Message: "*Status:* Files successfully generated"}
}
