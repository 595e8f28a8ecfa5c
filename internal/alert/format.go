package alert

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// MoneyFormatter renders amounts with a currency symbol and grouping
type MoneyFormatter struct {
	symbol  string
	printer *message.Printer
}

// NewMoneyFormatter creates a new MoneyFormatter
func NewMoneyFormatter(symbol string) MoneyFormatter {
	return MoneyFormatter{
		symbol:  symbol,
		printer: message.NewPrinter(language.English),
	}
}

// Format renders amount with two decimals, e.g. ₦1,250.00
func (f MoneyFormatter) Format(amount decimal.Decimal) string {
	v, _ := amount.Round(2).Float64()

	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}

	return sign + f.symbol + f.printer.Sprint(number.Decimal(v, number.Scale(2)))
}

// Title returns the headline of an alert
func Title(a Alert) string {
	if a.Kind == KindSLABreach {
		return fmt.Sprintf("SLA Breached: %s", a.OrderNumber)
	}
	return "New Order Received!"
}

// Body returns the detail line of an alert
func (f MoneyFormatter) Body(a Alert) string {
	if a.Kind == KindSLABreach {
		return fmt.Sprintf("Order %s for %s has exceeded its %d minute SLA (%s)",
			a.OrderNumber, a.CustomerName, a.SLAMinutes, f.Format(a.Total))
	}
	return fmt.Sprintf("Order %s from %s - %s", a.OrderNumber, a.CustomerName, f.Format(a.Total))
}
