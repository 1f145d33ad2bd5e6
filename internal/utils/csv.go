package utils

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"brokerBot/internal/domain"
)

var positionHeader = []string{
	"id", "strategy_id", "order", "symbol", "side", "volume", "open_price", "close_price",
	"stop_loss", "take_profit", "profit", "date_open", "date_close", "reason_closed",
}

// WritePositionsToCSV writes closed positions to filename, one row per position.
func WritePositionsToCSV(positions []*domain.Position, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()
	return WritePositions(file, positions)
}

// WritePositions writes a header and one row per position to w.
func WritePositions(w io.Writer, positions []*domain.Position) error {
	writer := csv.NewWriter(w)

	// Write header
	writer.Write(positionHeader)

	for _, p := range positions {
		writer.Write([]string{
			p.ID,
			p.StrategyID,
			p.Order,
			p.Symbol,
			string(p.Side),
			formatFloat(p.Volume),
			formatFloat(p.OpenPrice),
			formatFloat(p.ClosePrice),
			formatFloat(p.StopLoss),
			formatFloat(p.TakeProfit),
			formatFloat(p.Profit),
			formatTime(p.DateOpen),
			formatTime(p.DateClose),
			string(p.ReasonClosed),
		})
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
