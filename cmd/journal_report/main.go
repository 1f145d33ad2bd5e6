package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"text/tabwriter"

	"brokerBot/internal/adapters/logger"
	"brokerBot/internal/adapters/sqlite"
	"brokerBot/internal/analytics"
	"brokerBot/internal/domain"
	"brokerBot/internal/utils"
)

func main() {
	dbPath := flag.String("db", os.Getenv("DB_PATH"), "path of the position journal")
	strategies := flag.String("strategy", os.Getenv("STRATEGY_ID"), "comma separated strategy ids")
	csvOut := flag.String("csv", "", "also export the positions of every strategy to this CSV file")
	monthly := flag.Bool("monthly", false, "print one line per month for every strategy")
	flag.Parse()

	if *dbPath == "" || *strategies == "" {
		flag.Usage()
		os.Exit(2)
	}

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: *dbPath, Logger: logger.NewNop()})
	if err != nil {
		log.Fatalf("Error opening journal: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	var all []*domain.Position
	perStrategy := make(map[string][]*domain.Position)
	ids := splitIDs(*strategies)
	for _, id := range ids {
		positions, err := repo.FindClosedByStrategy(ctx, id)
		if err != nil {
			log.Fatalf("Error reading positions of %s: %v", id, err)
		}
		perStrategy[id] = positions
		all = append(all, positions...)
	}

	printResults(os.Stdout, ids, perStrategy, *monthly)

	if *csvOut != "" {
		if err := utils.WritePositionsToCSV(analytics.SortByCloseDate(all), *csvOut); err != nil {
			log.Fatalf("Error writing %s: %v", *csvOut, err)
		}
		fmt.Printf("\nWrote %d positions to %s\n", len(all), *csvOut)
	}
}

func splitIDs(s string) []string {
	var ids []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// printResults writes one table row per strategy, optionally followed by its monthly rows.
func printResults(out io.Writer, ids []string, perStrategy map[string][]*domain.Position, monthly bool) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Strategy\tPeriod\tPositions\tWinRate\tAvgWin\tAvgLoss\tProfit\tPF\tMaxDD\t")

	for _, id := range ids {
		positions := analytics.SortByCloseDate(perStrategy[id])
		writeRow(w, id, "all", analytics.CalculateResults(positions))
		if !monthly {
			continue
		}
		for _, m := range analytics.MonthlyResults(positions) {
			writeRow(w, id, fmt.Sprintf("%04d-%02d", m.Year, m.Month), m.Result)
		}
	}
	w.Flush()
}

func writeRow(w io.Writer, id, period string, r domain.Result) {
	fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t\n",
		id, period, r.TotalPositions, r.WinRate, r.MoyennePositive, r.MoyenneNegative, r.Profit, r.ProfitFactor, r.DrawdownMax)
}
