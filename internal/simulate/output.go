package simulate

import (
	"fmt"
	"strconv"

	"github.com/pterm/pterm"

	"github.com/okian/crease/internal/domain/integrity"
	"github.com/okian/crease/internal/domain/model"
	"github.com/okian/crease/internal/domain/projection"
)

// output renders progress and the final scorecard to the terminal.
type output struct {
	quiet bool
}

func newOutput(quiet bool) *output {
	return &output{quiet: quiet}
}

func (o *output) header(matchID string, tier model.Tier, overs int) {
	if o.quiet {
		return
	}
	pterm.DefaultHeader.WithBackgroundStyle(pterm.BgGreen.ToStyle()).
		Printfln("Crease simulator: %s", matchID)
	pterm.Info.Printfln("Tier %s, %d overs", pterm.LightCyan(string(tier)), overs)
}

type spinner struct {
	s *pterm.SpinnerPrinter
}

func (o *output) spinner(text string) *spinner {
	if o.quiet {
		return &spinner{}
	}
	s, err := pterm.DefaultSpinner.Start(text)
	if err != nil {
		return &spinner{}
	}
	return &spinner{s: s}
}

func (s *spinner) update(text string) {
	if s.s != nil {
		s.s.UpdateText(text)
	}
}

func (s *spinner) success(text string) {
	if s.s != nil {
		s.s.Success(text)
	}
}

func (s *spinner) fail(text string) {
	if s.s != nil {
		s.s.Fail(text)
	}
}

func (o *output) scorecard(st projection.InningsState) {
	if o.quiet {
		return
	}
	pterm.Println()
	pterm.DefaultSection.Printfln("%s %d/%d (%s overs)", st.BattingTeamID, st.Runs, st.Wickets, st.Overs)

	batting := pterm.TableData{{"Batter", "R", "B", "4s", "6s", "SR", ""}}
	for _, b := range st.Batting {
		status := "not out"
		if b.IsOut {
			status = string(b.Dismissal)
		}
		batting = append(batting, []string{
			b.PlayerID, strconv.Itoa(b.Runs), strconv.Itoa(b.BallsFaced),
			strconv.Itoa(b.Fours), strconv.Itoa(b.Sixes), fmt.Sprintf("%.1f", b.StrikeRate), status,
		})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(batting).Render()

	bowling := pterm.TableData{{"Bowler", "O", "M", "R", "W", "Econ"}}
	for _, b := range st.Bowling {
		bowling = append(bowling, []string{
			b.PlayerID, b.Overs, strconv.Itoa(b.Maidens), strconv.Itoa(b.RunsConceded),
			strconv.Itoa(b.Wickets), fmt.Sprintf("%.2f", b.Economy),
		})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(bowling).Render()
	pterm.Printfln("Extras %d (w %d, nb %d, b %d, lb %d)",
		st.Extras.Total, st.Extras.Wides, st.Extras.NoBalls, st.Extras.Byes, st.Extras.LegByes)
}

func (o *output) summary(stats Stats, report integrity.Report) {
	if o.quiet {
		return
	}
	pterm.Println()
	pterm.Info.Printfln("%d deliveries, %d claims, %d disputes resolved, %d failures in %s",
		stats.Balls, stats.Claims, stats.Resolved, stats.Failed, stats.Duration.Round(1e6))
	if report.Valid {
		pterm.Success.Printfln("Ledger verified: %d balls, head %s", report.Checked, short(report.HeadHash))
		return
	}
	pterm.Error.Printfln("Ledger verification failed after %d balls", report.Checked)
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
