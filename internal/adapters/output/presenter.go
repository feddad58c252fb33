package output

import (
	"sort"
	"time"

	"github.com/pterm/pterm"

	"fleetops/internal/core/domain"
)

// Presenter renders a report on an interactive console with pterm, grouping
// targets by their logical category.
type Presenter struct {
	noColor bool
}

// NewPresenter creates a console presenter.
func NewPresenter(noColor bool) *Presenter {
	if noColor {
		pterm.DisableColor()
	}
	return &Presenter{noColor: noColor}
}

// Write renders the report.
func (p *Presenter) Write(report domain.BatchReport) error {
	pterm.DefaultSection.Printf("%s — %d targets", report.Operation, report.Total)

	for _, category := range p.categories(report) {
		rows := pterm.TableData{{"Target", "Group", "Status", "Message"}}
		for _, r := range report.Results {
			if domain.CategoryOf(r.Group) != category {
				continue
			}
			rows = append(rows, []string{
				r.TargetName,
				r.Group,
				p.coloredStatus(r),
				truncate(r.Message, 80),
			})
		}

		pterm.DefaultSection.WithLevel(2).Println(category)
		if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
			return err
		}
	}

	if report.Failed == 0 {
		pterm.Success.Printf("all %d targets ok (%s)\n", report.Total, report.Duration.Round(time.Millisecond))
	} else {
		pterm.Warning.Printf("%d/%d targets failed\n", report.Failed, report.Total)
	}
	return nil
}

// categories returns the categories present in the report, sorted.
func (p *Presenter) categories(report domain.BatchReport) []string {
	seen := map[string]bool{}
	for _, r := range report.Results {
		seen[domain.CategoryOf(r.Group)] = true
	}
	categories := make([]string, 0, len(seen))
	for c := range seen {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	return categories
}

// coloredStatus colors the status cell by severity.
func (p *Presenter) coloredStatus(r domain.OperationResult) string {
	status := resultStatus(r)
	switch {
	case r.Success && r.Status.State != domain.StateError:
		return pterm.Green(status)
	case r.Status.State == domain.StateError:
		return pterm.Yellow(status)
	default:
		return pterm.Red(status)
	}
}

// truncate cuts on rune boundaries; device messages carry non-ASCII text.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
