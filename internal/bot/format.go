package bot

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/example/nepbot/internal/excel"
	"github.com/example/nepbot/internal/sos"
	"github.com/example/nepbot/internal/streak"
	"github.com/example/nepbot/pkg/models"
)

// Callback data prefixes
const (
	callbackUsed     = "used"
	callbackFeedback = "fb"
	callbackDismiss  = "dismiss"
	callbackChild    = "child"
)

// callbackAction is a parsed inline button payload
type callbackAction struct {
	Kind     string
	ScriptID int64
	ChildID  int64
	Outcome  models.Outcome
}

// parseCallback decodes "used:<id>", "fb:<id>:<outcome>", "child:<id>" and "dismiss"
func parseCallback(data string) (callbackAction, error) {
	parts := strings.Split(data, ":")
	switch parts[0] {
	case callbackDismiss:
		if len(parts) != 1 {
			break
		}
		return callbackAction{Kind: callbackDismiss}, nil
	case callbackUsed:
		if len(parts) != 2 {
			break
		}
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || id <= 0 {
			return callbackAction{}, fmt.Errorf("invalid script id in callback %q", data)
		}
		return callbackAction{Kind: callbackUsed, ScriptID: id}, nil
	case callbackChild:
		if len(parts) != 2 {
			break
		}
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || id <= 0 {
			return callbackAction{}, fmt.Errorf("invalid child id in callback %q", data)
		}
		return callbackAction{Kind: callbackChild, ChildID: id}, nil
	case callbackFeedback:
		if len(parts) != 3 {
			break
		}
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || id <= 0 {
			return callbackAction{}, fmt.Errorf("invalid script id in callback %q", data)
		}
		outcome := models.Outcome(parts[2])
		if !outcome.Valid() {
			return callbackAction{}, fmt.Errorf("invalid outcome in callback %q", data)
		}
		return callbackAction{Kind: callbackFeedback, ScriptID: id, Outcome: outcome}, nil
	}
	return callbackAction{}, fmt.Errorf("unknown callback %q", data)
}

func feedbackButtons(scriptID int64) [][]MenuButton {
	return [][]MenuButton{{
		{Text: "✅ Worked", CallbackData: fmt.Sprintf("%s:%d:%s", callbackFeedback, scriptID, models.OutcomeWorked)},
		{Text: "📈 Progress", CallbackData: fmt.Sprintf("%s:%d:%s", callbackFeedback, scriptID, models.OutcomeProgress)},
		{Text: "⏳ Not yet", CallbackData: fmt.Sprintf("%s:%d:%s", callbackFeedback, scriptID, models.OutcomeNotYet)},
	}}
}

// scriptButtons are attached to every script card. The SOS card also gets a dismiss row.
func scriptButtons(scriptID int64, withDismiss bool) [][]MenuButton {
	rows := [][]MenuButton{{
		{Text: "🙋 I used it", CallbackData: fmt.Sprintf("%s:%d", callbackUsed, scriptID)},
	}}
	rows = append(rows, feedbackButtons(scriptID)...)
	if withDismiss {
		rows = append(rows, []MenuButton{{Text: "✖️ Dismiss", CallbackData: callbackDismiss}})
	}
	return rows
}

// childButtons has one row per child for switching the active child
func childButtons(children []models.Child) [][]MenuButton {
	rows := make([][]MenuButton, 0, len(children))
	for _, c := range children {
		rows = append(rows, []MenuButton{{Text: c.Name, CallbackData: fmt.Sprintf("%s:%d", callbackChild, c.ID)}})
	}
	return rows
}

func formatChildren(children []models.Child, activeID *int64) string {
	var sb strings.Builder
	sb.WriteString("👶 Your children:\n")
	for _, c := range children {
		mark := ""
		if activeID != nil && *activeID == c.ID {
			mark = " ⭐"
		}
		fmt.Fprintf(&sb, "\n%s (%s)%s", c.Name, c.BrainProfile, mark)
	}
	sb.WriteString("\n\nTap a name to make it active.")
	return sb.String()
}

func reasonText(r sos.Reason) string {
	switch r {
	case sos.ReasonExplicitFlag:
		return "You asked for help right now."
	case sos.ReasonKeywordMatch:
		return "That sounds hard. Try this first."
	case sos.ReasonRapidRepeat:
		return "Looks like nothing is landing yet. Start here."
	case sos.ReasonRecentFailure:
		return "The last one didn't work. Here's another way in."
	}
	return ""
}

// formatScript renders a script card
func formatScript(s *models.Script) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 %s\n", s.Title)
	if s.Category != "" {
		fmt.Fprintf(&sb, "Category: %s\n", s.Category)
	}
	if s.SituationTrigger != "" {
		fmt.Fprintf(&sb, "When: %s\n", s.SituationTrigger)
	}
	if phrases := s.Phrases(); len(phrases) > 0 {
		sb.WriteString("\nSay:\n")
		for i, p := range phrases {
			fmt.Fprintf(&sb, "%d. \"%s\"\n", i+1, p)
		}
	}
	if actions := s.Actions(); len(actions) > 0 {
		sb.WriteString("\nDo:\n")
		for _, a := range actions {
			fmt.Fprintf(&sb, "• %s\n", a)
		}
	}
	if s.NeurologicalTip != "" {
		fmt.Fprintf(&sb, "\n🧠 %s\n", s.NeurologicalTip)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// formatSOS renders the interrupting emergency card
func formatSOS(state sos.State) string {
	return fmt.Sprintf("🆘 %s\n\n%s", reasonText(state.Reason), formatScript(state.Script))
}

func formatSearchResults(query string, scripts []models.Script) string {
	if len(scripts) == 0 {
		return fmt.Sprintf("No scripts found for \"%s\". Send /sos if you need help right now.", query)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Scripts for \"%s\":\n", query)
	for _, s := range scripts {
		mark := ""
		if s.EmergencySuitable {
			mark = " 🆘"
		}
		fmt.Fprintf(&sb, "\n• %s%s", s.Title, mark)
		if s.SituationTrigger != "" {
			fmt.Fprintf(&sb, " (%s)", s.SituationTrigger)
		}
	}
	return sb.String()
}

// formatStats lists per-script feedback, best success rate first
func formatStats(stats map[int64]models.FeedbackStats, titles map[int64]string) string {
	if len(stats) == 0 {
		return "📊 No feedback yet. Use a script and tell me how it went."
	}
	ids := make([]int64, 0, len(stats))
	for id := range stats {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := stats[ids[i]], stats[ids[j]]
		if a.SuccessRate != b.SuccessRate {
			return a.SuccessRate > b.SuccessRate
		}
		return ids[i] < ids[j]
	})

	var sb strings.Builder
	sb.WriteString("📊 Your script results:\n")
	for _, id := range ids {
		st := stats[id]
		title := titles[id]
		if title == "" {
			title = fmt.Sprintf("Script #%d", id)
		}
		fmt.Fprintf(&sb, "\n%s\n%.0f%% worked · %d tries (✅ %d 📈 %d ⏳ %d)\n",
			title, st.SuccessRate, st.TotalCount, st.WorkedCount, st.ProgressCount, st.NotYetCount)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// formatStreak renders the streak summary and the current month calendar
func formatStreak(sum streak.Summary, weeks [][]streak.Day, now time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🔥 Current streak: %d\n🏆 Longest: %d\n📅 Days practiced: %d\n", sum.Current, sum.Longest, sum.TotalDays)
	if !sum.CompletedToday {
		sb.WriteString("Send /done after today's practice.\n")
	}
	fmt.Fprintf(&sb, "\n%s %d\nMo Tu We Th Fr Sa Su\n", now.Month(), now.Year())
	for _, week := range weeks {
		cells := make([]string, len(week))
		for i, d := range week {
			switch {
			case !d.InMonth:
				cells[i] = "  "
			case d.Completed:
				cells[i] = "✅"
			default:
				cells[i] = fmt.Sprintf("%2d", d.Date.Day())
			}
		}
		sb.WriteString(strings.Join(cells, " "))
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatImportResult(r *excel.ImportResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Import finished.\nProcessed: %d\nCreated: %d\nUpdated: %d\nSkipped: %d",
		r.TotalProcessed, r.Created, r.Updated, r.Skipped)
	const maxErrors = 10
	for i, e := range r.Errors {
		if i == maxErrors {
			fmt.Fprintf(&sb, "\n…and %d more errors", len(r.Errors)-maxErrors)
			break
		}
		fmt.Fprintf(&sb, "\n⚠️ %s", e)
	}
	return sb.String()
}

// parseProfile accepts brain profile names in any case
func parseProfile(s string) (string, bool) {
	p := strings.ToUpper(strings.TrimSpace(s))
	switch p {
	case models.ProfileIntense, models.ProfileDistracted, models.ProfileDefiant:
		return p, true
	}
	return "", false
}
