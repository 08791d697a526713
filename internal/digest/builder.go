// Package digest renders the session report: every item scored this
// session with its decision, plus the watched-topic counters.
package digest

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"time"

	"github.com/ibeckermayer/ytfilter/internal/ledger"
	"github.com/ibeckermayer/ytfilter/internal/types"
)

// WatchURL is the link target for a video id
const WatchURL = "https://www.youtube.com/watch?v="

// Builder creates session reports
type Builder struct {
	maxItems int
	template *template.Template
	now      func() time.Time
}

// New creates a new report builder. maxItems <= 0 includes every item.
func New(maxItems int) (*Builder, error) {
	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"band": bandClass,
	}).Parse(defaultTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	return &Builder{
		maxItems: maxItems,
		template: tmpl,
		now:      time.Now,
	}, nil
}

// Report is a rendered session report
type Report struct {
	Title     string
	HTMLBody  string
	PlainBody string
	ItemIDs   []string
	CreatedAt time.Time
}

// Input is what a report is built from
type Input struct {
	Items     []types.ScoredItem
	Views     map[string]types.ViewEntry
	Topics    []ledger.RankedTopic
	Threshold int
}

// ReportData is the template data structure
type ReportData struct {
	Title  string
	Date   string
	Items  []ItemData
	Topics []ledger.RankedTopic
	Stats  StatsData
}

// ItemData represents an item in the report template
type ItemData struct {
	Title   string
	Channel string
	URL     string
	Score   int
	Reason  string
	Views   int
	Hidden  bool
	Scored  bool
}

// StatsData contains report statistics
type StatsData struct {
	TotalScored int
	TotalHidden int
	NotScored   int
	Threshold   int
}

// Build creates a report. Items are listed by score, highest first.
func (b *Builder) Build(in Input) (*Report, error) {
	if len(in.Items) == 0 {
		return nil, fmt.Errorf("no items scored this session")
	}

	items := make([]types.ScoredItem, len(in.Items))
	copy(items, in.Items)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})

	now := b.now()
	data := ReportData{
		Title:  "YouTube Feed Filter - Session Report",
		Date:   now.Format("Monday, January 2 15:04"),
		Topics: in.Topics,
		Stats: StatsData{
			TotalScored: len(items),
			Threshold:   in.Threshold,
		},
	}

	for _, it := range items {
		hidden := it.Score < in.Threshold
		if hidden {
			data.Stats.TotalHidden++
		}
		if !it.Scored {
			data.Stats.NotScored++
		}
	}

	if b.maxItems > 0 && len(items) > b.maxItems {
		items = items[:b.maxItems]
	}

	ids := make([]string, len(items))
	data.Items = make([]ItemData, len(items))
	for i, it := range items {
		data.Items[i] = ItemData{
			Title:   truncate(it.Title, 120),
			Channel: it.Channel,
			URL:     WatchURL + it.ID,
			Score:   it.Score,
			Reason:  it.Reason,
			Views:   in.Views[it.ID].Count,
			Hidden:  it.Score < in.Threshold,
			Scored:  it.Scored,
		}
		ids[i] = it.ID
	}

	var htmlBuf bytes.Buffer
	if err := b.template.Execute(&htmlBuf, data); err != nil {
		return nil, fmt.Errorf("failed to render template: %w", err)
	}

	return &Report{
		Title:     data.Title,
		HTMLBody:  htmlBuf.String(),
		PlainBody: buildPlainText(data),
		ItemIDs:   ids,
		CreatedAt: now,
	}, nil
}

func bandClass(score int) string {
	switch {
	case score >= 70:
		return "high"
	case score >= 50:
		return "mid"
	default:
		return "low"
	}
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

func buildPlainText(data ReportData) string {
	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("%s\n%s\n\n", data.Title, data.Date))

	for i, it := range data.Items {
		state := "shown"
		if it.Hidden {
			state = "hidden"
		}
		buf.WriteString(fmt.Sprintf("%d. [%d %s] %s - %s\n", i+1, it.Score, state, it.Channel, it.Title))
		buf.WriteString(fmt.Sprintf("   %s (%dx) %s\n\n", it.Reason, it.Views, it.URL))
	}

	if len(data.Topics) > 0 {
		buf.WriteString("Watched topics:\n")
		for _, t := range data.Topics {
			buf.WriteString(fmt.Sprintf("  %s: %d\n", t.Topic, t.Count))
		}
	}

	return buf.String()
}

const defaultTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 720px; margin: 0 auto; padding: 20px; background: #f5f5f5; }
        .container { background: white; border-radius: 8px; padding: 20px; }
        h1 { color: #cc0000; margin-bottom: 5px; }
        h2 { color: #333; font-size: 16px; margin-top: 25px; }
        .date { color: #666; margin-bottom: 20px; }
        .item { border-bottom: 1px solid #eee; padding: 12px 0; display: flex; gap: 12px; align-items: baseline; }
        .item:last-child { border-bottom: none; }
        .item.hidden { opacity: 0.55; }
        .score { color: white; font-weight: bold; padding: 4px 10px; border-radius: 6px; min-width: 28px; text-align: center; }
        .score.high { background: #4CAF50; }
        .score.mid { background: #FF9800; }
        .score.low { background: #f44336; }
        .title { color: #333; text-decoration: none; font-weight: bold; }
        .channel { color: #666; font-size: 13px; }
        .reason { color: #666; font-style: italic; font-size: 13px; margin-top: 4px; }
        .topic { background: #fdecea; color: #cc0000; padding: 2px 8px; border-radius: 12px; font-size: 12px; margin-right: 5px; }
        .footer { margin-top: 20px; padding-top: 15px; border-top: 1px solid #eee; color: #999; font-size: 12px; text-align: center; }
    </style>
</head>
<body>
    <div class="container">
        <h1>{{.Title}}</h1>
        <div class="date">{{.Date}}</div>

        {{range .Items}}
        <div class="item{{if .Hidden}} hidden{{end}}">
            <span class="score {{band .Score}}">{{.Score}}</span>
            <div>
                <a href="{{.URL}}" class="title">{{.Title}}</a>
                <div class="channel">{{.Channel}} · seen {{.Views}}x{{if .Hidden}} · hidden{{end}}</div>
                <div class="reason">{{.Reason}}</div>
            </div>
        </div>
        {{end}}

        {{if .Topics}}
        <h2>Watched topics</h2>
        <div>{{range .Topics}}<span class="topic">{{.Topic}} ({{.Count}})</span>{{end}}</div>
        {{end}}

        <div class="footer">
            Scored {{.Stats.TotalScored}} · hidden {{.Stats.TotalHidden}} below {{.Stats.Threshold}} · {{.Stats.NotScored}} not scored · Generated by ytfilter
        </div>
    </div>
</body>
</html>`
