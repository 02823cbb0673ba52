package menu

import (
	"fmt"
	"html"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/menukit/menu/payload"
)

// PageSize is how many content buttons fit on one page.
const PageSize = 10

// buttonsPerRow is how many content buttons share a keyboard row.
const buttonsPerRow = 2

// Pages returns how many pages n content buttons occupy, at least one.
func Pages(n int) int {
	if n <= 0 {
		return 1
	}
	return (n + PageSize - 1) / PageSize
}

// ClampPage forces page into [0, pages).
func ClampPage(page, pages int) int {
	if page < 0 {
		return 0
	}
	if page >= pages {
		return pages - 1
	}
	return page
}

// ContentCount returns how many content buttons a definition declares.
func ContentCount(def Definition) int {
	switch d := def.(type) {
	case *Navigation:
		return len(d.Destinations)
	case *Checkbox:
		return len(d.Options)
	case *Radio:
		return len(d.Options)
	}
	return 0
}

// Rendered is a menu ready for sending: message text plus reply markup.
type Rendered struct {
	Text   string
	Markup *tele.ReplyMarkup
}

// Render resolves a definition against a conversation context and produces
// the message to display. ctx.Page is clamped, never rejected.
func Render(def Definition, ctx *Context) (Rendered, error) {
	text, err := renderText(def, ctx)
	if err != nil {
		return Rendered{}, err
	}

	content, err := contentButtons(def, ctx)
	if err != nil {
		return Rendered{}, err
	}

	markup := &tele.ReplyMarkup{}
	if content == nil && controlRow(def) == nil && awaitsReply(def) {
		return Rendered{Text: text, Markup: ForceReply()}, nil
	}

	pages := Pages(len(content))
	page := ClampPage(ctx.Page, pages)
	start := page * PageSize
	end := start + PageSize
	if end > len(content) {
		end = len(content)
	}

	var rows [][]tele.InlineButton
	rows = append(rows, chunkInline(content[start:end], buttonsPerRow)...)
	if pages > 1 {
		rows = append(rows, paginationRow(def.ID(), page, pages))
	}
	if row := controlRow(def); row != nil {
		rows = append(rows, row)
	}
	markup.InlineKeyboard = rows
	return Rendered{Text: text, Markup: markup}, nil
}

func awaitsReply(def Definition) bool {
	return def.Kind() == KindText || def.Kind() == KindUpload
}

func renderText(def Definition, ctx *Context) (string, error) {
	base := def.Common()
	title, err := base.Title.Resolve(ctx)
	if err != nil {
		return "", fmt.Errorf("menu: resolve title of %q: %w", def.ID(), err)
	}
	text := "<b>" + html.EscapeString(title) + "</b>"
	if base.Description.IsSet() {
		desc, err := base.Description.Resolve(ctx)
		if err != nil {
			return "", fmt.Errorf("menu: resolve description of %q: %w", def.ID(), err)
		}
		if desc != "" {
			text += "\n" + html.EscapeString(desc)
		}
	}
	return text, nil
}

func contentButtons(def Definition, ctx *Context) ([]tele.InlineButton, error) {
	switch d := def.(type) {
	case *Navigation:
		buttons := make([]tele.InlineButton, 0, len(d.Destinations))
		for _, dest := range d.Destinations {
			target := NormalizeID(dest.MenuID)
			label, err := dest.Label.ResolveOr(ctx, destinationTitle(ctx, target))
			if err != nil {
				return nil, fmt.Errorf("menu: resolve destination label on %q: %w", def.ID(), err)
			}
			buttons = append(buttons, dataButton(label, payload.NewGoto(target)))
		}
		return buttons, nil
	case *Checkbox:
		checks := checkboxState(d, ctx)
		buttons := make([]tele.InlineButton, 0, len(d.Options))
		for _, o := range d.Options {
			marker := markerUnchecked
			if checks[o.Key] {
				marker = markerChecked
			}
			buttons = append(buttons, dataButton(marker+" "+optionLabel(o.Label, o.Key), payload.NewCheck(d.ID(), o.Key)))
		}
		return buttons, nil
	case *Radio:
		selected := radioState(d, ctx)
		buttons := make([]tele.InlineButton, 0, len(d.Options))
		for _, o := range d.Options {
			marker := markerRadioOff
			if o.Key == selected {
				marker = markerRadioOn
			}
			buttons = append(buttons, dataButton(marker+" "+optionLabel(o.Label, o.Key), payload.NewRadio(d.ID(), o.Key)))
		}
		return buttons, nil
	default:
		return nil, nil
	}
}

// destinationTitle resolves the target menu's title for an unlabeled goto
// button. Unknown targets keep the raw id so the problem stays visible.
func destinationTitle(ctx *Context, target string) string {
	if ctx == nil || ctx.Lookup == nil {
		return target
	}
	def := ctx.Lookup(target)
	if def == nil {
		return target
	}
	title, err := def.Common().Title.Resolve(ctx)
	if err != nil || title == "" {
		return target
	}
	return title
}

func optionLabel(label, key string) string {
	if label == "" {
		return key
	}
	return label
}

// checkboxState returns the working toggle map for rendering, falling back to
// declared defaults when the conversation has none yet.
func checkboxState(d *Checkbox, ctx *Context) map[string]bool {
	if ctx != nil && ctx.Data != nil {
		if m := ctx.Data.Menu(d.ID()); m != nil && m.HasData() {
			var checks map[string]bool
			if err := m.DecodeData(&checks); err == nil {
				return checks
			}
		}
	}
	return d.Defaults()
}

// radioState returns the selected key for rendering, falling back to the
// declared default.
func radioState(d *Radio, ctx *Context) string {
	if ctx != nil && ctx.Data != nil {
		if m := ctx.Data.Menu(d.ID()); m != nil && m.HasData() {
			var key string
			if err := m.DecodeData(&key); err == nil {
				return key
			}
		}
	}
	return d.Default()
}

// paginationRow builds the page switcher: a previous arrow when there is a
// previous page, up to two numbered shortcuts on each side of the current
// page and a next arrow when there is a next page.
func paginationRow(menuID string, page, pages int) []tele.InlineButton {
	row := make([]tele.InlineButton, 0, 7)
	if page > 0 {
		row = append(row, dataButton("«", payload.NewPage(menuID, page-1)))
	}

	lo := page - 2
	if lo < 0 {
		lo = 0
	}
	hi := page + 2
	if hi >= pages {
		hi = pages - 1
	}
	for p := lo; p <= hi; p++ {
		label := strconv.Itoa(p + 1)
		if p == page {
			label = "·" + label + "·"
		}
		row = append(row, dataButton(label, payload.NewPage(menuID, p)))
	}

	if page < pages-1 {
		row = append(row, dataButton("»", payload.NewPage(menuID, page+1)))
	}
	return row
}
