package service

import (
	"fmt"
	"strings"

	"github.com/haulpoint/shopbot-go/internal/model"
)

// Callback data routed by the webhook handler.
const (
	CallbackMenuMain   = "menu:main"
	CallbackMenuAdd    = "menu:add"
	CallbackMenuSearch = "menu:search"
	CallbackMenuRecent = "menu:recent"
	CallbackMenuHelp   = "menu:help"

	CallbackAddPrefix        = "add:"
	CallbackSearchPagePrefix = "search:page:"
)

// Callback data consumed inside the add flow.
const (
	cbAddSave          = "add:save"
	cbAddEdit          = "add:edit"
	cbAddBack          = "add:back"
	cbAddCancel        = "add:cancel"
	cbAddServicesDone  = "add:svc:done"
	cbAddStaffPrefix   = "add:staff:"
	cbAddServicePrefix = "add:svc:"
	cbAddFieldPrefix   = "add:field:"
)

const genericFailureText = "Something went wrong on my end. Please try again."

func mainMenuButtons() [][]model.Button {
	return [][]model.Button{
		{
			{Label: "Add shop", Data: CallbackMenuAdd},
			{Label: "Find shops", Data: CallbackMenuSearch},
		},
		{
			{Label: "Recently added", Data: CallbackMenuRecent},
			{Label: "Help", Data: CallbackMenuHelp},
		},
	}
}

func cancelRow() [][]model.Button {
	return [][]model.Button{{{Label: "Cancel", Data: cbAddCancel}}}
}

// MainMenuReply is the standing menu shown between flows.
func MainMenuReply() model.Reply {
	return model.Reply{
		Text:    "What would you like to do?",
		Buttons: mainMenuButtons(),
	}
}

func WelcomeReply() model.Reply {
	return model.Reply{
		Text: "Welcome to the truck shop directory. I keep a shared list of repair shops " +
			"and can find the ones closest to you.\n\n" +
			"Send City, ST (like Dallas, TX) any time to search, or pick an option below.",
		Buttons: mainMenuButtons(),
	}
}

func HelpReply() model.Reply {
	return model.Reply{
		Text: "Here's what I can do:\n\n" +
			"/add - register a new truck shop step by step\n" +
			"/find - search for shops within 100 miles of a city\n" +
			"/recent - show the latest additions to the directory\n" +
			"/cancel - abandon whatever we're in the middle of\n\n" +
			"You can also just send City, ST (like Dallas, TX) or share your location " +
			"to search right away.",
		Buttons: mainMenuButtons(),
	}
}

func CancelledReply() model.Reply {
	return model.Reply{
		Text:    "Okay, cancelled. Nothing was saved.",
		Buttons: mainMenuButtons(),
	}
}

func NothingToCancelReply() model.Reply {
	return model.Reply{
		Text:    "Nothing to cancel right now.",
		Buttons: mainMenuButtons(),
	}
}

// ExpiredReply is sent when a button from a dead conversation is tapped.
func ExpiredReply() model.Reply {
	return model.Reply{
		Text:    "That conversation has expired. Let's start over.",
		Buttons: mainMenuButtons(),
	}
}

func UnknownInputReply() model.Reply {
	return model.Reply{
		Text:    "I didn't catch that. Send City, ST to search for shops, or pick an option below.",
		Buttons: mainMenuButtons(),
	}
}

func promptReply(step model.Step) model.Reply {
	spec, ok := textSteps[step]
	if !ok {
		return MainMenuReply()
	}
	return model.Reply{Text: spec.prompt, Buttons: cancelRow()}
}

func retryReply(message string, step model.Step) model.Reply {
	spec := textSteps[step]
	return model.Reply{
		Text:    message + "\n\n" + spec.prompt,
		Buttons: cancelRow(),
	}
}

func staffReply(warning string) model.Reply {
	row := make([]model.Button, 0, len(model.StaffTypes()))
	for _, staff := range model.StaffTypes() {
		row = append(row, model.Button{
			Label: string(staff),
			Data:  cbAddStaffPrefix + string(staff),
		})
	}

	text := "Who runs the shop?"
	if warning != "" {
		text = warning + "\n\n" + text
	}
	return model.Reply{
		Text:    text,
		Buttons: [][]model.Button{row, {{Label: "Cancel", Data: cbAddCancel}}},
	}
}

func servicesReply(selected []string, warning string) model.Reply {
	chosen := make(map[string]bool, len(selected))
	for _, tag := range selected {
		chosen[tag] = true
	}

	var rows [][]model.Button
	var row []model.Button
	for _, tag := range model.ServiceTags {
		label := tag
		if chosen[tag] {
			label = "[x] " + tag
		}
		row = append(row, model.Button{Label: label, Data: cbAddServicePrefix + tag})
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, []model.Button{
		{Label: "Done", Data: cbAddServicesDone},
		{Label: "Cancel", Data: cbAddCancel},
	})

	text := "Which services does the shop offer? Tap to toggle, then Done."
	if len(selected) > 0 {
		text += "\nSelected: " + strings.Join(selected, ", ")
	}
	if warning != "" {
		text = warning + "\n\n" + text
	}
	return model.Reply{Text: text, Buttons: rows}
}

func confirmReply(add *model.AddState, warning string) model.Reply {
	d := add.Draft

	var b strings.Builder
	if warning != "" {
		b.WriteString(warning)
		b.WriteString("\n\n")
	}
	b.WriteString("Here's what I have:\n\n")
	fmt.Fprintf(&b, "Name: %s\n", orDash(d.Name))
	fmt.Fprintf(&b, "Address: %s\n", orDash(d.Address))
	fmt.Fprintf(&b, "City: %s\n", orDash(d.City))
	fmt.Fprintf(&b, "State: %s\n", orDash(d.State))
	fmt.Fprintf(&b, "Phone: %s\n", orDash(d.Phone))
	fmt.Fprintf(&b, "Contact: %s\n", orDash(d.Contact))
	fmt.Fprintf(&b, "Staff: %s\n", orDash(string(d.Staff)))
	fmt.Fprintf(&b, "Services: %s\n", orDash(strings.Join(add.Services, ", ")))
	fmt.Fprintf(&b, "Notes: %s\n", orDash(d.Notes))
	b.WriteString("\nSave this shop?")

	return model.Reply{
		Text: b.String(),
		Buttons: [][]model.Button{
			{
				{Label: "Save", Data: cbAddSave},
				{Label: "Edit", Data: cbAddEdit},
				{Label: "Cancel", Data: cbAddCancel},
			},
		},
	}
}

func editMenuReply(warning string) model.Reply {
	fields := []struct {
		label string
		step  model.Step
	}{
		{"Name", model.StepName},
		{"Address", model.StepAddress},
		{"City", model.StepCity},
		{"State", model.StepState},
		{"Phone", model.StepPhone},
		{"Contact", model.StepContact},
		{"Staff", model.StepStaff},
		{"Services", model.StepServices},
		{"Notes", model.StepNotes},
	}

	var rows [][]model.Button
	var row []model.Button
	for _, f := range fields {
		row = append(row, model.Button{Label: f.label, Data: cbAddFieldPrefix + string(f.step)})
		if len(row) == 3 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, []model.Button{
		{Label: "Back", Data: cbAddBack},
		{Label: "Cancel", Data: cbAddCancel},
	})

	text := "Which field do you want to change?"
	if warning != "" {
		text = warning + "\n\n" + text
	}
	return model.Reply{Text: text, Buttons: rows}
}

func searchPromptReply() model.Reply {
	return model.Reply{
		Text:    "Where should I look? Send City, ST (like Dallas, TX) or share your location.",
		Buttons: cancelRow(),
	}
}

func renderResultsPage(set model.SearchResultSet, page int) model.Reply {
	total := len(set.Results)
	pages := (total + PageSize - 1) / PageSize
	if page < 0 {
		page = 0
	}
	if page >= pages {
		page = pages - 1
	}
	start := page * PageSize
	end := start + PageSize
	if end > total {
		end = total
	}

	var b strings.Builder
	noun := "shops"
	if total == 1 {
		noun = "shop"
	}
	fmt.Fprintf(&b, "Found %d %s within %.0f miles of %s.\n", total, noun, SearchRadiusMiles, set.Query)
	fmt.Fprintf(&b, "Showing %d-%d:\n", start+1, end)
	for i, res := range set.Results[start:end] {
		b.WriteString("\n")
		b.WriteString(renderResultBlock(start+i+1, res))
	}

	var nav []model.Button
	if page > 0 {
		nav = append(nav, model.Button{
			Label: "Prev",
			Data:  fmt.Sprintf("%s%d", CallbackSearchPagePrefix, page-1),
		})
	}
	if end < total {
		nav = append(nav, model.Button{
			Label: "Next",
			Data:  fmt.Sprintf("%s%d", CallbackSearchPagePrefix, page+1),
		})
	}

	var rows [][]model.Button
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	rows = append(rows, []model.Button{{Label: "Main menu", Data: CallbackMenuMain}})

	return model.Reply{Text: b.String(), Buttons: rows}
}

func renderResultBlock(n int, res model.SearchResult) string {
	rec := res.Record

	var b strings.Builder
	fmt.Fprintf(&b, "%d. %s (%.1f mi)\n", n, rec.Name, res.DistanceMiles)
	fmt.Fprintf(&b, "%s, %s, %s\n", rec.Address, rec.City, rec.State)
	fmt.Fprintf(&b, "Phone: %s", rec.Phone)
	if rec.Contact != "" {
		fmt.Fprintf(&b, " (%s)", rec.Contact)
	}
	b.WriteString("\n")
	if rec.Staff != "" {
		fmt.Fprintf(&b, "Staff: %s\n", rec.Staff)
	}
	if rec.Services != "" {
		fmt.Fprintf(&b, "Services: %s\n", rec.Services)
	}
	if rec.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", rec.Notes)
	}
	return b.String()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
