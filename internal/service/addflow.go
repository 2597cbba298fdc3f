package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/haulpoint/shopbot-go/internal/model"
	"github.com/haulpoint/shopbot-go/internal/sheets"
)

// GeocodeFailNote is appended to a shop's notes when its address cannot be
// placed on the map at save time.
const GeocodeFailNote = "Could not locate address on map; shop will not appear in distance search"

// Geocoder resolves a free-form query to coordinates. A (nil, nil) return
// means the provider had no match.
type Geocoder interface {
	Lookup(ctx context.Context, query string) (*model.GeocodeResult, error)
}

// ShopWriter appends one serialized shop row to the directory.
type ShopWriter interface {
	Append(ctx context.Context, row []string) error
}

// ShopReader returns every shop in the directory.
type ShopReader interface {
	ReadAll(ctx context.Context) ([]model.ShopRecord, error)
}

// AddFlowService drives the add-shop wizard: one field per step, a staff
// picker, a services multi-select, and a confirmation screen with a one-field
// edit detour.
type AddFlowService struct {
	states   *StateStore
	shops    ShopWriter
	geocoder Geocoder
	journal  *JournalService
	now      func() time.Time
}

func NewAddFlowService(states *StateStore, shops ShopWriter, geocoder Geocoder, journal *JournalService) *AddFlowService {
	return &AddFlowService{
		states:   states,
		shops:    shops,
		geocoder: geocoder,
		journal:  journal,
		now:      time.Now,
	}
}

// Start begins a fresh wizard, replacing whatever flow was active.
func (s *AddFlowService) Start(ctx context.Context, key string) (model.Reply, error) {
	if err := s.states.Put(ctx, key, model.NewAddState()); err != nil {
		return model.Reply{}, err
	}
	return promptReply(model.StepName), nil
}

type textStep struct {
	prompt string
	parse  func(raw string) (value, errMsg string)
	assign func(draft *model.ShopRecord, value string)
}

var stateCodeRe = regexp.MustCompile(`^[A-Za-z]{2}$`)

var textSteps = map[model.Step]textStep{
	model.StepName: {
		prompt: "What's the shop called?",
		parse:  requireNonEmpty("the shop's name"),
		assign: func(d *model.ShopRecord, v string) { d.Name = v },
	},
	model.StepAddress: {
		prompt: "Street address?",
		parse:  requireNonEmpty("the street address"),
		assign: func(d *model.ShopRecord, v string) { d.Address = v },
	},
	model.StepCity: {
		prompt: "Which city is it in?",
		parse:  requireNonEmpty("the city"),
		assign: func(d *model.ShopRecord, v string) { d.City = v },
	},
	model.StepState: {
		prompt: "Which state? Two letters, like TX.",
		parse: func(raw string) (string, string) {
			if !stateCodeRe.MatchString(raw) {
				return "", "State should be a two-letter code like TX or OK."
			}
			return strings.ToUpper(raw), ""
		},
		assign: func(d *model.ShopRecord, v string) { d.State = v },
	},
	model.StepPhone: {
		prompt: "Phone number?",
		parse:  requireNonEmpty("a phone number"),
		assign: func(d *model.ShopRecord, v string) { d.Phone = v },
	},
	model.StepContact: {
		prompt: "Who should drivers ask for?",
		parse:  requireNonEmpty("a contact person"),
		assign: func(d *model.ShopRecord, v string) { d.Contact = v },
	},
	model.StepNotes: {
		prompt: "Any notes? Hours, gate codes, payment quirks. Send - to skip.",
		parse: func(raw string) (string, string) {
			if raw == "-" {
				return "", ""
			}
			return raw, ""
		},
		assign: func(d *model.ShopRecord, v string) { d.Notes = v },
	},
}

var addStepOrder = []model.Step{
	model.StepName,
	model.StepAddress,
	model.StepCity,
	model.StepState,
	model.StepPhone,
	model.StepContact,
	model.StepStaff,
	model.StepServices,
	model.StepNotes,
	model.StepConfirm,
}

func nextStep(step model.Step) model.Step {
	for i, s := range addStepOrder {
		if s == step && i+1 < len(addStepOrder) {
			return addStepOrder[i+1]
		}
	}
	return model.StepConfirm
}

// HandleText consumes a typed message while the wizard is active.
func (s *AddFlowService) HandleText(ctx context.Context, key string, st *model.FlowState, text string) (model.Reply, error) {
	add := st.Add
	if add == nil {
		return ExpiredReply(), s.states.Clear(ctx, key)
	}

	text = strings.TrimSpace(text)

	switch add.Step {
	case model.StepStaff:
		// The picker is button-driven, but an exact typed value works too.
		if staff, ok := model.ParseStaffType(text); ok {
			add.Draft.Staff = staff
			return s.afterFieldSet(ctx, key, st)
		}
		return staffReply("Please pick one of the options below."), nil

	case model.StepServices:
		return servicesReply(add.Services, "Use the buttons to toggle services, then tap Done."), nil

	case model.StepConfirm:
		return confirmReply(add, "Use the buttons: Save, Edit, or Cancel."), nil

	case model.StepEdit:
		return editMenuReply(""), nil
	}

	spec, ok := textSteps[add.Step]
	if !ok {
		log.Warn().Str("step", string(add.Step)).Str("conversation", key).Msg("conversation stuck on unknown step, resetting")
		return ExpiredReply(), s.states.Clear(ctx, key)
	}

	value, errMsg := spec.parse(text)
	if errMsg != "" {
		// Invalid input leaves the state untouched: same step, same draft.
		return retryReply(errMsg, add.Step), nil
	}

	spec.assign(&add.Draft, value)
	return s.afterFieldSet(ctx, key, st)
}

// afterFieldSet advances the wizard: linear progression normally, straight
// back to confirmation when the field was an edit detour.
func (s *AddFlowService) afterFieldSet(ctx context.Context, key string, st *model.FlowState) (model.Reply, error) {
	add := st.Add
	if add.Editing {
		add.Editing = false
		add.Step = model.StepConfirm
	} else {
		add.Step = nextStep(add.Step)
	}

	if err := s.states.Put(ctx, key, st); err != nil {
		return model.Reply{}, err
	}
	return s.replyForStep(add), nil
}

func (s *AddFlowService) replyForStep(add *model.AddState) model.Reply {
	switch add.Step {
	case model.StepStaff:
		return staffReply("")
	case model.StepServices:
		return servicesReply(add.Services, "")
	case model.StepConfirm:
		return confirmReply(add, "")
	case model.StepEdit:
		return editMenuReply("")
	default:
		return promptReply(add.Step)
	}
}

// HandleCallback consumes a button tap while the wizard is active. Stale taps
// from earlier screens re-render the current step instead of acting.
func (s *AddFlowService) HandleCallback(ctx context.Context, key string, st *model.FlowState, data string) (model.Reply, error) {
	add := st.Add
	if add == nil {
		return ExpiredReply(), s.states.Clear(ctx, key)
	}

	switch {
	case data == cbAddCancel:
		return s.Cancel(ctx, key)

	case data == cbAddServicesDone:
		if add.Step != model.StepServices {
			return s.replyForStep(add), nil
		}
		if len(add.Services) == 0 {
			return servicesReply(add.Services, "Pick at least one service first."), nil
		}
		return s.afterFieldSet(ctx, key, st)

	case strings.HasPrefix(data, cbAddStaffPrefix):
		if add.Step != model.StepStaff {
			return s.replyForStep(add), nil
		}
		staff, ok := model.ParseStaffType(strings.TrimPrefix(data, cbAddStaffPrefix))
		if !ok {
			return staffReply("Please pick one of the options below."), nil
		}
		add.Draft.Staff = staff
		return s.afterFieldSet(ctx, key, st)

	case strings.HasPrefix(data, cbAddServicePrefix):
		if add.Step != model.StepServices {
			return s.replyForStep(add), nil
		}
		tag := strings.TrimPrefix(data, cbAddServicePrefix)
		if !model.IsServiceTag(tag) {
			return servicesReply(add.Services, ""), nil
		}
		add.Services = toggleService(add.Services, tag)
		add.SaveWarned = false
		if err := s.states.Put(ctx, key, st); err != nil {
			return model.Reply{}, err
		}
		return servicesReply(add.Services, ""), nil

	case data == cbAddSave:
		if add.Step != model.StepConfirm {
			return s.replyForStep(add), nil
		}
		return s.save(ctx, key, st)

	case data == cbAddEdit:
		if add.Step != model.StepConfirm {
			return s.replyForStep(add), nil
		}
		add.Step = model.StepEdit
		if err := s.states.Put(ctx, key, st); err != nil {
			return model.Reply{}, err
		}
		return editMenuReply(""), nil

	case data == cbAddBack:
		if add.Step != model.StepEdit {
			return s.replyForStep(add), nil
		}
		add.Step = model.StepConfirm
		if err := s.states.Put(ctx, key, st); err != nil {
			return model.Reply{}, err
		}
		return confirmReply(add, ""), nil

	case strings.HasPrefix(data, cbAddFieldPrefix):
		if add.Step != model.StepEdit {
			return s.replyForStep(add), nil
		}
		field := model.Step(strings.TrimPrefix(data, cbAddFieldPrefix))
		if !isEditableStep(field) {
			return editMenuReply(""), nil
		}
		add.Step = field
		add.Editing = true
		if err := s.states.Put(ctx, key, st); err != nil {
			return model.Reply{}, err
		}
		return s.replyForStep(add), nil

	default:
		return s.replyForStep(add), nil
	}
}

// Cancel abandons the wizard and discards the draft.
func (s *AddFlowService) Cancel(ctx context.Context, key string) (model.Reply, error) {
	if err := s.states.Clear(ctx, key); err != nil {
		return model.Reply{}, err
	}
	return CancelledReply(), nil
}

func (s *AddFlowService) save(ctx context.Context, key string, st *model.FlowState) (model.Reply, error) {
	add := st.Add

	if missing := missingRequired(add); len(missing) > 0 {
		add.Step = model.StepEdit
		if err := s.states.Put(ctx, key, st); err != nil {
			return model.Reply{}, err
		}
		warning := "A few required fields are still empty: " + strings.Join(missing, ", ") + ". Pick one to fill in."
		return editMenuReply(warning), nil
	}

	if len(add.Services) == 0 && !add.SaveWarned {
		add.SaveWarned = true
		if err := s.states.Put(ctx, key, st); err != nil {
			return model.Reply{}, err
		}
		warning := "No services are selected. Tap Save again to store the shop anyway, or Edit to pick some."
		return confirmReply(add, warning), nil
	}

	rec := add.Draft
	rec.CreatedAt = s.now().UTC().Format(time.RFC3339)
	rec.Services = strings.Join(add.Services, ", ")

	query := fmt.Sprintf("%s, %s, %s", rec.Address, rec.City, rec.State)
	loc, err := s.geocoder.Lookup(ctx, query)
	if err != nil {
		log.Warn().Err(err).Str("conversation", key).Msg("geocode failed during save, storing without coordinates")
	}
	if loc != nil {
		rec.Coords = &model.Coordinates{Lat: loc.Lat, Lng: loc.Lng}
	} else {
		rec.Notes = appendNote(rec.Notes, GeocodeFailNote)
	}

	if err := s.shops.Append(ctx, sheets.RowFromRecord(rec)); err != nil {
		log.Error().Err(err).Str("conversation", key).Msg("append shop row failed")
		// The draft survives at the confirmation screen so Save can be retried.
		return confirmReply(add, "I couldn't save the shop just now. Tap Save to retry."), nil
	}

	s.journal.Record(ctx, model.JournalShopAdded, key, map[string]any{
		"name":     rec.Name,
		"city":     rec.City,
		"state":    rec.State,
		"geocoded": rec.Coords != nil,
	})

	if err := s.states.Clear(ctx, key); err != nil {
		log.Warn().Err(err).Str("conversation", key).Msg("clear state after save failed")
	}

	text := fmt.Sprintf("Saved! %s is now in the directory.", rec.Name)
	if rec.Coords == nil {
		text += "\n\nHeads up: I couldn't place the address on the map, so the shop won't show up in distance search."
	}
	return model.Reply{Text: text, Buttons: mainMenuButtons()}, nil
}

func missingRequired(add *model.AddState) []string {
	d := add.Draft

	var missing []string
	if d.Name == "" {
		missing = append(missing, "name")
	}
	if d.Address == "" {
		missing = append(missing, "address")
	}
	if d.City == "" {
		missing = append(missing, "city")
	}
	if d.State == "" {
		missing = append(missing, "state")
	}
	if d.Phone == "" {
		missing = append(missing, "phone")
	}
	if d.Contact == "" {
		missing = append(missing, "contact")
	}
	if d.Staff == "" {
		missing = append(missing, "staff")
	}
	return missing
}

func isEditableStep(step model.Step) bool {
	switch step {
	case model.StepName, model.StepAddress, model.StepCity, model.StepState,
		model.StepPhone, model.StepContact, model.StepStaff, model.StepServices, model.StepNotes:
		return true
	}
	return false
}

// toggleService flips a tag's membership, keeping the selection in canonical
// display order.
func toggleService(selected []string, tag string) []string {
	has := make(map[string]bool, len(selected)+1)
	for _, s := range selected {
		has[s] = true
	}
	has[tag] = !has[tag]

	out := make([]string, 0, len(selected)+1)
	for _, t := range model.ServiceTags {
		if has[t] {
			out = append(out, t)
		}
	}
	return out
}

func appendNote(notes, extra string) string {
	if notes == "" {
		return extra
	}
	return notes + " | " + extra
}

func requireNonEmpty(label string) func(string) (string, string) {
	return func(raw string) (string, string) {
		if raw == "" {
			return "", fmt.Sprintf("I still need %s.", label)
		}
		return raw, ""
	}
}
