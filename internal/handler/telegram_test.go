package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haulpoint/shopbot-go/internal/kv"
	"github.com/haulpoint/shopbot-go/internal/model"
	"github.com/haulpoint/shopbot-go/internal/service"
)

type sentReply struct {
	chatID int64
	reply  model.Reply
}

type sentAck struct {
	id    string
	toast string
}

type fakeSender struct {
	sends []sentReply
	acks  []sentAck
}

func (f *fakeSender) SendReply(_ context.Context, chatID int64, reply model.Reply) error {
	f.sends = append(f.sends, sentReply{chatID: chatID, reply: reply})
	return nil
}

func (f *fakeSender) AnswerCallback(_ context.Context, id, toast string) error {
	f.acks = append(f.acks, sentAck{id: id, toast: toast})
	return nil
}

type stubGeocoder struct {
	result *model.GeocodeResult
	err    error
}

func (s *stubGeocoder) Lookup(_ context.Context, _ string) (*model.GeocodeResult, error) {
	return s.result, s.err
}

// stubShops backs both the reader and writer side of the directory.
type stubShops struct {
	records []model.ShopRecord
	rows    [][]string
}

func (s *stubShops) ReadAll(_ context.Context) ([]model.ShopRecord, error) {
	return s.records, nil
}

func (s *stubShops) Append(_ context.Context, row []string) error {
	s.rows = append(s.rows, append([]string(nil), row...))
	return nil
}

func shopNear(name string) model.ShopRecord {
	return model.ShopRecord{
		CreatedAt: "2024-03-15T10:30:00Z",
		Name:      name,
		Address:   "1 Main St",
		City:      "Dallas",
		State:     "TX",
		Phone:     "214-555-0100",
		Coords:    &model.Coordinates{Lat: 32.05, Lng: -96.0},
	}
}

type webhookFixture struct {
	handler *TelegramHandler
	bot     *fakeSender
	states  *service.StateStore
	shops   *stubShops
}

func newWebhookFixture() *webhookFixture {
	mem := kv.NewMemory()
	states := service.NewStateStore(mem, time.Hour)
	shops := &stubShops{}
	geocoder := &stubGeocoder{
		result: &model.GeocodeResult{Coordinates: model.Coordinates{Lat: 32.0, Lng: -96.0}},
	}

	addFlow := service.NewAddFlowService(states, shops, geocoder, nil)
	search := service.NewSearchService(states, shops, geocoder, mem, nil, 15*time.Minute)
	recent := service.NewRecentService(shops)
	bot := &fakeSender{}

	return &webhookFixture{
		handler: NewTelegramHandler(states, addFlow, search, recent, bot),
		bot:     bot,
		states:  states,
		shops:   shops,
	}
}

func (fx *webhookFixture) post(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(body))
	w := httptest.NewRecorder()
	fx.handler.Webhook(w, req)
	return w
}

func (fx *webhookFixture) lastReply(t *testing.T) model.Reply {
	t.Helper()
	require.NotEmpty(t, fx.bot.sends, "expected a reply to be sent")
	return fx.bot.sends[len(fx.bot.sends)-1].reply
}

func messageUpdate(chatID, userID int64, text string) string {
	return fmt.Sprintf(
		`{"update_id":1,"message":{"message_id":7,"from":{"id":%d},"chat":{"id":%d},"text":%q}}`,
		userID, chatID, text,
	)
}

func locationUpdate(chatID, userID int64, lat, lng float64) string {
	return fmt.Sprintf(
		`{"update_id":1,"message":{"message_id":7,"from":{"id":%d},"chat":{"id":%d},"location":{"latitude":%g,"longitude":%g}}}`,
		userID, chatID, lat, lng,
	)
}

func callbackUpdate(chatID, userID int64, data string) string {
	return fmt.Sprintf(
		`{"update_id":2,"callback_query":{"id":"cb1","from":{"id":%d},"message":{"message_id":7,"chat":{"id":%d}},"data":%q}}`,
		userID, chatID, data,
	)
}

func TestWebhook_RejectsBadJSON(t *testing.T) {
	fx := newWebhookFixture()

	w := fx.post(t, "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, fx.bot.sends)
}

func TestWebhook_IgnoresEmptyUpdate(t *testing.T) {
	fx := newWebhookFixture()

	w := fx.post(t, `{"update_id":5}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, fx.bot.sends)
}

func TestWebhook_StartCommand(t *testing.T) {
	fx := newWebhookFixture()

	w := fx.post(t, messageUpdate(100, 42, "/start"))
	assert.Equal(t, http.StatusOK, w.Code)

	reply := fx.lastReply(t)
	assert.Equal(t, int64(100), fx.bot.sends[0].chatID)
	assert.Contains(t, reply.Text, "Welcome to the truck shop directory.")
	assert.NotEmpty(t, reply.Buttons)
}

func TestWebhook_StartClearsActiveFlow(t *testing.T) {
	ctx := context.Background()
	fx := newWebhookFixture()

	fx.post(t, messageUpdate(100, 42, "/add"))
	fx.post(t, messageUpdate(100, 42, "/start"))

	st, err := fx.states.Get(ctx, service.ConversationKey(100, 42))
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestWebhook_HelpCommand(t *testing.T) {
	fx := newWebhookFixture()

	fx.post(t, messageUpdate(100, 42, "/help"))
	assert.Contains(t, fx.lastReply(t).Text, "/add - register a new truck shop")
}

func TestWebhook_CommandWithBotSuffix(t *testing.T) {
	fx := newWebhookFixture()

	fx.post(t, messageUpdate(100, 42, "/help@HaulpointShopBot"))
	assert.Contains(t, fx.lastReply(t).Text, "Here's what I can do:")
}

func TestWebhook_AddCommandStartsWizard(t *testing.T) {
	ctx := context.Background()
	fx := newWebhookFixture()

	fx.post(t, messageUpdate(100, 42, "/add"))
	assert.Equal(t, "What's the shop called?", fx.lastReply(t).Text)

	st, err := fx.states.Get(ctx, service.ConversationKey(100, 42))
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, model.FlowAdd, st.Flow)

	// The next message is consumed by the wizard.
	fx.post(t, messageUpdate(100, 42, "Joe's Diesel"))
	assert.Equal(t, "Street address?", fx.lastReply(t).Text)
}

func TestWebhook_CancelCommand(t *testing.T) {
	fx := newWebhookFixture()

	t.Run("with an active flow", func(t *testing.T) {
		fx.post(t, messageUpdate(100, 42, "/add"))
		fx.post(t, messageUpdate(100, 42, "/cancel"))
		assert.Contains(t, fx.lastReply(t).Text, "Okay, cancelled.")
	})

	t.Run("with nothing active", func(t *testing.T) {
		fx.post(t, messageUpdate(100, 42, "/cancel"))
		assert.Contains(t, fx.lastReply(t).Text, "Nothing to cancel right now.")
	})
}

func TestWebhook_RecentCommand(t *testing.T) {
	fx := newWebhookFixture()
	fx.shops.records = []model.ShopRecord{shopNear("Joe's Diesel")}

	fx.post(t, messageUpdate(100, 42, "/recent"))
	reply := fx.lastReply(t)
	assert.Contains(t, reply.Text, "Recently added shops:")
	assert.Contains(t, reply.Text, "Joe's Diesel")
}

func TestWebhook_UnknownTextShowsMenu(t *testing.T) {
	fx := newWebhookFixture()

	fx.post(t, messageUpdate(100, 42, "howdy"))
	assert.Contains(t, fx.lastReply(t).Text, "I didn't catch that.")
}

func TestWebhook_InlineCityStateSearch(t *testing.T) {
	fx := newWebhookFixture()
	fx.shops.records = []model.ShopRecord{shopNear("Joe's Diesel")}

	fx.post(t, messageUpdate(100, 42, "Dallas, TX"))
	reply := fx.lastReply(t)
	assert.Contains(t, reply.Text, "Found 1 shop within 100 miles of Dallas, TX.")
	assert.Contains(t, reply.Text, "Joe's Diesel")
}

func TestWebhook_FindCommandThenQuery(t *testing.T) {
	fx := newWebhookFixture()
	fx.shops.records = []model.ShopRecord{shopNear("Joe's Diesel")}

	fx.post(t, messageUpdate(100, 42, "/find"))
	assert.Contains(t, fx.lastReply(t).Text, "Where should I look?")

	fx.post(t, messageUpdate(100, 42, "Dallas, TX"))
	assert.Contains(t, fx.lastReply(t).Text, "Found 1 shop")
}

func TestWebhook_LocationShareRunsSearch(t *testing.T) {
	fx := newWebhookFixture()
	fx.shops.records = []model.ShopRecord{shopNear("Joe's Diesel")}

	fx.post(t, locationUpdate(100, 42, 32.0, -96.0))
	assert.Contains(t, fx.lastReply(t).Text, "Found 1 shop within 100 miles of your location.")
}

func TestWebhook_LocationIgnoredDuringAdd(t *testing.T) {
	fx := newWebhookFixture()

	fx.post(t, messageUpdate(100, 42, "/add"))
	fx.post(t, locationUpdate(100, 42, 32.0, -96.0))

	// The wizard keeps the conversation; the share reads as an empty answer.
	assert.Contains(t, fx.lastReply(t).Text, "I still need the shop's name.")
}

func TestWebhook_StatePerUserInSameChat(t *testing.T) {
	ctx := context.Background()
	fx := newWebhookFixture()

	fx.post(t, messageUpdate(100, 42, "/add"))
	fx.post(t, messageUpdate(100, 43, "howdy"))

	// User 43 is not in user 42's wizard.
	assert.Contains(t, fx.lastReply(t).Text, "I didn't catch that.")

	st, err := fx.states.Get(ctx, service.ConversationKey(100, 42))
	require.NoError(t, err)
	require.NotNil(t, st, "user 42's wizard must be untouched")
	assert.Equal(t, model.FlowAdd, st.Flow)
}

func TestWebhook_CallbackMenuAdd(t *testing.T) {
	fx := newWebhookFixture()

	w := fx.post(t, callbackUpdate(100, 42, "menu:add"))
	assert.Equal(t, http.StatusOK, w.Code)

	require.Len(t, fx.bot.acks, 1)
	assert.Equal(t, "cb1", fx.bot.acks[0].id)
	assert.Empty(t, fx.bot.acks[0].toast)

	assert.Equal(t, "What's the shop called?", fx.lastReply(t).Text)
}

func TestWebhook_CallbackExpiredAddFlow(t *testing.T) {
	fx := newWebhookFixture()

	// A Save button from a wizard whose state is long gone.
	fx.post(t, callbackUpdate(100, 42, "add:save"))

	require.Len(t, fx.bot.acks, 1)
	assert.Equal(t, "This conversation has expired", fx.bot.acks[0].toast)
	assert.Contains(t, fx.lastReply(t).Text, "That conversation has expired.")
	assert.Empty(t, fx.shops.rows)
}

func TestWebhook_CallbackPaging(t *testing.T) {
	fx := newWebhookFixture()
	for i := 1; i <= 12; i++ {
		fx.shops.records = append(fx.shops.records, shopNear(fmt.Sprintf("Shop %02d", i)))
	}

	fx.post(t, messageUpdate(100, 42, "Dallas, TX"))
	assert.Contains(t, fx.lastReply(t).Text, "Showing 1-10:")

	fx.post(t, callbackUpdate(100, 42, "search:page:1"))
	assert.Contains(t, fx.lastReply(t).Text, "Showing 11-12:")
}

func TestWebhook_CallbackBadPageNumber(t *testing.T) {
	fx := newWebhookFixture()

	fx.post(t, callbackUpdate(100, 42, "search:page:banana"))

	assert.Len(t, fx.bot.acks, 1, "the spinner still gets stopped")
	assert.Empty(t, fx.bot.sends, "garbage callbacks send nothing")
}

func TestWebhook_CallbackUnrecognizedData(t *testing.T) {
	fx := newWebhookFixture()

	fx.post(t, callbackUpdate(100, 42, "mystery:button"))

	assert.Len(t, fx.bot.acks, 1)
	assert.Empty(t, fx.bot.sends)
}

func TestWebhook_CallbackWithoutMessage(t *testing.T) {
	fx := newWebhookFixture()

	fx.post(t, `{"update_id":3,"callback_query":{"id":"cb9","from":{"id":42},"data":"menu:help"}}`)

	require.Len(t, fx.bot.acks, 1)
	assert.Equal(t, "cb9", fx.bot.acks[0].id)
	assert.Empty(t, fx.bot.sends, "no source chat means nowhere to reply")
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected command
		ok       bool
	}{
		{name: "start", text: "/start", expected: cmdStart, ok: true},
		{name: "uppercase is tolerated", text: "/ADD", expected: cmdAdd, ok: true},
		{name: "botname suffix is stripped", text: "/find@HaulpointShopBot", expected: cmdFind, ok: true},
		{name: "trailing words are ignored", text: "/cancel please", expected: cmdCancel, ok: true},
		{name: "unknown command", text: "/teleport", ok: false},
		{name: "plain text", text: "hello", ok: false},
		{name: "bare slash", text: "/", ok: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cmd, ok := parseCommand(tc.text)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.expected, cmd)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{name: "string shorter than max", input: "Hello", maxLen: 10, expected: "Hello"},
		{name: "string equal to max", input: "Hello", maxLen: 5, expected: "Hello"},
		{name: "string longer than max", input: "Hello World", maxLen: 5, expected: "Hello..."},
		{name: "empty string", input: "", maxLen: 5, expected: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, truncate(tc.input, tc.maxLen))
		})
	}
}
