package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/haulpoint/shopbot-go/internal/model"
	"github.com/haulpoint/shopbot-go/internal/service"
	"github.com/haulpoint/shopbot-go/internal/telegram"
)

// Sender delivers replies back to the chat transport.
type Sender interface {
	SendReply(ctx context.Context, chatID int64, reply model.Reply) error
	AnswerCallback(ctx context.Context, callbackQueryID, text string) error
}

// TelegramHandler turns webhook updates into flow calls. All conversation
// work happens under the conversation's lock, and the webhook always answers
// 200 so the transport does not retry handled updates.
type TelegramHandler struct {
	states  *service.StateStore
	addFlow *service.AddFlowService
	search  *service.SearchService
	recent  *service.RecentService
	bot     Sender
}

func NewTelegramHandler(
	states *service.StateStore,
	addFlow *service.AddFlowService,
	search *service.SearchService,
	recent *service.RecentService,
	bot Sender,
) *TelegramHandler {
	return &TelegramHandler{
		states:  states,
		addFlow: addFlow,
		search:  search,
		recent:  recent,
		bot:     bot,
	}
}

func (h *TelegramHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	var update telegram.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		log.Warn().Err(err).Msg("invalid telegram update")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	ctx := r.Context()

	switch {
	case update.CallbackQuery != nil:
		h.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		h.handleMessage(ctx, update.Message)
	default:
		log.Debug().Int64("updateId", update.UpdateID).Msg("ignoring update with no message or callback")
	}

	writeJSON(w, http.StatusOK, map[string]any{})
}

func (h *TelegramHandler) handleMessage(ctx context.Context, msg *telegram.Message) {
	chatID := msg.Chat.ID
	userID := chatID
	if msg.From != nil {
		userID = msg.From.ID
	}
	key := service.ConversationKey(chatID, userID)

	log.Info().
		Str("conversation", key).
		Str("text", truncate(msg.Text, 50)).
		Bool("hasLocation", msg.Location != nil).
		Msg("received telegram message")

	unlock := h.states.Lock(key)
	defer unlock()

	reply, err := h.routeMessage(ctx, key, msg)
	if err != nil {
		log.Error().Err(err).Str("conversation", key).Msg("message handling failed")
		reply = model.Reply{Text: "Something went wrong on my end. Please try again."}
	}

	h.send(ctx, chatID, reply)
}

func (h *TelegramHandler) routeMessage(ctx context.Context, key string, msg *telegram.Message) (model.Reply, error) {
	text := strings.TrimSpace(msg.Text)

	if cmd, ok := parseCommand(text); ok {
		return h.runCommand(ctx, key, cmd)
	}

	st, err := h.states.Get(ctx, key)
	if err != nil {
		return model.Reply{}, err
	}

	// A location share runs a search directly unless the add wizard owns the
	// conversation.
	if msg.Location != nil && (st == nil || st.Flow == model.FlowSearch) {
		center := model.Coordinates{Lat: msg.Location.Latitude, Lng: msg.Location.Longitude}
		return h.search.Run(ctx, key, center, "your location")
	}

	if st != nil {
		switch st.Flow {
		case model.FlowAdd:
			return h.addFlow.HandleText(ctx, key, st, text)
		case model.FlowSearch:
			return h.search.HandleQuery(ctx, key, text)
		default:
			log.Warn().Str("flow", string(st.Flow)).Str("conversation", key).Msg("unknown flow kind, clearing state")
			if err := h.states.Clear(ctx, key); err != nil {
				return model.Reply{}, err
			}
			return service.MainMenuReply(), nil
		}
	}

	// No flow active: a City, ST message is an inline search.
	if reply, ok, err := h.search.TryQuery(ctx, key, text); ok || err != nil {
		return reply, err
	}

	return service.UnknownInputReply(), nil
}

type command string

const (
	cmdStart  command = "start"
	cmdHelp   command = "help"
	cmdAdd    command = "add"
	cmdFind   command = "find"
	cmdRecent command = "recent"
	cmdCancel command = "cancel"
)

// parseCommand recognizes /commands, tolerating the @botname suffix clients
// append in group chats.
func parseCommand(text string) (command, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	word := strings.Fields(text)[0]
	word = strings.TrimPrefix(word, "/")
	if at := strings.IndexByte(word, '@'); at >= 0 {
		word = word[:at]
	}

	switch cmd := command(strings.ToLower(word)); cmd {
	case cmdStart, cmdHelp, cmdAdd, cmdFind, cmdRecent, cmdCancel:
		return cmd, true
	}
	return "", false
}

func (h *TelegramHandler) runCommand(ctx context.Context, key string, cmd command) (model.Reply, error) {
	switch cmd {
	case cmdStart:
		if err := h.states.Clear(ctx, key); err != nil {
			return model.Reply{}, err
		}
		return service.WelcomeReply(), nil

	case cmdHelp:
		return service.HelpReply(), nil

	case cmdAdd:
		return h.addFlow.Start(ctx, key)

	case cmdFind:
		return h.search.Start(ctx, key)

	case cmdRecent:
		return h.recent.Recent(ctx)

	case cmdCancel:
		st, err := h.states.Get(ctx, key)
		if err != nil {
			return model.Reply{}, err
		}
		if st == nil {
			return service.NothingToCancelReply(), nil
		}
		if err := h.states.Clear(ctx, key); err != nil {
			return model.Reply{}, err
		}
		return service.CancelledReply(), nil
	}

	return service.UnknownInputReply(), nil
}

func (h *TelegramHandler) handleCallback(ctx context.Context, cb *telegram.CallbackQuery) {
	if cb.Message == nil {
		// Nowhere to reply; just stop the client spinner.
		h.ack(ctx, cb.ID, "")
		return
	}

	chatID := cb.Message.Chat.ID
	key := service.ConversationKey(chatID, cb.From.ID)

	log.Info().
		Str("conversation", key).
		Str("data", cb.Data).
		Msg("received telegram callback")

	unlock := h.states.Lock(key)
	defer unlock()

	reply, toast, err := h.routeCallback(ctx, key, cb.Data)
	if err != nil {
		log.Error().Err(err).Str("conversation", key).Msg("callback handling failed")
		reply = model.Reply{Text: "Something went wrong on my end. Please try again."}
	}

	h.ack(ctx, cb.ID, toast)
	if reply.Text != "" {
		h.send(ctx, chatID, reply)
	}
}

func (h *TelegramHandler) routeCallback(ctx context.Context, key, data string) (reply model.Reply, toast string, err error) {
	switch {
	case data == service.CallbackMenuMain:
		reply, err = service.MainMenuReply(), nil
	case data == service.CallbackMenuAdd:
		reply, err = h.addFlow.Start(ctx, key)
	case data == service.CallbackMenuSearch:
		reply, err = h.search.Start(ctx, key)
	case data == service.CallbackMenuRecent:
		reply, err = h.recent.Recent(ctx)
	case data == service.CallbackMenuHelp:
		reply, err = service.HelpReply(), nil

	case strings.HasPrefix(data, service.CallbackSearchPagePrefix):
		page, convErr := strconv.Atoi(strings.TrimPrefix(data, service.CallbackSearchPagePrefix))
		if convErr != nil {
			log.Warn().Str("data", data).Msg("unparseable page callback")
			return model.Reply{}, "", nil
		}
		reply, err = h.search.Page(ctx, key, page)

	case strings.HasPrefix(data, service.CallbackAddPrefix):
		var st *model.FlowState
		st, err = h.states.Get(ctx, key)
		if err != nil {
			return model.Reply{}, "", err
		}
		if st == nil || st.Flow != model.FlowAdd {
			// The wizard this button belonged to is gone.
			return service.ExpiredReply(), "This conversation has expired", nil
		}
		reply, err = h.addFlow.HandleCallback(ctx, key, st, data)

	default:
		log.Warn().Str("data", data).Msg("unrecognized callback data")
		return model.Reply{}, "", nil
	}

	return reply, toast, err
}

func (h *TelegramHandler) send(ctx context.Context, chatID int64, reply model.Reply) {
	if err := h.bot.SendReply(ctx, chatID, reply); err != nil {
		log.Error().Err(err).Int64("chatId", chatID).Msg("send reply failed")
	}
}

func (h *TelegramHandler) ack(ctx context.Context, callbackID, toast string) {
	if err := h.bot.AnswerCallback(ctx, callbackID, toast); err != nil {
		log.Warn().Err(err).Msg("answer callback failed")
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
