package core

import (
	"time"

	"github.com/jdelaire/turnbot/core/tg"
)

// Kind tells what happened in an Update.
type Kind int

const (
	KindNone Kind = iota
	KindNewMessage
	KindEditedMessage
	KindCallbackQuery
	KindOtherUpdate
)

func (k Kind) String() string {
	switch k {
	case KindNewMessage:
		return "new_message"
	case KindEditedMessage:
		return "edited_message"
	case KindCallbackQuery:
		return "callback_query"
	case KindOtherUpdate:
		return "other_update"
	default:
		return "none"
	}
}

// Category groups message contents into coarse classes.
type Category int

const (
	CategoryOther Category = iota
	CategoryText
	CategoryMediaOrDocument
	CategoryStickerOrDice
	CategorySharing
	CategoryChatStatusChange
	CategoryVoiceOrVideoChat
)

func (c Category) String() string {
	switch c {
	case CategoryText:
		return "text"
	case CategoryMediaOrDocument:
		return "media_or_document"
	case CategoryStickerOrDice:
		return "sticker_or_dice"
	case CategorySharing:
		return "sharing"
	case CategoryChatStatusChange:
		return "chat_status_change"
	case CategoryVoiceOrVideoChat:
		return "voice_or_video_chat"
	default:
		return "other"
	}
}

// ChatKind is the closed set of chat flavours an entry point is chosen by.
type ChatKind int

const (
	ChatOther ChatKind = iota
	ChatPrivate
	ChatGroup
	ChatChannel

	chatKindCount
)

func (k ChatKind) String() string {
	switch k {
	case ChatPrivate:
		return "private"
	case ChatGroup:
		return "group"
	case ChatChannel:
		return "channel"
	default:
		return "other"
	}
}

// ChatKindOf maps a Telegram chat type to a ChatKind. A nil chat is ChatOther.
func ChatKindOf(chat *tg.Chat) ChatKind {
	if chat == nil {
		return ChatOther
	}
	switch chat.Type {
	case tg.ChatTypePrivate:
		return ChatPrivate
	case tg.ChatTypeGroup, tg.ChatTypeSupergroup:
		return ChatGroup
	case tg.ChatTypeChannel:
		return ChatChannel
	default:
		return ChatOther
	}
}

// ChatID returns the chat's id, or 0 for updates without a chat.
func ChatID(chat *tg.Chat) int64 {
	if chat == nil {
		return 0
	}
	return chat.ID
}

// Update is a normalized Telegram event. It is treated as immutable once built.
type Update struct {
	Kind         Kind
	Message      *tg.Message
	CallbackData string
	Raw          tg.Update
}

// Category classifies the update's message. Updates without a message are CategoryOther.
func (u Update) Category() Category {
	return categorize(u.Message)
}

// Text returns the message text, if any.
func (u Update) Text() string {
	if u.Message == nil {
		return ""
	}
	return u.Message.Text
}

// Time returns the time the platform reported for the event, or the zero time.
func (u Update) Time() time.Time {
	var unix int64
	switch {
	case u.Message != nil:
		unix = u.Message.Date
		if u.Kind == KindEditedMessage && u.Message.EditDate != 0 {
			unix = u.Message.EditDate
		}
	case u.Raw.MyChatMember != nil:
		unix = u.Raw.MyChatMember.Date
	case u.Raw.ChatMember != nil:
		unix = u.Raw.ChatMember.Date
	case u.Raw.ChatJoinRequest != nil:
		unix = u.Raw.ChatJoinRequest.Date
	}
	if unix == 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0)
}

// leftChat reports whether the update says the bot was removed from the chat.
func (u Update) leftChat() bool {
	return u.Kind == KindOtherUpdate && u.Raw.MyChatMember.Left()
}

func categorize(m *tg.Message) Category {
	if m == nil {
		return CategoryOther
	}
	switch {
	case m.Text != "":
		return CategoryText
	case len(m.Photo) > 0, m.Audio != nil, m.Video != nil, m.Voice != nil,
		m.VideoNote != nil, m.Animation != nil, m.Document != nil:
		return CategoryMediaOrDocument
	case m.Sticker != nil, m.Dice != nil:
		return CategoryStickerOrDice
	case m.Location != nil, m.Contact != nil, m.Venue != nil, m.Game != nil, m.Poll != nil,
		m.Invoice != nil, m.SuccessfulPayment != nil, m.ConnectedWebsite != "":
		return CategorySharing
	case len(m.NewChatMembers) > 0, m.LeftChatMember != nil, m.NewChatTitle != "",
		len(m.NewChatPhoto) > 0, m.DeleteChatPhoto, m.PinnedMessage != nil,
		m.GroupChatCreated, m.SupergroupChatCreated, m.ChannelChatCreated,
		m.MigrateToChatID != 0, m.MigrateFromChatID != 0:
		return CategoryChatStatusChange
	case m.VideoChatScheduled != nil, m.VideoChatStarted != nil, m.VideoChatEnded != nil,
		m.VideoChatParticipantsInvited != nil:
		return CategoryVoiceOrVideoChat
	default:
		return CategoryOther
	}
}

// Normalize converts a raw Telegram update into an Update and the chat it belongs to.
// Variants the bot does not model become KindOtherUpdate with a nil chat.
func Normalize(raw tg.Update) (Update, *tg.Chat) {
	u := Update{Raw: raw}
	switch {
	case raw.Message != nil:
		u.Kind, u.Message = KindNewMessage, raw.Message
	case raw.EditedMessage != nil:
		u.Kind, u.Message = KindEditedMessage, raw.EditedMessage
	case raw.ChannelPost != nil:
		u.Kind, u.Message = KindNewMessage, raw.ChannelPost
	case raw.EditedChannelPost != nil:
		u.Kind, u.Message = KindEditedMessage, raw.EditedChannelPost
	case raw.CallbackQuery != nil:
		u.Kind, u.Message = KindCallbackQuery, raw.CallbackQuery.Message
		u.CallbackData = raw.CallbackQuery.Data
	case raw.MyChatMember != nil:
		u.Kind = KindOtherUpdate
		return u, raw.MyChatMember.Chat
	case raw.ChatMember != nil:
		u.Kind = KindOtherUpdate
		return u, raw.ChatMember.Chat
	case raw.ChatJoinRequest != nil:
		u.Kind = KindOtherUpdate
		return u, raw.ChatJoinRequest.Chat
	default:
		u.Kind = KindOtherUpdate
		return u, nil
	}
	if u.Message == nil {
		return u, nil
	}
	return u, u.Message.Chat
}

// Sender returns the user that caused the update, if known. For a button click
// that is the clicker, not the author of the message carrying the keyboard.
func (u Update) Sender() *tg.User {
	switch {
	case u.Raw.CallbackQuery != nil:
		return u.Raw.CallbackQuery.From
	case u.Message != nil:
		return u.Message.From
	case u.Raw.MyChatMember != nil:
		return u.Raw.MyChatMember.From
	case u.Raw.ChatMember != nil:
		return u.Raw.ChatMember.From
	case u.Raw.ChatJoinRequest != nil:
		return u.Raw.ChatJoinRequest.From
	case u.Raw.InlineQuery != nil:
		return u.Raw.InlineQuery.From
	}
	return nil
}
