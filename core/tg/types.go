// Package tg holds the subset of Telegram Bot API objects the bot consumes.
package tg

// Chat types reported by Telegram.
const (
	ChatTypePrivate    = "private"
	ChatTypeGroup      = "group"
	ChatTypeSupergroup = "supergroup"
	ChatTypeChannel    = "channel"
)

// Chat member statuses reported by Telegram.
const (
	MemberStatusCreator       = "creator"
	MemberStatusAdministrator = "administrator"
	MemberStatusMember        = "member"
	MemberStatusRestricted    = "restricted"
	MemberStatusLeft          = "left"
	MemberStatusKicked        = "kicked"
)

// Update is one event from getUpdates or a webhook delivery.
type Update struct {
	UpdateID          int64              `json:"update_id"`
	Message           *Message           `json:"message,omitempty"`
	EditedMessage     *Message           `json:"edited_message,omitempty"`
	ChannelPost       *Message           `json:"channel_post,omitempty"`
	EditedChannelPost *Message           `json:"edited_channel_post,omitempty"`
	CallbackQuery     *CallbackQuery     `json:"callback_query,omitempty"`
	MyChatMember      *ChatMemberUpdated `json:"my_chat_member,omitempty"`
	ChatMember        *ChatMemberUpdated `json:"chat_member,omitempty"`
	ChatJoinRequest   *ChatJoinRequest   `json:"chat_join_request,omitempty"`
	InlineQuery       *InlineQuery       `json:"inline_query,omitempty"`
}

// User is a Telegram user or bot.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// Name returns @username when set, otherwise the full name.
func (u *User) Name() string {
	if u == nil {
		return ""
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Chat is a private chat, group, supergroup or channel.
type Chat struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"`
	Title    string `json:"title,omitempty"`
	Username string `json:"username,omitempty"`
}

// Object stands in for API objects whose presence matters but whose fields are not read.
type Object struct{}

// Message is a Telegram message. Only fields used to classify a message are modelled.
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      *Chat  `json:"chat,omitempty"`
	Date      int64  `json:"date"`
	EditDate  int64  `json:"edit_date,omitempty"`
	Text      string `json:"text,omitempty"`
	Caption   string `json:"caption,omitempty"`

	Photo     []PhotoSize `json:"photo,omitempty"`
	Audio     *Object     `json:"audio,omitempty"`
	Video     *Object     `json:"video,omitempty"`
	Voice     *Object     `json:"voice,omitempty"`
	VideoNote *Object     `json:"video_note,omitempty"`
	Animation *Object     `json:"animation,omitempty"`
	Document  *Object     `json:"document,omitempty"`

	Sticker *Object `json:"sticker,omitempty"`
	Dice    *Object `json:"dice,omitempty"`

	Location          *Object `json:"location,omitempty"`
	Contact           *Object `json:"contact,omitempty"`
	Venue             *Object `json:"venue,omitempty"`
	Game              *Object `json:"game,omitempty"`
	Poll              *Object `json:"poll,omitempty"`
	Invoice           *Object `json:"invoice,omitempty"`
	SuccessfulPayment *Object `json:"successful_payment,omitempty"`
	ConnectedWebsite  string  `json:"connected_website,omitempty"`

	NewChatMembers        []User      `json:"new_chat_members,omitempty"`
	LeftChatMember        *User       `json:"left_chat_member,omitempty"`
	NewChatTitle          string      `json:"new_chat_title,omitempty"`
	NewChatPhoto          []PhotoSize `json:"new_chat_photo,omitempty"`
	DeleteChatPhoto       bool        `json:"delete_chat_photo,omitempty"`
	GroupChatCreated      bool        `json:"group_chat_created,omitempty"`
	SupergroupChatCreated bool        `json:"supergroup_chat_created,omitempty"`
	ChannelChatCreated    bool        `json:"channel_chat_created,omitempty"`
	MigrateToChatID       int64       `json:"migrate_to_chat_id,omitempty"`
	MigrateFromChatID     int64       `json:"migrate_from_chat_id,omitempty"`
	PinnedMessage         *Object     `json:"pinned_message,omitempty"`

	VideoChatScheduled           *Object `json:"video_chat_scheduled,omitempty"`
	VideoChatStarted             *Object `json:"video_chat_started,omitempty"`
	VideoChatEnded               *Object `json:"video_chat_ended,omitempty"`
	VideoChatParticipantsInvited *Object `json:"video_chat_participants_invited,omitempty"`

	ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// PhotoSize is one size of a photo or thumbnail.
type PhotoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileSize int    `json:"file_size,omitempty"`
}

// CallbackQuery is a click on an inline keyboard button.
type CallbackQuery struct {
	ID              string   `json:"id"`
	From            *User    `json:"from,omitempty"`
	Message         *Message `json:"message,omitempty"`
	InlineMessageID string   `json:"inline_message_id,omitempty"`
	Data            string   `json:"data,omitempty"`
}

// ChatMember is the membership state of a user in a chat.
type ChatMember struct {
	User   *User  `json:"user,omitempty"`
	Status string `json:"status"`
}

// ChatMemberUpdated reports a change of a chat member's status.
type ChatMemberUpdated struct {
	Chat          *Chat      `json:"chat,omitempty"`
	From          *User      `json:"from,omitempty"`
	Date          int64      `json:"date"`
	OldChatMember ChatMember `json:"old_chat_member"`
	NewChatMember ChatMember `json:"new_chat_member"`
}

// Left reports whether the member is no longer part of the chat.
func (c *ChatMemberUpdated) Left() bool {
	if c == nil {
		return false
	}
	switch c.NewChatMember.Status {
	case MemberStatusLeft, MemberStatusKicked:
		return true
	}
	return false
}

// ChatJoinRequest is a request to join a chat.
type ChatJoinRequest struct {
	Chat *Chat `json:"chat,omitempty"`
	From *User `json:"from,omitempty"`
	Date int64 `json:"date"`
}

// InlineQuery is an incoming inline query. It has no chat.
type InlineQuery struct {
	ID    string `json:"id"`
	From  *User  `json:"from,omitempty"`
	Query string `json:"query"`
}

// InlineKeyboardMarkup is an inline keyboard attached to a message.
type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

// InlineKeyboardButton is one button of an inline keyboard.
type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

// BotCommand describes a command for setMyCommands.
type BotCommand struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}
