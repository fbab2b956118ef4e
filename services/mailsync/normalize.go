package mailsync

import (
	"fmt"
	"math"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/customeros/mailmirror/dto"
	"github.com/customeros/mailmirror/internal/models"
	"github.com/customeros/mailmirror/internal/utils"
)

const snippetLength = 140

// fieldRule fills one output field from the first present source field.
// Every rule for a field lives in messageFieldTable so precedence can be read
// top to bottom.
type fieldRule struct {
	field   string
	sources []string
	apply   func(m *models.CachedMessage, value interface{}, now time.Time)
}

var messageFieldTable = []fieldRule{
	{"id", []string{"Uid", "id", "uid"}, func(m *models.CachedMessage, v interface{}, _ time.Time) {
		m.ID = asString(v)
	}},
	{"date", []string{"Date", "date", "header_date", "internal_date", "received_at"}, func(m *models.CachedMessage, v interface{}, now time.Time) {
		m.DateMs = parseDate(v, now).UnixMilli()
	}},
	{"from", []string{"From", "from", "sender", "from_address"}, func(m *models.CachedMessage, v interface{}, _ time.Time) {
		m.From = asAddress(v)
	}},
	{"subject", []string{"Subject", "subject"}, func(m *models.CachedMessage, v interface{}, _ time.Time) {
		m.Subject = asString(v)
	}},
	{"snippet", []string{"snippet", "Snippet", "preview", "text", "textContent", "body_text", "plain"}, func(m *models.CachedMessage, v interface{}, _ time.Time) {
		m.Snippet = utils.TruncateRunes(utils.CollapseWhitespace(asString(v)), snippetLength)
	}},
	{"flags", []string{"Flags", "flags"}, func(m *models.CachedMessage, v interface{}, _ time.Time) {
		if flags, ok := asStringList(v); ok {
			m.Flags = flags
		}
	}},
	{"threadId", []string{"threadId", "thread_id", "ThreadId", "ThreadID"}, func(m *models.CachedMessage, v interface{}, _ time.Time) {
		m.ThreadID = asString(v)
	}},
	{"message_id", []string{"message_id", "messageId", "MessageId", "Message-ID", "MessageID"}, func(m *models.CachedMessage, v interface{}, _ time.Time) {
		m.MessageID = asString(v)
	}},
	{"in_reply_to", []string{"in_reply_to", "inReplyTo", "InReplyTo", "In-Reply-To"}, func(m *models.CachedMessage, v interface{}, _ time.Time) {
		m.InReplyTo = asString(v)
	}},
	{"references", []string{"references", "References"}, func(m *models.CachedMessage, v interface{}, _ time.Time) {
		if list, ok := asStringList(v); ok {
			m.References = strings.Join(list, " ")
			return
		}
		m.References = asString(v)
	}},
}

var (
	unreadSources     = []string{"is_unread", "unread", "Unread", "isUnread"}
	starredSources    = []string{"is_starred", "starred", "Starred", "isStarred", "flagged"}
	attachmentSources = []string{"has_attachment", "hasAttachment", "HasAttachment", "has_attachments"}
	attachmentLists   = []string{"attachments", "Attachments"}
)

// firstPresent returns the value of the first source key present and non-null.
func firstPresent(raw dto.RawRecord, sources []string) (interface{}, bool) {
	for _, key := range sources {
		if v, ok := raw[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// NormalizeMessage maps a raw remote record onto a CachedMessage. Records of
// either API generation with the same content normalize identically.
func NormalizeMessage(raw dto.RawRecord, account, folder string, now time.Time) *models.CachedMessage {
	m := &models.CachedMessage{
		Account:   account,
		Folder:    folder,
		DateMs:    now.UnixMilli(),
		Flags:     models.StringList{},
		UpdatedAt: now,
	}

	for _, rule := range messageFieldTable {
		if v, ok := firstPresent(raw, rule.sources); ok {
			rule.apply(m, v, now)
		}
	}

	// flags, when present as a sequence, win over explicit booleans
	if v, ok := firstPresent(raw, []string{"Flags", "flags"}); ok {
		if _, isList := asStringList(v); isList {
			m.IsUnread = !utils.IsSeen(m.Flags)
		} else {
			m.IsUnread = boolOr(raw, unreadSources, true)
		}
	} else {
		m.IsUnread = boolOr(raw, unreadSources, true)
	}

	m.IsStarred = boolOr(raw, starredSources, false) || utils.IsFlagged(m.Flags)

	m.HasAttachment = boolOr(raw, attachmentSources, false)
	if !m.HasAttachment {
		if v, ok := firstPresent(raw, attachmentLists); ok {
			if list, isList := v.([]interface{}); isList && len(list) > 0 {
				m.HasAttachment = true
			}
		}
	}

	return m
}

// NormalizeFolder maps a raw folder record. ok is false when no path is present.
func NormalizeFolder(raw dto.RawRecord, account string, now time.Time) (*models.CachedFolder, bool) {
	path := ""
	if v, ok := firstPresent(raw, []string{"path", "Path", "name", "Name"}); ok {
		path = asString(v)
	}
	if path == "" {
		return nil, false
	}

	folder := &models.CachedFolder{
		Account:   account,
		Path:      path,
		Name:      path,
		UpdatedAt: now,
	}
	if v, ok := firstPresent(raw, []string{"name", "Name", "display_name", "path"}); ok {
		folder.Name = decodeFolderName(asString(v))
	}
	if v, ok := firstPresent(raw, []string{"unread", "unread_count", "Unread", "unseen"}); ok {
		if n, isNum := asNumber(v); isNum {
			folder.UnreadCount = int(n)
		}
	}
	if v, ok := firstPresent(raw, []string{"specialUse", "special_use", "SpecialUse"}); ok {
		folder.SpecialUse = asString(v)
	}
	return folder, true
}

func boolOr(raw dto.RawRecord, sources []string, def bool) bool {
	v, ok := firstPresent(raw, sources)
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case float64:
		return b != 0
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return def
		}
		return parsed
	}
	return def
}

func asString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		if s == math.Trunc(s) {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case bool:
		return strconv.FormatBool(s)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func asStringList(v interface{}) (models.StringList, bool) {
	switch list := v.(type) {
	case []interface{}:
		out := make(models.StringList, 0, len(list))
		for _, item := range list {
			if s := asString(item); s != "" {
				out = append(out, s)
			}
		}
		return out, true
	case []string:
		return append(models.StringList{}, list...), true
	}
	return nil, false
}

// asAddress accepts "Name <addr>", {name, address} or a list of either.
func asAddress(v interface{}) string {
	switch a := v.(type) {
	case string:
		return a
	case map[string]interface{}:
		name := asString(a["name"])
		address := asString(a["address"])
		if address == "" {
			address = asString(a["email"])
		}
		if name != "" && address != "" {
			return (&mail.Address{Name: name, Address: address}).String()
		}
		if address != "" {
			return address
		}
		return name
	case []interface{}:
		if len(a) > 0 {
			return asAddress(a[0])
		}
	}
	return ""
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseDate understands RFC 5322 dates, ISO timestamps and epoch numbers
// (milliseconds, or seconds below epochSecondsLimit). Anything else becomes now.
func parseDate(v interface{}, now time.Time) time.Time {
	if n, ok := v.(float64); ok {
		return fromEpoch(n)
	}
	s := strings.TrimSpace(asString(v))
	if s == "" {
		return now
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(n)
	}
	if t, err := mail.ParseDate(s); err == nil {
		return t
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return now
}

// epochSecondsLimit separates epoch seconds from epoch milliseconds. Values
// below it are read as seconds, which covers dates up to year 33658; the cost
// is that a millisecond timestamp before 2001-09-09 is misread as seconds.
const epochSecondsLimit = 1e12

func fromEpoch(n float64) time.Time {
	if n < epochSecondsLimit {
		return time.UnixMilli(int64(n * 1000))
	}
	return time.UnixMilli(int64(n))
}
