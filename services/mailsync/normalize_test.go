package mailsync

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailmirror/dto"
)

var testNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func TestNormalizeMessage_BothGenerationsAgree(t *testing.T) {
	legacy := dto.RawRecord{
		"Uid":     "42",
		"Date":    "Mon, 02 Jan 2006 15:04:05 -0700",
		"From":    "Ann <ann@example.com>",
		"Subject": "Quarterly numbers",
		"Flags":   []interface{}{`\Seen`, `\Flagged`},
		"snippet": "  see   the\nattached  ",
	}
	current := dto.RawRecord{
		"id":         "42",
		"date":       "Mon, 02 Jan 2006 15:04:05 -0700",
		"from":       "Ann <ann@example.com>",
		"subject":    "Quarterly numbers",
		"flags":      []interface{}{`\Seen`, `\Flagged`},
		"preview":    "see the attached",
		"is_unread":  true,
		"is_starred": false,
	}

	a := NormalizeMessage(legacy, "acc", "INBOX", testNow)
	b := NormalizeMessage(current, "acc", "INBOX", testNow)

	assert.Equal(t, a, b)
	assert.Equal(t, "42", a.ID)
	assert.Equal(t, "see the attached", a.Snippet)
	assert.False(t, a.IsUnread)
	assert.True(t, a.IsStarred)
	assert.Equal(t, time.Date(2006, 1, 2, 22, 4, 5, 0, time.UTC).UnixMilli(), a.DateMs)
}

func TestNormalizeMessage_Defaults(t *testing.T) {
	m := NormalizeMessage(dto.RawRecord{"id": "x"}, "acc", "INBOX", testNow)

	assert.Equal(t, testNow.UnixMilli(), m.DateMs)
	assert.True(t, m.IsUnread)
	assert.False(t, m.IsStarred)
	assert.False(t, m.HasAttachment)
	assert.NotNil(t, m.Flags)
	assert.Empty(t, m.Flags)
	assert.Equal(t, "acc", m.Account)
	assert.Equal(t, "INBOX", m.Folder)
}

func TestNormalizeMessage_ExplicitBooleansWithoutFlags(t *testing.T) {
	m := NormalizeMessage(dto.RawRecord{"id": "x", "unread": false, "starred": "true", "hasAttachment": 1.0}, "acc", "INBOX", testNow)

	assert.False(t, m.IsUnread)
	assert.True(t, m.IsStarred)
	assert.True(t, m.HasAttachment)
}

func TestNormalizeMessage_FlagsWinOverUnread(t *testing.T) {
	m := NormalizeMessage(dto.RawRecord{"id": "x", "flags": []interface{}{}, "is_unread": false}, "acc", "INBOX", testNow)
	assert.True(t, m.IsUnread)
}

func TestNormalizeMessage_Dates(t *testing.T) {
	seconds := NormalizeMessage(dto.RawRecord{"id": "x", "date": 1700000000.0}, "acc", "f", testNow)
	millis := NormalizeMessage(dto.RawRecord{"id": "x", "internal_date": 1700000000000.0}, "acc", "f", testNow)
	iso := NormalizeMessage(dto.RawRecord{"id": "x", "received_at": "2023-11-14T22:13:20Z"}, "acc", "f", testNow)
	garbage := NormalizeMessage(dto.RawRecord{"id": "x", "date": "not a date"}, "acc", "f", testNow)

	assert.Equal(t, int64(1700000000000), seconds.DateMs)
	assert.Equal(t, int64(1700000000000), millis.DateMs)
	assert.Equal(t, int64(1700000000000), iso.DateMs)
	assert.Equal(t, testNow.UnixMilli(), garbage.DateMs)
}

func TestNormalizeMessage_EpochUnitBoundary(t *testing.T) {
	lastSeconds := NormalizeMessage(dto.RawRecord{"id": "x", "date": epochSecondsLimit - 1}, "acc", "f", testNow)
	firstMillis := NormalizeMessage(dto.RawRecord{"id": "x", "date": epochSecondsLimit}, "acc", "f", testNow)
	stringSeconds := NormalizeMessage(dto.RawRecord{"id": "x", "date": "1700000000"}, "acc", "f", testNow)

	assert.Equal(t, int64((epochSecondsLimit-1)*1000), lastSeconds.DateMs)
	assert.Equal(t, int64(epochSecondsLimit), firstMillis.DateMs)
	assert.Equal(t, time.Date(2001, 9, 9, 1, 46, 40, 0, time.UTC), time.UnixMilli(firstMillis.DateMs).UTC())
	assert.Equal(t, int64(1700000000000), stringSeconds.DateMs)
}

func TestNormalizeMessage_AddressesAndAttachments(t *testing.T) {
	m := NormalizeMessage(dto.RawRecord{
		"id":          7.0,
		"from":        []interface{}{map[string]interface{}{"name": "Bob", "address": "bob@example.com"}},
		"attachments": []interface{}{map[string]interface{}{"filename": "a.pdf"}},
		"references":  []interface{}{"<a@x>", "<b@x>"},
		"snippet":     strings.Repeat("a", 300),
	}, "acc", "INBOX", testNow)

	assert.Equal(t, "7", m.ID)
	assert.Contains(t, m.From, "bob@example.com")
	assert.Contains(t, m.From, "Bob")
	assert.True(t, m.HasAttachment)
	assert.Equal(t, "<a@x> <b@x>", m.References)
	assert.Len(t, m.Snippet, snippetLength)
}

func TestNormalizeFolder(t *testing.T) {
	folder, ok := NormalizeFolder(dto.RawRecord{"path": "Entw&APw-rfe", "unread": 4.0, "specialUse": `\Drafts`}, "acc", testNow)
	require.True(t, ok)
	assert.Equal(t, "Entw&APw-rfe", folder.Path)
	assert.Equal(t, "Entwürfe", folder.Name)
	assert.Equal(t, 4, folder.UnreadCount)
	assert.Equal(t, `\Drafts`, folder.SpecialUse)

	_, ok = NormalizeFolder(dto.RawRecord{"unread": 1.0}, "acc", testNow)
	assert.False(t, ok)
}

func TestNormalizeBody_HTMLOnly(t *testing.T) {
	body := NormalizeBody(dto.RawRecord{
		"html": "<html><head><style>p{}</style></head><body><p>Hello</p>\n<p>world</p></body></html>",
		"attachments": []interface{}{
			map[string]interface{}{"filename": "logo.png", "contentType": "image/png", "size": 120.0, "cid": "logo", "inline": true},
		},
	}, "acc", "INBOX", "m1", testNow)

	assert.Equal(t, "Hello world", body.TextContent)
	require.Len(t, body.Attachments, 1)
	assert.Equal(t, "logo.png", body.Attachments[0].Filename)
	assert.Equal(t, int64(120), body.Attachments[0].Size)
	assert.True(t, body.Attachments[0].Inline)
}

func TestNormalizeBody_RawSource(t *testing.T) {
	source := strings.Join([]string{
		"From: ann@example.com",
		"To: bob@example.com",
		"Subject: report",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="XX"`,
		"",
		"--XX",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"hello body",
		"--XX",
		"Content-Type: application/pdf",
		`Content-Disposition: attachment; filename="doc.pdf"`,
		"Content-Transfer-Encoding: base64",
		"",
		"JVBERi0=",
		"--XX--",
		"",
	}, "\r\n")

	body := NormalizeBody(dto.RawRecord{"raw": source}, "acc", "INBOX", "m1", testNow)

	assert.Contains(t, body.TextContent, "hello body")
	require.Len(t, body.Attachments, 1)
	assert.Equal(t, "doc.pdf", body.Attachments[0].Filename)
	assert.Equal(t, "application/pdf", body.Attachments[0].ContentType)
	assert.Equal(t, int64(5), body.Attachments[0].Size)
}
