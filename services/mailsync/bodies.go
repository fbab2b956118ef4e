package mailsync

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"
	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"

	"github.com/customeros/mailmirror/dto"
	"github.com/customeros/mailmirror/internal/models"
	"github.com/customeros/mailmirror/internal/tracing"
	"github.com/customeros/mailmirror/internal/utils"
)

var (
	htmlSources = []string{"html", "body", "Html", "body_html", "bodyHtml"}
	textSources = []string{"text", "textContent", "Text", "plain", "body_text"}
	rawSources  = []string{"raw", "source", "rfc822"}
)

type bodyPass struct {
	fetched   int
	skipped   int
	cancelled bool
}

// fetchBodies loads bodies one message at a time. A failed body is skipped,
// a cancellation stops the pass before the next message.
func (s *syncService) fetchBodies(ctx context.Context, opts dto.SyncOptions, batch []*models.CachedMessage) bodyPass {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncService.fetchBodies")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	var pass bodyPass
	for _, message := range batch {
		if s.sessions.Cancelled(opts.AccountID, opts.FolderID) {
			pass.cancelled = true
			break
		}

		log := s.log.With(zap.String("account", opts.AccountID), zap.String("messageId", message.ID))

		raw, err := s.remote.GetMessage(ctx, opts.Endpoint, message.ID, opts.FolderID)
		if err != nil {
			log.Debugf("skipping body: %v", err)
			pass.skipped++
			continue
		}

		body := NormalizeBody(raw, opts.AccountID, opts.FolderID, message.ID, s.now())
		if err := s.repositories.MessageBodyRepository.Upsert(ctx, body); err != nil {
			log.WarnMsg("failed to store body", err)
			pass.skipped++
			continue
		}
		pass.fetched++
	}

	span.LogKV("fetched", pass.fetched, "skipped", pass.skipped, "cancelled", pass.cancelled)
	return pass
}

// NormalizeBody extracts html, text and attachment metadata from a message
// detail record. A raw RFC 822 source is parsed when no rendered parts exist.
func NormalizeBody(raw dto.RawRecord, account, folder, id string, now time.Time) *models.CachedMessageBody {
	body := &models.CachedMessageBody{
		Account:     account,
		ID:          id,
		Folder:      folder,
		Attachments: models.AttachmentList{},
		UpdatedAt:   now,
	}

	if v, ok := firstPresent(raw, htmlSources); ok {
		body.Body = asString(v)
	}
	if v, ok := firstPresent(raw, textSources); ok {
		body.TextContent = asString(v)
	}
	if v, ok := firstPresent(raw, attachmentLists); ok {
		body.Attachments = asAttachments(v)
	}

	if body.Body == "" && body.TextContent == "" {
		if v, ok := firstPresent(raw, rawSources); ok {
			parseMIME(asString(v), body)
		}
	}

	if body.TextContent == "" && body.Body != "" {
		body.TextContent = htmlToText(body.Body)
	}

	return body
}

func parseMIME(source string, body *models.CachedMessageBody) {
	env, err := enmime.ReadEnvelope(strings.NewReader(source))
	if err != nil {
		return
	}
	body.Body = env.HTML
	body.TextContent = env.Text
	for _, part := range env.Attachments {
		body.Attachments = append(body.Attachments, models.Attachment{
			Filename:    part.FileName,
			ContentType: part.ContentType,
			Size:        int64(len(part.Content)),
			ContentID:   part.ContentID,
		})
	}
	for _, part := range env.Inlines {
		body.Attachments = append(body.Attachments, models.Attachment{
			Filename:    part.FileName,
			ContentType: part.ContentType,
			Size:        int64(len(part.Content)),
			ContentID:   part.ContentID,
			Inline:      true,
		})
	}
}

func htmlToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style, head").Remove()
	return utils.CollapseWhitespace(doc.Text())
}

func asAttachments(v interface{}) models.AttachmentList {
	items, ok := v.([]interface{})
	if !ok {
		return models.AttachmentList{}
	}
	out := make(models.AttachmentList, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		record := dto.RawRecord(obj)
		attachment := models.Attachment{}
		if v, ok := firstPresent(record, []string{"filename", "fileName", "name"}); ok {
			attachment.Filename = asString(v)
		}
		if v, ok := firstPresent(record, []string{"contentType", "content_type", "mimeType"}); ok {
			attachment.ContentType = asString(v)
		}
		if v, ok := firstPresent(record, []string{"size", "Size"}); ok {
			if n, isNum := asNumber(v); isNum {
				attachment.Size = int64(n)
			}
		}
		if v, ok := firstPresent(record, []string{"contentId", "content_id", "cid"}); ok {
			attachment.ContentID = asString(v)
		}
		attachment.Inline = boolOr(record, []string{"inline", "isInline"}, false)
		out = append(out, attachment)
	}
	return out
}
