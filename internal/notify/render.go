package notify

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"github.com/tbourn/go-comment-moderation/internal/domain"
)

// Texts holds the user-visible strings for one locale.
type Texts struct {
	Tag language.Tag

	GeneratedName string // fmt pattern with one %d
	Header        string
	NameLabel     string
	VerifiedMark  string
	Approve       string
	Reject        string
	Approved      string
	Rejected      string
	Withdrawn     string

	AckApproved       string
	AckRejected       string
	AckAlreadyHandled string
	AckNotFound       string
	AckIgnored        string
}

var catalog = []Texts{
	{
		Tag:               language.Arabic,
		GeneratedName:     "حساب موثق رقم %d",
		Header:            "تعليق جديد بانتظار المراجعة",
		NameLabel:         "الاسم",
		VerifiedMark:      "✓",
		Approve:           "✅ قبول",
		Reject:            "❌ رفض",
		Approved:          "✅ تم قبول التعليق",
		Rejected:          "❌ تم رفض التعليق",
		Withdrawn:         "🗑 سحب صاحب التعليق تعليقه",
		AckApproved:       "تم القبول",
		AckRejected:       "تم الرفض",
		AckAlreadyHandled: "تمت معالجة هذا التعليق مسبقاً",
		AckNotFound:       "التعليق غير موجود",
		AckIgnored:        "إجراء غير معروف",
	},
	{
		Tag:               language.English,
		GeneratedName:     "Verified account #%d",
		Header:            "New comment awaiting moderation",
		NameLabel:         "Name",
		VerifiedMark:      "✓",
		Approve:           "✅ Approve",
		Reject:            "❌ Reject",
		Approved:          "✅ Comment approved",
		Rejected:          "❌ Comment rejected",
		Withdrawn:         "🗑 Withdrawn by its author",
		AckApproved:       "Approved",
		AckRejected:       "Rejected",
		AckAlreadyHandled: "This comment was already handled",
		AckNotFound:       "Comment not found",
		AckIgnored:        "Unknown action",
	},
}

var matcher = language.NewMatcher([]language.Tag{language.Arabic, language.English})

// Catalog returns the texts best matching locale. Unknown or empty locales
// fall back to Arabic.
func Catalog(locale string) Texts {
	tags, _, err := language.ParseAcceptLanguage(locale)
	if err != nil || len(tags) == 0 {
		return catalog[0]
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return catalog[0]
	}
	return catalog[idx]
}

// GeneratedNameFor formats a system display name for n.
func (t Texts) GeneratedNameFor(n int) string {
	return fmt.Sprintf(t.GeneratedName, n)
}

// ModerationRequest renders the prompt for c with approve and reject actions.
func (t Texts) ModerationRequest(c *domain.Comment) Request {
	var b strings.Builder
	b.WriteString(t.Header)
	b.WriteString("\n\n")
	b.WriteString(t.NameLabel)
	b.WriteString(": ")
	b.WriteString(c.DisplayName)
	if c.Verified {
		b.WriteString(" ")
		b.WriteString(t.VerifiedMark)
	}
	b.WriteString("\n\n")
	b.WriteString(c.Body)
	return Request{
		Text: b.String(),
		Actions: []Action{
			{Label: t.Approve, Payload: domain.EncodeDecision(domain.ActionApprove, c.ID)},
			{Label: t.Reject, Payload: domain.EncodeDecision(domain.ActionReject, c.ID)},
		},
	}
}

// Outcome renders the final message text for a decided comment.
func (t Texts) Outcome(c *domain.Comment) string {
	head := t.Approved
	if c.Status == domain.StatusRejected {
		head = t.Rejected
	}
	return head + "\n\n" + t.NameLabel + ": " + c.DisplayName + "\n\n" + c.Body
}

// Withdrawal renders the text that replaces the prompt of a revoked comment.
func (t Texts) Withdrawal(c *domain.Comment) string {
	return t.Withdrawn + "\n\n" + t.NameLabel + ": " + c.DisplayName + "\n\n" + c.Body
}

// Ack returns the acknowledgment text for a processing result.
func (t Texts) Ack(o domain.Outcome, a domain.Action) string {
	switch o {
	case domain.OutcomeApplied:
		if a == domain.ActionReject {
			return t.AckRejected
		}
		return t.AckApproved
	case domain.OutcomeAlreadyHandled:
		return t.AckAlreadyHandled
	case domain.OutcomeUnknownComment:
		return t.AckNotFound
	}
	return t.AckIgnored
}
