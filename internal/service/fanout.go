package service

import (
	"context"
	"strings"
	"time"

	"github.com/dipr-ads/be-release-orders/internal/config"
	"github.com/dipr-ads/be-release-orders/internal/logger"
	"github.com/dipr-ads/be-release-orders/internal/notification"
	"github.com/dipr-ads/be-release-orders/internal/repository"
)

// mailFanout resolves recipients and enqueues workflow e-mails after a
// transition has committed.
type mailFanout struct {
	users     UserStore
	notifier  Notifier
	mailboxes config.Mailboxes
	log       *logger.Logger
}

// user returns the user or nil when it cannot be loaded. A nil user still
// produces an audited, undeliverable notification.
func (f *mailFanout) user(ctx context.Context, id string) *repository.User {
	if id == "" {
		return nil
	}
	u, err := f.users.GetByID(ctx, id)
	if err != nil {
		f.log.Warn().Err(err).Str("user_id", id).Msg("Failed to resolve notification recipient")
		return nil
	}
	return u
}

func (f *mailFanout) send(ctx context.Context, n notification.Notification) {
	f.notifier.Enqueue(ctx, n)
}

// toMailbox sends one e-mail to a configured office mailbox.
func (f *mailFanout) toMailbox(ctx context.Context, mailbox, template string, body map[string]any, n notification.Notification) {
	n.Template = template
	n.To = mailbox
	n.Body = body
	f.send(ctx, n)
}

// toUser sends one e-mail to a user's address.
func (f *mailFanout) toUser(ctx context.Context, userID, template string, body map[string]any, n notification.Notification) {
	n.Template = template
	n.Body = body
	if u := f.user(ctx, userID); u != nil {
		n.To = u.Email
		if _, ok := body["name"]; !ok {
			body["name"] = u.DisplayName
		}
	}
	f.send(ctx, n)
}

// releaseOrders sends the release-order e-mail to the vendor of every
// allocation and returns the vendor display names in allocation order.
func (f *mailFanout) releaseOrders(ctx context.Context, actor *string, ad *repository.Advertisement, allocations []*repository.NewspaperJobAllocation) []string {
	names := make([]string, 0, len(allocations))
	for _, a := range allocations {
		body := advertisementBody(ad)
		body["ronumber"] = a.RONumber
		body["duetime"] = a.DueTime.In(ist).Format(time.RFC3339)
		body["timeofallotment"] = a.TimeOfAllotment.In(ist).Format(time.RFC3339)

		n := notification.Notification{
			Template:      notification.TemplateReleaseOrder,
			Body:          body,
			ActorRef:      actor,
			AdvertiseRef:  strPtr(ad.ID),
			AllocationRef: strPtr(a.ID),
		}
		if u := f.user(ctx, a.VendorRef); u != nil {
			n.To = u.Email
			body["name"] = u.DisplayName
			names = append(names, u.DisplayName)
		} else {
			names = append(names, a.VendorRef)
		}
		f.send(ctx, n)
	}
	return names
}

// summary sends one advertisement summary e-mail to a mailbox.
func (f *mailFanout) summary(ctx context.Context, actor *string, ad *repository.Advertisement, mailbox, template string, vendors []string, extra map[string]any) {
	body := advertisementBody(ad)
	if len(vendors) > 0 {
		body["newspapers"] = strings.Join(vendors, ", ")
	}
	for k, v := range extra {
		body[k] = v
	}
	f.toMailbox(ctx, mailbox, template, body, notification.Notification{
		ActorRef:     actor,
		AdvertiseRef: strPtr(ad.ID),
	})
}

func advertisementBody(ad *repository.Advertisement) map[string]any {
	return map[string]any{
		"advertisementId": ad.AdvertisementID,
		"subject":         ad.Subject,
		"department":      ad.DepartmentName,
		"bearingno":       ad.BearingNo,
		"releaseOrderNo":  ad.ReleaseOrderNo,
	}
}
