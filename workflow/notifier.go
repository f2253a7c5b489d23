package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nicolaschoi7042/itNswinventory-sub002/config"
	"github.com/nicolaschoi7042/itNswinventory-sub002/models"
	"github.com/nicolaschoi7042/itNswinventory-sub002/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// EmailSender delivers one email; send or fail, no retries at this level.
type EmailSender interface {
	Send(ctx context.Context, recipients []string, subject, body string) error
}

// PushSender delivers one push message to one target.
type PushSender interface {
	Send(ctx context.Context, target, title, message string) error
}

// Notifier owns the append-only notification log and delivers outcomes
// through the channels a schedule enables. Channels are attempted
// independently; a failing channel is logged and never blocks the others
// or propagates to the scheduler.
type Notifier struct {
	DB         *gorm.DB
	Logger     *logrus.Logger
	HTTPClient *http.Client
	Email      EmailSender
	Push       PushSender
}

func NewNotifier(db *gorm.DB, logger *logrus.Logger) *Notifier {
	return &Notifier{
		DB:         db,
		Logger:     logger,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Deliver appends the notification to the log, then fans out to enabled
// channels. Always safe to call from a firing callback.
func (n *Notifier) Deliver(ctx context.Context, notif *models.ExportNotification, cfg models.NotificationConfig) {
	if err := n.DB.WithContext(ctx).Create(notif).Error; err != nil {
		config.LogError(n.Logger, "workflow/notifier.go", "Deliver", "persist notification", notif.ScheduleName, err)
		// Still attempt channel delivery; the log row is not a gate.
	}

	if !cfg.Enabled {
		return
	}
	if notif.Type == models.NotificationTypeSuccess && !cfg.OnSuccess {
		return
	}
	if notif.Type == models.NotificationTypeError && !cfg.OnFailure {
		return
	}

	if cfg.Email.Enabled {
		n.deliverEmail(ctx, notif, cfg.Email.Recipients)
	}
	if cfg.Push.Enabled {
		n.deliverPush(ctx, notif, cfg.Push.Targets)
	}
	if cfg.Webhook.Enabled {
		n.deliverWebhook(ctx, notif, cfg.Webhook.URL, cfg.Webhook.Headers)
	}
}

func (n *Notifier) deliverEmail(ctx context.Context, notif *models.ExportNotification, recipients []string) {
	if n.Email == nil {
		n.channelFailed(notif, "email", fmt.Errorf("no email sender configured"))
		return
	}
	// Schedule configs routinely repeat addresses; send each one once.
	recipients = utils.UniqueSlice(recipients)
	if len(recipients) == 0 {
		n.channelFailed(notif, "email", fmt.Errorf("no recipients configured"))
		return
	}
	if err := n.Email.Send(ctx, recipients, notif.Title, notif.Message); err != nil {
		n.channelFailed(notif, "email", err)
	}
}

func (n *Notifier) deliverPush(ctx context.Context, notif *models.ExportNotification, targets []string) {
	if n.Push == nil {
		n.channelFailed(notif, "push", fmt.Errorf("no push sender configured"))
		return
	}
	for _, target := range targets {
		if err := n.Push.Send(ctx, target, notif.Title, notif.Message); err != nil {
			n.channelFailed(notif, "push", err)
		}
	}
}

// deliverWebhook posts the notification as JSON. A non-2xx response is a
// per-channel failure only.
func (n *Notifier) deliverWebhook(ctx context.Context, notif *models.ExportNotification, url string, headers map[string]string) {
	if url == "" {
		n.channelFailed(notif, "webhook", fmt.Errorf("no webhook url configured"))
		return
	}

	body, err := json.Marshal(notif)
	if err != nil {
		n.channelFailed(notif, "webhook", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		n.channelFailed(notif, "webhook", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := n.HTTPClient.Do(req)
	if err != nil {
		n.channelFailed(notif, "webhook", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		n.channelFailed(notif, "webhook", fmt.Errorf("endpoint returned %d", resp.StatusCode))
	}
}

func (n *Notifier) channelFailed(notif *models.ExportNotification, channel string, err error) {
	if n.Logger == nil {
		return
	}
	n.Logger.WithFields(logrus.Fields{
		"field":         "Notifier",
		"channel":       channel,
		"schedule_name": notif.ScheduleName,
		"type":          notif.Type,
	}).Warn("notification channel failed: " + err.Error())
}

// MarkRead flips the read flag, the only mutation the log allows.
func (n *Notifier) MarkRead(ctx context.Context, id int) error {
	res := n.DB.WithContext(ctx).Model(&models.ExportNotification{}).
		Where("id = ?", id).
		Update("is_read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("notification %d not found", id)
	}
	return nil
}

// List returns notifications newest first, optionally unread only.
func (n *Notifier) List(ctx context.Context, limit int, unreadOnly bool) ([]models.ExportNotification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := n.DB.WithContext(ctx).Model(&models.ExportNotification{}).
		Order("id DESC").Limit(limit)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}
	var out []models.ExportNotification
	err := query.Find(&out).Error
	return out, err
}
