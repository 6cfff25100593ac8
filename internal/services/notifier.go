package services

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/containrrr/shoutrrr"
	"gorm.io/gorm"

	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/logger"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/models"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/version"
)

// Notifier fans newly cached decisions out to operator-configured
// shoutrrr endpoints. The URL list lives in the settings table so it can
// be changed at runtime without a restart.
type Notifier struct {
	DB *gorm.DB
}

func NewNotifier(db *gorm.DB) *Notifier {
	return &Notifier{DB: db}
}

var discordWebhookRegex = regexp.MustCompile(`^https://discord(?:app)?\.com/api/webhooks/(\d+)/([a-zA-Z0-9_-]+)`)

// normalizeURL converts plain Discord webhook URLs into shoutrrr's
// discord:// scheme; everything else passes through untouched.
func normalizeURL(rawURL string) string {
	if m := discordWebhookRegex.FindStringSubmatch(rawURL); len(m) == 3 {
		return fmt.Sprintf("discord://%s@%s", m[2], m[1])
	}
	return rawURL
}

// URLs returns the configured notification endpoints, split on commas
// and newlines.
func (n *Notifier) URLs() []string {
	var setting models.Setting
	if err := n.DB.Where("key = ?", models.SettingNotifyURLs).First(&setting).Error; err != nil {
		return nil
	}

	var urls []string
	for _, u := range strings.FieldsFunc(setting.Value, func(r rune) bool { return r == ',' || r == '\n' }) {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

// SetURLs persists the notification endpoint list.
func (n *Notifier) SetURLs(urls []string) error {
	setting := models.Setting{Key: models.SettingNotifyURLs, Value: strings.Join(urls, "\n")}
	return n.DB.Where(models.Setting{Key: models.SettingNotifyURLs}).
		Assign(models.Setting{Key: models.SettingNotifyURLs, Value: setting.Value}).
		FirstOrCreate(&setting).Error
}

// NotifyNewDecisions sends one message summarizing the batch to every
// configured endpoint. Failures are logged per endpoint; one broken
// endpoint must not silence the others.
func (n *Notifier) NotifyNewDecisions(decisions []models.Decision) {
	if len(decisions) == 0 {
		return
	}
	urls := n.URLs()
	if len(urls) == 0 {
		return
	}

	msg := formatDecisionMessage(decisions)
	for _, rawURL := range urls {
		if err := shoutrrr.Send(normalizeURL(rawURL), msg); err != nil {
			logger.WithComponent("notifier").Warnf("notification send failed: %v", err)
		}
	}
}

// Test sends a test message to a single endpoint.
func (n *Notifier) Test(rawURL string) error {
	return shoutrrr.Send(normalizeURL(rawURL), "Test notification from "+version.Name)
}

func formatDecisionMessage(decisions []models.Decision) string {
	if len(decisions) == 1 {
		d := decisions[0]
		return fmt.Sprintf("New %s on %s (%s)", d.Type, d.Value, d.Scenario)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d new decisions:\n", len(decisions))
	shown := len(decisions)
	if shown > 10 {
		shown = 10
	}
	for _, d := range decisions[:shown] {
		fmt.Fprintf(&b, "- %s on %s (%s)\n", d.Type, d.Value, d.Scenario)
	}
	if rest := len(decisions) - shown; rest > 0 {
		fmt.Fprintf(&b, "and %d more", rest)
	}
	return strings.TrimRight(b.String(), "\n")
}
