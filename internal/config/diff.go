package config

import (
	"reflect"
	"strings"

	logx "dailydispatch/pkg/logx"
)

// SummarizeChange returns (1) the changed top-level sections, (2) safe
// structured fields for logging (never includes tokens), and (3) the names
// of campaigns that were added, removed or modified.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	fields := make([]logx.Field, 0, 8)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		fields = append(fields, logx.String("logging.level", newCfg.Logging.Level))
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		fields = append(fields, logx.String("storage.driver", newCfg.Storage.Driver))
	}
	if !reflect.DeepEqual(oldCfg.Dispatch, newCfg.Dispatch) {
		changed = append(changed, "dispatch")
		fields = append(fields,
			logx.Int("dispatch.max_attempts", newCfg.Dispatch.MaxAttempts),
			logx.String("dispatch.throttle", newCfg.Dispatch.Throttle),
		)
	}
	if !reflect.DeepEqual(oldCfg.Gateway, newCfg.Gateway) {
		changed = append(changed, "gateway")
		fields = append(fields,
			logx.String("gateway.driver", newCfg.Gateway.Driver),
			logx.Bool("gateway.webhook.token_set", strings.TrimSpace(newCfg.Gateway.Webhook.Token) != ""),
		)
	}
	if oldCfg.Render != newCfg.Render {
		changed = append(changed, "render")
	}
	if oldCfg.Source != newCfg.Source {
		changed = append(changed, "source")
	}
	if oldCfg.Serve != newCfg.Serve {
		changed = append(changed, "serve")
	}

	var campaigns []string
	for _, name := range newCfg.CampaignNames() {
		prev, ok := oldCfg.Campaigns[name]
		if !ok || !reflect.DeepEqual(prev, newCfg.Campaigns[name]) {
			campaigns = append(campaigns, name)
		}
	}
	for _, name := range oldCfg.CampaignNames() {
		if _, ok := newCfg.Campaigns[name]; !ok {
			campaigns = append(campaigns, name)
		}
	}
	if len(campaigns) > 0 {
		changed = append(changed, "campaigns")
		fields = append(fields, logx.String("campaigns", strings.Join(campaigns, ",")))
	}
	return changed, fields, campaigns
}
