package ledger

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// legacyRecord is the flat, untyped record written by the old campaign
// scripts: {"<phone>_<YYYY-MM-DD>": {...}}.
type legacyRecord struct {
	Phone   string `json:"telefone"`
	Name    string `json:"nome"`
	Date    string `json:"data_envio"`
	Time    string `json:"hora_envio"`
	Weekday *int   `json:"dia_da_semana"` // Monday=0
}

func importLegacy(data []byte, campaign string) (*Ledger, error) {
	var raw map[string]legacyRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal legacy history: %w", err)
	}

	l := New(campaign)
	for oldKey, r := range raw {
		phone := strings.TrimSpace(r.Phone)
		date := strings.TrimSpace(r.Date)
		if i := strings.LastIndex(oldKey, "_"); i > 0 {
			if phone == "" {
				phone = oldKey[:i]
			}
			if date == "" {
				date = oldKey[i+1:]
			}
		}
		day, err := time.ParseInLocation(dateLayout, date, time.Local)
		if phone == "" || err != nil {
			continue
		}

		sentAt := day
		if t := strings.TrimSpace(r.Time); t != "" {
			if ts, err := time.ParseInLocation(dateLayout+" 15:04:05", date+" "+t, time.Local); err == nil {
				sentAt = ts
			}
		}
		rec := DeliveryRecord{
			Name:   r.Name,
			Phone:  phone,
			SentAt: sentAt,
			Date:   date,
			Status: StatusSuccess,
		}
		if r.Weekday != nil {
			wd := time.Weekday((*r.Weekday + 1) % 7)
			rec.Weekday = &wd
		}
		l.Record(KeyFor(phone, day, campaign), rec)
	}
	return l, nil
}
