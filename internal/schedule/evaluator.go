package schedule

import (
	"fmt"
	"time"

	"github.com/torim-app/torim/internal/model"
	"github.com/torim-app/torim/internal/settings"
	"github.com/torim-app/torim/internal/timeutil"
)

// Item is one concrete send produced from a reminder rule, before it is
// persisted as a queue record.
type Item struct {
	Type    string
	To      string
	SendAt  time.Time
	Payload model.NotificationPayload
}

// Evaluator turns the configured reminder rules into concrete
// (sendAt, renderedText) pairs for one appointment.
type Evaluator struct {
	zone  timeutil.Zone
	clock timeutil.Clock
}

func NewEvaluator(zone timeutil.Zone, clock timeutil.Clock) *Evaluator {
	return &Evaluator{zone: zone, clock: clock}
}

// Evaluate applies every active rule to the appointment start instant and
// de-duplicates the result by minute bucket.
//
// An offset reminder whose computed time has already passed collapses to
// now; the guard on appointment start only matters for future
// appointments, past ones collapse the same way on purpose.
func (e *Evaluator) Evaluate(cfg settings.Settings, start time.Time, clientName, consultantName, to string) []Item {
	now := e.clock.Now()
	dateHe, timeHe := e.zone.CivilParts(start)
	tokens := settings.Tokens{
		ClientName:     clientName,
		ConsultantName: consultantName,
		DateHe:         dateHe,
		TimeHe:         timeHe,
	}

	var items []Item
	for _, r := range cfg.Reminders {
		if !r.Active {
			continue
		}
		var sendAt time.Time
		if r.Immediate {
			sendAt = now
		} else {
			sendAt = e.zone.At(start, r.OffsetDays, r.Hour, r.Minute)
			if sendAt.Before(now) {
				sendAt = now
			}
		}
		items = append(items, Item{
			Type:    ruleTag(r),
			To:      to,
			SendAt:  sendAt,
			Payload: model.NotificationPayload{MessageText: cfg.Render(r.Template, tokens)},
		})
	}
	return dedupeByMinute(items)
}

func ruleTag(r settings.ReminderRule) string {
	if r.Immediate {
		return model.TypeCreated
	}
	return fmt.Sprintf("offset_%d_%d:%d", r.OffsetDays, r.Hour, r.Minute)
}

// dedupeByMinute keeps one item per truncated-minute send time. Several
// rules can legitimately collapse onto now (an immediate rule plus a
// past-due offset rule for a last-minute booking); sending both is
// user-visible spam. The created item wins its bucket, otherwise the
// first one encountered stays. Evaluation order is preserved.
func dedupeByMinute(items []Item) []Item {
	byMinute := make(map[time.Time]int, len(items))
	var out []Item
	for _, it := range items {
		key := timeutil.TruncateMinute(it.SendAt)
		if i, ok := byMinute[key]; ok {
			if it.Type == model.TypeCreated && out[i].Type != model.TypeCreated {
				out[i] = it
			}
			continue
		}
		byMinute[key] = len(out)
		out = append(out, it)
	}
	return out
}
