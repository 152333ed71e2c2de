package eventbus

import (
	"context"
	"fmt"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/event"
)

// AllTypes lists every event type published by the engine
var AllTypes = []event.Type{
	event.TypeWorkflowInitiated,
	event.TypeWorkflowActionRecorded,
	event.TypeWorkflowClosed,
	event.TypeAdmissionTransitioned,
	event.TypeAdmissionPaymentStarted,
	event.TypeAdmissionSLABreached,
}

// SubscribeLogging installs a subscriber that logs every published event
func SubscribeLogging(bus Bus, logger Logger) {
	for _, t := range AllTypes {
		bus.SubscribeNamed(t, "event-log", func(_ context.Context, evt *event.Event) error {
			logger.Info("Event published",
				"event_type", evt.Type.String(),
				"event_id", evt.ID,
				"entity_type", evt.EntityType,
				"entity_id", evt.EntityID,
				"instance_id", evt.InstanceID,
				"actor_id", evt.ActorID,
			)
			return nil
		})
	}
}

// SubscribeChat posts workflow closures, admission transitions and SLA
// breaches to a team chat
func SubscribeChat(bus Bus, notifier port.ChatNotifier) {
	bus.SubscribeNamed(event.TypeWorkflowClosed, "chat-notifier", func(ctx context.Context, evt *event.Event) error {
		title := fmt.Sprintf("Workflow %s", evt.GetPayloadString("status"))
		body := fmt.Sprintf("%s %s: instance %d closed by %s", evt.EntityType, evt.EntityID, evt.InstanceID, evt.ActorID)
		return notifier.Notify(ctx, title, body)
	})
	bus.SubscribeNamed(event.TypeAdmissionTransitioned, "chat-notifier", func(ctx context.Context, evt *event.Event) error {
		title := fmt.Sprintf("Admission %s", evt.GetPayloadString("status"))
		body := fmt.Sprintf("Application %s moved to %s by %s", evt.EntityID, evt.GetPayloadString("status"), evt.ActorID)
		return notifier.Notify(ctx, title, body)
	})
	bus.SubscribeNamed(event.TypeAdmissionSLABreached, "chat-notifier", func(ctx context.Context, evt *event.Event) error {
		title := fmt.Sprintf("Admission SLA breached: %s", evt.GetPayloadString("status"))
		body := fmt.Sprintf("Application %s has been %s since its deadline %s",
			evt.EntityID, evt.GetPayloadString("status"), evt.GetPayloadString("due_at"))
		return notifier.Notify(ctx, title, body)
	})
}
