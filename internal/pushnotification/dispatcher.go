package pushnotification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kazz187/devguild/internal/eventbus"
	"github.com/kazz187/devguild/internal/task"
)

type Dispatcher struct {
	eventBus *eventbus.Bus
	taskRepo task.Repository
	sender   *Sender
}

func NewDispatcher(eventBus *eventbus.Bus, taskRepo task.Repository, sender *Sender) *Dispatcher {
	return &Dispatcher{
		eventBus: eventBus,
		taskRepo: taskRepo,
		sender:   sender,
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	subID, ch := d.eventBus.Subscribe(256)
	defer d.eventBus.Unsubscribe(subID)

	slog.Info("push notification dispatcher started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("push notification dispatcher stopped")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			d.handle(ctx, event)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, event *eventbus.Event) {
	audience, payload := d.notificationFor(ctx, event)
	if payload == nil {
		return
	}
	d.sender.Send(ctx, audience, payload)
}

// notificationFor maps a lifecycle event to its push message. Events nobody
// needs to hear about yield a nil payload.
func (d *Dispatcher) notificationFor(ctx context.Context, event *eventbus.Event) (Audience, *NotificationPayload) {
	candidate := event.Metadata["candidate_id"]
	audience := Audience{PrincipalIDs: []string{candidate}}
	assignmentURL := fmt.Sprintf("/assignments/%s", event.ResourceID)

	switch event.Type {
	case eventbus.EventAssignmentCreated:
		return audience, &NotificationPayload{
			Title: "New assignment",
			Body:  fmt.Sprintf("You have been assigned %s", d.taskTitle(ctx, event.Metadata["task_id"])),
			URL:   assignmentURL,
			Tag:   event.ResourceID,
		}
	case eventbus.EventAssignmentStatusChanged:
		audience.Admins = true
		return audience, &NotificationPayload{
			Title: "Assignment status changed",
			Body:  fmt.Sprintf("%s moved from %s to %s", d.taskTitle(ctx, event.Metadata["task_id"]), event.Metadata["from"], event.Metadata["to"]),
			URL:   assignmentURL,
			Tag:   event.ResourceID,
		}
	case eventbus.EventPaymentCompleted:
		audience.Admins = true
		return audience, &NotificationPayload{
			Title: "Payment completed",
			Body:  fmt.Sprintf("%s %s has been paid out", event.Metadata["amount"], event.Metadata["currency"]),
			URL:   fmt.Sprintf("/assignments/%s", event.Metadata["assignment_id"]),
			Tag:   event.ResourceID,
		}
	case eventbus.EventPaymentFailed:
		audience.Admins = true
		return audience, &NotificationPayload{
			Title: "Payment failed",
			Body:  fmt.Sprintf("Payment attempt %s did not go through", event.Metadata["attempt"]),
			URL:   fmt.Sprintf("/assignments/%s", event.Metadata["assignment_id"]),
			Tag:   event.ResourceID,
		}
	}
	return Audience{}, nil
}

func (d *Dispatcher) taskTitle(ctx context.Context, taskID string) string {
	if taskID == "" {
		return "a task"
	}
	t, err := d.taskRepo.Get(ctx, taskID)
	if err != nil {
		return "task " + taskID
	}
	return fmt.Sprintf("%q", t.Title)
}
