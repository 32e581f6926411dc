package services

import (
	"context"
	"encoding/json"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"github.com/chachabrian/evvalet-backend/internal/models"
)

// NewMessagingClient initializes the Firebase Admin SDK from a service
// account file and returns its Cloud Messaging client.
func NewMessagingClient(ctx context.Context, serviceAccountPath string) (*messaging.Client, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(serviceAccountPath))
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}
	return client, nil
}

// NotificationPayload represents the notification data
type NotificationPayload struct {
	Title     string                 `json:"title"`
	Body      string                 `json:"body"`
	Data      map[string]interface{} `json:"data,omitempty"`
	ChannelID string                 `json:"channelId,omitempty"` // Android notification channel
	Priority  string                 `json:"priority,omitempty"`  // high, normal
	Tag       string                 `json:"tag,omitempty"`       // Android notification tag
}

type multicastSender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// TokenLister looks up a user's registered device tokens.
type TokenLister interface {
	ListDeviceTokens(ctx context.Context, userID string) ([]string, error)
}

// PushNotifier turns marketplace events into push notifications for the
// participant who should act on them.
type PushNotifier struct {
	sender multicastSender
	tokens TokenLister
	log    logrus.FieldLogger
}

func NewPushNotifier(sender multicastSender, tokens TokenLister, log logrus.FieldLogger) *PushNotifier {
	return &PushNotifier{sender: sender, tokens: tokens, log: log}
}

func (p *PushNotifier) Publish(ctx context.Context, event models.Event) error {
	if !event.Primary() {
		return nil
	}
	for _, n := range notificationsFor(event) {
		tokens, err := p.tokens.ListDeviceTokens(ctx, n.userID)
		if err != nil {
			return fmt.Errorf("list device tokens: %w", err)
		}
		if len(tokens) == 0 {
			continue
		}

		resp, err := p.sender.SendEachForMulticast(ctx, buildMulticast(tokens, n.payload))
		if err != nil {
			return fmt.Errorf("error sending multicast message: %w", err)
		}
		if resp.FailureCount > 0 {
			for idx, r := range resp.Responses {
				if !r.Success {
					p.log.WithError(r.Error).WithFields(logrus.Fields{
						"user_id": n.userID,
						"token":   tokens[idx],
					}).Warn("push delivery failed")
				}
			}
		}
	}
	return nil
}

type pushNotification struct {
	userID  string
	payload NotificationPayload
}

// notificationsFor decides who hears about an event, and what they are told.
func notificationsFor(e models.Event) []pushNotification {
	data := map[string]interface{}{
		"type":           string(e.Type),
		"requestId":      e.RequestID,
		"status":         e.NewStatus,
		"notificationId": fmt.Sprintf("%s_%s_%d", e.Type, e.RequestID, e.OccurredAt.Unix()),
	}
	if e.OfferID != "" {
		data["offerId"] = e.OfferID
	}
	if e.RideID != "" {
		data["rideId"] = e.RideID
	}
	to := func(userID, title, body string) pushNotification {
		return pushNotification{userID: userID, payload: NotificationPayload{
			Title:     title,
			Body:      body,
			Data:      data,
			ChannelID: "evvalet_" + string(e.Type),
			Priority:  "high",
			Tag:       e.RequestID,
		}}
	}

	switch e.Type {
	case models.EventOfferUpdated:
		offer, _ := e.Data.(models.Offer)
		switch models.OfferStatus(e.NewStatus) {
		case models.OfferStatusPending:
			return []pushNotification{to(e.ClientID, "New offer", fmt.Sprintf("A driver offered %.2f for your request", offer.Price))}
		case models.OfferStatusAccepted:
			return []pushNotification{to(e.DriverID, "Offer accepted", "The client accepted your offer")}
		case models.OfferStatusRejected:
			return []pushNotification{to(e.DriverID, "Offer declined", "Your offer is no longer in consideration")}
		case models.OfferStatusSelected:
			return []pushNotification{to(e.DriverID, "You got the job", "The client selected your offer")}
		}

	case models.EventNegotiationAppended:
		entry, _ := e.Data.(models.NegotiationEntry)
		recipient := e.DriverID
		if entry.Role == models.RoleDriver {
			recipient = e.ClientID
		}
		return []pushNotification{to(recipient, "New counter-proposal", fmt.Sprintf("Proposed price: %.2f", entry.Price))}

	case models.EventNegotiationResolved:
		entry, _ := e.Data.(models.NegotiationEntry)
		title := "Proposal declined"
		if entry.Status == models.NegotiationStatusAccepted {
			title = "Proposal accepted"
		}
		return []pushNotification{to(entry.OriginatorID, title, fmt.Sprintf("Your proposal of %.2f was answered", entry.Price))}

	case models.EventRequestUpdated:
		if models.RequestStatus(e.NewStatus) == models.RequestStatusCancelled && e.DriverID != "" {
			return []pushNotification{to(e.DriverID, "Job cancelled", "The client cancelled the request")}
		}

	case models.EventRideStatusChanged:
		switch models.RideStatus(e.NewStatus) {
		case models.RideStatusOnTheWay:
			return []pushNotification{to(e.ClientID, "Driver on the way", "Your driver is heading to the pickup point")}
		case models.RideStatusArrived:
			return []pushNotification{to(e.ClientID, "Driver arrived", "Your driver has arrived at the pickup point")}
		case models.RideStatusInProgress:
			return []pushNotification{to(e.ClientID, "Service started", "Your driver has started the job")}
		case models.RideStatusCompleted:
			return []pushNotification{to(e.ClientID, "Service completed", "Your driver has finished the job")}
		case models.RideStatusCancelled:
			return []pushNotification{
				to(e.ClientID, "Ride cancelled", "The ride was cancelled"),
				to(e.DriverID, "Ride cancelled", "The ride was cancelled"),
			}
		}
	}
	return nil
}

func buildMulticast(tokens []string, payload NotificationPayload) *messaging.MulticastMessage {
	return &messaging.MulticastMessage{
		Notification: &messaging.Notification{
			Title: payload.Title,
			Body:  payload.Body,
		},
		Data:    dataStrings(payload.Data),
		Tokens:  tokens,
		Android: getAndroidConfig(payload),
		APNS:    getAPNSConfig(),
	}
}

// dataStrings flattens the payload data, FCM only carries string values.
func dataStrings(data map[string]interface{}) map[string]string {
	out := make(map[string]string, len(data))
	for key, value := range data {
		switch v := value.(type) {
		case string:
			out[key] = v
		case int, int64, float64, bool:
			out[key] = fmt.Sprintf("%v", v)
		default:
			b, err := json.Marshal(v)
			if err != nil {
				continue
			}
			out[key] = string(b)
		}
	}
	return out
}

func getAndroidConfig(payload NotificationPayload) *messaging.AndroidConfig {
	channelID := payload.ChannelID
	if channelID == "" {
		channelID = "evvalet_default"
	}

	priority := messaging.PriorityHigh
	if payload.Priority == "normal" {
		priority = messaging.PriorityDefault
	}

	return &messaging.AndroidConfig{
		Priority: "high",
		Notification: &messaging.AndroidNotification{
			Sound:                 "default",
			ChannelID:             channelID,
			Priority:              priority,
			DefaultSound:          true,
			Tag:                   payload.Tag,
			DefaultVibrateTimings: true,
		},
	}
}

func getAPNSConfig() *messaging.APNSConfig {
	badge := 1
	return &messaging.APNSConfig{
		Payload: &messaging.APNSPayload{
			Aps: &messaging.Aps{
				Sound:            "default",
				Badge:            &badge,
				MutableContent:   true,
				ContentAvailable: true,
			},
		},
	}
}
