package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"golang.org/x/oauth2"
)

type captureTransport struct {
	req  *http.Request
	body []byte
}

func (t *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.req = req
	t.body, _ = io.ReadAll(req.Body)
	_ = req.Body.Close()
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(`{}`)),
		Header:     make(http.Header),
	}, nil
}

func TestFCMSenderSend_NotificationIncludesAPNSAlert(t *testing.T) {
	rt := &captureTransport{}
	sender := &FCMSender{
		projectID:   "pid",
		tokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "token"}),
		client:      &http.Client{Transport: rt},
	}

	err := sender.Send(context.Background(), "fcm-token-1", Message{
		Data: map[string]string{"type": "reminder", "movie_id": "tt1375666"},
		Notification: &Notification{
			Title: "Inception is out",
			Body:  "Your reminder for Inception is due.",
		},
	})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(rt.body, &payload); err != nil {
		t.Fatalf("unmarshal request body: %v", err)
	}
	message, _ := payload["message"].(map[string]any)
	if message == nil {
		t.Fatalf("missing message payload")
	}

	notification, _ := message["notification"].(map[string]any)
	if notification == nil {
		t.Fatalf("missing notification payload")
	}
	if notification["title"] != "Inception is out" {
		t.Fatalf("unexpected notification title: %v", notification["title"])
	}

	apns, _ := message["apns"].(map[string]any)
	if apns == nil {
		t.Fatalf("missing apns payload")
	}
	headers, _ := apns["headers"].(map[string]any)
	if headers == nil {
		t.Fatalf("missing apns headers")
	}
	if headers["apns-push-type"] != "alert" {
		t.Fatalf("unexpected apns-push-type: %v", headers["apns-push-type"])
	}
	if headers["apns-priority"] != "10" {
		t.Fatalf("unexpected apns-priority: %v", headers["apns-priority"])
	}
	if got := rt.req.URL.String(); got != "https://fcm.googleapis.com/v1/projects/pid/messages:send" {
		t.Fatalf("unexpected url: %s", got)
	}
	if got := rt.req.Header.Get("Authorization"); got != "Bearer token" {
		t.Fatalf("unexpected authorization header: %s", got)
	}
}

func TestFCMSenderSend_DataOnlyOmitsNotificationAndAPNS(t *testing.T) {
	rt := &captureTransport{}
	sender := &FCMSender{
		projectID:   "pid",
		tokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "token"}),
		client:      &http.Client{Transport: rt},
	}

	err := sender.Send(context.Background(), "fcm-token-1", Message{
		Data: map[string]string{"type": "friend_request"},
	})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(rt.body, &payload); err != nil {
		t.Fatalf("unmarshal request body: %v", err)
	}
	message, _ := payload["message"].(map[string]any)
	if message == nil {
		t.Fatalf("missing message payload")
	}
	if _, ok := message["notification"]; ok {
		t.Fatalf("expected notification to be omitted for data-only")
	}
	if _, ok := message["apns"]; ok {
		t.Fatalf("expected apns to be omitted for data-only")
	}
}

type errorTransport struct {
	status int
	body   string
}

func (t errorTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: t.status,
		Body:       io.NopCloser(strings.NewReader(t.body)),
		Header:     make(http.Header),
	}, nil
}

func TestFCMSenderSend_UnregisteredTokenMapsToErrInvalidToken(t *testing.T) {
	sender := &FCMSender{
		projectID:   "pid",
		tokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "token"}),
		client: &http.Client{Transport: errorTransport{
			status: http.StatusNotFound,
			body:   `{"error":{"status":"NOT_FOUND","message":"Requested entity was not found.","details":[{"@type":"type.googleapis.com/google.firebase.fcm.v1.FcmError","errorCode":"UNREGISTERED"}]}}`,
		}},
	}

	err := sender.Send(context.Background(), "stale", Message{Data: map[string]string{"type": "reminder"}})
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestFCMSenderSend_RequiresToken(t *testing.T) {
	sender := &FCMSender{projectID: "pid"}
	if err := sender.Send(context.Background(), "  ", Message{}); err == nil {
		t.Fatalf("expected error for empty token")
	}
}
