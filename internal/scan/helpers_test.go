package scan

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
	gmailv1 "google.golang.org/api/gmail/v1"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// stubMailbox serves a fixed id list in pages of pageLen and canned messages.
type stubMailbox struct {
	ids      []string
	pageLen  int
	listErr  error
	messages map[string]*gmailv1.Message

	mu    sync.Mutex
	lists int
}

func (m *stubMailbox) List(_ context.Context, _ string, _ int64, pageToken string) (*gmailv1.ListMessagesResponse, error) {
	m.mu.Lock()
	m.lists++
	m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	start := 0
	if pageToken != "" {
		fmt.Sscanf(pageToken, "%d", &start)
	}
	n := m.pageLen
	if n == 0 {
		n = len(m.ids)
	}
	end := start + n
	if end > len(m.ids) {
		end = len(m.ids)
	}
	resp := &gmailv1.ListMessagesResponse{}
	for _, id := range m.ids[start:end] {
		resp.Messages = append(resp.Messages, &gmailv1.Message{Id: id})
	}
	if end < len(m.ids) {
		resp.NextPageToken = fmt.Sprintf("%d", end)
	}
	return resp, nil
}

func (m *stubMailbox) Get(_ context.Context, id string) (*gmailv1.Message, error) {
	msg, ok := m.messages[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return msg, nil
}

func mail(from, date, body string) *gmailv1.Message {
	var headers []*gmailv1.MessagePartHeader
	if from != "" {
		headers = append(headers, &gmailv1.MessagePartHeader{Name: "From", Value: from})
	}
	if date != "" {
		headers = append(headers, &gmailv1.MessagePartHeader{Name: "Date", Value: date})
	}
	return &gmailv1.Message{Payload: &gmailv1.MessagePart{
		MimeType: "text/plain",
		Headers:  headers,
		Body:     &gmailv1.MessagePartBody{Data: base64.RawURLEncoding.EncodeToString([]byte(body))},
	}}
}
