package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mkushnerov/tg-harvester/internal/harvester"
)

// MockNATSClient mocks the nats client operations we need
type MockNATSClient struct {
	PublishedSubject string
	PublishedData    []byte
	PublishError     error
}

func (m *MockNATSClient) Publish(subject string, data []byte) error {
	m.PublishedSubject = subject
	m.PublishedData = data
	return m.PublishError
}

func TestNATSPublisher_PublishHarvestCompleted(t *testing.T) {
	mock := &MockNATSClient{}
	pub := &NATSPublisher{
		conn: mock,
	}

	event := harvester.HarvestCompletedEvent{
		AccountLabel:   "main",
		DateFrom:       "2024-01-15",
		DateTo:         "2024-01-15",
		UsersCollected: 4,
		NewUsers:       3,
		Duplicates:     1,
		CompletedAt:    time.Now().UTC(),
	}

	err := pub.PublishHarvestCompleted(context.Background(), event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if mock.PublishedSubject != SubjectHarvestCompleted {
		t.Errorf("subject = %s, want %s", mock.PublishedSubject, SubjectHarvestCompleted)
	}

	var decoded harvester.HarvestCompletedEvent
	if err := json.Unmarshal(mock.PublishedData, &decoded); err != nil {
		t.Fatalf("payload is not valid json: %v", err)
	}
	if decoded.AccountLabel != "main" || decoded.NewUsers != 3 {
		t.Errorf("decoded event = %+v, want original fields back", decoded)
	}
}

func TestNATSPublisher_PublishError(t *testing.T) {
	mock := &MockNATSClient{PublishError: errors.New("connection lost")}
	pub := &NATSPublisher{conn: mock}

	err := pub.PublishHarvestCompleted(context.Background(), harvester.HarvestCompletedEvent{})
	if err == nil {
		t.Fatal("expected error when publish fails")
	}
}
