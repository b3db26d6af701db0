package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/travelcraft/booking-backend/internal/kafka"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendMessage(ctx context.Context, phones []string, message string) (int64, error) {
	args := m.Called(ctx, phones, message)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSender) GetName() string { return "mock" }

func TestOpsAlertService_HandleMessage(t *testing.T) {
	phones := []string{"0771234567"}
	msg := kafka.NotificationMessage{
		BookingID: uuid.New(),
		Text:      "New booking confirmed\nTravelers: 2",
		DeepLink:  "https://wa.me/94771234567?text=New",
	}
	payload, err := json.Marshal(msg)
	require.NoError(t, err)

	t.Run("sends with link", func(t *testing.T) {
		sender := new(mockSender)
		sender.On("SendMessage", mock.Anything, phones, mock.MatchedBy(func(text string) bool {
			return strings.HasPrefix(text, "New booking confirmed") && strings.Contains(text, "Reply: https://wa.me/")
		})).Return(int64(7), nil)

		svc := NewOpsAlertService(sender, phones, quietLogger())
		assert.NoError(t, svc.HandleMessage(context.Background(), payload))
		sender.AssertExpectations(t)
	})

	t.Run("gateway failure is skipped", func(t *testing.T) {
		sender := new(mockSender)
		sender.On("SendMessage", mock.Anything, phones, mock.Anything).Return(int64(0), errors.New("login failed"))

		svc := NewOpsAlertService(sender, phones, quietLogger())
		assert.NoError(t, svc.HandleMessage(context.Background(), payload))
	})

	t.Run("send timeout is skipped", func(t *testing.T) {
		sender := new(mockSender)
		ctx, cancel := context.WithTimeout(context.Background(), 0)
		defer cancel()
		<-ctx.Done()
		sender.On("SendMessage", mock.Anything, phones, mock.Anything).Return(int64(0), context.DeadlineExceeded)

		svc := NewOpsAlertService(sender, phones, quietLogger())
		assert.NoError(t, svc.HandleMessage(ctx, payload))
		sender.AssertNumberOfCalls(t, "SendMessage", 1)
	})

	t.Run("shutdown leaves the message unacknowledged", func(t *testing.T) {
		sender := new(mockSender)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		sender.On("SendMessage", mock.Anything, phones, mock.Anything).Return(int64(0), context.Canceled)

		svc := NewOpsAlertService(sender, phones, quietLogger())
		assert.ErrorIs(t, svc.HandleMessage(ctx, payload), context.Canceled)
	})

	t.Run("malformed payload is skipped", func(t *testing.T) {
		sender := new(mockSender)
		svc := NewOpsAlertService(sender, phones, quietLogger())

		assert.NoError(t, svc.HandleMessage(context.Background(), []byte("{")))
		sender.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("no phones configured", func(t *testing.T) {
		sender := new(mockSender)
		svc := NewOpsAlertService(sender, nil, quietLogger())

		assert.NoError(t, svc.HandleMessage(context.Background(), payload))
		sender.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestFormatOpsAlert_Truncates(t *testing.T) {
	msg := kafka.NotificationMessage{
		Text:     strings.Repeat("x", 700),
		DeepLink: "https://wa.me/1?text=x",
	}

	text := FormatOpsAlert(msg)
	assert.Len(t, text, smsMaxLength)
	assert.True(t, strings.HasSuffix(text, "..."))
	assert.NotContains(t, text, "Reply:")
}

func TestFormatOpsAlert_TruncatesOnCharacterBoundary(t *testing.T) {
	msg := kafka.NotificationMessage{Text: strings.Repeat("ස", 700)}

	text := FormatOpsAlert(msg)
	assert.True(t, utf8.ValidString(text))
	assert.Equal(t, smsMaxLength, utf8.RuneCountInString(text))
	assert.True(t, strings.HasPrefix(text, strings.Repeat("ස", smsMaxLength-3)))
	assert.True(t, strings.HasSuffix(text, "..."))

	short := kafka.NotificationMessage{Text: strings.Repeat("ස", 200), DeepLink: "https://wa.me/1?text=x"}
	assert.Contains(t, FormatOpsAlert(short), "Reply: https://wa.me/1?text=x")
}
