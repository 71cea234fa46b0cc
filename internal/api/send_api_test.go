package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-gateway/internal/api"
	"github.com/tinywideclouds/go-push-gateway/internal/engine"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, appID string, msgs []*push.Message) (*push.BatchResult, error) {
	args := m.Called(ctx, appID, msgs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*push.BatchResult), args.Error(1)
}

func TestSendAPI_Send(t *testing.T) {
	t.Run("Dispatch returns the aggregate counters", func(t *testing.T) {
		sender := new(MockSender)
		sendAPI := api.NewSendAPI(sender, newTestLogger())

		result := &push.BatchResult{Platforms: map[push.Platform]push.Counters{
			push.PlatformAndroid: {Sent: 2, Total: 2},
		}}
		sender.On("Send", mock.Anything, "app-1", mock.Anything).Return(result, nil)

		rec := postJSON(t, sendAPI.Send,
			`{"app_id":"app-1","messages":[{"user_id":"user-1","body":{"title":"hi"}}]}`)

		require.Equal(t, http.StatusOK, rec.Code)
		var decoded push.BatchResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
		assert.Equal(t, 2, decoded.Platforms[push.PlatformAndroid].Sent)
	})

	t.Run("Empty message list returns 400", func(t *testing.T) {
		sendAPI := api.NewSendAPI(new(MockSender), newTestLogger())
		rec := postJSON(t, sendAPI.Send, `{"app_id":"app-1","messages":[]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Pre-dispatch errors map to 400", func(t *testing.T) {
		for _, err := range []error{
			push.ErrInvalidMessage,
			engine.ErrNoChannelsConfigured,
			engine.ErrNoTargetDevices,
		} {
			sender := new(MockSender)
			sendAPI := api.NewSendAPI(sender, newTestLogger())
			sender.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil, err)

			rec := postJSON(t, sendAPI.Send,
				`{"app_id":"app-1","messages":[{"user_id":"user-1"}]}`)
			assert.Equal(t, http.StatusBadRequest, rec.Code, "error %v", err)
		}
	})

	t.Run("Unexpected errors map to 500", func(t *testing.T) {
		sender := new(MockSender)
		sendAPI := api.NewSendAPI(sender, newTestLogger())
		sender.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil, assert.AnError)

		rec := postJSON(t, sendAPI.Send,
			`{"app_id":"app-1","messages":[{"user_id":"user-1"}]}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
