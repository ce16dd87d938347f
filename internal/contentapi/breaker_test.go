package contentapi_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/readlist/readlist-sync/internal/contentapi"
	"github.com/readlist/readlist-sync/internal/contentapi/mocks"
)

func testBreakerSettings() contentapi.BreakerSettings {
	return contentapi.BreakerSettings{
		Name:                "test",
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             time.Hour,
		ConsecutiveFailures: 2,
	}
}

func TestCircuitBreakerClient_OpensOnServerErrors(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	inner := mocks.NewMockClient(ctrl)
	serverErr := &contentapi.HTTPError{StatusCode: http.StatusInternalServerError, Message: "boom"}

	inner.EXPECT().
		ListDocuments(gomock.Any(), "t", gomock.Any()).
		Return(nil, serverErr).
		Times(2)

	client := contentapi.NewCircuitBreakerClient(inner, testBreakerSettings())
	params := contentapi.ListParams{Location: contentapi.LocationInbox}

	for range 2 {
		_, err := client.ListDocuments(context.Background(), "t", params)
		require.Error(t, err)
		assert.NotErrorIs(t, err, contentapi.ErrCircuitOpen)
	}

	// Third call is rejected without reaching the inner client.
	_, err := client.ListDocuments(context.Background(), "t", params)
	require.Error(t, err)
	assert.ErrorIs(t, err, contentapi.ErrCircuitOpen)
	assert.Equal(t, "open", client.State())
}

func TestCircuitBreakerClient_ClientErrorsDoNotTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
	}{
		{name: "rate limited", err: &contentapi.RateLimitedError{RetryAfter: time.Second}},
		{name: "not found", err: contentapi.ErrDocumentNotFound},
		{name: "unauthorized", err: &contentapi.HTTPError{StatusCode: http.StatusUnauthorized}},
		{name: "canceled", err: context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			inner := mocks.NewMockClient(ctrl)
			inner.EXPECT().
				GetDocument(gomock.Any(), "t", "doc").
				Return(nil, tt.err).
				Times(5)

			client := contentapi.NewCircuitBreakerClient(inner, testBreakerSettings())
			for range 5 {
				_, err := client.GetDocument(context.Background(), "t", "doc")
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.err) || contentapi.IsRateLimited(err))
			}
			assert.Equal(t, "closed", client.State())
		})
	}
}

func TestCircuitBreakerClient_PassesResults(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	inner := mocks.NewMockClient(ctrl)
	next := "p2"
	expected := &contentapi.ListResponse{
		Count:          1,
		NextPageCursor: &next,
		Results:        []contentapi.Document{{ID: "a"}},
	}
	inner.EXPECT().ListDocuments(gomock.Any(), "t", gomock.Any()).Return(expected, nil)
	inner.EXPECT().GetDocument(gomock.Any(), "t", "a").Return(&contentapi.Document{ID: "a"}, nil)

	client := contentapi.NewCircuitBreakerClient(inner, contentapi.DefaultBreakerSettings())

	resp, err := client.ListDocuments(context.Background(), "t", contentapi.ListParams{Location: contentapi.LocationInbox})
	require.NoError(t, err)
	assert.Same(t, expected, resp)

	doc, err := client.GetDocument(context.Background(), "t", "a")
	require.NoError(t, err)
	assert.Equal(t, "a", doc.ID)
}
