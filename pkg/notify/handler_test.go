// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/glassgate/pkg/config"
	glerrors "github.com/stacklok/glassgate/pkg/errors"
	"github.com/stacklok/glassgate/pkg/mirror"
	"github.com/stacklok/glassgate/pkg/mirror/mocks"
)

const (
	locationBody = `{"collection":"locations","itemId":"latest","userToken":"u1"}`
	shareBody    = `{"collection":"timeline","itemId":"i1","userToken":"u1","userActions":[{"type":"SHARE"}]}`
	launchBody   = `{"collection":"timeline","itemId":"i1","userToken":"u1","userActions":[{"type":"LAUNCH"}]}`
)

func photoItem() *mirror.TimelineItem {
	return &mirror.TimelineItem{
		ID:          "i1",
		Text:        "sunset",
		Attachments: []mirror.Attachment{{ID: "a1", ContentType: "image/png"}},
	}
}

func post(h http.Handler, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/notify", strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// assertAcked checks that the acknowledgment reached the sender.
func assertAcked(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.True(t, rec.Flushed, "reactor ran before the ack was flushed")
	assert.Equal(t, "OK", rec.Body.String())
}

func TestHandler_Dispatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		cfg    config.NotifyConfig
		body   string
		expect func(factory *mocks.MockClientFactory, client *mocks.MockClient, rec *httptest.ResponseRecorder)
	}{
		{
			name: "location inserts a summary card",
			body: locationBody,
			expect: func(factory *mocks.MockClientFactory, client *mocks.MockClient, _ *httptest.ResponseRecorder) {
				factory.EXPECT().ForUser(gomock.Any(), "u1").Return(client, nil)
				loc := &mirror.Location{ID: "latest", Latitude: 37.4, Longitude: -122.1}
				client.EXPECT().GetLocation(gomock.Any(), "latest").Return(loc, nil)
				client.EXPECT().InsertTimelineItem(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, item *mirror.TimelineItem) (*mirror.TimelineItem, error) {
						assert.Equal(t, "You are now at 37.4, -122.1", item.Text)
						assert.Same(t, loc, item.Location)
						assert.Equal(t, []mirror.MenuItem{{Action: mirror.ActionNavigate}}, item.MenuItems)
						assert.Equal(t, mirror.NotificationLevelDefault, item.Notification.Level)
						return &mirror.TimelineItem{ID: "new"}, nil
					})
			},
		},
		{
			name: "shared photo is echoed",
			cfg:  config.NotifyConfig{TimelineReaction: config.ReactionEcho},
			body: shareBody,
			expect: func(factory *mocks.MockClientFactory, client *mocks.MockClient, rec *httptest.ResponseRecorder) {
				factory.EXPECT().ForUser(gomock.Any(), "u1").Return(client, nil)
				client.EXPECT().GetTimelineItem(gomock.Any(), "i1").Return(photoItem(), nil)
				client.EXPECT().GetAttachmentContent(gomock.Any(), "i1", "a1").
					Return(&mirror.AttachmentContent{ContentType: "image/png", Data: []byte("png")}, nil)
				client.EXPECT().InsertTimelineItemWithMedia(gomock.Any(), gomock.Any(), "image/png", gomock.Any()).
					DoAndReturn(func(_ context.Context, item *mirror.TimelineItem, _ string, media io.Reader) (*mirror.TimelineItem, error) {
						assertAcked(t, rec)
						assert.Equal(t, EchoText, item.Text)
						data, err := io.ReadAll(media)
						require.NoError(t, err)
						assert.Equal(t, "png", string(data))
						return &mirror.TimelineItem{ID: "echo"}, nil
					})
			},
		},
		{
			name: "echo defaults the media type",
			body: shareBody,
			expect: func(factory *mocks.MockClientFactory, client *mocks.MockClient, _ *httptest.ResponseRecorder) {
				factory.EXPECT().ForUser(gomock.Any(), "u1").Return(client, nil)
				client.EXPECT().GetTimelineItem(gomock.Any(), "i1").Return(photoItem(), nil)
				client.EXPECT().GetAttachmentContent(gomock.Any(), "i1", "a1").
					Return(&mirror.AttachmentContent{Data: []byte("jpg")}, nil)
				client.EXPECT().InsertTimelineItemWithMedia(gomock.Any(), gomock.Any(), "image/jpeg", gomock.Any()).
					Return(&mirror.TimelineItem{ID: "echo"}, nil)
			},
		},
		{
			name: "shared photo caption is patched",
			cfg:  config.NotifyConfig{TimelineReaction: config.ReactionCaption},
			body: shareBody,
			expect: func(factory *mocks.MockClientFactory, client *mocks.MockClient, rec *httptest.ResponseRecorder) {
				factory.EXPECT().ForUser(gomock.Any(), "u1").Return(client, nil)
				client.EXPECT().GetTimelineItem(gomock.Any(), "i1").Return(photoItem(), nil)
				client.EXPECT().PatchTimelineItem(gomock.Any(), "i1", &mirror.TimelineItem{Text: CaptionPrefix + "sunset"}).
					DoAndReturn(func(_ context.Context, _ string, _ *mirror.TimelineItem) (*mirror.TimelineItem, error) {
						assertAcked(t, rec)
						return &mirror.TimelineItem{ID: "i1"}, nil
					})
			},
		},
		{
			name: "share without attachments is ignored",
			body: shareBody,
			expect: func(factory *mocks.MockClientFactory, client *mocks.MockClient, _ *httptest.ResponseRecorder) {
				factory.EXPECT().ForUser(gomock.Any(), "u1").Return(client, nil)
				client.EXPECT().GetTimelineItem(gomock.Any(), "i1").Return(&mirror.TimelineItem{ID: "i1"}, nil)
			},
		},
		{
			name: "launch gets a reply when enabled",
			cfg:  config.NotifyConfig{EnableLaunchReply: true},
			body: launchBody,
			expect: func(factory *mocks.MockClientFactory, client *mocks.MockClient, _ *httptest.ResponseRecorder) {
				factory.EXPECT().ForUser(gomock.Any(), "u1").Return(client, nil)
				client.EXPECT().GetTimelineItem(gomock.Any(), "i1").
					Return(&mirror.TimelineItem{ID: "i1", Text: "<b>cats</b>"}, nil)
				client.EXPECT().InsertTimelineItem(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, item *mirror.TimelineItem) (*mirror.TimelineItem, error) {
						assert.Contains(t, item.HTML, "Oh, did you say &lt;b&gt;cats&lt;/b&gt;?")
						assert.Equal(t, []mirror.MenuItem{{Action: mirror.ActionDelete}}, item.MenuItems)
						return &mirror.TimelineItem{ID: "reply"}, nil
					})
			},
		},
		{
			name: "launch is ignored when disabled",
			body: launchBody,
			expect: func(factory *mocks.MockClientFactory, client *mocks.MockClient, _ *httptest.ResponseRecorder) {
				factory.EXPECT().ForUser(gomock.Any(), "u1").Return(client, nil)
				client.EXPECT().GetTimelineItem(gomock.Any(), "i1").Return(&mirror.TimelineItem{ID: "i1"}, nil)
			},
		},
		{
			name: "unknown collection makes no api calls",
			body: `{"collection":"contacts","itemId":"c1","userToken":"u1"}`,
			expect: func(factory *mocks.MockClientFactory, client *mocks.MockClient, _ *httptest.ResponseRecorder) {
				factory.EXPECT().ForUser(gomock.Any(), "u1").Return(client, nil)
			},
		},
		{
			name: "missing credential stops processing",
			body: locationBody,
			expect: func(factory *mocks.MockClientFactory, _ *mocks.MockClient, _ *httptest.ResponseRecorder) {
				factory.EXPECT().ForUser(gomock.Any(), "u1").
					Return(nil, glerrors.NewNotFoundError("no credential stored for user", nil))
			},
		},
		{
			name: "malformed payload is not dispatched",
			body: `{"collection":"timeline"}`,
		},
		{
			name: "api failure is swallowed",
			body: locationBody,
			expect: func(factory *mocks.MockClientFactory, client *mocks.MockClient, _ *httptest.ResponseRecorder) {
				factory.EXPECT().ForUser(gomock.Any(), "u1").Return(client, nil)
				client.EXPECT().GetLocation(gomock.Any(), "latest").
					Return(nil, glerrors.NewRevokedError("grant revoked", nil))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			factory := mocks.NewMockClientFactory(ctrl)
			client := mocks.NewMockClient(ctrl)
			rec := httptest.NewRecorder()
			if tt.expect != nil {
				tt.expect(factory, client, rec)
			}

			h, err := NewHandler(factory, tt.cfg)
			require.NoError(t, err)

			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/notify", strings.NewReader(tt.body)))
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "OK", rec.Body.String())
			assert.True(t, rec.Flushed)
		})
	}
}

func TestHandler_Rejections(t *testing.T) {
	t.Parallel()

	t.Run("oversized body", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		h, err := NewHandler(mocks.NewMockClientFactory(ctrl), config.NotifyConfig{MaxLines: 5})
		require.NoError(t, err)

		rec := post(h, strings.Repeat("\n", 6), nil)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.NotEqual(t, "OK", rec.Body.String())
	})

	t.Run("default line limit", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		h, err := NewHandler(mocks.NewMockClientFactory(ctrl), config.NotifyConfig{})
		require.NoError(t, err)

		rec := post(h, strings.Repeat(" \n", DefaultMaxLines+1), nil)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("rate limited", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		h, err := NewHandler(mocks.NewMockClientFactory(ctrl), config.NotifyConfig{RateLimit: 0.001, RateBurst: 1})
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, post(h, `{}`, nil).Code)
		assert.Equal(t, http.StatusTooManyRequests, post(h, `{}`, nil).Code)
	})

	t.Run("unknown reaction", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		_, err := NewHandler(mocks.NewMockClientFactory(ctrl), config.NotifyConfig{TimelineReaction: "shout"})
		require.Error(t, err)
	})
}

func TestHandler_Signature(t *testing.T) {
	t.Parallel()

	secret := "s3cret"
	ctrl := gomock.NewController(t)
	factory := mocks.NewMockClientFactory(ctrl)
	factory.EXPECT().ForUser(gomock.Any(), "u1").
		Return(nil, glerrors.NewNotFoundError("no credential stored for user", nil)).Times(1)

	h, err := NewHandler(factory, config.NotifyConfig{SigningSecret: secret})
	require.NoError(t, err)

	rec := post(h, locationBody, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	ts := time.Now().Unix()
	header := http.Header{}
	header.Set(SignatureHeader, SignPayload([]byte(secret), ts, []byte(locationBody)))
	header.Set(TimestampHeader, strconv.FormatInt(ts, 10))

	rec = post(h, locationBody, header)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestHandler_RepeatedLocationUpdatesAllReact(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	factory := mocks.NewMockClientFactory(ctrl)
	client := mocks.NewMockClient(ctrl)
	factory.EXPECT().ForUser(gomock.Any(), "u1").Return(client, nil).Times(2)
	client.EXPECT().GetLocation(gomock.Any(), "latest").Return(&mirror.Location{}, nil).Times(2)
	client.EXPECT().InsertTimelineItem(gomock.Any(), gomock.Any()).Return(&mirror.TimelineItem{ID: "n"}, nil).Times(2)

	h, err := NewHandler(factory, config.NotifyConfig{})
	require.NoError(t, err)

	// The location collection always reports itemId "latest"; identical
	// bodies are distinct updates.
	for range 2 {
		assert.Equal(t, http.StatusOK, post(h, locationBody, nil).Code)
	}
}

func TestHandler_Redelivery(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	factory := mocks.NewMockClientFactory(ctrl)
	client := mocks.NewMockClient(ctrl)
	factory.EXPECT().ForUser(gomock.Any(), "u1").Return(client, nil).Times(5)

	gomock.InOrder(
		client.EXPECT().GetLocation(gomock.Any(), "latest").Return(nil, errors.New("boom")),
		client.EXPECT().GetLocation(gomock.Any(), "latest").Return(&mirror.Location{}, nil).Times(2),
	)
	client.EXPECT().InsertTimelineItem(gomock.Any(), gomock.Any()).Return(&mirror.TimelineItem{ID: "n"}, nil).Times(2)

	h, err := NewHandler(factory, config.NotifyConfig{}, WithDeduper(NewMemoryDeduper(time.Minute)))
	require.NoError(t, err)

	first := http.Header{}
	first.Set(DeliveryHeader, "d1")
	second := http.Header{}
	second.Set(DeliveryHeader, "d2")

	// d1 fails and releases its claim, its retry succeeds, a further retry
	// is absorbed. d2 is a new delivery with the same body.
	for _, header := range []http.Header{first, first, first, first, second} {
		assert.Equal(t, http.StatusOK, post(h, locationBody, header).Code)
	}
}

// blockingReactor holds phase 2 until released.
type blockingReactor struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingReactor) React(ctx context.Context, _ mirror.Client, _ *Notification) error {
	close(b.started)
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil
}

func TestHandler_AckCompletesBeforeDispatch(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	factory := mocks.NewMockClientFactory(ctrl)
	factory.EXPECT().ForUser(gomock.Any(), "u1").Return(mocks.NewMockClient(ctrl), nil)

	reactor := &blockingReactor{started: make(chan struct{}), release: make(chan struct{})}
	h, err := NewHandler(factory, config.NotifyConfig{}, WithReactor(mirror.CollectionLocations, reactor))
	require.NoError(t, err)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	// Registered after srv.Close so it runs first and unblocks the handler.
	t.Cleanup(func() { close(reactor.release) })

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(srv.URL, "application/json", strings.NewReader(locationBody))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
	assert.Equal(t, int64(2), resp.ContentLength)

	select {
	case <-reactor.started:
	case <-time.After(5 * time.Second):
		t.Fatal("reactor never ran")
	}
}

func TestHandler_Metrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	ctrl := gomock.NewController(t)
	factory := mocks.NewMockClientFactory(ctrl)
	client := mocks.NewMockClient(ctrl)
	factory.EXPECT().ForUser(gomock.Any(), "u1").Return(client, nil).Times(2)
	client.EXPECT().GetLocation(gomock.Any(), "latest").Return(&mirror.Location{}, nil)
	client.EXPECT().InsertTimelineItem(gomock.Any(), gomock.Any()).Return(&mirror.TimelineItem{ID: "n"}, nil)

	h, err := NewHandler(factory, config.NotifyConfig{MaxLines: 2}, WithMeterProvider(mp))
	require.NoError(t, err)

	post(h, locationBody, nil)
	post(h, "\n\n\n", nil)
	post(h, `not json`, nil)
	post(h, `{"collection":"glass-custom-7","itemId":"i1","userToken":"u1"}`, nil)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(t.Context(), &rm))

	sums := map[string]map[string]int64{}
	collections := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			data, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, m.Name)
			sums[m.Name] = map[string]int64{}
			for _, dp := range data.DataPoints {
				label := ""
				if v, ok := dp.Attributes.Value("reason"); ok {
					label = v.AsString()
				}
				if v, ok := dp.Attributes.Value("outcome"); ok {
					label = v.AsString()
				}
				if v, ok := dp.Attributes.Value("collection"); ok {
					collections[v.AsString()] += dp.Value
				}
				sums[m.Name][label] += dp.Value
			}
		}
	}

	assert.Equal(t, int64(4), sums["glassgate_notifications_received"][""])
	assert.Equal(t, int64(1), sums["glassgate_notifications_rejected"][reasonTooLarge])
	assert.Equal(t, int64(1), sums["glassgate_notifications_rejected"][reasonInvalidPayload])
	assert.Equal(t, int64(1), sums["glassgate_notifications_dispatched"][outcomeOK])
	assert.Equal(t, int64(1), sums["glassgate_notifications_dispatched"][outcomeIgnored])
	assert.Equal(t, map[string]int64{mirror.CollectionLocations: 1, collectionOther: 1}, collections)
}
