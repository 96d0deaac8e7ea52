package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blkoutuk/comms-pipeline/internal/config"
	"github.com/blkoutuk/comms-pipeline/internal/domain"
)

func graphConfig(baseURL string) config.GraphConfig {
	return config.GraphConfig{
		BaseURL:        baseURL,
		APIVersion:     "v21.0",
		TimeoutSeconds: 5,
		Enabled:        true,
	}
}

func TestInstagramPublishTwoStep(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/v21.0/ig-account/media":
			var payload map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "https://cdn.example.org/pic.jpg", payload["image_url"])
			assert.Equal(t, "Launch day #community #blkout", payload["caption"])
			json.NewEncoder(w).Encode(map[string]string{"id": "container-7"})
		case "/v21.0/ig-account/media_publish":
			var payload map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "container-7", payload["creation_id"])
			json.NewEncoder(w).Encode(map[string]string{"id": "media-9"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	d := NewInstagramDispatcher(graphConfig(server.URL), tokensFor(domain.PlatformInstagram, "ig-account"))
	item := &domain.ContentItem{
		Platform: domain.PlatformInstagram,
		Body:     "Launch day",
		Tags:     []string{"community", "blkout"},
		MediaURL: "https://cdn.example.org/pic.jpg",
	}

	result := d.Publish(context.Background(), item)

	require.True(t, result.Success, "error: %s", result.Error)
	assert.Equal(t, "media-9", result.ExternalID)
	assert.Equal(t, []string{"/v21.0/ig-account/media", "/v21.0/ig-account/media_publish"}, paths)
}

func TestInstagramPublishRequiresMedia(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no network call should be made for an item without media")
	}))
	defer server.Close()

	d := NewInstagramDispatcher(graphConfig(server.URL), tokensFor(domain.PlatformInstagram, "ig-account"))
	result := d.Publish(context.Background(), &domain.ContentItem{Body: "text only"})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "no media URL")
}

func TestInstagramPublishFallsBackToContainerID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v21.0/ig-account/media":
			json.NewEncoder(w).Encode(map[string]string{"id": "container-3"})
		default:
			w.Write([]byte(`{}`))
		}
	}))
	defer server.Close()

	d := NewInstagramDispatcher(graphConfig(server.URL), tokensFor(domain.PlatformInstagram, "ig-account"))
	result := d.Publish(context.Background(), &domain.ContentItem{
		Body:     "post",
		MediaURL: "https://cdn.example.org/pic.jpg",
	})

	require.True(t, result.Success)
	assert.Equal(t, "container-3", result.ExternalID)
}

func TestInstagramFetchMetrics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v21.0/media-9/insights", r.URL.Path)
		w.Write([]byte(`{"data": [
			{"name": "reach", "values": [{"value": 340}]},
			{"name": "views", "values": [{"value": 512}]},
			{"name": "total_interactions", "values": [{"value": 28}]}
		]}`))
	}))
	defer server.Close()

	d := NewInstagramDispatcher(graphConfig(server.URL), tokensFor(domain.PlatformInstagram, "ig-account"))
	raw := d.FetchMetrics(context.Background(), "media-9")

	reach, _ := raw.GetInt64("reach")
	assert.Equal(t, int64(340), reach)
	engagement, _ := raw.GetInt64("engagement")
	assert.Equal(t, int64(28), engagement)
}
