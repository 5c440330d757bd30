package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/tanjh/roombook/pkg/cache"
	"github.com/tanjh/roombook/pkg/client"
	"github.com/tanjh/roombook/pkg/decode"
)

// Directory fetches the list of bookable resources and maintains the
// persisted room name-to-id mapping.
type Directory struct {
	client       *client.Client
	store        *cache.Store
	resourceType string
	log          *zap.Logger
}

// NewDirectory creates a resource directory filtering on resourceType
// (e.g. "Discussion Room").
func NewDirectory(c *client.Client, store *cache.Store, resourceType string, log *zap.Logger) *Directory {
	return &Directory{client: c, store: store, resourceType: resourceType, log: log}
}

// ListResources issues the availability-filtered search and returns the
// matching resources. The server answers genuinely empty result sets with
// an HTML fragment instead of JSON, so a non-JSON body is an empty result,
// not an error. Found resources are written to the persistent name-to-id
// mapping so later runs can resolve a typed room name without re-listing.
func (d *Directory) ListResources(ctx context.Context, token string) ([]Resource, error) {
	form := url.Values{
		"__RequestVerificationToken": {token},
		"CapacityOperator":           {"<"},
		"SingleCapacity":             {""},
		"MinCapacity":                {""},
		"MaxCapacity":                {""},
		"campusID":                   {""},
		"buildingID":                 {""},
		"bookingstatus":              {"Available"},
		"faciequip":                  {"facilities"},
		"BookingStatus":              {"Available"},
		"Search":                     {""},
		"ResourceType":               {d.resourceType},
		"LocationID":                 {""},
	}
	resp, err := d.client.PostForm(ctx, client.PathSearch, form)
	if err != nil {
		return nil, fmt.Errorf("resource search failed: %w", err)
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("resource search rejected: status %d", resp.StatusCode)
	}
	if resp.SessionExpired() {
		return nil, client.ErrSessionExpired
	}
	if !decode.IsJSONBody(resp.Body) {
		d.log.Info("resource search returned no results")
		return nil, nil
	}

	var resources []Resource
	if err := json.Unmarshal(resp.Body, &resources); err != nil {
		return nil, fmt.Errorf("decoding resource search response: %w", err)
	}

	mapping := make(map[string]string, len(resources))
	for _, r := range resources {
		mapping[r.Name] = r.ID
	}
	if err := d.store.PutRoomMapping(mapping); err != nil {
		d.log.Warn("failed to persist room mapping", zap.Error(err))
	}

	d.log.Info("resources listed", zap.Int("count", len(resources)))
	return resources, nil
}
