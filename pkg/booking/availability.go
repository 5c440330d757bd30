package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/tanjh/roombook/pkg/client"
	"github.com/tanjh/roombook/pkg/decode"
)

// bulkPageSize is the maximum number of resource descriptors the bulk
// availability endpoint accepts in one request.
const bulkPageSize = 9

// Resolver queries slot availability and builds the SlotIndex. Two query
// modes exist against the server: a per-resource JSON endpoint and a bulk
// HTML endpoint; both preserve response order exactly.
type Resolver struct {
	client *client.Client
	log    *zap.Logger
}

// NewResolver creates an availability resolver.
func NewResolver(c *client.Client, log *zap.Logger) *Resolver {
	return &Resolver{client: c, log: log}
}

// slotRecord is the per-resource endpoint's wire shape for one slot.
type slotRecord struct {
	ID        string `json:"SLT_ID"`
	TimeRange string `json:"SLT_Desc"`
	Status    int    `json:"SLT_STATUS"`
}

// slotStatusBookable is the status flag value marking a slot bookable.
const slotStatusBookable = 1

// ResourceSlots queries the per-resource endpoint for one resource and
// returns its bookable slots in response order.
func (r *Resolver) ResourceSlots(ctx context.Context, token string, res Resource, w Window) ([]Slot, error) {
	form := url.Values{
		"__RequestVerificationToken": {token},
		"RSRC_ID":                    {res.ID},
		"RSRC_TYP_ID":                {res.TypeID},
		"SearchDate":                 {w.Date},
		"StartTime":                  {w.StartTime},
		"EndTime":                    {w.EndTime},
	}
	resp, err := r.client.PostForm(ctx, client.PathSlotList, form)
	if err != nil {
		return nil, fmt.Errorf("slot query for %s failed: %w", res.Name, err)
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("slot query for %s rejected: status %d", res.Name, resp.StatusCode)
	}
	if resp.SessionExpired() {
		return nil, client.ErrSessionExpired
	}
	if !decode.IsJSONBody(resp.Body) {
		return nil, fmt.Errorf("slot query for %s returned a non-JSON body", res.Name)
	}
	var records []slotRecord
	if err := json.Unmarshal(resp.Body, &records); err != nil {
		return nil, fmt.Errorf("decoding slot list for %s: %w", res.Name, err)
	}
	var slots []Slot
	for _, rec := range records {
		if rec.Status != slotStatusBookable {
			continue
		}
		slots = append(slots, Slot{
			ID:             rec.ID,
			TimeRange:      rec.TimeRange,
			ResourceID:     res.ID,
			ResourceTypeID: res.TypeID,
		})
	}
	return slots, nil
}

// ResolvePerResource builds a SlotIndex by querying each resource
// individually. A failed query degrades to no slots for that resource
// rather than failing the run.
func (r *Resolver) ResolvePerResource(ctx context.Context, token string, resources []Resource, w Window) *SlotIndex {
	index := NewSlotIndex()
	for _, res := range resources {
		slots, err := r.ResourceSlots(ctx, token, res, w)
		if err != nil {
			r.log.Warn("availability query failed", zap.String("room", res.Name), zap.Error(err))
			continue
		}
		for _, slot := range slots {
			index.Add(res.Name, slot)
		}
	}
	r.log.Info("availability resolved", zap.String("index", index.String()))
	return index
}

// bulkDescriptor is one resource entry in the bulk request's parameter blob.
type bulkDescriptor struct {
	ResourceID string `json:"RSRC_ID"`
	IsSold     bool   `json:"IS_SLD"`
	EventType  int    `json:"Event_Type"`
	Disclaimer string `json:"Disclaimer"`
}

// bulkParameter is the bulk request's date/time window plus resource batch.
type bulkParameter struct {
	Date         string           `json:"MRB002Date"`
	StartTime    string           `json:"MRB002StartTime"`
	EndTime      string           `json:"MRB002EndTime"`
	ResourceList []bulkDescriptor `json:"ResourceList"`
}

// ResolveBulk builds a SlotIndex with one batched query covering up to
// bulkPageSize resources. The response is HTML; each resource's block is
// located by its displayed name, and blocks without a recognizable name are
// skipped. Resources beyond the page size are not queried.
func (r *Resolver) ResolveBulk(ctx context.Context, token string, resources []Resource, w Window) (*SlotIndex, error) {
	index := NewSlotIndex()
	if len(resources) == 0 {
		return index, nil
	}

	batch := resources
	if len(batch) > bulkPageSize {
		batch = batch[:bulkPageSize]
	}
	descriptors := make([]bulkDescriptor, 0, len(batch))
	for _, res := range batch {
		descriptors = append(descriptors, bulkDescriptor{
			ResourceID: res.ID,
			IsSold:     false,
			EventType:  0,
			Disclaimer: "Photo is a sample/illustration for typical DR layout.",
		})
	}
	parameter, err := json.Marshal([]bulkParameter{{
		Date:         w.Date,
		StartTime:    w.StartTime,
		EndTime:      w.EndTime,
		ResourceList: descriptors,
	}})
	if err != nil {
		return nil, err
	}

	form := url.Values{
		"__RequestVerificationToken": {token},
		"bookingstatus":              {"Available"},
		"parameter":                  {string(parameter)},
		"_rsrcCat":                   {"facilities"},
	}
	resp, err := r.client.PostForm(ctx, client.PathBulkAvailability, form)
	if err != nil {
		return nil, fmt.Errorf("bulk availability query failed: %w", err)
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("bulk availability query rejected: status %d", resp.StatusCode)
	}
	if resp.SessionExpired() {
		return nil, client.ErrSessionExpired
	}

	byName := make(map[string]Resource, len(resources))
	for _, res := range resources {
		byName[res.Name] = res
	}
	// The block markup carries the id of neither the resource nor its type;
	// both come from the directory result, matched by displayed name.
	for _, room := range decode.ParseAvailability(string(resp.Body)) {
		res, ok := byName[room.Name]
		if !ok {
			r.log.Warn("skipping unknown room in availability response", zap.String("room", room.Name))
			continue
		}
		for _, slot := range room.Slots {
			index.Add(room.Name, Slot{
				ID:             slot.ID,
				TimeRange:      slot.TimeRange,
				ResourceID:     res.ID,
				ResourceTypeID: res.TypeID,
			})
		}
	}
	r.log.Info("availability resolved", zap.String("index", index.String()))
	return index, nil
}
