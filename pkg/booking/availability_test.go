package booking_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tanjh/roombook/pkg/booking"
)

func availabilityCard(name string, slots ...[2]string) string {
	card := `<div class="card fa-sm">` +
		`<span class="d-block d-md-none font-weight-bold">Name:</span> ` + name
	for _, s := range slots {
		card += fmt.Sprintf(`<a data-sltid=%s href="#"><span class='time-slot-white'> %s</span></a>`, s[0], s[1])
	}
	return card + `</div>`
}

var testWindow = booking.Window{Date: "05 Feb 2026", StartTime: "07:00", EndTime: "22:00"}

func TestResourceSlots(t *testing.T) {
	stub := newStubBooking(t)
	stub.slotListBody = `[
		{"SLT_ID":"s1","SLT_Desc":"08:00-09:00","SLT_STATUS":1},
		{"SLT_ID":"sx","SLT_Desc":"09:00-10:00","SLT_STATUS":0},
		{"SLT_ID":"s2","SLT_Desc":"10:00-11:00","SLT_STATUS":1}
	]`
	c := newBookingClient(t, stub)
	resolver := booking.NewResolver(c, zap.NewNop())
	resource := booking.Resource{ID: "R1", TypeID: "T1", Name: "E2-01-001-DR01"}

	slots, err := resolver.ResourceSlots(context.Background(), testToken, resource, testWindow)
	require.NoError(t, err)

	// Only bookable slots survive, in response order.
	require.Len(t, slots, 2)
	assert.Equal(t, booking.Slot{
		ID: "s1", TimeRange: "08:00-09:00", ResourceID: "R1", ResourceTypeID: "T1",
	}, slots[0])
	assert.Equal(t, "s2", slots[1].ID)
}

func TestResourceSlotsNonJSONBody(t *testing.T) {
	stub := newStubBooking(t)
	stub.slotListBody = "<div>oops</div>"
	c := newBookingClient(t, stub)
	resolver := booking.NewResolver(c, zap.NewNop())

	_, err := resolver.ResourceSlots(context.Background(), testToken,
		booking.Resource{ID: "R1", TypeID: "T1", Name: "X"}, testWindow)
	assert.Error(t, err)
}

func TestResolvePerResource(t *testing.T) {
	stub := newStubBooking(t)
	stub.slotListBody = `[{"SLT_ID":"s1","SLT_Desc":"08:00-09:00","SLT_STATUS":1}]`
	c := newBookingClient(t, stub)
	resolver := booking.NewResolver(c, zap.NewNop())

	index := resolver.ResolvePerResource(context.Background(), testToken, []booking.Resource{
		{ID: "R1", TypeID: "T1", Name: "E2-01-001-DR01"},
		{ID: "R2", TypeID: "T1", Name: "E2-01-002-DR02"},
	}, testWindow)

	assert.Equal(t, []string{"E2-01-001-DR01", "E2-01-002-DR02"}, index.Rooms())
	assert.Equal(t, 2, stub.slotListCalls)
}

func TestResolvePerResourceDegradesOnFailure(t *testing.T) {
	stub := newStubBooking(t)
	stub.slotListBody = `[{"SLT_ID":"s1","SLT_Desc":"08:00-09:00","SLT_STATUS":1}]`
	stub.slotListByID = map[string]string{"R2": "<div>server error page</div>"}
	c := newBookingClient(t, stub)
	resolver := booking.NewResolver(c, zap.NewNop())

	index := resolver.ResolvePerResource(context.Background(), testToken, []booking.Resource{
		{ID: "R1", TypeID: "T1", Name: "E2-01-001-DR01"},
		{ID: "R2", TypeID: "T1", Name: "E2-01-002-DR02"},
	}, testWindow)

	// The failing resource degrades to no slots instead of failing the run.
	assert.Equal(t, []string{"E2-01-001-DR01"}, index.Rooms())
	assert.Equal(t, 2, stub.slotListCalls)
}

func TestResolveBulk(t *testing.T) {
	stub := newStubBooking(t)
	stub.availabilityHTML = "<html><body>" +
		availabilityCard("E2-01-001-DR01", [2]string{"aaa111-1", "08:00-09:00"}, [2]string{"bbb222-2", "09:00-10:00"}) +
		availabilityCard("E2-01-002-DR02", [2]string{"ccc333-3", "10:00-11:00"}) +
		availabilityCard("E2-09-999-DR99", [2]string{"ddd444-4", "11:00-12:00"}) +
		"</body></html>"
	c := newBookingClient(t, stub)
	resolver := booking.NewResolver(c, zap.NewNop())

	resources := []booking.Resource{
		{ID: "R1", TypeID: "T1", Name: "E2-01-001-DR01"},
		{ID: "R2", TypeID: "T1", Name: "E2-01-002-DR02"},
	}

	index, err := resolver.ResolveBulk(context.Background(), testToken, resources, testWindow)
	require.NoError(t, err)

	// The room absent from the directory result is skipped.
	assert.Equal(t, []string{"E2-01-001-DR01", "E2-01-002-DR02"}, index.Rooms())

	slots := index.Slots("E2-01-001-DR01")
	require.Len(t, slots, 2)
	assert.Equal(t, booking.Slot{
		ID: "aaa111-1", TimeRange: "08:00-09:00", ResourceID: "R1", ResourceTypeID: "T1",
	}, slots[0])
	assert.Equal(t, booking.Slot{
		ID: "bbb222-2", TimeRange: "09:00-10:00", ResourceID: "R1", ResourceTypeID: "T1",
	}, slots[1])

	form := stub.lastBulkForm
	assert.Equal(t, testToken, form.Get("__RequestVerificationToken"))
	assert.Equal(t, "Available", form.Get("bookingstatus"))
	assert.Equal(t, "facilities", form.Get("_rsrcCat"))
}

func TestResolveBulkOrderIsStable(t *testing.T) {
	stub := newStubBooking(t)
	stub.availabilityHTML = availabilityCard("E2-01-001-DR01",
		[2]string{"aaa111-1", "08:00-09:00"}, [2]string{"bbb222-2", "09:00-10:00"})
	c := newBookingClient(t, stub)
	resolver := booking.NewResolver(c, zap.NewNop())
	resources := []booking.Resource{{ID: "R1", TypeID: "T1", Name: "E2-01-001-DR01"}}

	first, err := resolver.ResolveBulk(context.Background(), testToken, resources, testWindow)
	require.NoError(t, err)
	second, err := resolver.ResolveBulk(context.Background(), testToken, resources, testWindow)
	require.NoError(t, err)

	assert.Equal(t, first.Rooms(), second.Rooms())
	assert.Equal(t, first.Slots("E2-01-001-DR01"), second.Slots("E2-01-001-DR01"))
}

func TestResolveBulkBatchLimit(t *testing.T) {
	stub := newStubBooking(t)
	stub.availabilityHTML = "<html><body></body></html>"
	c := newBookingClient(t, stub)
	resolver := booking.NewResolver(c, zap.NewNop())

	var resources []booking.Resource
	for i := 0; i < 12; i++ {
		resources = append(resources, booking.Resource{
			ID:     fmt.Sprintf("R%d", i),
			TypeID: "T1",
			Name:   fmt.Sprintf("ROOM-%02d", i),
		})
	}

	_, err := resolver.ResolveBulk(context.Background(), testToken, resources, testWindow)
	require.NoError(t, err)

	var parameter []struct {
		Date         string `json:"MRB002Date"`
		ResourceList []struct {
			ResourceID string `json:"RSRC_ID"`
			IsSold     bool   `json:"IS_SLD"`
		} `json:"ResourceList"`
	}
	require.NoError(t, json.Unmarshal([]byte(stub.lastBulkForm.Get("parameter")), &parameter))
	require.Len(t, parameter, 1)
	assert.Equal(t, "05 Feb 2026", parameter[0].Date)
	// The endpoint accepts at most nine resources per request.
	assert.Len(t, parameter[0].ResourceList, 9)
	assert.Equal(t, "R0", parameter[0].ResourceList[0].ResourceID)
	assert.False(t, parameter[0].ResourceList[0].IsSold)
}

func TestResolveBulkNoResources(t *testing.T) {
	stub := newStubBooking(t)
	c := newBookingClient(t, stub)
	resolver := booking.NewResolver(c, zap.NewNop())

	index, err := resolver.ResolveBulk(context.Background(), testToken, nil, testWindow)
	require.NoError(t, err)
	assert.Zero(t, index.Len())
	assert.Zero(t, stub.bulkCalls)
}
