package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medlens/medlens/internal/catalog"
)

const npiFixture = `{
	"result_count": 2,
	"results": [
		{
			"number": "1003000126",
			"enumeration_type": "NPI-1",
			"basic": {"first_name": "ARDALAN", "last_name": "ENKESHAFI", "credential": "M.D.", "status": "A"},
			"addresses": [
				{"address_purpose": "MAILING", "city": "BALTIMORE", "state": "MD"},
				{"address_purpose": "LOCATION", "city": "CUMBERLAND", "state": "MD", "postal_code": "215021854"}
			],
			"taxonomies": [
				{"code": "207R00000X", "desc": "Internal Medicine", "primary": true},
				{"code": "208M00000X", "desc": "Hospitalist", "primary": false}
			]
		},
		{
			"number": "1003000134",
			"enumeration_type": "NPI-2",
			"basic": {"organization_name": "CUMBERLAND VALLEY INTERNAL MEDICINE"},
			"addresses": [],
			"taxonomies": []
		}
	]
}`

func newNPITestClient(t *testing.T, handler http.HandlerFunc) *NPIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewNPIClient(testOptions())
	c.baseURL = srv.URL
	return c
}

func TestNPIFetchFlattens(t *testing.T) {
	var gotQuery map[string]string
	c := newNPITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		fmt.Fprint(w, npiFixture)
	})

	ds := catalog.Dataset{ID: "npi-registry", Platform: catalog.PlatformNPI}
	got, err := c.Fetch(context.Background(), ds, map[string]any{
		"last_name": "enkeshafi",
		"state":     "MD",
	}, 50, 0)
	require.NoError(t, err)

	assert.Equal(t, "2.1", gotQuery["version"])
	assert.Equal(t, "50", gotQuery["limit"])
	assert.Equal(t, "enkeshafi", gotQuery["last_name"])

	require.Equal(t, 2, got.RowCount())

	rec := got.Records()[0]
	assert.Equal(t, "1003000126", rec["npi"])
	assert.Equal(t, "ARDALAN", rec["basic_first_name"])
	// The LOCATION address wins over MAILING.
	assert.Equal(t, "CUMBERLAND", rec["practice_city"])
	// Only the first taxonomy is kept.
	assert.Equal(t, "Internal Medicine", rec["taxonomy_desc"])
	assert.Equal(t, "NPI-1", rec["enumeration_type"])

	org := got.Records()[1]
	assert.Equal(t, "CUMBERLAND VALLEY INTERNAL MEDICINE", org["basic_organization_name"])
	assert.Nil(t, org["practice_city"])
}

func TestNPIRequiresParams(t *testing.T) {
	c := NewNPIClient(testOptions())
	ds := catalog.Dataset{ID: "npi-registry"}
	_, err := c.Fetch(context.Background(), ds, nil, 10, 0)
	require.Error(t, err)

	_, err = c.Fetch(context.Background(), ds, map[string]any{"state": "CA"}, 10, 5)
	require.Error(t, err, "offsets are unsupported")
}

func TestNPIRejectsUnknownParam(t *testing.T) {
	c := newNPITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, npiFixture)
	})
	ds := catalog.Dataset{ID: "npi-registry"}
	_, err := c.Fetch(context.Background(), ds, map[string]any{"favorite_color": "blue"}, 10, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "favorite_color")
}

func TestNPICapsLimit(t *testing.T) {
	var gotLimit string
	c := newNPITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotLimit = r.URL.Query().Get("limit")
		fmt.Fprint(w, `{"results":[]}`)
	})
	ds := catalog.Dataset{ID: "npi-registry"}
	_, err := c.FetchAll(context.Background(), ds, map[string]any{"state": "CA"}, 50000)
	require.NoError(t, err)
	assert.Equal(t, "200", gotLimit)
}

func TestNPILookup(t *testing.T) {
	var gotNumber string
	c := newNPITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotNumber = r.URL.Query().Get("number")
		fmt.Fprint(w, npiFixture)
	})
	got, err := c.Lookup(context.Background(), "1003000126")
	require.NoError(t, err)
	assert.Equal(t, "1003000126", gotNumber)
	assert.NotZero(t, got.RowCount())
}
