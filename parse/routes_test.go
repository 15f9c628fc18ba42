package parse_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/gtfsimport/model"
	"tidbyt.dev/gtfsimport/parse"
	"tidbyt.dev/gtfsimport/storage"
)

func TestParseRoutes(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, tc := range []struct {
		name    string
		content string
		routes  []*model.Route
		err     bool
	}{
		{
			"minimal",
			`
route_id,agency_id,route_short_name,route_long_name,route_desc,route_type,route_url,route_color,route_text_color,route_sort_order
R1,A1,1,Main,,3,,,,`,
			[]*model.Route{{
				ID:         "R1",
				AgencyID:   "A1",
				ShortName:  "1",
				LongName:   "Main",
				Type:       "3",
				ImportedAt: now,
			}},
			false,
		},

		{
			"all_fields_set",
			`
route_id,agency_id,route_short_name,route_long_name,route_desc,route_type,route_url,route_color,route_text_color,route_sort_order
r1,a1,one,Route One,Description1,3,http://one/,FFFFF0,00000F,1
r2,a2,two,"Route Two, Express","Says ""hi""",3,http://two/,FFFFF1,00000E,2`,
			[]*model.Route{
				{
					ID:         "r1",
					AgencyID:   "a1",
					ShortName:  "one",
					LongName:   "Route One",
					Desc:       "Description1",
					Type:       "3",
					URL:        "http://one/",
					Color:      "FFFFF0",
					TextColor:  "00000F",
					SortOrder:  "1",
					ImportedAt: now,
				},
				{
					ID:         "r2",
					AgencyID:   "a2",
					ShortName:  "two",
					LongName:   "Route Two, Express",
					Desc:       `Says "hi"`,
					Type:       "3",
					URL:        "http://two/",
					Color:      "FFFFF1",
					TextColor:  "00000E",
					SortOrder:  "2",
					ImportedAt: now,
				},
			},
			false,
		},

		{
			"header_only",
			`route_id,agency_id,route_short_name,route_long_name,route_desc,route_type,route_url,route_color,route_text_color,route_sort_order`,
			[]*model.Route{},
			false,
		},

		{
			"empty",
			``,
			[]*model.Route{},
			false,
		},

		{
			"header_is_not_validated",
			`
id,whatever
R1,A1,1,Main,,3,,,,`,
			[]*model.Route{{
				ID:         "R1",
				AgencyID:   "A1",
				ShortName:  "1",
				LongName:   "Main",
				Type:       "3",
				ImportedAt: now,
			}},
			false,
		},

		{
			"missing_field",
			`
route_id,agency_id,route_short_name,route_long_name,route_desc,route_type,route_url,route_color,route_text_color,route_sort_order
R1,A1,1,Main,,3,,,`,
			nil,
			true,
		},

		{
			"malformed_quote",
			`
route_id,agency_id,route_short_name,route_long_name,route_desc,route_type,route_url,route_color,route_text_color,route_sort_order
R1,A1,1,"Main,,3,,,,`,
			nil,
			true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := storage.NewMemoryStorage()
			s.TimeNow = func() time.Time { return now }

			ctx := context.Background()
			batch, err := s.Begin(ctx)
			require.NoError(t, err)
			defer batch.Rollback()

			n, err := parse.ParseRoutes(ctx, batch, tc.content)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tc.routes), n)
			require.NoError(t, batch.Commit())

			routes, err := s.AllRoutes(ctx)
			require.NoError(t, err)
			assert.Equal(t, tc.routes, routes)
		})
	}
}

func TestParseRoutesErrorLine(t *testing.T) {
	s := storage.NewMemoryStorage()
	ctx := context.Background()
	batch, err := s.Begin(ctx)
	require.NoError(t, err)
	defer batch.Rollback()

	n, err := parse.ParseRoutes(ctx, batch, "h\nR1,A1,1,Main,,3,,,,\nR2,A1,2\n")
	require.Error(t, err)
	assert.Equal(t, 1, n)

	var schemaErr *parse.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, model.KindRoute, schemaErr.Kind)
	assert.Equal(t, 3, schemaErr.Line)
	assert.Equal(t, 3, schemaErr.Got)
	assert.Equal(t, 10, schemaErr.Want)
}
