package dispatch_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/dispatch"
)

func TestFilterChain_runs_in_order(t *testing.T) {
	t.Parallel()

	var order []string
	record := func(name string) dispatch.RequestFilter {
		return dispatch.RequestFilterFunc(func(*dispatch.RequestContext, any) (bool, error) {
			order = append(order, name)
			return false, nil
		})
	}

	handled, err := dispatch.NewFilterChain([]dispatch.RequestFilter{record("a"), record("b"), record("c")}, nil).
		RunRequestFilters(nil, nil)

	require.NoError(t, err)
	assert.False(t, handled)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestFilterChain_error_stops_chain(t *testing.T) {
	t.Parallel()

	errDenied := errors.New("denied")
	var after bool
	chain := dispatch.NewFilterChain(nil, []dispatch.ResponseFilter{
		dispatch.ResponseFilterFunc(func(*dispatch.RequestContext, any) (bool, error) { return false, errDenied }),
		dispatch.ResponseFilterFunc(func(*dispatch.RequestContext, any) (bool, error) {
			after = true
			return false, nil
		}),
	})

	handled, err := chain.RunResponseFilters(nil, "resp")

	assert.ErrorIs(t, err, errDenied)
	assert.False(t, handled)
	assert.False(t, after)
}

func TestFilterChain_response_short_circuit(t *testing.T) {
	t.Parallel()

	var seen []any
	chain := dispatch.NewFilterChain(nil, []dispatch.ResponseFilter{
		dispatch.ResponseFilterFunc(func(_ *dispatch.RequestContext, resp any) (bool, error) {
			seen = append(seen, resp)
			return true, nil
		}),
		dispatch.ResponseFilterFunc(func(_ *dispatch.RequestContext, resp any) (bool, error) {
			seen = append(seen, resp)
			return false, nil
		}),
	})

	handled, err := chain.RunResponseFilters(nil, "resp")

	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, []any{"resp"}, seen)
}

func TestFilterChain_panic_becomes_error(t *testing.T) {
	t.Parallel()

	chain := dispatch.NewFilterChain([]dispatch.RequestFilter{
		dispatch.RequestFilterFunc(func(*dispatch.RequestContext, any) (bool, error) { panic("bad filter") }),
	}, nil)

	handled, err := chain.RunRequestFilters(nil, nil)

	var pe *dispatch.PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "bad filter", pe.Value)
	assert.NotEmpty(t, pe.Stack)
	assert.False(t, handled)
}

func TestFilterChain_copies_input(t *testing.T) {
	t.Parallel()

	var ran int
	filters := []dispatch.RequestFilter{
		dispatch.RequestFilterFunc(func(*dispatch.RequestContext, any) (bool, error) {
			ran++
			return false, nil
		}),
	}
	chain := dispatch.NewFilterChain(filters, nil)
	filters[0] = dispatch.RequestFilterFunc(func(*dispatch.RequestContext, any) (bool, error) {
		return false, errors.New("replaced")
	})

	_, err := chain.RunRequestFilters(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, ran)
}
