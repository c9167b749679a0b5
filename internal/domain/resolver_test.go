package domain

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/sourceplane/dpfactory/internal/model"
	"github.com/sourceplane/dpfactory/internal/starburst"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI is an in-memory domain store. createErrs are returned, in order,
// by successive CreateDomain calls before falling back to a real insert.
type fakeAPI struct {
	domains    []model.Domain
	createErrs []error
	listErr    error

	listCalls   int
	createCalls int
}

func (f *fakeAPI) GetDomains(ctx context.Context) ([]model.Domain, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]model.Domain(nil), f.domains...), nil
}

func (f *fakeAPI) CreateDomain(ctx context.Context, name, description string) (model.Domain, error) {
	f.createCalls++
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		return model.Domain{}, err
	}
	d := model.Domain{ID: "id-" + name, Name: name}
	f.domains = append(f.domains, d)
	return d, nil
}

var conflict = &starburst.APIError{Method: http.MethodPost, StatusCode: http.StatusConflict}

func TestResolve_ExistingDomain(t *testing.T) {
	api := &fakeAPI{domains: []model.Domain{{ID: "d-1", Name: "Retail Banking"}}}
	var out bytes.Buffer

	id, err := NewResolver(api, WithOutput(&out)).Resolve(context.Background(), "Retail Banking")
	require.NoError(t, err)
	assert.Equal(t, "d-1", id)
	assert.Zero(t, api.createCalls)
	assert.Contains(t, out.String(), "found")
}

func TestResolve_ExactNameOnly(t *testing.T) {
	api := &fakeAPI{domains: []model.Domain{{ID: "d-1", Name: "retail banking"}}}

	id, err := NewResolver(api).Resolve(context.Background(), "Retail Banking")
	require.NoError(t, err)
	assert.Equal(t, "id-Retail Banking", id)
	assert.Equal(t, 1, api.createCalls)
}

func TestResolve_CreatesOnceThenReuses(t *testing.T) {
	api := &fakeAPI{}
	r := NewResolver(api)

	first, err := r.Resolve(context.Background(), "Marketing")
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), "Marketing")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, api.createCalls)
	assert.Equal(t, 2, api.listCalls)
}

func TestResolve_ConflictRetriesLookup(t *testing.T) {
	api := &fakeAPI{createErrs: []error{conflict}}
	// the concurrent writer's domain appears after the first lookup
	r := NewResolver(&racingAPI{fakeAPI: api, appear: model.Domain{ID: "d-9", Name: "Finance"}})

	id, err := r.Resolve(context.Background(), "Finance")
	require.NoError(t, err)
	assert.Equal(t, "d-9", id)
	assert.Equal(t, 1, api.createCalls)
	assert.Equal(t, 2, api.listCalls)
}

func TestResolve_GivesUpAfterMaxAttempts(t *testing.T) {
	api := &fakeAPI{createErrs: []error{conflict, conflict, conflict}}

	_, err := NewResolver(api).Resolve(context.Background(), "Ghost")
	require.ErrorIs(t, err, ErrUnresolved)
	assert.Equal(t, DefaultMaxAttempts, api.createCalls)

	api = &fakeAPI{createErrs: []error{conflict, conflict, conflict}}
	_, err = NewResolver(api, WithMaxAttempts(3)).Resolve(context.Background(), "Ghost")
	require.ErrorIs(t, err, ErrUnresolved)
	assert.Equal(t, 3, api.createCalls)
}

func TestResolve_CreateFailureIsFatal(t *testing.T) {
	boom := &starburst.APIError{Method: http.MethodPost, StatusCode: http.StatusForbidden}
	api := &fakeAPI{createErrs: []error{boom}}

	_, err := NewResolver(api).Resolve(context.Background(), "Finance")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnresolved)
	var apiErr *starburst.APIError
	assert.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 1, api.createCalls)
}

func TestResolve_ListFailure(t *testing.T) {
	api := &fakeAPI{listErr: errors.New("connection refused")}

	_, err := NewResolver(api).Resolve(context.Background(), "Finance")
	assert.ErrorContains(t, err, "connection refused")
	assert.Zero(t, api.createCalls)
}

func TestResolve_EmptyName(t *testing.T) {
	_, err := NewResolver(&fakeAPI{}).Resolve(context.Background(), "  ")
	assert.Error(t, err)
}

// racingAPI makes a domain visible from the second listing onwards.
type racingAPI struct {
	*fakeAPI
	appear model.Domain
}

func (r *racingAPI) GetDomains(ctx context.Context) ([]model.Domain, error) {
	domains, err := r.fakeAPI.GetDomains(ctx)
	if err != nil || r.fakeAPI.listCalls < 2 {
		return domains, err
	}
	return append(domains, r.appear), nil
}
