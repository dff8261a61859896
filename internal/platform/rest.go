package platform

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// SelectOptions narrows a relation read. Filters are equality matches on
// column values; ordering defaults to none.
type SelectOptions struct {
	Filters    map[string]string
	OrderBy    string
	Descending bool
	Limit      int
}

const restPrefix = "/rest/v1/"

// Select reads rows from a relation into dest, which must be a pointer to a
// slice of the relation's record type.
func (c *Client) Select(ctx context.Context, accessToken, relation string, opts SelectOptions, dest any) error {
	if err := validateRelation(relation); err != nil {
		return err
	}

	query := url.Values{"select": {"*"}}
	for column, value := range opts.Filters {
		query.Set(column, "eq."+value)
	}
	if opts.OrderBy != "" {
		direction := ".asc"
		if opts.Descending {
			direction = ".desc"
		}
		query.Set("order", opts.OrderBy+direction)
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}

	return c.do(ctx, "rest.select."+relation, http.MethodGet, restPrefix+relation, query, accessToken, nil, dest)
}

// Insert writes one row. When dest is non-nil the provider is asked to return
// the stored representation (including generated columns) and it is decoded
// into dest, a pointer to a slice of the record type.
func (c *Client) Insert(ctx context.Context, accessToken, relation string, row, dest any) error {
	if err := validateRelation(relation); err != nil {
		return err
	}
	return c.do(ctx, "rest.insert."+relation, http.MethodPost, restPrefix+relation, nil, accessToken, row, dest)
}

// Update patches the row with the given id. Only the columns present in patch
// change; the mirror relies on the resulting change notification, not on the
// response body.
func (c *Client) Update(ctx context.Context, accessToken, relation, id string, patch map[string]any) error {
	if err := validateRelation(relation); err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return ErrNotFound
	}
	query := url.Values{"id": {"eq." + id}}
	return c.do(ctx, "rest.update."+relation, http.MethodPatch, restPrefix+relation, query, accessToken, patch, nil)
}

// Delete removes the row with the given id.
func (c *Client) Delete(ctx context.Context, accessToken, relation, id string) error {
	if err := validateRelation(relation); err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return ErrNotFound
	}
	query := url.Values{"id": {"eq." + id}}
	return c.do(ctx, "rest.delete."+relation, http.MethodDelete, restPrefix+relation, query, accessToken, nil, nil)
}

func validateRelation(relation string) error {
	if strings.TrimSpace(relation) == "" {
		return errors.New("platform: relation is required")
	}
	return nil
}
