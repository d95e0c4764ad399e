package client

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"

	"github.com/tvinspection/tvinspect/pkg/constants"
	"github.com/tvinspection/tvinspect/pkg/schema"
)

func formPath(id string) string {
	return constants.PathForms + url.PathEscape(id) + "/"
}

// ListForms returns the forms visible to the current user.
func (c *Client) ListForms(ctx context.Context, params ListParams) (*FormPage, error) {
	var result FormPage
	err := c.call(ctx, request{method: http.MethodGet, path: constants.PathForms, query: params.values()}, &result)
	if err != nil {
		return nil, fmt.Errorf("list forms failed: %w", err)
	}
	return &result, nil
}

// GetForm fetches one form.
func (c *Client) GetForm(ctx context.Context, id string) (schema.Record, error) {
	var result schema.Record
	if err := c.call(ctx, request{method: http.MethodGet, path: formPath(id)}, &result); err != nil {
		return nil, fmt.Errorf("get form %s failed: %w", id, err)
	}
	return result, nil
}

// CreateForm submits a new form and returns it as stored.
func (c *Client) CreateForm(ctx context.Context, payload schema.Record) (schema.Record, error) {
	var result schema.Record
	if err := c.call(ctx, request{method: http.MethodPost, path: constants.PathForms, body: payload}, &result); err != nil {
		return nil, fmt.Errorf("create form failed: %w", err)
	}
	return result, nil
}

// UpdateForm replaces a form and returns it as stored.
func (c *Client) UpdateForm(ctx context.Context, id string, payload schema.Record) (schema.Record, error) {
	var result schema.Record
	if err := c.call(ctx, request{method: http.MethodPut, path: formPath(id), body: payload}, &result); err != nil {
		return nil, fmt.Errorf("update form %s failed: %w", id, err)
	}
	return result, nil
}

// DeleteForm asks the backend to delete a form.
func (c *Client) DeleteForm(ctx context.Context, id string) error {
	if err := c.call(ctx, request{method: http.MethodDelete, path: formPath(id)}, nil); err != nil {
		return fmt.Errorf("delete form %s failed: %w", id, err)
	}
	return nil
}

// DownloadPDF fetches the PDF rendition generated by the backend.
func (c *Client) DownloadPDF(ctx context.Context, id string) (*Download, error) {
	return c.download(ctx, id, "download-pdf/", "inspection_form_"+id+".pdf")
}

// DownloadExcel fetches the Excel rendition generated by the backend.
func (c *Client) DownloadExcel(ctx context.Context, id string) (*Download, error) {
	return c.download(ctx, id, "download-excel/", "inspection_form_"+id+".xlsx")
}

func (c *Client) download(ctx context.Context, id, suffix, fallback string) (*Download, error) {
	resp, err := c.send(ctx, request{
		method:  http.MethodGet,
		path:    formPath(id) + suffix,
		timeout: c.downloadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("download form %s failed: %w", id, err)
	}
	d := &Download{
		Filename:    fallback,
		ContentType: resp.header.Get("Content-Type"),
		Data:        resp.body,
	}
	if _, params, err := mime.ParseMediaType(resp.header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		d.Filename = params["filename"]
	}
	return d, nil
}

// Health checks the backend.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var result map[string]any
	err := c.call(ctx, request{method: http.MethodGet, path: constants.PathHealth, anonymous: true}, &result)
	if err != nil {
		return nil, err
	}
	return result, nil
}
