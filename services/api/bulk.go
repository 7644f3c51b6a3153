package api

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portal/core/bulk"
)

var _ bulk.Client = (*Client)(nil)

func bulkPath(op string, entity bulk.EntityType) string {
	return "/bulk/" + op + "/" + url.PathEscape(string(entity))
}

func (c *Client) download(ctx context.Context, op string, entity bulk.EntityType, format bulk.Format) ([]byte, error) {
	q := url.Values{}
	q.Set("format", string(format))
	req, err := c.newRequest(ctx, http.MethodGet, bulkPath(op, entity)+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", format.ContentType())
	return c.doBlob(req)
}

// Template downloads the import template of entity.
func (c *Client) Template(ctx context.Context, entity bulk.EntityType, format bulk.Format) ([]byte, error) {
	return c.download(ctx, "template", entity, format)
}

// Export downloads every record of entity.
func (c *Client) Export(ctx context.Context, entity bulk.EntityType, format bulk.Format) ([]byte, error) {
	return c.download(ctx, "export", entity, format)
}

// Import uploads a file for server-side parsing, as the multipart field "file".
func (c *Client) Import(ctx context.Context, entity bulk.EntityType, filename string, r io.Reader) (bulk.ImportResult, error) {
	var res bulk.ImportResult

	// buffered so the request can be replayed after a token refresh
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return res, errors.Wrap(err, "creating form file")
	}
	if _, err = io.Copy(part, r); err != nil {
		return res, errors.Wrap(err, "reading file")
	}
	if err = mw.Close(); err != nil {
		return res, errors.Wrap(err, "closing multipart writer")
	}

	req, err := c.newRequest(ctx, http.MethodPost, bulkPath("import", entity), &body)
	if err != nil {
		return res, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	err = c.doJSON(c.http, req, &res)
	return res, err
}
