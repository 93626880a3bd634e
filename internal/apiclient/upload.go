package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
)

// File is the payload of UploadFile.
type File struct {
	Name        string
	ContentType string // application/octet-stream when empty
	Content     io.Reader
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// UploadFile posts file as multipart/form-data under the field "file".
// onProgress, if set, receives the percentage of the body written so far
// and restarts from 0 on every attempt. It is called from the transport's
// goroutine.
func (c *Client) UploadFile(ctx context.Context, path string, file File, onProgress func(percent int), out any, opts ...RequestOption) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(file.Name)))
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return &Error{Message: "failed to build upload body", Code: CodeUnknownError, Err: err}
	}
	if file.Content != nil {
		if _, err := io.Copy(part, file.Content); err != nil {
			return &Error{Message: "failed to read upload content", Code: CodeUnknownError, Err: err}
		}
	}
	if err := mw.Close(); err != nil {
		return &Error{Message: "failed to build upload body", Code: CodeUnknownError, Err: err}
	}

	r := c.newRequest(http.MethodPost, path)
	r.body = buf.Bytes()
	r.contentType = mw.FormDataContentType()
	r.onProgress = onProgress
	for _, o := range opts {
		o(r)
	}
	return c.execute(ctx, r, out)
}

type progressReader struct {
	r     io.Reader
	total int64
	read  int64
	last  int
	fn    func(int)
}

func newProgressReader(r io.Reader, total int64, fn func(int)) *progressReader {
	return &progressReader{r: r, total: total, last: -1, fn: fn}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.total > 0 {
		pct := int(math.Round(float64(p.read) * 100 / float64(p.total)))
		if pct != p.last {
			p.last = pct
			p.fn(pct)
		}
	}
	return n, err
}
