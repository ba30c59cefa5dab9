package gnest

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response gives a handler or filter full control over status, headers and body.
type Response struct {
	Status int
	Header http.Header
	Body   any
}

// Render renders an HTML template loaded into the engine.
type Render struct {
	Name string
	Data any
}

// RedirectResult redirects to Location. Code defaults to 302.
type RedirectResult struct {
	Code     int
	Location string
}

// DataResult writes raw bytes, e.g. an image or a captcha.
type DataResult struct {
	ContentType string
	Data        []byte
}

// FileResult serves a local file, as an attachment when FileName is set.
type FileResult struct {
	FilePath string
	FileName string
}

// writeResult maps a handler result onto the gin response. The status comes from
// the result itself, then from the execution context, then defaults to 200, or
// 204 for a nil result.
func writeResult(x *ExecutionContext, res any) {
	c := x.c
	if c.IsAborted() || c.Writer.Written() {
		return
	}
	flushHeaders(x)

	status := x.res.status
	if status == 0 {
		status = http.StatusOK
	}
	if r, ok := res.(*Response); ok {
		if r == nil {
			res = nil
		} else {
			res = *r
		}
	}
	if x.res.redirect != nil {
		switch res.(type) {
		case Response, RedirectResult, *RedirectResult:
		default:
			redirect(c, *x.res.redirect)
			return
		}
	}

	switch v := res.(type) {
	case Response:
		for k, vs := range v.Header {
			for _, hv := range vs {
				c.Writer.Header().Add(k, hv)
			}
		}
		if v.Status != 0 {
			status = v.Status
		}
		if v.Body == nil {
			c.Status(status)
			c.Writer.WriteHeaderNow()
			return
		}
		x.res.status = status
		writeResult(x, v.Body)
	case Render:
		c.HTML(status, v.Name, v.Data)
	case RedirectResult:
		redirect(c, v)
	case *RedirectResult:
		redirect(c, *v)
	case DataResult:
		c.Data(status, v.ContentType, v.Data)
	case FileResult:
		if v.FileName != "" {
			c.FileAttachment(v.FilePath, v.FileName)
		} else {
			c.File(v.FilePath)
		}
	case string:
		c.String(status, v)
	case []byte:
		c.Data(status, "application/octet-stream", v)
	case nil:
		if x.res.status == 0 {
			status = http.StatusNoContent
		}
		c.Status(status)
		c.Writer.WriteHeaderNow()
	default:
		c.JSON(status, res)
	}
}

// flushHeaders copies headers set through the execution context onto the writer.
func flushHeaders(x *ExecutionContext) {
	for k, vs := range x.res.header {
		for _, v := range vs {
			x.c.Writer.Header().Add(k, v)
		}
	}
	x.res.header = nil
}

func redirect(c *gin.Context, r RedirectResult) {
	code := r.Code
	if code == 0 {
		code = http.StatusFound
	}
	c.Redirect(code, r.Location)
}
