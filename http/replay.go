package http

import (
	"bytes"
	"io"
	"net/http"
)

// SetPaymentHeaders attaches the encoded payment under both header names
// and asks for a JSON response.
func SetPaymentHeaders(h http.Header, payment string) {
	h.Set(HeaderXPaymentSignature, payment)
	h.Set(HeaderPaymentSignature, payment)
	h.Set("Accept", "application/json")
}

// PaidRequest clones req for replay with payment attached. Method, URL and
// the caller's other headers are preserved; body is the original request
// body, buffered by the caller since a body can be read only once.
func PaidRequest(req *http.Request, body []byte, payment string) *http.Request {
	paid := cloneWithBody(req, body)
	SetPaymentHeaders(paid.Header, payment)
	return paid
}

func cloneWithBody(req *http.Request, body []byte) *http.Request {
	clone := req.Clone(req.Context())
	if body != nil {
		clone.Body = io.NopCloser(bytes.NewReader(body))
		clone.ContentLength = int64(len(body))
		clone.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}
	return clone
}

// BufferBody reads req.Body so the request can be sent twice, restoring a
// fresh reader on req. A request without a body yields nil.
func BufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	body, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, err
	}
	req.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
