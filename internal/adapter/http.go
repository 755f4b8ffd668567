package adapter

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/amishk599/jobwatch/internal/model"
	"github.com/amishk599/jobwatch/internal/retry"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 10 << 20

// userAgent identifies jobwatch to career sites and scraping backends.
const userAgent = "jobwatch/1.0 (+https://github.com/amishk599/jobwatch)"

// readBody reads at most maxBodyBytes from resp.
func readBody(resp *http.Response) ([]byte, error) {
	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}

// statusError converts a non-2xx response into *model.HTTPError, keeping a
// short excerpt of the body and the Retry-After hint.
func statusError(resp *http.Response, body []byte) error {
	excerpt := strings.TrimSpace(string(body))
	if len(excerpt) > 200 {
		excerpt = excerpt[:200]
	}
	return &model.HTTPError{
		StatusCode: resp.StatusCode,
		RetryAfter: retry.ParseRetryAfter(resp.Header.Get("Retry-After")),
		Err:        fmt.Errorf("%s %s: %s", resp.Request.Method, resp.Request.URL.Redacted(), excerpt),
	}
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}
